package handlers

import (
	"net/http"

	"github.com/arnavshah/timetable-wizard-go/internal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	ServiceName = "Timetable Wizard API"
	Version     = "1.0.0"
)

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(h.Log), gin.Recovery(), corsMiddleware(cfg.CORS))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": ServiceName,
			"version": Version,
		})
	})

	r.POST("/admin/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
	}

	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.GET("/usage", h.GetMyUsage)
		api.POST("/sessions", h.CreateSession)

		s := api.Group("/sessions/:id")
		s.GET("", h.GetSession)
		s.DELETE("", h.DeleteSession)
		s.POST("/reset", h.ResetSession)
		s.POST("/step", h.GoToStep)
		s.POST("/next", h.NextStep)
		s.POST("/back", h.PrevStep)
		s.GET("/validate", h.ValidateSession)
		s.GET("/export", h.Export)

		s.POST("/assignments", h.AddAssignment)
		s.POST("/assignments/import", h.ImportAssignments)
		s.POST("/assignments/upload", h.UploadAssignments)
		s.PUT("/assignments/:aid", h.UpdateAssignment)
		s.DELETE("/assignments/:aid", h.RemoveAssignment)

		s.PUT("/timeframe/:index", h.UpdateTimeFrame)
		s.POST("/timeframe/reset", h.ResetTimeFrame)

		s.POST("/constraints", h.AddConstraint)
		s.DELETE("/constraints/:cid", h.RemoveConstraint)

		s.GET("/result", h.GetResult)
		s.DELETE("/result", h.ClearResult)

		s.GET("/chat", h.GetTranscript)
		s.POST("/chat", h.SendMessage)
		s.POST("/chat/:mid/commit", h.CommitMessage)
	}

	return r
}

// corsMiddleware allows the configured origins; an empty list or "*" allows all.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Requested-With", requestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", requestIDHeader},
	}
	allowAll := len(cfg.AllowOrigins) == 0
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowOrigins
		cc.AllowCredentials = true
	}
	return cors.New(cc)
}
