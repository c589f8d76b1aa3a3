// Package app assembles the service from its configuration. The long-running
// server and the serverless entry point share it.
package app

import (
	"fmt"

	"github.com/arnavshah/timetable-wizard-go/internal/config"
	"github.com/arnavshah/timetable-wizard-go/pkg/auth"
	"github.com/arnavshah/timetable-wizard-go/pkg/database"
	"github.com/arnavshah/timetable-wizard-go/pkg/extraction"
	"github.com/arnavshah/timetable-wizard-go/pkg/handlers"
	"github.com/arnavshah/timetable-wizard-go/pkg/importer"
	"github.com/arnavshah/timetable-wizard-go/pkg/scheduler"
	"github.com/arnavshah/timetable-wizard-go/pkg/session"
	"github.com/arnavshah/timetable-wizard-go/pkg/webhook"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	Sessions *session.Store
	Router   *gin.Engine
}

// New opens the database, makes sure an admin exists and builds the router.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	created, err := auth.EnsureAdminExists(db, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("ensure admin: %w", err)
	}
	if created {
		log.Info("created admin user", zap.String("username", cfg.Auth.AdminUsername))
	}

	collab := cfg.Collaborators
	hookLog := log.Named("webhook")
	store := session.NewStore(session.Options{
		TTL:       cfg.Session.TTL,
		Extractor: extraction.NewClient(webhook.New(collab.ExtractionURL, collab.Timeout, hookLog)),
		Solver:    scheduler.NewClient(webhook.New(collab.SolveURL, collab.Timeout, hookLog)),
		Log:       log.Named("session"),
	})

	h := &handlers.Handler{
		DB:       db,
		Auth:     auth.NewService(cfg.Auth),
		Sessions: store,
		Importer: importer.NewClient(webhook.New(collab.ImportURL, collab.Timeout, hookLog)),
		Log:      log,
	}

	return &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Sessions: store,
		Router:   handlers.NewRouter(h, cfg.Server),
	}, nil
}
