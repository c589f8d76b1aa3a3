package handler

import (
	"net/http"

	"github.com/arnavshah/timetable-wizard-go/internal/app"
	"github.com/arnavshah/timetable-wizard-go/internal/config"
	"github.com/arnavshah/timetable-wizard-go/internal/logger"
)

var (
	router  http.Handler
	initErr error
)

func init() {
	cfg, err := config.Load("")
	if err != nil {
		initErr = err
		return
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		initErr = err
		return
	}
	// Serverless instances have no janitor; sessions live as long as the instance.
	a, err := app.New(cfg, log)
	if err != nil {
		initErr = err
		return
	}
	router = a.Router
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, r *http.Request) {
	if initErr != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"service is not configured"}`))
		return
	}
	router.ServeHTTP(w, r)
}
