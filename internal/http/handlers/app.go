package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/jobs"
)

// App bundles the handler dependencies.
type App struct {
	Jobs   *jobs.Service
	Logger zerolog.Logger
}

func NewApp(svc *jobs.Service, logger zerolog.Logger) *App {
	return &App{Jobs: svc, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
