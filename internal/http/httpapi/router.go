package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"server/internal/http/handlers"
	"server/internal/infra"
	appmw "server/internal/middleware"
)

// NewAPIRouter wires the client-facing surface: job creation and status.
func NewAPIRouter(app *handlers.App, logger zerolog.Logger, cfg *infra.Config) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(appmw.RequestID, appmw.Logger(logger), chimw.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(appmw.CORS(cfg.AllowedOrigins))
	}

	r.Get("/healthz", app.Health)

	r.Route("/jobs", func(r chi.Router) {
		r.With(appmw.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/create", app.JobsCreate)
		r.Get("/status/{job_id}", app.JobStatus)
	})

	return r
}

// NewWorkerRouter wires the task-queue callback surface.
func NewWorkerRouter(app *handlers.App, logger zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(appmw.RequestID, appmw.Logger(logger), chimw.Recoverer)

	r.Get("/healthz", app.Health)
	r.Post("/worker/process", app.WorkerProcess)

	return r
}
