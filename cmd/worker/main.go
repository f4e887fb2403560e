package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/jobstore"
	"server/internal/providers/veo"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store jobs.Store
	if cfg.BucketName != "" {
		gcs, err := jobstore.NewGCSStore(ctx, cfg.BucketName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure job store")
		}
		store = gcs
	} else {
		logger.Warn().Msg("worker: GOOGLE_CLOUD_BUCKET_NAME not set, job records are in-memory only")
		store = jobstore.NewMemoryStore()
	}

	backend, err := veo.NewClient(veo.Options{
		APIKey:           cfg.GeminiAPIKey,
		BaseURL:          cfg.GeminiBaseURL,
		ImageModel:       cfg.ImageModel,
		VideoModel:       cfg.VideoModel,
		OutputStorageURI: outputStorageURI(cfg.BucketName),
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure generation backend")
	}

	// The worker only executes pipelines; job creation stays on the API
	// service, so no dispatcher is injected here. Completion polling is
	// disabled so the callback returns right after the operation is
	// submitted; status-triggered reconciliation finishes the job.
	svc := jobs.NewService(jobs.ServiceOptions{
		Store:           store,
		Backend:         backend,
		Logger:          logger,
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: 0,
	})

	app := handlers.NewApp(svc, logger)
	router := httpapi.NewWorkerRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("worker listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("worker stopped")
}

func outputStorageURI(bucket string) string {
	if bucket == "" {
		return ""
	}
	return "gs://" + bucket + "/videos/"
}
