package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins []string

	// Generative backend.
	GeminiAPIKey  string
	GeminiBaseURL string
	ImageModel    string
	VideoModel    string

	// Google Cloud resources.
	GoogleCloudProject  string
	GoogleCloudLocation string
	BucketName          string

	// Remote dispatch (Cloud Tasks). Remote mode is active when
	// WorkerServiceURL is set; otherwise jobs run on the local queue.
	CloudTasksLocation string
	CloudTasksQueue    string
	WorkerServiceURL   string

	// Executor polling. PollMaxAttempts of zero defers completion
	// entirely to status-triggered reconciliation.
	PollInterval    time.Duration
	PollMaxAttempts int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// RemoteDispatch reports whether jobs should be handed to Cloud Tasks
// instead of the in-process queue.
func (c *Config) RemoteDispatch() bool {
	return c.WorkerServiceURL != ""
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ImageModel:    getEnv("IMAGE_MODEL", "imagen-3.0-generate-002"),
		VideoModel:    getEnv("VIDEO_MODEL", "veo-3.1-generate-preview"),

		GoogleCloudProject:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GoogleCloudLocation: getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		BucketName:          os.Getenv("GOOGLE_CLOUD_BUCKET_NAME"),

		CloudTasksLocation: getEnv("CLOUD_TASKS_LOCATION", "us-central1"),
		CloudTasksQueue:    getEnv("CLOUD_TASKS_QUEUE", "video-jobs"),
		WorkerServiceURL:   strings.TrimRight(os.Getenv("WORKER_SERVICE_URL"), "/"),

		PollInterval:    time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 60),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.RemoteDispatch() && cfg.GoogleCloudProject == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when WORKER_SERVICE_URL is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
