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
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	// Signed tunnel between worker tier and the generation pipeline.
	WorkerSharedSecret   string
	WorkerCallerID       string
	WorkerAllowedCallers []string
	PipelineBaseURL      string

	// Consumer state machine.
	RemoteTimeout  time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Concurrency    int

	// Breakers.
	BreakerThreshold int
	BreakerWindow    time.Duration
	BreakerCooldown  time.Duration
	DailyBudgetUSD   float64
	BudgetPause      time.Duration

	// Stores.
	CacheTTL    time.Duration
	ProgressTTL time.Duration

	AllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),
		// Optional: only the worker needs Postgres, for the cost ledger.
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		WorkerSharedSecret:   os.Getenv("WORKER_SHARED_SECRET"),
		WorkerCallerID:       getEnv("WORKER_CALLER_ID", "edge-worker"),
		WorkerAllowedCallers: getEnvList("WORKER_ALLOWED_CALLERS", []string{"edge-worker"}),
		PipelineBaseURL:      getEnv("PIPELINE_BASE_URL", "http://localhost:8081"),

		RemoteTimeout:  time.Second * time.Duration(getEnvInt("REMOTE_TIMEOUT_SECONDS", 55)),
		MaxAttempts:    getEnvInt("MAX_ATTEMPTS", 3),
		RetryBaseDelay: time.Second * time.Duration(getEnvInt("RETRY_BASE_DELAY_SECONDS", 5)),
		Concurrency:    getEnvInt("WORKER_CONCURRENCY", 4),

		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerWindow:    time.Minute * time.Duration(getEnvInt("BREAKER_WINDOW_MINUTES", 5)),
		BreakerCooldown:  time.Minute * time.Duration(getEnvInt("BREAKER_COOLDOWN_MINUTES", 5)),
		DailyBudgetUSD:   getEnvFloat("DAILY_BUDGET_USD", 50),
		BudgetPause:      time.Minute * time.Duration(getEnvInt("BUDGET_PAUSE_MINUTES", 60)),

		CacheTTL:    time.Minute * time.Duration(getEnvInt("CACHE_TTL_MINUTES", 60)),
		ProgressTTL: time.Minute * time.Duration(getEnvInt("PROGRESS_TTL_MINUTES", 10)),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.WorkerSharedSecret == "" {
		return nil, fmt.Errorf("WORKER_SHARED_SECRET is required")
	}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
