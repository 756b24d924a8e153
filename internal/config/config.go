// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/amlsift/amlsift/internal/security"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (optional; assessment audit trail uses memory store if unset)
	DatabaseURL string

	// Scorer settings
	ScorerURL         string // remote scoring service; built-in engine if unset
	ScorerTimeout     time.Duration
	ScorerRetries     int
	ScoreConcurrency  int // max in-flight scoring calls per ingestion batch
	AllowSelfTransfer bool

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPS int
}

// Defaults.
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultScorerTimeout    = 5 * time.Second
	DefaultScorerRetries    = 3
	DefaultScoreConcurrency = 8
	DefaultRateLimit        = 100
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ScorerURL:         os.Getenv("SCORER_URL"),
		ScorerTimeout:     time.Duration(getEnvInt64("SCORER_TIMEOUT_MS", int64(DefaultScorerTimeout/time.Millisecond))) * time.Millisecond,
		ScorerRetries:     int(getEnvInt64("SCORER_RETRIES", DefaultScorerRetries)),
		ScoreConcurrency:  int(getEnvInt64("SCORE_CONCURRENCY", DefaultScoreConcurrency)),
		AllowSelfTransfer: getEnvBool("ALLOW_SELF_TRANSFERS", false),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:      int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.ScorerTimeout <= 0 {
		return fmt.Errorf("SCORER_TIMEOUT_MS must be positive")
	}
	if c.ScorerRetries <= 0 {
		return fmt.Errorf("SCORER_RETRIES must be positive")
	}
	if c.ScoreConcurrency <= 0 {
		return fmt.Errorf("SCORE_CONCURRENCY must be positive")
	}
	// In production the scorer URL must point at a routable service, not at
	// loopback or private infrastructure the process shouldn't reach out to.
	if c.IsProduction() && c.ScorerURL != "" {
		if err := security.ValidateEndpointURL(c.ScorerURL); err != nil {
			return fmt.Errorf("SCORER_URL: %w", err)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
