// Package config loads runtime configuration from environment variables and
// portal mapping profiles from YAML.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL selects the store backend: a postgres:// URL picks the
	// Postgres store, anything else is treated as an SQLite file path.
	// Empty means in-memory.
	DatabaseURL string
	// RedisURL switches the notification queue onto Redis; empty keeps the
	// in-process queue.
	RedisURL string

	// MappingProfileDir holds per-portal mapping YAML files; empty disables
	// file-based mapping profiles.
	MappingProfileDir string

	// AdminAPIKey guards the admin surface; empty disables it.
	AdminAPIKey string
	// JWTSecret signs and verifies agency session tokens.
	JWTSecret string

	// OTLPEndpoint enables telemetry export when set.
	OTLPEndpoint string

	DedupWindow         time.Duration
	DistributionRetries int
	PipelineDeadline    time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		Port:              port,
		LogLevel:          logLevel,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		MappingProfileDir: os.Getenv("MAPPING_PROFILE_DIR"),
		AdminAPIKey:       os.Getenv("ADMIN_API_KEY"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		OTLPEndpoint:      os.Getenv("OTLP_ENDPOINT"),

		DedupWindow:         time.Duration(envInt("DEDUP_WINDOW_SECONDS", 86400)) * time.Second,
		DistributionRetries: envInt("DISTRIBUTION_RETRY_MAX", 3),
		PipelineDeadline:    time.Duration(envInt("PIPELINE_DEADLINE_MS", 10000)) * time.Millisecond,
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
