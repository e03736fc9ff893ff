// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	Driver          string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite or postgres
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"closebook.db"`
	PostgresURL     string `env:"POSTGRES_URL"`
	ConflictRetries int    `env:"CONFLICT_RETRIES" envDefault:"3"`
	ReplayBatchSize int    `env:"REPLAY_BATCH_SIZE" envDefault:"500"`
	MetricsAddr     string `env:"METRICS_ADDR" envDefault:":9102"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "sqlite":
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}

	return cfg, nil
}

// SlogLevel maps the configured level string to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
