// Package config loads the sdispatch server configuration from the
// environment. A .env file in the working directory is read first when
// present; variables already set in the environment take precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config is the server configuration.
type Config struct {
	Addr            string        `env:"SDISPATCH_ADDR" envDefault:":8080"`
	ContextPath     string        `env:"SDISPATCH_CONTEXT_PATH"`
	CleanPath       bool          `env:"SDISPATCH_CLEAN_PATH" envDefault:"true"`
	Manifest        string        `env:"SDISPATCH_MANIFEST"`
	WatchManifest   bool          `env:"SDISPATCH_WATCH_MANIFEST" envDefault:"false"`
	MetricsEnabled  bool          `env:"SDISPATCH_METRICS_ENABLED" envDefault:"true"`
	MetricsPath     string        `env:"SDISPATCH_METRICS_PATH" envDefault:"/metrics"`
	MetricsNS       string        `env:"SDISPATCH_METRICS_NAMESPACE" envDefault:"sdispatch"`
	LogLevel        zapcore.Level `env:"SDISPATCH_LOG_LEVEL" envDefault:"info"`
	Development     bool          `env:"SDISPATCH_DEVELOPMENT" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"SDISPATCH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RateLimit       int           `env:"SDISPATCH_RATE_LIMIT" envDefault:"100"`
	RateLimitWindow time.Duration `env:"SDISPATCH_RATE_LIMIT_WINDOW" envDefault:"1s"`
}

// Load reads the optional .env files (default ".env") and parses the
// environment into a Config.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv does not override variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("SDISPATCH_ADDR must not be empty")
	}
	if c.MetricsEnabled && (c.MetricsPath == "" || c.MetricsPath[0] != '/') {
		return fmt.Errorf("SDISPATCH_METRICS_PATH must start with /, got %q", c.MetricsPath)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("SDISPATCH_RATE_LIMIT must not be negative, got %d", c.RateLimit)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SDISPATCH_SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
