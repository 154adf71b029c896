// Package config loads jrpcd settings from defaults, an optional .env file
// and JRPC_* environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds the jrpcd settings.
type Config struct {
	// Addr is the listen address of jrpcd serve.
	Addr string `env:"JRPC_ADDR"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"JRPC_LOG_LEVEL"`
	// Metrics enables the /metrics endpoint.
	Metrics bool `env:"JRPC_METRICS"`
	// BatchLimit bounds the concurrency of one inbound batch. 0 means no bound.
	BatchLimit int `env:"JRPC_BATCH_LIMIT"`
	// URL is the server jrpcd call dials.
	URL string `env:"JRPC_URL"`
	// Tick is the interval of the demo counter. 0 disables it.
	Tick time.Duration `env:"JRPC_TICK"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:     ":8080",
		LogLevel: "info",
		Metrics:  true,
		URL:      "ws://localhost:8080/ws",
		Tick:     5 * time.Second,
	}
}

// Load applies envFile, if it exists, and the environment over Default.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("JRPC_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("JRPC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JRPC_METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("JRPC_METRICS: %w", err)
		}
		cfg.Metrics = b
	}
	if v := os.Getenv("JRPC_BATCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JRPC_BATCH_LIMIT: %w", err)
		}
		cfg.BatchLimit = n
	}
	if v := os.Getenv("JRPC_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("JRPC_TICK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JRPC_TICK: %w", err)
		}
		cfg.Tick = d
	}
	return nil
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.BatchLimit < 0 {
		return fmt.Errorf("batch_limit must not be negative")
	}
	if c.Tick < 0 {
		return fmt.Errorf("tick must not be negative")
	}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// Level returns the zerolog level for LogLevel.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
