// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`) //nolint:gochecknoglobals // compiled once

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches the logger to the JSON encoder.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Namespace is the stable collection identity shared by every client of
	// one deployment.
	Namespace string `koanf:"namespace"`

	// MaxCVBytes bounds accepted CV text.
	MaxCVBytes int `koanf:"max_cv_bytes"`

	Store   Store   `koanf:"store"`
	Gemini  Gemini  `koanf:"gemini"`
	Ranking Ranking `koanf:"ranking"`
	Metrics Metrics `koanf:"metrics"`
}

// Store selects and configures the replicated store driver.
type Store struct {
	Driver      string `koanf:"driver"`
	DatabaseURL string `koanf:"database_url"`
	// ReconnectMS is the initial backoff of the notification listener.
	ReconnectMS int `koanf:"reconnect_ms"`
}

// Gemini configures the analysis service.
type Gemini struct {
	APIKey      string  `koanf:"api_key"`
	APIKeyFile  string  `koanf:"api_key_file"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
	TimeoutMS   int     `koanf:"timeout_ms"`
}

// Ranking configures the derived views.
type Ranking struct {
	// Locale is a BCP 47 tag used for name collation.
	Locale string `koanf:"locale"`
}

// Metrics names the exported Prometheus series.
type Metrics struct {
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
	// Buckets overrides the default histogram buckets of the store write and
	// HTTP duration series.
	Buckets []float64 `koanf:"buckets"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:   "info",
		Addr:       ":9080",
		Namespace:  "default",
		MaxCVBytes: 200_000,
		Store: Store{
			Driver:      DriverMemory,
			ReconnectMS: 500,
		},
		Gemini: Gemini{
			Model:       "gemini-2.0-flash",
			Temperature: 0.2,
			TimeoutMS:   60_000,
		},
		Ranking: Ranking{
			Locale: "en",
		},
		Metrics: Metrics{
			Namespace: "shortlist",
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.Namespace) == "":
		return fmt.Errorf("%w: namespace must not be empty", ErrInvalidConfig)
	case c.MaxCVBytes <= 0:
		return fmt.Errorf("%w: max_cv_bytes must be positive", ErrInvalidConfig)
	case c.Gemini.TimeoutMS <= 0:
		return fmt.Errorf("%w: gemini.timeout_ms must be positive", ErrInvalidConfig)
	case c.Store.ReconnectMS <= 0:
		return fmt.Errorf("%w: store.reconnect_ms must be positive", ErrInvalidConfig)
	case !metricName.MatchString(c.Metrics.Namespace):
		return fmt.Errorf("%w: metrics.namespace %q is not a valid metric name", ErrInvalidConfig, c.Metrics.Namespace)
	case c.Metrics.Subsystem != "" && !metricName.MatchString(c.Metrics.Subsystem):
		return fmt.Errorf("%w: metrics.subsystem %q is not a valid metric name", ErrInvalidConfig, c.Metrics.Subsystem)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return fmt.Errorf("%w: store.database_url is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	return nil
}
