// Package config loads client configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all haplink client configuration.
type Config struct {
	// Server
	ServerURL string `env:"HAP_SERVER_URL"`
	Username  string `env:"HAP_USERNAME"`
	Password  string `env:"HAP_PASSWORD,unset"`

	// Logging
	LogLevel  string `env:"HAP_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HAP_LOG_FORMAT" envDefault:"console"`

	// HTTP transport
	RequestTimeout time.Duration `env:"HAP_REQUEST_TIMEOUT" envDefault:"60s"`

	// Session
	KeepAlivePeriod  time.Duration `env:"HAP_KEEPALIVE_PERIOD" envDefault:"1m"`
	StaleAfter       time.Duration `env:"HAP_STALE_AFTER" envDefault:"18m"`
	DeviceMode       string        `env:"HAP_DEVICE_MODE" envDefault:""` // personal, shared, single
	AutoLogoutPeriod time.Duration `env:"HAP_AUTOLOGOUT_PERIOD" envDefault:"1m"`

	// Local state
	StateDir     string `env:"HAP_STATE_DIR" envDefault:""`
	MaxCacheSize int64  `env:"HAP_MAX_CACHE_SIZE" envDefault:"1073741824"` // 1GB

	// Metrics endpoint for the foreground session command; empty disables it.
	MetricsAddr string `env:"HAP_METRICS_ADDR" envDefault:""`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")

	switch cfg.DeviceMode {
	case "", "personal", "shared", "single":
	default:
		return nil, fmt.Errorf("invalid HAP_DEVICE_MODE %q", cfg.DeviceMode)
	}

	return cfg, nil
}
