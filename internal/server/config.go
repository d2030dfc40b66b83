// Package server carries the transport and process concerns of the relay:
// configuration, logging setup, origin policy, per-connection rate limiting,
// WebSocket client pumps, hub lifecycle, and the HTTP surface.
package server

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime settings of the relay process.
type Config struct {
	Port                    string        `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins          []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize          int64         `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
	RateLimitBurst          int           `envconfig:"RATE_LIMIT_BURST" default:"10"`
	RateLimitRefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	EvictionGrace           time.Duration `envconfig:"EVICTION_GRACE" default:"300s"`
	HistoryLimit            int           `envconfig:"HISTORY_LIMIT" default:"0"`
	ShutdownTimeout         time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel                string        `envconfig:"LOG_LEVEL" default:"info"`
}

// NewConfig returns the configuration with every field at its default.
func NewConfig() Config {
	var cfg Config
	// envconfig applies struct-tag defaults while processing, so run it even
	// when no variables are set.
	_ = envconfig.Process("", &cfg)
	return cfg.sanitized()
}

// LoadConfig reads the configuration from the environment, falling back to
// struct-tag defaults for unset variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg.sanitized(), nil
}

// sanitized replaces zero or negative values with safe defaults.
func (c Config) sanitized() Config {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 10
	}
	if c.RateLimitRefillInterval <= 0 {
		c.RateLimitRefillInterval = time.Second
	}
	if c.EvictionGrace <= 0 {
		c.EvictionGrace = 300 * time.Second
	}
	if c.HistoryLimit < 0 {
		c.HistoryLimit = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}
