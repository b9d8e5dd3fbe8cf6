// Package config resolves immutable process settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every process-level setting. It is constructed exactly once
// at startup and shared read-only by all components.
type Config struct {
	// SSEPort is the listen port for the SSE transport.
	SSEPort int `env:"MCP_SSE_PORT" envDefault:"8000"`

	// StreamableHTTPPort is the listen port for the streamable HTTP transport.
	StreamableHTTPPort int `env:"MCP_STREAMABLE_HTTP_PORT" envDefault:"8080"`

	// Endpoint is the base URL of the Sourcegraph instance (e.g.
	// https://sourcegraph.example.com). Required.
	Endpoint string `env:"SRC_ENDPOINT,notEmpty"`

	// AccessToken authenticates backend calls. Empty means unauthenticated.
	AccessToken string `env:"SRC_ACCESS_TOKEN"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"MCP_LOG_LEVEL" envDefault:"info"`

	// RedisAddr enables the search response cache when set (host:port).
	// Empty disables caching entirely.
	RedisAddr string `env:"MCP_REDIS_ADDR"`

	// CacheTTL is the expiration for cached search responses.
	CacheTTL time.Duration `env:"MCP_CACHE_TTL" envDefault:"60s"`
}

// Load reads the configuration from the process environment.
// A missing required setting is a fatal error naming the variable.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
