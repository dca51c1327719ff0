// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable the service reads at startup. Values come from
// KORE_PAYMENTS_* environment variables.
type Config struct {
	Server  ServerConfig
	Core    CoreConfig
	Gateway GatewayConfig
	Redis   RedisConfig
	Poll    PollConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    string `envconfig:"SERVER_PORT" default:"8080"`
	GinMode string `envconfig:"GIN_MODE" default:"release"`
}

// CoreConfig points at the Kore Core backend that owns packages, checkout
// preparation and purchase execution.
type CoreConfig struct {
	BaseURL string `envconfig:"CORE_BASE_URL" required:"true"`
	APIKey  string `envconfig:"CORE_API_KEY" required:"true"`
}

// GatewayConfig configures the card tokenization gateway.
type GatewayConfig struct {
	PublicKey string `envconfig:"GATEWAY_PUBLIC_KEY" required:"true"`
	Sandbox   bool   `envconfig:"GATEWAY_SANDBOX" default:"true"`
}

type RedisConfig struct {
	URL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
}

// PollConfig bounds the intent status polling loop.
type PollConfig struct {
	Attempts int           `envconfig:"POLL_ATTEMPTS" default:"30"`
	Interval time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("KORE_PAYMENTS", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Poll.Attempts <= 0 {
		return fmt.Errorf("poll attempts must be positive, got %d", c.Poll.Attempts)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval)
	}
	return nil
}
