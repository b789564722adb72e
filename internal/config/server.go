package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	pkgconfig "medsum/pkg/config"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr              string        `env:"SERVER_ADDR" envDefault:":8080"`
	MaxBodyBytes      int64         `env:"SERVER_MAX_BODY_BYTES" envDefault:"10485760"`
	ReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" envDefault:"10s"`
	RequestTimeout    time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	Version           string        `env:"VERSION" envDefault:"dev"`
}

// LoadServerConfig parses ServerConfig from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse server configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration correctness.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("SERVER_ADDR cannot be empty")
	}
	// 1 KiB to 100 MiB
	if c.MaxBodyBytes < 1<<10 || c.MaxBodyBytes > 100<<20 {
		return fmt.Errorf("SERVER_MAX_BODY_BYTES must be between 1KiB and 100MiB")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("SERVER_READ_HEADER_TIMEOUT must be positive")
	}
	if err := pkgconfig.ValidateDurationRange(c.RequestTimeout, time.Second, 2*time.Hour); err != nil {
		return fmt.Errorf("SERVER_REQUEST_TIMEOUT: %w", err)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
