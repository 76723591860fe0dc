package config

import (
	"fmt"
	"log/slog"
)

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"MINERVA_OTEL_ENABLED"`
	ServiceName string `env:"OTEL_SERVICE_NAME" default:"minerva"`
	LogLevel    string `env:"MINERVA_LOG_LEVEL" default:"info"`
}

// Validate validates the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *ObservabilityConfig) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid MINERVA_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
