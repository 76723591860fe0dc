package config

import (
	"fmt"
	"time"

	"github.com/devinleonhart/minerva/internal/env"
)

// PlannerConfig holds all configuration for the planner binary.
type PlannerConfig struct {
	Database        DatabaseConfig
	Persistence     PersistenceConfig
	Catalog         CatalogConfig
	Archive         ArchiveConfig
	Observability   ObservabilityConfig
	ShutdownTimeout time.Duration `env:"MINERVA_SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadPlannerConfig loads and validates planner configuration from environment.
func LoadPlannerConfig() (*PlannerConfig, error) {
	cfg := &PlannerConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load planner config: %w", err)
	}

	return cfg, nil
}

// Validate validates settings that span sections.
func (c *PlannerConfig) Validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("MINERVA_SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
