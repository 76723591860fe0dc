package config

import (
	"errors"
	"time"
)

// PersistenceConfig controls the background save worker.
type PersistenceConfig struct {
	// SaveTimeout bounds each background save. Zero disables the timeout.
	SaveTimeout time.Duration `env:"MINERVA_PERSIST_TIMEOUT" default:"10s"`
}

// Validate validates the persistence configuration.
func (c *PersistenceConfig) Validate() error {
	if c.SaveTimeout < 0 {
		return errors.New("MINERVA_PERSIST_TIMEOUT must not be negative")
	}
	return nil
}
