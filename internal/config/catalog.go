package config

import "errors"

// CatalogConfig locates the optional YAML task catalog.
type CatalogConfig struct {
	File  string `env:"MINERVA_CATALOG_FILE"`
	Watch bool   `env:"MINERVA_CATALOG_WATCH"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	if c.Watch && c.File == "" {
		return errors.New("MINERVA_CATALOG_WATCH requires MINERVA_CATALOG_FILE")
	}
	return nil
}
