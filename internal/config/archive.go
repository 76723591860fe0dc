package config

import "fmt"

// Archive backends.
const (
	ArchiveNone = "none"
	ArchiveFS   = "fs"
	ArchiveGCS  = "gcs"
)

// ArchiveConfig selects where weeks are archived before deletion.
type ArchiveConfig struct {
	Type   string `env:"MINERVA_ARCHIVE_TYPE" default:"none"` // none, fs, gcs
	Dir    string `env:"MINERVA_ARCHIVE_DIR" default:"./minerva-archive"`
	Bucket string `env:"MINERVA_ARCHIVE_BUCKET"`
	Prefix string `env:"MINERVA_ARCHIVE_PREFIX" default:"weeks/"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	switch c.Type {
	case ArchiveNone:
	case ArchiveFS:
		if c.Dir == "" {
			return fmt.Errorf("MINERVA_ARCHIVE_DIR is required when MINERVA_ARCHIVE_TYPE is 'fs'")
		}
	case ArchiveGCS:
		if c.Bucket == "" {
			return fmt.Errorf("MINERVA_ARCHIVE_BUCKET is required when MINERVA_ARCHIVE_TYPE is 'gcs'")
		}
	default:
		return fmt.Errorf("unknown MINERVA_ARCHIVE_TYPE: %s", c.Type)
	}
	return nil
}
