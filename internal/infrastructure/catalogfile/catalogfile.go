// Package catalogfile loads task definitions from a YAML file and keeps a
// catalog in step with later edits to it.
package catalogfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/devinleonhart/minerva/internal/domain"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a catalog file.
//
//	tasks:
//	  - type: EXERCISE
//	    name: Exercise
//	    timeUnits: 2
//	    restrictions:
//	      allowedSlots: [morning, evening]
//	      maxPerWeek: 5
type File struct {
	Tasks []Entry `yaml:"tasks"`
}

// Entry is one task definition as written in the file.
type Entry struct {
	Type         string             `yaml:"type"`
	Name         string             `yaml:"name"`
	TimeUnits    int                `yaml:"timeUnits"`
	Color        string             `yaml:"color"`
	Description  string             `yaml:"description"`
	Restrictions *EntryRestrictions `yaml:"restrictions"`
}

// EntryRestrictions holds slot names rather than parsed slots.
type EntryRestrictions struct {
	AllowedSlots []string `yaml:"allowedSlots"`
	MaxPerWeek   *int     `yaml:"maxPerWeek"`
}

// ErrEmptyCatalog is returned for a file that defines no tasks.
var ErrEmptyCatalog = errors.New("catalog file defines no tasks")

// Load reads and parses the catalog file at path.
func Load(path string) ([]domain.TaskDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes YAML catalog data into validated task definitions.
func Parse(data []byte) ([]domain.TaskDefinition, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if len(file.Tasks) == 0 {
		return nil, ErrEmptyCatalog
	}

	seen := make(map[string]bool, len(file.Tasks))
	defs := make([]domain.TaskDefinition, 0, len(file.Tasks))
	for i, entry := range file.Tasks {
		def, err := entry.definition()
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		if seen[def.Type] {
			return nil, fmt.Errorf("tasks[%d]: %w: duplicate type %s", i, domain.ErrInvalidTaskDefinition, def.Type)
		}
		seen[def.Type] = true
		defs = append(defs, def)
	}
	return defs, nil
}

func (e Entry) definition() (domain.TaskDefinition, error) {
	def := domain.TaskDefinition{
		Type:        strings.TrimSpace(e.Type),
		Name:        e.Name,
		TimeUnits:   e.TimeUnits,
		Color:       e.Color,
		Description: e.Description,
	}
	if def.Name == "" {
		def.Name = def.Type
	}

	if r := e.Restrictions; r != nil {
		restrictions := &domain.Restrictions{MaxPerWeek: r.MaxPerWeek}
		if r.AllowedSlots != nil {
			restrictions.AllowedSlots = make([]domain.Slot, 0, len(r.AllowedSlots))
			for _, name := range r.AllowedSlots {
				slot, err := domain.ParseSlot(name)
				if err != nil {
					return domain.TaskDefinition{}, fmt.Errorf("%s: %w", def.Type, err)
				}
				restrictions.AllowedSlots = append(restrictions.AllowedSlots, slot)
			}
		}
		def.Restrictions = restrictions
	}

	if err := def.Validate(); err != nil {
		return domain.TaskDefinition{}, err
	}
	return def, nil
}
