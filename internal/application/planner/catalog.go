package planner

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/devinleonhart/minerva/internal/ptr"
)

// Catalog holds task definitions keyed by type.
// Entries are upserted, never deleted. The catalog file watcher writes to it
// from its own goroutine, so access is guarded.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]domain.TaskDefinition
}

// NewCatalog creates a catalog seeded with defs.
func NewCatalog(defs ...domain.TaskDefinition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]domain.TaskDefinition, len(defs))}
	for _, def := range defs {
		if err := c.Upsert(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Lookup returns the definition for taskType.
func (c *Catalog) Lookup(taskType string) (domain.TaskDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[taskType]
	if !ok {
		return domain.TaskDefinition{}, false
	}
	return def.Clone(), true
}

// Upsert creates or replaces the definition with the same type.
func (c *Catalog) Upsert(def domain.TaskDefinition) error {
	def.Type = strings.TrimSpace(def.Type)
	if err := def.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.Type] = def.Clone()
	return nil
}

// UpsertAll upserts defs in order, stopping at the first invalid entry.
func (c *Catalog) UpsertAll(defs []domain.TaskDefinition) error {
	for _, def := range defs {
		if err := c.Upsert(def); err != nil {
			return fmt.Errorf("upsert %q: %w", def.Type, err)
		}
	}
	return nil
}

// List returns every definition sorted by type.
func (c *Catalog) List() []domain.TaskDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]domain.TaskDefinition, 0, len(c.defs))
	for _, def := range c.defs {
		defs = append(defs, def.Clone())
	}
	slices.SortFunc(defs, func(a, b domain.TaskDefinition) int {
		return strings.Compare(a.Type, b.Type)
	})
	return defs
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// DefaultDefinitions is the built-in catalog used when no catalog file is configured.
func DefaultDefinitions() []domain.TaskDefinition {
	return []domain.TaskDefinition{
		{
			Type:        "WORK",
			Name:        "Work",
			TimeUnits:   8,
			Color:       "#4a6fa5",
			Description: "A block of paid or project work.",
		},
		{
			Type:        "STUDY",
			Name:        "Study",
			TimeUnits:   4,
			Color:       "#9b5de5",
			Description: "Reading, practice or coursework.",
			Restrictions: &domain.Restrictions{
				MaxPerWeek: ptr.To(5),
			},
		},
		{
			Type:        "EXERCISE",
			Name:        "Exercise",
			TimeUnits:   2,
			Color:       "#00bb77",
			Description: "Training session.",
			Restrictions: &domain.Restrictions{
				AllowedSlots: []domain.Slot{domain.SlotMorning, domain.SlotEvening},
			},
		},
		{
			Type:        "CHORES",
			Name:        "Chores",
			TimeUnits:   3,
			Color:       "#f4a261",
			Description: "Household upkeep.",
		},
		{
			Type:        domain.TaskTypeFreeTime,
			Name:        "Free Time",
			TimeUnits:   6,
			Color:       "#e63946",
			Description: "Unplanned time off.",
			Restrictions: &domain.Restrictions{
				AllowedSlots: []domain.Slot{domain.SlotAfternoon, domain.SlotEvening},
			},
		},
	}
}
