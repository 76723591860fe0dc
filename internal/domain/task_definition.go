package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/devinleonhart/minerva/internal/ptr"
)

// Restrictions limit where and how often a task type may be scheduled.
// Nil fields mean "no restriction".
type Restrictions struct {
	AllowedSlots []Slot `json:"allowedSlots,omitempty" yaml:"allowedSlots,omitempty"`
	MaxPerWeek   *int   `json:"maxPerWeek,omitempty" yaml:"maxPerWeek,omitempty"`
}

// AllowsSlot reports whether slot passes the allowedSlots restriction.
func (r *Restrictions) AllowsSlot(slot Slot) bool {
	if r == nil || r.AllowedSlots == nil {
		return true
	}
	return slices.Contains(r.AllowedSlots, slot)
}

// UnderWeeklyCap reports whether count is still below maxPerWeek.
func (r *Restrictions) UnderWeeklyCap(count int) bool {
	if r == nil || r.MaxPerWeek == nil {
		return true
	}
	return count < *r.MaxPerWeek
}

// TaskDefinition is a catalog entry describing a task type.
type TaskDefinition struct {
	Type         string        `json:"type" yaml:"type"`
	Name         string        `json:"name" yaml:"name"`
	TimeUnits    int           `json:"timeUnits" yaml:"timeUnits"`
	Color        string        `json:"color" yaml:"color"`
	Description  string        `json:"description" yaml:"description"`
	Restrictions *Restrictions `json:"restrictions,omitempty" yaml:"restrictions,omitempty"`
}

// Validate checks the structural rules of a definition.
func (d TaskDefinition) Validate() error {
	if strings.TrimSpace(d.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidTaskDefinition)
	}
	if d.TimeUnits <= 0 {
		return fmt.Errorf("%w: %s: timeUnits must be positive, got %d", ErrInvalidTaskDefinition, d.Type, d.TimeUnits)
	}
	if d.Restrictions == nil {
		return nil
	}
	for _, slot := range d.Restrictions.AllowedSlots {
		if !slot.Valid() {
			return fmt.Errorf("%w: %s: %w", ErrInvalidTaskDefinition, d.Type, ErrInvalidSlot)
		}
	}
	if d.Restrictions.MaxPerWeek != nil && *d.Restrictions.MaxPerWeek <= 0 {
		return fmt.Errorf("%w: %s: maxPerWeek must be positive", ErrInvalidTaskDefinition, d.Type)
	}
	return nil
}

// Clone returns a deep copy so catalog readers cannot mutate shared restrictions.
func (d TaskDefinition) Clone() TaskDefinition {
	if d.Restrictions == nil {
		return d
	}
	d.Restrictions = &Restrictions{
		AllowedSlots: slices.Clone(d.Restrictions.AllowedSlots),
		MaxPerWeek:   ptr.Clone(d.Restrictions.MaxPerWeek),
	}
	return d
}
