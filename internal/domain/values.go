package domain

import (
	"fmt"
	"strings"
)

// Grid dimensions and capacity.
const (
	DaysPerWeek   = 7
	SlotsPerDay   = 3
	DailyCapacity = 24
)

// TaskTypeFreeTime is the task type that flips Week.FreeTimeUsed.
const TaskTypeFreeTime = "FREE_TIME"

// Slot is one of the three fixed periods of a day.
type Slot int

const (
	SlotMorning Slot = iota
	SlotAfternoon
	SlotEvening
)

// Slots lists every slot in day order.
var Slots = [SlotsPerDay]Slot{SlotMorning, SlotAfternoon, SlotEvening}

var slotNames = [SlotsPerDay]string{"morning", "afternoon", "evening"}

// Valid reports whether s is one of the enumerated slots.
func (s Slot) Valid() bool {
	return s >= SlotMorning && s <= SlotEvening
}

// String returns the lowercase storage name of the slot.
func (s Slot) String() string {
	if !s.Valid() {
		return fmt.Sprintf("slot(%d)", int(s))
	}
	return slotNames[s]
}

// MarshalText encodes the slot by name.
func (s Slot) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, int(s))
	}
	return []byte(slotNames[s]), nil
}

// UnmarshalText decodes a slot name, case-insensitively.
func (s *Slot) UnmarshalText(text []byte) error {
	parsed, err := ParseSlot(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSlot validates and creates a Slot from its name.
func ParseSlot(name string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "morning":
		return SlotMorning, nil
	case "afternoon":
		return SlotAfternoon, nil
	case "evening":
		return SlotEvening, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, name)
	}
}

// ValidDay reports whether day is a day index within a week.
func ValidDay(day int) bool {
	return day >= 0 && day < DaysPerWeek
}
