package domain

import (
	"errors"
	"fmt"
	"time"
)

// Validation and constraint errors reported by the planner.
var (
	// ErrWeekNotLoaded indicates no week is held in memory.
	ErrWeekNotLoaded = errors.New("no week loaded")

	// ErrInvalidDay indicates a day index outside [0,6].
	ErrInvalidDay = errors.New("invalid day index")

	// ErrInvalidSlot indicates a slot that is not morning, afternoon or evening.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrInvalidDate indicates a reference date that could not be parsed.
	ErrInvalidDate = errors.New("invalid date")

	// ErrSlotOccupied indicates the target slot already holds a task.
	ErrSlotOccupied = errors.New("slot already occupied")

	// ErrSlotEmpty indicates the target slot holds no task.
	ErrSlotEmpty = errors.New("slot is empty")

	// ErrUnknownTaskType indicates no task definition exists for the type.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrSlotNotAllowed indicates the task type restricts itself to other slots.
	ErrSlotNotAllowed = errors.New("slot not allowed for task type")

	// ErrWeeklyCapReached indicates the task type already reached maxPerWeek.
	ErrWeeklyCapReached = errors.New("weekly cap reached for task type")

	// ErrCapacityExceeded indicates the day cannot fit the task's time units.
	ErrCapacityExceeded = errors.New("daily capacity exceeded")

	// ErrInvalidTaskDefinition indicates a catalog entry failed validation.
	ErrInvalidTaskDefinition = errors.New("invalid task definition")
)

// Persistence errors returned by repository implementations.
var (
	// ErrWeekNotFound indicates no stored week matches the criterion.
	ErrWeekNotFound = errors.New("week not found")

	// ErrActiveWeekExists indicates storage already holds a week for another date.
	ErrActiveWeekExists = errors.New("an active week already exists")
)

// WeekConflictError is returned when saving a week whose start date differs from
// the week already held in storage. Only one stored week may exist at a time.
type WeekConflictError struct {
	ExistingID    string
	ExistingStart time.Time
	Count         int
}

func (e *WeekConflictError) Error() string {
	return fmt.Sprintf("%s: week %s starting %s (%d stored)",
		ErrActiveWeekExists.Error(), e.ExistingID, e.ExistingStart.Format(DateLayout), e.Count)
}

// Is reports ErrActiveWeekExists so callers can match with errors.Is.
func (e *WeekConflictError) Is(target error) bool {
	return target == ErrActiveWeekExists
}
