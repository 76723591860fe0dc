package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/google/uuid"
)

// State is the lifecycle position of the planner's in-memory week.
type State int

const (
	StateUnloaded State = iota
	StateInitialized
	StateScheduled
	StateUndone
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateInitialized:
		return "initialized"
	case StateScheduled:
		return "scheduled"
	case StateUndone:
		return "undone"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Dispatcher receives the week snapshot after every mutation.
// Implementations must not block the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, week *domain.Week, catalog []domain.TaskDefinition)
}

// TaskDetails carries the optional fields of a new placement.
type TaskDetails struct {
	Notes   string
	Payload json.RawMessage
}

// Planner allocates typed tasks into the 7x3 grid of a single week.
//
// A Planner owns its week. It assumes a single caller: mutations are applied
// synchronously and are not guarded against concurrent use. Persistence is
// handed to the Dispatcher after the mutation is applied and its failure never
// reverts the in-memory state.
type Planner struct {
	catalog    *Catalog
	dispatcher Dispatcher
	week       *domain.Week
	state      State
	now        func() time.Time
	newID      func() (string, error)
	metrics    *plannerMetrics
}

// Option is a functional option for configuring Planner.
type Option func(*Planner)

// WithClock sets the time source used when no reference date is given.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// WithIDGenerator sets the generator for week and task identifiers.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(p *Planner) {
		p.newID = newID
	}
}

// NewPlanner creates a planner in the Unloaded state.
// A nil dispatcher disables persistence.
func NewPlanner(catalog *Catalog, dispatcher Dispatcher, opts ...Option) *Planner {
	p := &Planner{
		catalog:    catalog,
		dispatcher: dispatcher,
		now:        time.Now,
		newID:      newUUID,
		metrics:    newPlannerMetrics(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// Catalog returns the catalog the planner validates against.
func (p *Planner) Catalog() *Catalog {
	return p.catalog
}

// State returns the current lifecycle state.
func (p *Planner) State() State {
	return p.state
}

// Week returns a copy of the in-memory week.
func (p *Planner) Week() (*domain.Week, bool) {
	if p.week == nil {
		return nil, false
	}
	return p.week.Clone(), true
}

// InitializeWeek discards any in-memory week and builds seven empty days
// starting at local midnight of the Monday containing ref. A zero ref means now.
func (p *Planner) InitializeWeek(ctx context.Context, ref time.Time) (*domain.Week, error) {
	if ref.IsZero() {
		ref = p.now()
	}

	id, err := p.newID()
	if err != nil {
		return nil, err
	}
	return p.initialize(ctx, ref, id), nil
}

// initialize replaces the in-memory week with an empty one identified by id.
func (p *Planner) initialize(ctx context.Context, ref time.Time, id string) *domain.Week {
	p.week = domain.NewWeek(id, ref)
	p.state = StateInitialized

	slog.InfoContext(ctx, "week initialized",
		"week_id", id,
		"week_start", p.week.StartDate.Format(domain.DateLayout))

	p.persist(ctx)
	return p.week.Clone()
}

// adoptID renames the in-memory week to the id storage reported for it.
// Ignored when the planner has since moved to another week.
func (p *Planner) adoptID(start time.Time, id string) {
	if p.week == nil || id == "" || !p.week.StartDate.Equal(start) {
		return
	}
	p.week.ID = id
}

// Restore replaces the in-memory week with a stored one without persisting it.
// Totals are recomputed from the tasks.
func (p *Planner) Restore(week *domain.Week) {
	p.week = week.Clone()
	p.week.Recompute()
	if len(p.week.Tasks()) > 0 {
		p.state = StateScheduled
	} else {
		p.state = StateInitialized
	}
}

// Reset drops the in-memory week.
func (p *Planner) Reset() {
	p.week = nil
	p.state = StateUnloaded
}

// CheckSchedule returns the first rule that rejects placing taskType at (day, slot).
// Checks run in a fixed order: week loaded, day and slot valid and slot empty,
// definition exists, allowed slots, weekly cap, daily capacity.
func (p *Planner) CheckSchedule(taskType string, day int, slot domain.Slot) error {
	if p.week == nil {
		return domain.ErrWeekNotLoaded
	}

	d := p.week.Day(day)
	if d == nil {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDay, day)
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSlot, int(slot))
	}
	if d.Slots[slot] != nil {
		return fmt.Errorf("%w: %s %s", domain.ErrSlotOccupied, d.Name, slot)
	}

	def, ok := p.catalog.Lookup(taskType)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownTaskType, taskType)
	}

	if !def.Restrictions.AllowsSlot(slot) {
		return fmt.Errorf("%w: %s in %s", domain.ErrSlotNotAllowed, taskType, slot)
	}

	if !def.Restrictions.UnderWeeklyCap(p.week.CountType(taskType)) {
		return fmt.Errorf("%w: %s (max %d)", domain.ErrWeeklyCapReached, taskType, *def.Restrictions.MaxPerWeek)
	}

	if d.Remaining() < def.TimeUnits {
		return fmt.Errorf("%w: %s needs %d, %d left", domain.ErrCapacityExceeded, taskType, def.TimeUnits, d.Remaining())
	}

	return nil
}

// CanScheduleTask reports whether taskType can be placed at (day, slot).
func (p *Planner) CanScheduleTask(taskType string, day int, slot domain.Slot) bool {
	return p.CheckSchedule(taskType, day, slot) == nil
}

// ScheduleTask places taskType at (day, slot). The duration is copied from the
// catalog at this instant. Returns false when any rule rejects the placement.
func (p *Planner) ScheduleTask(ctx context.Context, taskType string, day int, slot domain.Slot, details *TaskDetails) bool {
	if err := p.CheckSchedule(taskType, day, slot); err != nil {
		slog.DebugContext(ctx, "task rejected",
			"task_type", taskType,
			"day", day,
			"slot", slot.String(),
			"reason", err.Error())
		p.metrics.recordRejected(ctx, err)
		return false
	}

	def, _ := p.catalog.Lookup(taskType)
	id, err := p.newID()
	if err != nil {
		slog.ErrorContext(ctx, "failed to create scheduled task", "error", err)
		return false
	}

	task := &domain.ScheduledTask{
		ID:        id,
		Type:      def.Type,
		TimeUnits: def.TimeUnits,
		Day:       day,
		Slot:      slot,
	}
	if details != nil {
		task.Notes = details.Notes
		task.Details = slices.Clone(details.Payload)
	}

	d := &p.week.Days[day]
	d.Slots[slot] = task
	d.TotalUnits += task.TimeUnits
	p.week.TotalScheduledUnits += task.TimeUnits
	if task.Type == domain.TaskTypeFreeTime {
		p.week.FreeTimeUsed = true
	}
	p.state = StateScheduled

	p.metrics.recordScheduled(ctx, task.Type)
	p.persist(ctx)
	return true
}

// RemoveLastTask clears the first occupied slot found walking days from Sunday
// back to Monday and, within a day, Evening then Afternoon then Morning.
// This is a fixed priority order, not the order tasks were created in.
func (p *Planner) RemoveLastTask(ctx context.Context) bool {
	if p.week == nil {
		return false
	}

	for day := domain.DaysPerWeek - 1; day >= 0; day-- {
		d := &p.week.Days[day]
		for i := domain.SlotsPerDay - 1; i >= 0; i-- {
			slot := domain.Slots[i]
			task := d.Slots[slot]
			if task == nil {
				continue
			}

			d.Slots[slot] = nil
			d.TotalUnits -= task.TimeUnits
			p.week.TotalScheduledUnits -= task.TimeUnits
			// Cleared even if other FREE_TIME tasks remain in the week.
			if task.Type == domain.TaskTypeFreeTime {
				p.week.FreeTimeUsed = false
			}
			p.state = StateUndone

			slog.InfoContext(ctx, "task removed",
				"task_id", task.ID,
				"task_type", task.Type,
				"day", day,
				"slot", slot.String())
			p.metrics.recordRemoved(ctx, task.Type)
			p.persist(ctx)
			return true
		}
	}

	return false
}

// UpdateNotes replaces the notes of the task at (day, slot) and persists the week.
func (p *Planner) UpdateNotes(ctx context.Context, day int, slot domain.Slot, notes string) error {
	if p.week == nil {
		return domain.ErrWeekNotLoaded
	}
	d := p.week.Day(day)
	if d == nil {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDay, day)
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSlot, int(slot))
	}
	task := d.Slots[slot]
	if task == nil {
		return fmt.Errorf("%w: %s %s", domain.ErrSlotEmpty, d.Name, slot)
	}

	task.Notes = notes
	p.persist(ctx)
	return nil
}

// GetAvailableTimeSlots returns the empty slots of day in slot order.
func (p *Planner) GetAvailableTimeSlots(day int) []domain.Slot {
	d := p.day(day)
	if d == nil {
		return nil
	}

	slots := make([]domain.Slot, 0, domain.SlotsPerDay)
	for _, slot := range domain.Slots {
		if d.Slots[slot] == nil {
			slots = append(slots, slot)
		}
	}
	return slots
}

// GetRemainingTimeUnits returns the free capacity of day, or 0 for an out-of-range day.
func (p *Planner) GetRemainingTimeUnits(day int) int {
	d := p.day(day)
	if d == nil {
		return 0
	}
	return d.Remaining()
}

// GetAvailableTasks returns the definitions that fit the remaining capacity of
// day and are under their weekly cap. Allowed slots are not considered.
func (p *Planner) GetAvailableTasks(day int) []domain.TaskDefinition {
	d := p.day(day)
	if d == nil {
		return nil
	}

	remaining := d.Remaining()
	var available []domain.TaskDefinition
	for _, def := range p.catalog.List() {
		if def.TimeUnits > remaining {
			continue
		}
		if !def.Restrictions.UnderWeeklyCap(p.week.CountType(def.Type)) {
			continue
		}
		available = append(available, def)
	}
	return available
}

func (p *Planner) day(index int) *domain.Day {
	if p.week == nil {
		return nil
	}
	return p.week.Day(index)
}

func (p *Planner) persist(ctx context.Context) {
	if p.dispatcher == nil {
		return
	}
	p.dispatcher.Dispatch(ctx, p.week.Clone(), p.catalog.List())
}
