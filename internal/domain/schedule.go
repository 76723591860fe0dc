package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the storage and display format of a week start date.
const DateLayout = "2006-01-02"

// ScheduledTask is a concrete placement of a task type into one (day, slot) pair.
// TimeUnits is a snapshot taken at placement time and does not follow later catalog edits.
type ScheduledTask struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TimeUnits int             `json:"timeUnits"`
	Day       int             `json:"day"`
	Slot      Slot            `json:"slot"`
	Notes     string          `json:"notes,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Day is one of the seven ordinal positions of a week.
// Slots is indexed by Slot; a nil entry is an empty slot.
type Day struct {
	Index      int                         `json:"day"`
	Name       string                      `json:"dayName"`
	Slots      [SlotsPerDay]*ScheduledTask `json:"slots"`
	TotalUnits int                         `json:"totalUnits"`
}

// Task returns the task in slot, or nil.
func (d *Day) Task(slot Slot) *ScheduledTask {
	if !slot.Valid() {
		return nil
	}
	return d.Slots[slot]
}

// Remaining returns the capacity units still free on the day.
func (d *Day) Remaining() int {
	return DailyCapacity - d.TotalUnits
}

// OccupiedSlots returns the number of slots holding a task.
func (d *Day) OccupiedSlots() int {
	n := 0
	for _, task := range d.Slots {
		if task != nil {
			n++
		}
	}
	return n
}

// Recompute derives TotalUnits from the day's tasks.
func (d *Day) Recompute() {
	total := 0
	for _, task := range d.Slots {
		if task != nil {
			total += task.TimeUnits
		}
	}
	d.TotalUnits = total
}

// Week is the single schedulable period, anchored at local midnight of its Monday.
type Week struct {
	ID                  string           `json:"id"`
	StartDate           time.Time        `json:"weekStartDate"`
	FreeTimeUsed        bool             `json:"freeTimeUsed"`
	TotalScheduledUnits int              `json:"totalScheduledUnits"`
	Days                [DaysPerWeek]Day `json:"days"`
}

// NewWeek builds an empty week of seven days starting at the Monday containing ref.
func NewWeek(id string, ref time.Time) *Week {
	start := WeekStart(ref)
	w := &Week{ID: id, StartDate: start}
	for i := range w.Days {
		w.Days[i] = Day{
			Index: i,
			Name:  start.AddDate(0, 0, i).Weekday().String(),
		}
	}
	return w
}

// Day returns the day at index, or nil when out of range.
func (w *Week) Day(index int) *Day {
	if !ValidDay(index) {
		return nil
	}
	return &w.Days[index]
}

// CountType counts tasks of taskType across the whole week.
func (w *Week) CountType(taskType string) int {
	n := 0
	for i := range w.Days {
		for _, task := range w.Days[i].Slots {
			if task != nil && task.Type == taskType {
				n++
			}
		}
	}
	return n
}

// Tasks returns every scheduled task in day then slot order.
func (w *Week) Tasks() []ScheduledTask {
	var tasks []ScheduledTask
	for i := range w.Days {
		for _, task := range w.Days[i].Slots {
			if task != nil {
				tasks = append(tasks, *task)
			}
		}
	}
	return tasks
}

// EndDate returns the start of the week's last day.
func (w *Week) EndDate() time.Time {
	return w.StartDate.AddDate(0, 0, DaysPerWeek-1)
}

// Contains reports whether t falls on one of the week's days.
func (w *Week) Contains(t time.Time) bool {
	day := Midnight(t.In(w.StartDate.Location()))
	return !day.Before(w.StartDate) && !day.After(w.EndDate())
}

// Recompute derives every day total and the week total from the tasks,
// and realigns each task's Day and Slot with the position holding it.
func (w *Week) Recompute() {
	total := 0
	for i := range w.Days {
		day := &w.Days[i]
		day.Index = i
		for _, slot := range Slots {
			if task := day.Slots[slot]; task != nil {
				task.Day = i
				task.Slot = slot
			}
		}
		day.Recompute()
		total += day.TotalUnits
	}
	w.TotalScheduledUnits = total
}

// Clone returns a deep copy of the week.
func (w *Week) Clone() *Week {
	if w == nil {
		return nil
	}
	c := *w
	for i := range c.Days {
		for _, slot := range Slots {
			if task := w.Days[i].Slots[slot]; task != nil {
				t := *task
				if task.Details != nil {
					t.Details = append(json.RawMessage(nil), task.Details...)
				}
				c.Days[i].Slots[slot] = &t
			}
		}
	}
	return &c
}

// Midnight zeroes the time of day of t in its own location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns local midnight of the Monday of the ISO week containing t.
// Sunday maps six days back.
func WeekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	daysToSubtract := weekday - 1
	if weekday == 0 {
		daysToSubtract = 6
	}
	return Midnight(t).AddDate(0, 0, -daysToSubtract)
}

// ParseDate parses a YYYY-MM-DD date at local midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}
