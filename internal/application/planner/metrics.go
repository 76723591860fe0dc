package planner

import (
	"context"
	"errors"

	"github.com/devinleonhart/minerva/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/devinleonhart/minerva/internal/application/planner"

type plannerMetrics struct {
	scheduled metric.Int64Counter
	rejected  metric.Int64Counter
	removed   metric.Int64Counter
}

func newPlannerMetrics() *plannerMetrics {
	meter := otel.Meter(instrumentationName)
	return &plannerMetrics{
		scheduled: int64Counter(meter, "planner.tasks.scheduled", "Tasks placed into the week."),
		rejected:  int64Counter(meter, "planner.tasks.rejected", "Placements rejected by a scheduling rule."),
		removed:   int64Counter(meter, "planner.tasks.removed", "Tasks removed by undo."),
	}
}

type persisterMetrics struct {
	saves    metric.Int64Counter
	failures metric.Int64Counter
}

func newPersisterMetrics() *persisterMetrics {
	meter := otel.Meter(instrumentationName)
	return &persisterMetrics{
		saves:    int64Counter(meter, "planner.persist.saves", "Week snapshots written to storage."),
		failures: int64Counter(meter, "planner.persist.failures", "Week snapshots that failed to save."),
	}
}

// int64Counter falls back to the noop instrument the meter returns on error.
func int64Counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
	}
	return counter
}

func (m *plannerMetrics) recordScheduled(ctx context.Context, taskType string) {
	m.scheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", taskType)))
}

func (m *plannerMetrics) recordRemoved(ctx context.Context, taskType string) {
	m.removed.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", taskType)))
}

func (m *plannerMetrics) recordRejected(ctx context.Context, err error) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))
}

var rejectReasons = []struct {
	err    error
	reason string
}{
	{domain.ErrWeekNotLoaded, "week_not_loaded"},
	{domain.ErrInvalidDay, "invalid_day"},
	{domain.ErrInvalidSlot, "invalid_slot"},
	{domain.ErrSlotOccupied, "slot_occupied"},
	{domain.ErrUnknownTaskType, "unknown_task_type"},
	{domain.ErrSlotNotAllowed, "slot_not_allowed"},
	{domain.ErrWeeklyCapReached, "weekly_cap_reached"},
	{domain.ErrCapacityExceeded, "capacity_exceeded"},
}

func rejectReason(err error) string {
	for _, r := range rejectReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
