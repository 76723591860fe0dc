package planner

import (
	"context"

	"github.com/devinleonhart/minerva/internal/domain"
)

// Repository defines storage operations for the scheduled week.
type Repository interface {
	WeekSaver

	// FindWeek reconstructs a stored week with totals recomputed from its tasks.
	// Returns domain.ErrWeekNotFound if no week matches.
	FindWeek(ctx context.Context, criterion domain.WeekCriterion) (*domain.Week, error)

	// FindTaskDefinitions returns the stored catalog.
	FindTaskDefinitions(ctx context.Context) ([]domain.TaskDefinition, error)

	// DeleteWeek deletes the matching week with its days and tasks.
	// Returns the number of weeks deleted (0 or 1).
	DeleteWeek(ctx context.Context, criterion domain.WeekCriterion) (int, error)

	// DeleteAll removes every week, day, task and task definition.
	DeleteAll(ctx context.Context) (domain.CleanupResult, error)
}

// Archiver stores a snapshot of a week before it is deleted.
type Archiver interface {
	Archive(ctx context.Context, week *domain.Week) error
}

// Flusher waits for pending background saves.
type Flusher interface {
	Flush(ctx context.Context) error
}

// ArchiveStore keeps week snapshots and reads them back by week id.
type ArchiveStore interface {
	Archiver

	// GetArchived returns the archived week with id.
	// Returns domain.ErrWeekNotFound if none exists.
	GetArchived(ctx context.Context, id string) (*domain.Week, error)

	// ListArchived returns every archived week ordered by start date.
	ListArchived(ctx context.Context) ([]*domain.Week, error)
}
