package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
)

// Manager loads, saves and deletes the planner's week against storage.
type Manager struct {
	repo    Repository
	planner *Planner
	flusher Flusher
	archive Archiver
	now     func() time.Time
}

// ManagerOption is a functional option for configuring Manager.
type ManagerOption func(*Manager)

// WithArchiver archives the week before deleteCurrentWeek removes it.
func WithArchiver(a Archiver) ManagerOption {
	return func(m *Manager) {
		m.archive = a
	}
}

// WithFlusher makes deletions wait for pending background saves first,
// so a late save cannot recreate a deleted week.
func WithFlusher(f Flusher) ManagerOption {
	return func(m *Manager) {
		m.flusher = f
	}
}

// WithManagerClock sets the time source used to find the current week.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a lifecycle manager for planner.
func NewManager(repo Repository, planner *Planner, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		planner: planner,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Load restores the planner from the stored week matching criterion.
// Stored task definitions fill in types the in-memory catalog lacks.
// Returns false with a nil error when no week matches. On error the
// planner is left untouched.
func (m *Manager) Load(ctx context.Context, criterion domain.WeekCriterion) (bool, error) {
	defs, err := m.repo.FindTaskDefinitions(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load task definitions", "operation", "load_week", "error", err)
		return false, fmt.Errorf("failed to load task definitions: %w", err)
	}

	week, err := m.repo.FindWeek(ctx, criterion)
	if err != nil {
		if errors.Is(err, domain.ErrWeekNotFound) {
			slog.InfoContext(ctx, "no stored week", "criterion", criterion.String())
			return false, nil
		}
		slog.ErrorContext(ctx, "failed to load week", "operation", "load_week", "criterion", criterion.String(), "error", err)
		return false, fmt.Errorf("failed to load week: %w", err)
	}

	catalog := m.planner.Catalog()
	for _, def := range defs {
		if _, ok := catalog.Lookup(def.Type); ok {
			continue
		}
		if err := catalog.Upsert(def); err != nil {
			slog.WarnContext(ctx, "skipping stored task definition", "task_type", def.Type, "error", err)
		}
	}

	m.planner.Restore(week)
	slog.InfoContext(ctx, "week loaded",
		"week_id", week.ID,
		"week_start", week.StartDate.Format(domain.DateLayout),
		"total_units", week.TotalScheduledUnits)
	return true, nil
}

// Save writes the in-memory week synchronously and returns the stored week id.
// Fails with *domain.WeekConflictError when storage holds a week for another date.
func (m *Manager) Save(ctx context.Context) (string, error) {
	week, ok := m.planner.Week()
	if !ok {
		return "", domain.ErrWeekNotLoaded
	}

	id, err := m.repo.SaveWeek(ctx, week, m.planner.Catalog().List())
	if err != nil {
		slog.ErrorContext(ctx, "failed to save week", "operation", "save_week", "week_id", week.ID, "error", err)
		return "", err
	}
	m.planner.adoptID(week.StartDate, id)
	return id, nil
}

// InitializeWeek starts an empty week at the Monday containing ref, zero
// meaning now. When storage already holds a week for that Monday its id is
// reused, so later saves and lookups by id address the same stored week.
func (m *Manager) InitializeWeek(ctx context.Context, ref time.Time) (*domain.Week, error) {
	if ref.IsZero() {
		ref = m.now()
	}
	if err := m.flush(ctx); err != nil {
		return nil, err
	}

	stored, err := m.repo.FindWeek(ctx, domain.WeekByDate(ref))
	switch {
	case err == nil:
		return m.planner.initialize(ctx, ref, stored.ID), nil
	case errors.Is(err, domain.ErrWeekNotFound):
		return m.planner.InitializeWeek(ctx, ref)
	default:
		slog.ErrorContext(ctx, "failed to look up stored week", "operation", "initialize_week", "error", err)
		return nil, fmt.Errorf("failed to look up stored week: %w", err)
	}
}

// DeleteCurrentWeek deletes one stored week and resets the planner to Unloaded.
// The in-memory week is targeted by its start date; without one, the stored
// week containing now is deleted.
func (m *Manager) DeleteCurrentWeek(ctx context.Context) (domain.DeleteResult, error) {
	if err := m.flush(ctx); err != nil {
		return domain.DeleteResult{}, err
	}

	week, inMemory := m.planner.Week()
	criterion := domain.CurrentWeek(m.now())
	if inMemory {
		criterion = domain.WeekByDate(week.StartDate)
	}

	if m.archive != nil {
		if !inMemory {
			stored, err := m.repo.FindWeek(ctx, criterion)
			switch {
			case err == nil:
				week = stored
			case errors.Is(err, domain.ErrWeekNotFound):
				week = nil
			default:
				return domain.DeleteResult{}, fmt.Errorf("failed to find week to archive: %w", err)
			}
		}
		if week != nil {
			if err := m.archive.Archive(ctx, week); err != nil {
				slog.ErrorContext(ctx, "failed to archive week", "operation", "delete_week", "week_id", week.ID, "error", err)
				return domain.DeleteResult{}, fmt.Errorf("failed to archive week: %w", err)
			}
		}
	}

	n, err := m.repo.DeleteWeek(ctx, criterion)
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete week", "operation", "delete_week", "criterion", criterion.String(), "error", err)
		return domain.DeleteResult{}, fmt.Errorf("failed to delete week: %w", err)
	}

	m.planner.Reset()
	slog.InfoContext(ctx, "week deleted", "criterion", criterion.String(), "deleted_weeks", n)
	return domain.DeleteResult{DeletedWeeks: n}, nil
}

// Cleanup deletes every stored week, day, task and definition and resets the planner.
// The in-memory catalog is kept.
func (m *Manager) Cleanup(ctx context.Context) (domain.CleanupResult, error) {
	if err := m.flush(ctx); err != nil {
		return domain.CleanupResult{}, err
	}

	result, err := m.repo.DeleteAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to clean up scheduler", "operation", "cleanup", "error", err)
		return domain.CleanupResult{}, fmt.Errorf("failed to clean up scheduler: %w", err)
	}

	m.planner.Reset()
	slog.InfoContext(ctx, "scheduler cleaned up",
		"deleted_tasks", result.DeletedTasks,
		"deleted_days", result.DeletedDays,
		"deleted_weeks", result.DeletedWeeks,
		"deleted_definitions", result.DeletedDefinitions)
	return result, nil
}

// flush waits for background saves. Save failures are logged, not returned:
// the week they carried is about to be deleted or replaced.
func (m *Manager) flush(ctx context.Context) error {
	if m.flusher == nil {
		return nil
	}
	if err := m.flusher.Flush(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("waiting for pending saves: %w", ctxErr)
		}
		slog.WarnContext(ctx, "pending save failed", "error", err)
	}
	return nil
}
