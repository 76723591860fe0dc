package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

// weekRow is the header of a stored week without its days.
type weekRow struct {
	id           string
	start        time.Time
	freeTimeUsed bool
}

const selectWeekColumns = `SELECT id, week_start_date, free_time_used FROM week_schedules`

func scanWeekRow(scan func(dest ...any) error) (weekRow, error) {
	var (
		row   weekRow
		start string
	)
	if err := scan(&row.id, &start, &row.freeTimeUsed); err != nil {
		return weekRow{}, err
	}
	t, err := domain.ParseDate(start)
	if err != nil {
		return weekRow{}, fmt.Errorf("stored week %s: %w", row.id, err)
	}
	row.start = t
	return row, nil
}

// listWeekRows returns every stored week header ordered by start date.
func (s *Store) listWeekRows(ctx context.Context, q querier) ([]weekRow, error) {
	rows, err := q.QueryContext(ctx, selectWeekColumns+` ORDER BY week_start_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	defer rows.Close()

	var weeks []weekRow
	for rows.Next() {
		row, err := scanWeekRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan week: %w", err)
		}
		weeks = append(weeks, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	return weeks, nil
}

// findWeekRow resolves criterion to a stored week header.
// Returns domain.ErrWeekNotFound when nothing matches.
func (s *Store) findWeekRow(ctx context.Context, q querier, criterion domain.WeekCriterion) (weekRow, error) {
	var query string
	var arg any

	switch criterion.Kind {
	case domain.ByID:
		if !s.validLookupID(criterion.ID) {
			return weekRow{}, fmt.Errorf("%w: %s", domain.ErrWeekNotFound, criterion)
		}
		query, arg = selectWeekColumns+` WHERE id = ?`, criterion.ID
	case domain.ByDate:
		query, arg = selectWeekColumns+` WHERE week_start_date = ?`, domain.WeekStart(criterion.Date).Format(domain.DateLayout)
	default:
		weeks, err := s.listWeekRows(ctx, q)
		if err != nil {
			return weekRow{}, err
		}
		for _, row := range weeks {
			candidate := domain.Week{StartDate: row.start}
			if candidate.Contains(criterion.Date) {
				return row, nil
			}
		}
		return weekRow{}, fmt.Errorf("%w: %s", domain.ErrWeekNotFound, criterion)
	}

	row, err := scanWeekRow(q.QueryRowContext(ctx, s.rebind(query), arg).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weekRow{}, fmt.Errorf("%w: %s", domain.ErrWeekNotFound, criterion)
		}
		return weekRow{}, fmt.Errorf("failed to find week: %w", err)
	}
	return row, nil
}

// SaveWeek writes week with its days and tasks, and upserts catalog by type.
// A stored week with the same start date is overwritten in place and keeps
// its stored id. A stored week for any other date fails the save with
// *domain.WeekConflictError and nothing is written.
//
// The stored-week check is a plain read inside the transaction. SQLite runs
// on one connection, so its saves are serialized. On PostgreSQL two first
// saves for different dates can both pass the check and both commit. Only a
// same-date race is caught: the UNIQUE week_start_date column rejects the
// second insert as domain.ErrActiveWeekExists. Processes sharing a PostgreSQL
// database must serialize saves themselves to keep a single stored week.
func (s *Store) SaveWeek(ctx context.Context, week *domain.Week, catalog []domain.TaskDefinition) (id string, err error) {
	if week == nil {
		return "", domain.ErrWeekNotLoaded
	}
	start := week.StartDate.Format(domain.DateLayout)

	ctx, span := s.startSpan(ctx, "save_week", attribute.String("week.start", start))
	defer func() { endSpan(span, err) }()

	w := week.Clone()
	w.Recompute()

	err = s.executeInTransaction(ctx, "save_week", func(tx *sql.Tx) error {
		stored, err := s.listWeekRows(ctx, tx)
		if err != nil {
			return err
		}

		for _, row := range stored {
			if row.start.Equal(w.StartDate) {
				id = row.id
				break
			}
		}

		now := s.now()
		if id == "" {
			if len(stored) > 0 {
				return &domain.WeekConflictError{
					ExistingID:    stored[0].id,
					ExistingStart: stored[0].start,
					Count:         len(stored),
				}
			}
			if id, err = s.storableID(w.ID); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, s.rebind(`
				INSERT INTO week_schedules (id, week_start_date, free_time_used, total_scheduled_units, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`),
				id, start, w.FreeTimeUsed, w.TotalScheduledUnits, now, now)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: week starting %s: %w", domain.ErrActiveWeekExists, start, err)
				}
				return fmt.Errorf("failed to insert week: %w", err)
			}
		} else {
			_, err = tx.ExecContext(ctx, s.rebind(`
				UPDATE week_schedules
				SET free_time_used = ?, total_scheduled_units = ?, updated_at = ?
				WHERE id = ?`),
				w.FreeTimeUsed, w.TotalScheduledUnits, now, id)
			if err != nil {
				return fmt.Errorf("failed to update week: %w", err)
			}
		}

		if err := s.replaceDays(ctx, tx, id, w); err != nil {
			return err
		}
		return s.upsertDefinitions(ctx, tx, catalog, now)
	})
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("week.id", id))
	slog.DebugContext(ctx, "week saved",
		"week_id", id,
		"week_start", start,
		"total_units", w.TotalScheduledUnits,
		"tasks", len(w.Tasks()))
	return id, nil
}

// replaceDays deletes the stored days and tasks of weekID and inserts w's.
func (s *Store) replaceDays(ctx context.Context, tx *sql.Tx, weekID string, w *domain.Week) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`
		DELETE FROM scheduled_tasks
		WHERE day_id IN (SELECT id FROM day_schedules WHERE week_id = ?)`), weekID); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM day_schedules WHERE week_id = ?`), weekID); err != nil {
		return fmt.Errorf("failed to delete days: %w", err)
	}

	insertDay := s.rebind(`
		INSERT INTO day_schedules (id, week_id, day_index, day_name, total_units)
		VALUES (?, ?, ?, ?, ?)`)
	insertTask := s.rebind(`
		INSERT INTO scheduled_tasks (id, day_id, task_type, time_units, slot, notes, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	for i := range w.Days {
		day := &w.Days[i]
		dayID, err := newID()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertDay, dayID, weekID, i, day.Name, day.TotalUnits); err != nil {
			return fmt.Errorf("failed to insert day %d: %w", i, err)
		}

		for _, slot := range domain.Slots {
			task := day.Slots[slot]
			if task == nil {
				continue
			}
			taskID, err := s.storableID(task.ID)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, insertTask,
				taskID, dayID, task.Type, task.TimeUnits, slot.String(), task.Notes, detailsToNull(task.Details))
			if err != nil {
				return fmt.Errorf("failed to insert task on day %d %s: %w", i, slot, err)
			}
		}
	}
	return nil
}

// FindWeek loads the stored week matching criterion with all days and tasks.
// Totals are recomputed from the tasks rather than trusted from storage.
func (s *Store) FindWeek(ctx context.Context, criterion domain.WeekCriterion) (week *domain.Week, err error) {
	ctx, span := s.startSpan(ctx, "find_week", attribute.String("criterion", criterion.String()))
	defer func() {
		if errors.Is(err, domain.ErrWeekNotFound) {
			span.End()
			return
		}
		endSpan(span, err)
	}()

	row, err := s.findWeekRow(ctx, s.db, criterion)
	if err != nil {
		return nil, err
	}
	return s.loadWeek(ctx, s.db, row)
}

func (s *Store) loadWeek(ctx context.Context, q querier, row weekRow) (*domain.Week, error) {
	week := domain.NewWeek(row.id, row.start)
	week.FreeTimeUsed = row.freeTimeUsed

	dayIndex, err := s.loadDays(ctx, q, week)
	if err != nil {
		return nil, err
	}
	if err := s.loadTasks(ctx, q, week, dayIndex); err != nil {
		return nil, err
	}

	week.Recompute()
	return week, nil
}

// loadDays applies stored day names to week and maps day ids to indexes.
func (s *Store) loadDays(ctx context.Context, q querier, week *domain.Week) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT id, day_index, day_name FROM day_schedules WHERE week_id = ?`), week.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load days: %w", err)
	}
	defer rows.Close()

	dayIndex := make(map[string]int, domain.DaysPerWeek)
	for rows.Next() {
		var (
			id    string
			index int
			name  string
		)
		if err := rows.Scan(&id, &index, &name); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		if !domain.ValidDay(index) {
			slog.WarnContext(ctx, "skipping stored day with invalid index", "week_id", week.ID, "day_index", index)
			continue
		}
		dayIndex[id] = index
		if name != "" {
			week.Days[index].Name = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load days: %w", err)
	}
	return dayIndex, nil
}

// loadTasks places the stored tasks of week into their days and slots.
func (s *Store) loadTasks(ctx context.Context, q querier, week *domain.Week, dayIndex map[string]int) error {
	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT t.id, t.day_id, t.task_type, t.time_units, t.slot, t.notes, t.details
		FROM scheduled_tasks t
		JOIN day_schedules d ON d.id = t.day_id
		WHERE d.week_id = ?`), week.ID)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			task     domain.ScheduledTask
			dayID    string
			slotName string
			details  sql.NullString
		)
		if err := rows.Scan(&task.ID, &dayID, &task.Type, &task.TimeUnits, &slotName, &task.Notes, &details); err != nil {
			return fmt.Errorf("failed to scan task: %w", err)
		}
		index, ok := dayIndex[dayID]
		if !ok {
			continue
		}
		slot, err := domain.ParseSlot(slotName)
		if err != nil {
			slog.WarnContext(ctx, "skipping stored task with invalid slot", "task_id", task.ID, "slot", slotName)
			continue
		}
		task.Details = nullToDetails(details)
		week.Days[index].Slots[slot] = &task
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	return nil
}

// DeleteWeek removes the stored week matching criterion with its days and tasks.
// Returns the number of weeks deleted, 0 when nothing matched.
func (s *Store) DeleteWeek(ctx context.Context, criterion domain.WeekCriterion) (deleted int, err error) {
	ctx, span := s.startSpan(ctx, "delete_week", attribute.String("criterion", criterion.String()))
	defer func() { endSpan(span, err) }()

	err = s.executeInTransaction(ctx, "delete_week", func(tx *sql.Tx) error {
		row, err := s.findWeekRow(ctx, tx, criterion)
		if err != nil {
			if errors.Is(err, domain.ErrWeekNotFound) {
				return nil
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`
			DELETE FROM scheduled_tasks
			WHERE day_id IN (SELECT id FROM day_schedules WHERE week_id = ?)`), row.id); err != nil {
			return fmt.Errorf("failed to delete tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM day_schedules WHERE week_id = ?`), row.id); err != nil {
			return fmt.Errorf("failed to delete days: %w", err)
		}
		n, err := execRows(ctx, tx, s.rebind(`DELETE FROM week_schedules WHERE id = ?`), row.id)
		if err != nil {
			return fmt.Errorf("failed to delete week: %w", err)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteAll removes every task, day, week and task definition.
func (s *Store) DeleteAll(ctx context.Context) (result domain.CleanupResult, err error) {
	ctx, span := s.startSpan(ctx, "delete_all")
	defer func() { endSpan(span, err) }()

	err = s.executeInTransaction(ctx, "delete_all", func(tx *sql.Tx) error {
		steps := []struct {
			table string
			count *int
		}{
			{"scheduled_tasks", &result.DeletedTasks},
			{"day_schedules", &result.DeletedDays},
			{"week_schedules", &result.DeletedWeeks},
			{"task_definitions", &result.DeletedDefinitions},
		}
		for _, step := range steps {
			n, err := execRows(ctx, tx, `DELETE FROM `+step.table)
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", step.table, err)
			}
			*step.count = n
		}
		return nil
	})
	if err != nil {
		return domain.CleanupResult{}, err
	}
	return result, nil
}

func execRows(ctx context.Context, q querier, query string, args ...any) (int, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
