package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
)

// FindTaskDefinitions returns every stored task definition ordered by type.
func (s *Store) FindTaskDefinitions(ctx context.Context) (defs []domain.TaskDefinition, err error) {
	ctx, span := s.startSpan(ctx, "find_task_definitions")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, name, time_units, color, description, allowed_slots, max_per_week
		FROM task_definitions
		ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list task definitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			def        domain.TaskDefinition
			allowed    sql.NullString
			maxPerWeek sql.NullInt64
		)
		if err := rows.Scan(&def.Type, &def.Name, &def.TimeUnits, &def.Color, &def.Description, &allowed, &maxPerWeek); err != nil {
			return nil, fmt.Errorf("failed to scan task definition: %w", err)
		}
		if def.Restrictions, err = restrictionsFromColumns(allowed, maxPerWeek); err != nil {
			return nil, fmt.Errorf("task definition %s: %w", def.Type, err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list task definitions: %w", err)
	}
	return defs, nil
}

// upsertDefinitions creates or replaces each definition keyed by type.
func (s *Store) upsertDefinitions(ctx context.Context, tx *sql.Tx, defs []domain.TaskDefinition, now time.Time) error {
	query := s.rebind(`
		INSERT INTO task_definitions (type, name, time_units, color, description, allowed_slots, max_per_week, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type) DO UPDATE SET
			name = excluded.name,
			time_units = excluded.time_units,
			color = excluded.color,
			description = excluded.description,
			allowed_slots = excluded.allowed_slots,
			max_per_week = excluded.max_per_week,
			updated_at = excluded.updated_at`)

	for _, def := range defs {
		allowed, maxPerWeek := restrictionColumns(def.Restrictions)
		if _, err := tx.ExecContext(ctx, query,
			def.Type, def.Name, def.TimeUnits, def.Color, def.Description, allowed, maxPerWeek, now); err != nil {
			return fmt.Errorf("failed to upsert task definition %s: %w", def.Type, err)
		}
	}
	return nil
}
