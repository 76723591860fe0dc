package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/devinleonhart/minerva/internal/ptr"
	"github.com/google/uuid"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// newID returns a time-ordered UUID for rows the domain does not identify.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// storableID keeps id when the dialect can store it and generates one otherwise.
// PostgreSQL id columns are UUIDs.
func (s *Store) storableID(id string) (string, error) {
	if id == "" {
		return newID()
	}
	if s.dialect == DialectPostgres {
		if _, err := uuid.Parse(id); err != nil {
			return newID()
		}
	}
	return id, nil
}

// validLookupID reports whether id can be compared against an id column.
func (s *Store) validLookupID(id string) bool {
	if id == "" {
		return false
	}
	if s.dialect == DialectPostgres {
		_, err := uuid.Parse(id)
		return err == nil
	}
	return true
}

// encodeSlots stores allowed slots as a comma separated list of slot names.
// NULL means no restriction; an empty string means no slot is allowed.
func encodeSlots(slots []domain.Slot) sql.NullString {
	if slots == nil {
		return sql.NullString{}
	}
	names := make([]string, len(slots))
	for i, slot := range slots {
		names[i] = slot.String()
	}
	return sql.NullString{String: strings.Join(names, ","), Valid: true}
}

func decodeSlots(v sql.NullString) ([]domain.Slot, error) {
	if !v.Valid {
		return nil, nil
	}
	slots := []domain.Slot{}
	if v.String == "" {
		return slots, nil
	}
	for name := range strings.SplitSeq(v.String, ",") {
		slot, err := domain.ParseSlot(name)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func intPtrToNull(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullToIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return ptr.To(int(v.Int64))
}

func detailsToNull(details json.RawMessage) sql.NullString {
	if len(details) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(details), Valid: true}
}

func nullToDetails(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}

// restrictionsFromColumns returns nil when neither column restricts the type.
func restrictionsFromColumns(allowed sql.NullString, maxPerWeek sql.NullInt64) (*domain.Restrictions, error) {
	if !allowed.Valid && !maxPerWeek.Valid {
		return nil, nil
	}
	slots, err := decodeSlots(allowed)
	if err != nil {
		return nil, err
	}
	return &domain.Restrictions{AllowedSlots: slots, MaxPerWeek: nullToIntPtr(maxPerWeek)}, nil
}

func restrictionColumns(r *domain.Restrictions) (sql.NullString, sql.NullInt64) {
	if r == nil {
		return sql.NullString{}, sql.NullInt64{}
	}
	return encodeSlots(r.AllowedSlots), intPtrToNull(r.MaxPerWeek)
}
