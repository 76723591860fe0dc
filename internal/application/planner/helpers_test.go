package planner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/devinleonhart/minerva/internal/ptr"
	"github.com/stretchr/testify/require"
)

// recordingDispatcher captures every snapshot the planner hands off.
type recordingDispatcher struct {
	weeks []*domain.Week
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, week *domain.Week, catalog []domain.TaskDefinition) {
	r.weeks = append(r.weeks, week)
}

func (r *recordingDispatcher) last() *domain.Week {
	if len(r.weeks) == 0 {
		return nil
	}
	return r.weeks[len(r.weeks)-1]
}

// memRepo is an in-memory Repository that enforces the single stored week rule.
type memRepo struct {
	mu       sync.Mutex
	week     *domain.Week
	defs     map[string]domain.TaskDefinition
	saveErr  error
	findErr  error
	saves    int
	releases chan struct{} // when set, SaveWeek blocks until a value arrives
}

func newMemRepo() *memRepo {
	return &memRepo{defs: make(map[string]domain.TaskDefinition)}
}

func (m *memRepo) SaveWeek(ctx context.Context, week *domain.Week, catalog []domain.TaskDefinition) (string, error) {
	if m.releases != nil {
		select {
		case <-m.releases:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return "", m.saveErr
	}
	if m.week != nil && !m.week.StartDate.Equal(week.StartDate) {
		return "", &domain.WeekConflictError{ExistingID: m.week.ID, ExistingStart: m.week.StartDate, Count: 1}
	}
	id := week.ID
	if m.week != nil {
		id = m.week.ID
	}
	m.week = week.Clone()
	m.week.ID = id
	for _, def := range catalog {
		m.defs[def.Type] = def
	}
	return id, nil
}

func (m *memRepo) FindWeek(ctx context.Context, criterion domain.WeekCriterion) (*domain.Week, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.week == nil || !m.matches(criterion) {
		return nil, domain.ErrWeekNotFound
	}
	return m.week.Clone(), nil
}

func (m *memRepo) matches(c domain.WeekCriterion) bool {
	switch c.Kind {
	case domain.ByID:
		return m.week.ID == c.ID
	case domain.ByDate:
		return m.week.StartDate.Equal(c.Date)
	default:
		return m.week.Contains(c.Date)
	}
}

func (m *memRepo) FindTaskDefinitions(ctx context.Context) ([]domain.TaskDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defs := make([]domain.TaskDefinition, 0, len(m.defs))
	for _, def := range m.defs {
		defs = append(defs, def)
	}
	return defs, nil
}

func (m *memRepo) DeleteWeek(ctx context.Context, criterion domain.WeekCriterion) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.week == nil || !m.matches(criterion) {
		return 0, nil
	}
	m.week = nil
	return 1, nil
}

func (m *memRepo) DeleteAll(ctx context.Context) (domain.CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := domain.CleanupResult{DeletedDefinitions: len(m.defs)}
	if m.week != nil {
		result.DeletedWeeks = 1
		result.DeletedDays = domain.DaysPerWeek
		result.DeletedTasks = len(m.week.Tasks())
	}
	m.week = nil
	m.defs = make(map[string]domain.TaskDefinition)
	return result, nil
}

func (m *memRepo) stored() *domain.Week {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.week.Clone()
}

func sequentialIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("id-%03d", n), nil
	}
}

var monday = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.Local)

func testDefinitions() []domain.TaskDefinition {
	return []domain.TaskDefinition{
		{Type: "WORK", Name: "Work", TimeUnits: 8},
		{Type: "STUDY", Name: "Study", TimeUnits: 4, Restrictions: &domain.Restrictions{MaxPerWeek: ptr.To(2)}},
		{Type: "LONG", Name: "Long", TimeUnits: 11},
		{Type: "EXERCISE", Name: "Exercise", TimeUnits: 3, Restrictions: &domain.Restrictions{
			AllowedSlots: []domain.Slot{domain.SlotMorning},
		}},
		{Type: domain.TaskTypeFreeTime, Name: "Free", TimeUnits: 6},
	}
}

// newTestPlanner returns a planner with an initialized Monday 2024-01-15 week.
func newTestPlanner(t *testing.T) (*Planner, *recordingDispatcher) {
	t.Helper()
	catalog, err := NewCatalog(testDefinitions()...)
	require.NoError(t, err)

	rec := &recordingDispatcher{}
	p := NewPlanner(catalog, rec,
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return monday.Add(10 * time.Hour) }))

	_, err = p.InitializeWeek(context.Background(), monday)
	require.NoError(t, err)
	return p, rec
}

func assertTotalsConsistent(t *testing.T, week *domain.Week) {
	t.Helper()
	grand := 0
	for _, day := range week.Days {
		sum := 0
		for _, task := range day.Slots {
			if task != nil {
				sum += task.TimeUnits
			}
		}
		require.Equal(t, sum, day.TotalUnits, "day %d total", day.Index)
		require.LessOrEqual(t, day.TotalUnits, domain.DailyCapacity)
		grand += sum
	}
	require.Equal(t, grand, week.TotalScheduledUnits)
}
