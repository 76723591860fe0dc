package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	weeks []*domain.Week
	err   error
}

func (a *recordingArchiver) Archive(ctx context.Context, week *domain.Week) error {
	if a.err != nil {
		return a.err
	}
	a.weeks = append(a.weeks, week.Clone())
	return nil
}

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *Planner, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	catalog, err := NewCatalog(testDefinitions()...)
	require.NoError(t, err)
	p := NewPlanner(catalog, nil, WithIDGenerator(sequentialIDs()))
	opts = append([]ManagerOption{WithManagerClock(func() time.Time { return monday.Add(50 * time.Hour) })}, opts...)
	return NewManager(repo, p, opts...), p, repo
}

func TestManager_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	m, p, repo := newTestManager(t)

	_, err := m.Save(ctx)
	assert.ErrorIs(t, err, domain.ErrWeekNotLoaded)

	_, err = p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	require.True(t, p.ScheduleTask(ctx, "WORK", 3, domain.SlotAfternoon, &TaskDetails{Notes: "ship it"}))
	id, err := m.Save(ctx)
	require.NoError(t, err)

	p.Reset()
	found, err := m.Load(ctx, domain.WeekByID(id))
	require.NoError(t, err)
	require.True(t, found)

	week, ok := p.Week()
	require.True(t, ok)
	assert.Equal(t, id, week.ID)
	assert.Equal(t, "ship it", week.Days[3].Slots[domain.SlotAfternoon].Notes)
	assert.Equal(t, 8, week.TotalScheduledUnits)
	assert.Equal(t, StateScheduled, p.State())

	found, err = m.Load(ctx, domain.CurrentWeek(monday.AddDate(0, 0, 3)))
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotNil(t, repo.stored())
}

func TestManager_ReinitializeSameWeekKeepsStoredID(t *testing.T) {
	ctx := context.Background()
	m, p, _ := newTestManager(t)

	first, err := m.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	require.True(t, p.ScheduleTask(ctx, "WORK", 0, domain.SlotMorning, nil))
	id, err := m.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)

	week, err := m.InitializeWeek(ctx, monday.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, id, week.ID)
	assert.Zero(t, week.TotalScheduledUnits)

	require.True(t, p.ScheduleTask(ctx, "STUDY", 1, domain.SlotEvening, nil))
	again, err := m.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	p.Reset()
	found, err := m.Load(ctx, domain.WeekByID(week.ID))
	require.NoError(t, err)
	require.True(t, found)
	loaded, _ := p.Week()
	assert.Equal(t, 4, loaded.TotalScheduledUnits)
}

func TestManager_SaveAdoptsStoredID(t *testing.T) {
	ctx := context.Background()
	m, p, _ := newTestManager(t)

	_, err := p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	stored, err := m.Save(ctx)
	require.NoError(t, err)

	fresh, err := p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	require.NotEqual(t, stored, fresh.ID)

	id, err := m.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored, id)

	week, _ := p.Week()
	assert.Equal(t, stored, week.ID)

	p.Reset()
	found, err := m.Load(ctx, domain.WeekByID(week.ID))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestManager_InitializeWeek(t *testing.T) {
	ctx := context.Background()

	t.Run("no stored week generates an id", func(t *testing.T) {
		m, p, _ := newTestManager(t)
		week, err := m.InitializeWeek(ctx, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "id-001", week.ID)
		assert.True(t, week.StartDate.Equal(monday))
		assert.Equal(t, StateInitialized, p.State())
	})

	t.Run("lookup failure leaves planner", func(t *testing.T) {
		m, p, repo := newTestManager(t)
		repo.findErr = errors.New("disk on fire")
		_, err := m.InitializeWeek(ctx, monday)
		require.Error(t, err)
		assert.Equal(t, StateUnloaded, p.State())
	})
}

func TestManager_LoadNotFoundLeavesPlanner(t *testing.T) {
	ctx := context.Background()
	m, p, _ := newTestManager(t)
	_, err := p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	before, _ := p.Week()

	found, err := m.Load(ctx, domain.WeekByID("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	after, ok := p.Week()
	require.True(t, ok)
	assert.Equal(t, before.ID, after.ID)
}

func TestManager_LoadErrorLeavesPlanner(t *testing.T) {
	ctx := context.Background()
	m, p, repo := newTestManager(t)
	repo.findErr = errors.New("disk on fire")

	found, err := m.Load(ctx, domain.CurrentWeek(monday))
	require.Error(t, err)
	assert.False(t, found)
	assert.Equal(t, StateUnloaded, p.State())
}

func TestManager_LoadMergesStoredDefinitions(t *testing.T) {
	ctx := context.Background()
	m, p, repo := newTestManager(t)
	repo.defs["READING"] = domain.TaskDefinition{Type: "READING", Name: "Reading", TimeUnits: 2}
	repo.defs["WORK"] = domain.TaskDefinition{Type: "WORK", Name: "Stored Work", TimeUnits: 1}
	repo.week = domain.NewWeek("stored", monday)

	found, err := m.Load(ctx, domain.WeekByDate(monday.AddDate(0, 0, 2)))
	require.NoError(t, err)
	require.True(t, found)

	reading, ok := p.Catalog().Lookup("READING")
	require.True(t, ok)
	assert.Equal(t, 2, reading.TimeUnits)
	work, _ := p.Catalog().Lookup("WORK")
	assert.Equal(t, 8, work.TimeUnits, "configured definitions win over stored ones")
}

func TestManager_DeleteCurrentWeek(t *testing.T) {
	ctx := context.Background()
	archive := &recordingArchiver{}
	m, p, repo := newTestManager(t, WithArchiver(archive))

	_, err := p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	require.True(t, p.ScheduleTask(ctx, "STUDY", 0, domain.SlotMorning, nil))
	_, err = m.Save(ctx)
	require.NoError(t, err)

	result, err := m.DeleteCurrentWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedWeeks)
	assert.Nil(t, repo.stored())
	assert.Equal(t, StateUnloaded, p.State())
	require.Len(t, archive.weeks, 1)
	assert.Len(t, archive.weeks[0].Tasks(), 1)

	result, err = m.DeleteCurrentWeek(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.DeletedWeeks)
	assert.Len(t, archive.weeks, 1, "nothing stored, nothing archived")
}

func TestManager_DeleteWithoutInMemoryWeekUsesCurrent(t *testing.T) {
	ctx := context.Background()
	archive := &recordingArchiver{}
	m, _, repo := newTestManager(t, WithArchiver(archive))
	repo.week = domain.NewWeek("stored", monday)

	result, err := m.DeleteCurrentWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedWeeks)
	require.Len(t, archive.weeks, 1)
	assert.Equal(t, "stored", archive.weeks[0].ID)
}

func TestManager_ArchiveFailureKeepsWeek(t *testing.T) {
	ctx := context.Background()
	archive := &recordingArchiver{err: errors.New("bucket missing")}
	m, p, repo := newTestManager(t, WithArchiver(archive))
	_, err := p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	_, err = m.Save(ctx)
	require.NoError(t, err)

	_, err = m.DeleteCurrentWeek(ctx)
	require.Error(t, err)
	assert.NotNil(t, repo.stored())
	assert.Equal(t, StateInitialized, p.State())
}

func TestManager_DeleteWaitsForPendingSave(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	persister := NewPersister(ctx, repo, PersisterConfig{})
	defer persister.Shutdown(ctx)
	catalog, err := NewCatalog(testDefinitions()...)
	require.NoError(t, err)
	p := NewPlanner(catalog, persister)
	m := NewManager(repo, p, WithFlusher(persister))

	_, err = p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	require.True(t, p.ScheduleTask(ctx, "WORK", 0, domain.SlotMorning, nil))

	result, err := m.DeleteCurrentWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedWeeks)
	assert.False(t, persister.Pending())
	assert.Nil(t, repo.stored())
}

func TestManager_Cleanup(t *testing.T) {
	ctx := context.Background()
	m, p, repo := newTestManager(t)
	_, err := p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	require.True(t, p.ScheduleTask(ctx, "WORK", 0, domain.SlotMorning, nil))
	require.True(t, p.ScheduleTask(ctx, "WORK", 1, domain.SlotMorning, nil))
	_, err = m.Save(ctx)
	require.NoError(t, err)

	result, err := m.Cleanup(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.CleanupResult{
		DeletedTasks:       2,
		DeletedDays:        7,
		DeletedWeeks:       1,
		DeletedDefinitions: len(testDefinitions()),
	}, result)
	assert.Nil(t, repo.stored())
	assert.Equal(t, StateUnloaded, p.State())
	assert.Equal(t, len(testDefinitions()), p.Catalog().Len())
}
