package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersister_SavesDispatchedWeek(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	persister := NewPersister(ctx, repo, PersisterConfig{SaveTimeout: time.Second})
	defer persister.Shutdown(ctx)

	week := domain.NewWeek("w1", monday)
	persister.Dispatch(ctx, week, testDefinitions())

	require.NoError(t, persister.Flush(ctx))
	assert.False(t, persister.Pending())
	assert.Equal(t, "w1", persister.LastSavedID())
	assert.Equal(t, "w1", repo.stored().ID)
}

func TestPersister_FlushWithNothingPending(t *testing.T) {
	ctx := context.Background()
	persister := NewPersister(ctx, newMemRepo(), PersisterConfig{})
	defer persister.Shutdown(ctx)

	assert.False(t, persister.Pending())
	assert.NoError(t, persister.Flush(ctx))
}

func TestPersister_CoalescesToNewestSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	repo.releases = make(chan struct{})
	persister := NewPersister(ctx, repo, PersisterConfig{})
	defer persister.Shutdown(ctx)

	first := domain.NewWeek("w1", monday)
	persister.Dispatch(ctx, first, nil)
	require.True(t, persister.Pending())
	require.Eventually(t, func() bool {
		persister.mu.Lock()
		defer persister.mu.Unlock()
		return persister.next == nil
	}, time.Second, time.Millisecond, "worker should pick up the first snapshot")

	// While the first save is blocked, queue three more; only the last survives.
	for _, notes := range []string{"a", "b", "c"} {
		w := domain.NewWeek("w1", monday)
		w.Days[0].Slots[domain.SlotMorning] = &domain.ScheduledTask{ID: "t", Type: "WORK", TimeUnits: 8, Notes: notes}
		w.Recompute()
		persister.Dispatch(ctx, w, nil)
	}

	// Release the blocked save and the coalesced one.
	repo.releases <- struct{}{}
	repo.releases <- struct{}{}

	require.NoError(t, persister.Flush(ctx))
	assert.Equal(t, 2, repo.saves)
	stored := repo.stored()
	assert.Equal(t, "c", stored.Days[0].Slots[domain.SlotMorning].Notes)
	assert.Equal(t, 8, stored.TotalScheduledUnits)
}

func TestPersister_FailureDoesNotBlockLaterSaves(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	repo.saveErr = errors.New("connection refused")
	persister := NewPersister(ctx, repo, PersisterConfig{})
	defer persister.Shutdown(ctx)

	persister.Dispatch(ctx, domain.NewWeek("w1", monday), nil)
	err := persister.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "w1")

	// Errors are reported once.
	assert.NoError(t, persister.Flush(ctx))

	repo.mu.Lock()
	repo.saveErr = nil
	repo.mu.Unlock()
	persister.Dispatch(ctx, domain.NewWeek("w1", monday), nil)
	assert.NoError(t, persister.Flush(ctx))
	assert.Equal(t, "w1", persister.LastSavedID())
}

func TestPersister_SurfacesConflict(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	persister := NewPersister(ctx, repo, PersisterConfig{})
	defer persister.Shutdown(ctx)

	persister.Dispatch(ctx, domain.NewWeek("w1", monday), nil)
	require.NoError(t, persister.Flush(ctx))

	persister.Dispatch(ctx, domain.NewWeek("w2", monday.AddDate(0, 0, 7)), nil)
	err := persister.Flush(ctx)

	var conflict *domain.WeekConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "w1", conflict.ExistingID)
	assert.ErrorIs(t, err, domain.ErrActiveWeekExists)
}

func TestPersister_FlushRespectsContext(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	repo.releases = make(chan struct{})
	persister := NewPersister(ctx, repo, PersisterConfig{})

	persister.Dispatch(ctx, domain.NewWeek("w1", monday), nil)

	flushCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := persister.Flush(flushCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(repo.releases)
	require.NoError(t, persister.Shutdown(ctx))
}

func TestPersister_ShutdownSavesPendingAndRejectsLater(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	persister := NewPersister(ctx, repo, PersisterConfig{})

	persister.Dispatch(ctx, domain.NewWeek("w1", monday), nil)
	require.NoError(t, persister.Shutdown(ctx))
	require.NoError(t, persister.Shutdown(ctx), "shutdown is idempotent")
	assert.Equal(t, "w1", repo.stored().ID)

	persister.Dispatch(ctx, domain.NewWeek("w1", monday), nil)
	assert.ErrorIs(t, persister.Flush(ctx), ErrPersisterClosed)
}

func TestPersister_DispatchRacingShutdownNeverStrands(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx := context.Background()
		persister := NewPersister(ctx, newMemRepo(), PersisterConfig{})

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 20; k++ {
					persister.Dispatch(ctx, domain.NewWeek("w1", monday), nil)
				}
			}()
		}
		require.NoError(t, persister.Shutdown(ctx))
		wg.Wait()

		flushCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := persister.Flush(flushCtx)
		cancel()
		require.NotErrorIs(t, err, context.DeadlineExceeded, "a snapshot was queued after the worker exited")
		assert.False(t, persister.Pending())
	}
}

func TestPersister_WithPlanner(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	persister := NewPersister(ctx, repo, PersisterConfig{})
	defer persister.Shutdown(ctx)

	catalog, err := NewCatalog(testDefinitions()...)
	require.NoError(t, err)
	p := NewPlanner(catalog, persister)

	_, err = p.InitializeWeek(ctx, monday)
	require.NoError(t, err)
	require.True(t, p.ScheduleTask(ctx, "WORK", 0, domain.SlotMorning, nil))
	require.True(t, p.ScheduleTask(ctx, "STUDY", 6, domain.SlotEvening, nil))
	require.True(t, p.RemoveLastTask(ctx))
	require.NoError(t, persister.Flush(ctx))

	stored := repo.stored()
	require.NotNil(t, stored)
	assert.Len(t, stored.Tasks(), 1)
	assert.Equal(t, 8, stored.TotalScheduledUnits)
	defs, err := repo.FindTaskDefinitions(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, len(testDefinitions()))
}
