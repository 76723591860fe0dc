package compliance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/devinleonhart/minerva/internal/application/planner"
	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWeek(start time.Time) *domain.Week {
	week := domain.NewWeek(uuid.New().String(), start)
	week.Days[0].Slots[domain.SlotMorning] = &domain.ScheduledTask{
		ID: uuid.New().String(), Type: "WORK", TimeUnits: 8, Notes: "quarterly review",
	}
	week.Days[4].Slots[domain.SlotEvening] = &domain.ScheduledTask{
		ID: uuid.New().String(), Type: domain.TaskTypeFreeTime, TimeUnits: 6,
		Details: json.RawMessage(`{"place":"cinema"}`),
	}
	week.FreeTimeUsed = true
	week.Recompute()
	return week
}

// RunArchiveComplianceTest runs a standard set of tests against an ArchiveStore.
// setup returns a fresh (empty) store and a teardown function.
func RunArchiveComplianceTest(t *testing.T, setup func() (planner.ArchiveStore, func())) {
	monday := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.Local)

	t.Run("ArchiveAndGet", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		week := sampleWeek(monday)
		require.NoError(t, store.Archive(ctx, week))

		fetched, err := store.GetArchived(ctx, week.ID)
		require.NoError(t, err)
		assert.Equal(t, week.ID, fetched.ID)
		assert.True(t, fetched.StartDate.Equal(monday))
		assert.True(t, fetched.FreeTimeUsed)
		assert.Equal(t, 14, fetched.TotalScheduledUnits)
		require.NotNil(t, fetched.Days[0].Task(domain.SlotMorning))
		assert.Equal(t, "quarterly review", fetched.Days[0].Task(domain.SlotMorning).Notes)
		require.NotNil(t, fetched.Days[4].Task(domain.SlotEvening))
		assert.JSONEq(t, `{"place":"cinema"}`, string(fetched.Days[4].Task(domain.SlotEvening).Details))
	})

	t.Run("ArchiveReplacesSameWeek", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		week := sampleWeek(monday)
		require.NoError(t, store.Archive(ctx, week))

		week.Days[0].Slots[domain.SlotMorning] = nil
		week.Recompute()
		require.NoError(t, store.Archive(ctx, week))

		fetched, err := store.GetArchived(ctx, week.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, fetched.TotalScheduledUnits)
	})

	t.Run("ListArchived", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		later := sampleWeek(monday.AddDate(0, 0, 7))
		earlier := sampleWeek(monday)
		require.NoError(t, store.Archive(ctx, later))
		require.NoError(t, store.Archive(ctx, earlier))

		weeks, err := store.ListArchived(ctx)
		require.NoError(t, err)
		require.Len(t, weeks, 2)
		assert.Equal(t, earlier.ID, weeks[0].ID)
		assert.Equal(t, later.ID, weeks[1].ID)
	})

	t.Run("GetNonExistentWeek", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := store.GetArchived(ctx, "non-existent-id")
		assert.ErrorIs(t, err, domain.ErrWeekNotFound)
	})
}
