package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devinleonhart/minerva/internal/application/planner"
	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/devinleonhart/minerva/internal/storage/compliance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_Compliance(t *testing.T) {
	compliance.RunArchiveComplianceTest(t, func() (planner.ArchiveStore, func()) {
		tmpDir, err := os.MkdirTemp("", "fs-archive-test-*")
		require.NoError(t, err)

		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		cleanup := func() {
			os.RemoveAll(tmpDir)
		}

		return store, cleanup
	})
}

func TestFSStore_SkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	weeks, err := store.ListArchived(context.Background())
	require.NoError(t, err)
	assert.Empty(t, weeks)
}

func TestFSStore_RejectsPathLikeIDs(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	err = store.Archive(context.Background(), &domain.Week{ID: "../escape"})
	assert.Error(t, err)
	err = store.Archive(context.Background(), nil)
	assert.Error(t, err)

	// A readable week outside the archive root must stay unreachable.
	root := t.TempDir()
	store, err = NewStore(filepath.Join(root, "archive"))
	require.NoError(t, err)
	outside, err := json.Marshal(&domain.Week{ID: "outside", StartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "outside.json"), outside, 0644))

	for _, id := range []string{"../outside", `..\outside`, "", ".."} {
		week, err := store.GetArchived(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrWeekNotFound, id)
		assert.Nil(t, week, id)
	}
}
