package catalogfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devinleonhart/minerva/internal/application/planner"
	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_UpsertsOnWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0644))

	defs, err := Load(path)
	require.NoError(t, err)
	catalog, err := planner.NewCatalog(defs...)
	require.NoError(t, err)

	w, err := Watch(ctx, path, catalog)
	require.NoError(t, err)
	defer w.Close()

	updated := "tasks:\n  - type: WORK\n    timeUnits: 6\n  - type: READING\n    timeUnits: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	require.Eventually(t, func() bool {
		def, ok := catalog.Lookup("READING")
		return ok && def.TimeUnits == 2
	}, 5*time.Second, 10*time.Millisecond)

	work, _ := catalog.Lookup("WORK")
	assert.Equal(t, 6, work.TimeUnits)
	_, ok := catalog.Lookup("EXERCISE")
	assert.True(t, ok, "types removed from the file are kept")
}

func TestWatcher_InvalidFileKeepsCatalog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0644))
	catalog, err := planner.NewCatalog(planner.DefaultDefinitions()...)
	require.NoError(t, err)
	before := catalog.Len()

	reloads := make(chan error, 8)
	w, err := Watch(ctx, path, catalog, WithReloadHook(func(_ []domain.TaskDefinition, err error) {
		reloads <- err
	}))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("tasks:\n  - type: BAD\n    timeUnits: -1\n"), 0644))

	// Truncation and the write can arrive as separate events.
	deadline := time.After(5 * time.Second)
	for invalid := false; !invalid; {
		select {
		case err := <-reloads:
			require.Error(t, err)
			invalid = errors.Is(err, domain.ErrInvalidTaskDefinition)
		case <-deadline:
			t.Fatal("no reload of the invalid file observed")
		}
	}
	assert.Equal(t, before, catalog.Len())
	_, ok := catalog.Lookup("BAD")
	assert.False(t, ok)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0644))
	catalog, err := planner.NewCatalog()
	require.NoError(t, err)

	reloads := make(chan error, 8)
	w, err := Watch(ctx, path, catalog, WithReloadHook(func(_ []domain.TaskDefinition, err error) {
		reloads <- err
	}))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte(sampleCatalog), 0644))

	select {
	case <-reloads:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Zero(t, catalog.Len())
}
