package catalogfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// Upserter receives reloaded definitions.
type Upserter interface {
	UpsertAll(defs []domain.TaskDefinition) error
}

// Watcher reloads a catalog file whenever it is written and upserts the
// result. Types removed from the file stay in the catalog.
type Watcher struct {
	path     string
	target   Upserter
	watcher  *fsnotify.Watcher
	onReload func(defs []domain.TaskDefinition, err error)

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WatcherOption is a functional option for configuring Watcher.
type WatcherOption func(*Watcher)

// WithReloadHook calls fn after every reload attempt.
func WithReloadHook(fn func(defs []domain.TaskDefinition, err error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watch starts watching path. The parent directory is watched so editors
// that replace the file on save are picked up.
func Watch(ctx context.Context, path string, target Upserter, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:    abs,
		target:  target,
		watcher: fw,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop(ctx)

	slog.InfoContext(ctx, "watching catalog file", "path", abs)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				slog.DebugContext(ctx, "catalog file changed", "op", event.Op.String(), "path", event.Name)
				w.reload(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.ErrorContext(ctx, "catalog watcher error", "error", err)
		}
	}
}

// reload keeps the current catalog when the file does not parse.
func (w *Watcher) reload(ctx context.Context) {
	defs, err := Load(w.path)
	if err == nil {
		err = w.target.UpsertAll(defs)
	}

	if err != nil {
		slog.WarnContext(ctx, "catalog reload failed", "path", w.path, "error", err)
	} else {
		slog.InfoContext(ctx, "catalog reloaded", "path", w.path, "task_types", len(defs))
	}

	if w.onReload != nil {
		w.onReload(defs, err)
	}
}

// Close stops the watcher and waits for the event loop to exit. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
