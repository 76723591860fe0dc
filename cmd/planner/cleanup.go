package main

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// shutdowner abstracts the persister so tests can verify cleanup behavior
// without constructing real infrastructure dependencies.
type shutdowner interface {
	Shutdown(context.Context) error
}

// newCleanup constructs the shutdown hook: drain pending saves within timeout,
// then close the remaining resources in order. Nil closers are skipped.
func newCleanup(timeout time.Duration, persister shutdowner, closers ...io.Closer) func() {
	return func() {
		if persister != nil {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := persister.Shutdown(ctx); err != nil {
				slog.Error("failed to drain pending saves", slog.String("error", err.Error()))
			}
			cancel()
		}

		for _, c := range closers {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				slog.Error("failed to close resource", slog.String("error", err.Error()))
			}
		}
	}
}
