package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devinleonhart/minerva/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultSaveTimeout bounds a single background save.
const DefaultSaveTimeout = 10 * time.Second

// ErrPersisterClosed is recorded when a snapshot arrives after Shutdown.
var ErrPersisterClosed = errors.New("persister is shut down")

// WeekSaver writes a full week snapshot and upserts the catalog.
type WeekSaver interface {
	SaveWeek(ctx context.Context, week *domain.Week, catalog []domain.TaskDefinition) (string, error)
}

// PersisterConfig holds configuration for the Persister.
type PersisterConfig struct {
	SaveTimeout time.Duration // Zero means no timeout
}

type saveRequest struct {
	week    *domain.Week
	catalog []domain.TaskDefinition
}

// Persister saves week snapshots on a background worker.
//
// Every save replaces the week's full child set, so only the newest pending
// snapshot matters: a snapshot dispatched while another is waiting replaces it.
// Failures are logged and collected; they never touch the planner's state.
// Flush waits for the queue to drain and returns the collected failures.
type Persister struct {
	repo        WeekSaver
	appCtx      context.Context // Application context, cancelled on shutdown
	saveTimeout time.Duration
	metrics     *persisterMetrics

	mu     sync.Mutex
	next   *saveRequest
	busy   bool
	idle   chan struct{} // closed while nothing is pending or in flight
	errs   []error
	lastID string
	closed bool // set under mu before shutdownChan closes

	wake         chan struct{}
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewPersister creates a persister and starts its background worker.
// The ctx parameter should be an application-level context that gets cancelled on shutdown.
// Negative SaveTimeout gets the default.
func NewPersister(ctx context.Context, repo WeekSaver, config PersisterConfig) *Persister {
	if config.SaveTimeout < 0 {
		config.SaveTimeout = DefaultSaveTimeout
	}

	idle := make(chan struct{})
	close(idle)

	p := &Persister{
		repo:         repo,
		appCtx:       ctx,
		saveTimeout:  config.SaveTimeout,
		metrics:      newPersisterMetrics(),
		idle:         idle,
		wake:         make(chan struct{}, 1),
		shutdownChan: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Dispatch queues a snapshot for saving and returns immediately.
func (p *Persister) Dispatch(ctx context.Context, week *domain.Week, catalog []domain.TaskDefinition) {
	p.mu.Lock()
	if p.closed {
		p.errs = append(p.errs, fmt.Errorf("save week %s: %w", week.ID, ErrPersisterClosed))
		p.mu.Unlock()
		slog.WarnContext(ctx, "Dropped week snapshot after shutdown", "week_id", week.ID)
		return
	}
	if p.next != nil {
		slog.DebugContext(ctx, "Replaced pending week snapshot", "week_id", week.ID)
	}
	p.next = &saveRequest{week: week, catalog: catalog}
	if !p.busy {
		p.busy = true
		p.idle = make(chan struct{})
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
		// Worker already signalled; it will pick up the newest snapshot.
	}
}

// Pending reports whether a snapshot is queued or being saved.
func (p *Persister) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// LastSavedID returns the stored week id reported by the last successful save.
func (p *Persister) LastSavedID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastID
}

// Flush waits until no snapshot is pending and returns the save failures
// collected since the previous Flush.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return fmt.Errorf("flush: %w", ctx.Err())
	}

	p.mu.Lock()
	errs := p.errs
	p.errs = nil
	p.mu.Unlock()

	return errors.Join(errs...)
}

// Shutdown stops the worker after it saves the pending snapshot.
// It respects the provided context's deadline for shutdown timeout.
// This method is idempotent and safe to call multiple times.
func (p *Persister) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		// Snapshots queued before this point are saved by the final drain.
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.shutdownChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			shutdownErr = fmt.Errorf("shutdown timeout: %w", ctx.Err())
		}
	})
	return shutdownErr
}

func (p *Persister) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.wake:
			p.drain(p.appCtx)
		case <-p.shutdownChan:
			// appCtx is usually cancelled by now; the final save still gets its timeout window.
			p.drain(context.Background())
			return
		}
	}
}

// drain saves snapshots until none is pending.
func (p *Persister) drain(parent context.Context) {
	for {
		p.mu.Lock()
		req := p.next
		p.next = nil
		if req == nil {
			if p.busy {
				p.busy = false
				close(p.idle)
			}
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		p.save(parent, req)
	}
}

func (p *Persister) save(parent context.Context, req *saveRequest) {
	ctx, cancel := p.opContext(parent)
	defer cancel()

	start := time.Now()
	id, err := p.repo.SaveWeek(ctx, req.week, req.catalog)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist week",
			"operation", "save_week",
			"week_id", req.week.ID,
			"error", err)
		p.metrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("conflict", errors.Is(err, domain.ErrActiveWeekExists))))

		p.mu.Lock()
		p.errs = append(p.errs, fmt.Errorf("save week %s: %w", req.week.ID, err))
		p.mu.Unlock()
		return
	}

	p.metrics.saves.Add(ctx, 1)
	slog.DebugContext(ctx, "week persisted",
		"week_id", id,
		"duration_ms", time.Since(start).Milliseconds())

	p.mu.Lock()
	p.lastID = id
	p.mu.Unlock()
}

func (p *Persister) opContext(parent context.Context) (context.Context, context.CancelFunc) {
	if p.saveTimeout == 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, p.saveTimeout)
}
