// Package tasks tracks fire-and-forget background work so that shutdown
// can wait for it instead of losing it.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"
)

// ErrClosed is returned by Go once Drain has been called.
var ErrClosed = errors.New("task registry is draining")

// AbandonedError reports the tasks still running when Drain gave up.
type AbandonedError struct {
	Tasks []string
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("abandoned %d background task(s): %v", len(e.Tasks), e.Tasks)
}

// Registry launches and tracks background tasks.
//
// Tasks run with the registry's context, not the caller's, so they
// outlive the request that started them. The context is cancelled when
// Drain times out.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	active  map[uint64]string
	nextID  uint64
	closed  bool
	panics  int64
	started int64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "tasks"),
		active: make(map[uint64]string),
	}
}

// Go runs fn in a new goroutine. A panic in fn is recovered and logged.
func (r *Registry) Go(name string, fn func(ctx context.Context)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Error("task rejected, registry is draining", "task", name)
		return fmt.Errorf("%w: %s", ErrClosed, name)
	}
	id := r.nextID
	r.nextID++
	r.active[id] = name
	r.started++
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(id, name, fn)
	return nil
}

func (r *Registry) run(id uint64, name string, fn func(ctx context.Context)) {
	start := time.Now()
	defer func() {
		if err := recover(); err != nil {
			r.mu.Lock()
			r.panics++
			r.mu.Unlock()
			r.logger.Error("panic in background task",
				"task", name,
				"error", err,
				"stack", string(debug.Stack()),
			)
		}

		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()
		r.wg.Done()

		r.logger.Debug("background task finished",
			"task", name,
			"duration", time.Since(start),
		)
	}()

	fn(r.ctx)
}

// Pending returns the names of running tasks, sorted.
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.active))
	for _, name := range r.active {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Stats returns the number of tasks started and the number that panicked.
func (r *Registry) Stats() (started, panicked int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.panics
}

// Drain stops accepting tasks and waits for running ones. If ctx ends
// first, the remaining tasks are cancelled and reported in an
// *AbandonedError.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	pending := len(r.active)
	r.mu.Unlock()

	r.logger.Info("draining background tasks", "pending", pending)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.Info("background tasks drained")
		return nil
	case <-ctx.Done():
		abandoned := r.Pending()
		r.cancel()
		r.logger.Error("background tasks abandoned",
			"count", len(abandoned),
			"tasks", abandoned,
		)
		return &AbandonedError{Tasks: abandoned}
	}
}
