package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/relay/pkg/config"
)

// pruneTarget is the part of the store the pruner needs.
type pruneTarget interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes runs older than the retention period, optionally on a
// cron schedule.
type Pruner struct {
	store  pruneTarget
	config config.RetentionConfig
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPruner creates a pruner for store.
func NewPruner(store pruneTarget, cfg config.RetentionConfig) *Pruner {
	return &Pruner{
		store:  store,
		config: cfg,
		now:    time.Now,
		cron:   cron.New(),
		logger: slog.Default().With("component", "runstore.retention"),
	}
}

// Prune deletes runs older than the retention period. A zero retention
// keeps runs forever.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.Days <= 0 {
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.config.Days)
	deleted, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs older than %d days: %w", p.config.Days, err)
	}

	if deleted == 0 {
		p.logger.Debug("no runs pruned", "retention_days", p.config.Days)
	} else {
		p.logger.Info("pruned runs",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
			"retention_days", p.config.Days,
		)
	}
	return deleted, nil
}

// Start schedules pruning with the configured cron expression. An empty
// schedule or a zero retention leaves the scheduler idle. The scheduler
// stops when ctx is cancelled.
//
// Common cron expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.PruneSchedule == "" || p.config.Days <= 0 {
		p.logger.Info("run pruning not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(p.config.PruneSchedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.config.PruneSchedule, err)
	}

	_, err := p.cron.AddFunc(p.config.PruneSchedule, func() {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled pruning failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("retention scheduler started",
		"schedule", p.config.PruneSchedule,
		"retention_days", p.config.Days,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled pruning time, or nil when idle.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
