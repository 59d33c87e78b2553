package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/relay/pkg/completion"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/processing"
	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/runs"
	"mercator-hq/relay/pkg/runstore/memory"
	"mercator-hq/relay/pkg/runstore/sqlite"
	"mercator-hq/relay/pkg/structured"
	"mercator-hq/relay/pkg/tasks"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// app holds the wired engine: providers, failover, persistence and
// telemetry.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	tracer    *tracing.Tracer
	collector *metrics.Collector
	processor *processing.Processor
	manager   *providerfactory.Manager
	orch      *routing.Orchestrator
	store     *sqlite.Store
	ledger    *memory.Ledger
	bus       *memory.Bus
	tasks     *tasks.Registry
	runs      *runs.Service
}

// newApp wires every component from cfg. Providers that fail to load are
// logged and skipped; the run fails later if none of a model's candidates
// loaded.
func newApp(cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.tracer, err = tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	a.processor = processing.NewProcessor(&cfg.Processing)

	a.manager = providerfactory.NewManager(
		completion.WithProcessor(a.processor),
		completion.WithSupportCache(structured.NewSupportCache()),
		completion.WithSettings(cfg.Engine),
		completion.WithTracer(a.tracer),
		completion.WithLogger(logger),
	)
	if err := a.manager.LoadFromConfig(cfg); err != nil {
		logger.Warn("some providers failed to initialize", "error", err)
	}

	a.orch, err = routing.NewOrchestrator(cfg, a.manager.Engines(),
		routing.WithRecorder(a.collector),
		routing.WithTracer(a.tracer),
		routing.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	a.store, err = sqlite.Open(cfg.RunStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	a.ledger = memory.NewLedger()
	a.bus = memory.NewBus()
	a.tasks = tasks.NewRegistry(logger)
	a.runs = runs.NewService(a.orch, a.store, a.tasks,
		runs.WithLedger(a.ledger),
		runs.WithEventBus(a.bus),
		runs.WithRecorder(a.collector),
		runs.WithLogger(logger),
	)
	return a, nil
}

// healthChecker registers readiness checks for the run store and the
// provider registry.
func (a *app) healthChecker() *health.Checker {
	checker := health.New(0)
	checker.Register("runstore", health.PingCheck(a.store))
	checker.Register("providers", health.ProvidersCheck(func() (int, int) {
		summary := a.manager.GetHealthSummary()
		return summary.Total, summary.Healthy
	}, 1))
	return checker
}

// close drains background tasks and releases every resource. It is safe
// on a partially built app.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if a.tasks != nil {
		drainCtx, cancel := context.WithTimeout(ctx, a.cfg.Tasks.DrainTimeout)
		if err := a.tasks.Drain(drainCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("run store close: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
	}
	return err
}
