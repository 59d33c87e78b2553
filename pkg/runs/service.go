// Package runs executes "run a model version" requests end to end: cache
// lookup, failover execution, persistence, billing and events.
package runs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/ports"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/tasks"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// persistTimeout bounds persistence of a finished run. Persistence is
// detached from the request context so a disconnecting caller cannot
// lose a completed run.
const persistTimeout = 10 * time.Second

// Runner executes a completion with failover. *routing.Orchestrator
// implements it.
type Runner interface {
	Run(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*routing.Result, error)
	Stream(ctx context.Context, model string, messages []llm.Message, opts *llm.Options, res *routing.Result) iter.Seq2[*llm.StructuredOutput, error]
}

// Request asks for one run of a model version.
type Request struct {
	TenantID  string
	VersionID string
	Model     string
	Messages  []llm.Message
	Options   llm.Options

	// UseCache returns an earlier successful run with the same input
	// instead of calling a provider.
	UseCache bool
}

func (r Request) validate() error {
	switch {
	case r.Model == "":
		return providers.NewInvalidRunOptions("model is required")
	case len(r.Messages) == 0:
		return providers.NewInvalidRunOptions("at least one message is required")
	case r.VersionID == "":
		return providers.NewInvalidRunOptions("version id is required")
	}
	return nil
}

// Outcome describes an executed request.
type Outcome struct {
	Run *ports.Run

	// Cached is set when Run came from the run cache.
	Cached bool

	// Persisted is set when Run was saved by this execution.
	Persisted bool

	// Attempts holds every provider attempt of this execution.
	Attempts []routing.Attempt
}

// Recorder receives run-level metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordRun(model, status string, cached bool, duration time.Duration)
	RecordCacheLookup(cache string, hit bool)
}

// Service wires the orchestrator to the collaborator ports. The ledger,
// bus and recorder are optional.
type Service struct {
	runner   Runner
	store    ports.RunStore
	ledger   ports.CreditLedger
	bus      ports.EventBus
	recorder Recorder
	tasks    *tasks.Registry
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLedger bills run costs to ledger.
func WithLedger(ledger ports.CreditLedger) Option {
	return func(s *Service) { s.ledger = ledger }
}

// WithEventBus publishes a RunCreatedEvent for every persisted run.
func WithEventBus(bus ports.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithRecorder reports run and cache metrics to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.With("component", "runs") }
}

// NewService creates a run service. Billing and event publishing run as
// background tasks on registry.
func NewService(runner Runner, store ports.RunStore, registry *tasks.Registry, opts ...Option) *Service {
	s := &Service{
		runner: runner,
		store:  store,
		tasks:  registry,
		tracer: otel.Tracer(tracing.InstrumentationName),
		logger: slog.Default().With("component", "runs"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs req to completion.
//
// When every provider fails, the error is returned together with an
// Outcome holding the failed run, so callers can report its ID and cost.
// Application errors (invalid options, unknown model) return no Outcome.
func (s *Service) Execute(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := s.startSpan(ctx, "runs.execute", req)
	defer span.End()

	start := s.now()
	hash, cached, err := s.prepare(ctx, req)
	if err != nil {
		tracing.SetError(span, err)
		tracing.SetStatus(span, err)
		return nil, err
	}
	if cached != nil {
		s.record(cached, true)
		return &Outcome{Run: cached, Cached: true}, nil
	}

	opts := s.runOptions(req)
	result, runErr := s.runner.Run(ctx, req.Model, req.Messages, &opts)
	return s.finish(ctx, req, hash, start, result, runErr)
}

// Stream runs req and yields partial outputs as they arrive. A cache hit
// yields the stored output once. When the sequence ends, out (if not
// nil) describes the run the same way Execute would.
func (s *Service) Stream(ctx context.Context, req Request, out *Outcome) iter.Seq2[*llm.StructuredOutput, error] {
	return func(yield func(*llm.StructuredOutput, error) bool) {
		ctx, span := s.startSpan(ctx, "runs.stream", req)
		defer span.End()

		start := s.now()
		hash, cached, err := s.prepare(ctx, req)
		if err != nil {
			tracing.SetError(span, err)
			tracing.SetStatus(span, err)
			yield(nil, err)
			return
		}
		if cached != nil {
			s.record(cached, true)
			if out != nil {
				*out = Outcome{Run: cached, Cached: true}
			}
			yield(cached.Output, nil)
			return
		}

		opts := s.runOptions(req)
		var result routing.Result
		var streamErr error
		for partial, err := range s.runner.Stream(ctx, req.Model, req.Messages, &opts, &result) {
			if err != nil {
				streamErr = err
				break
			}
			if !yield(partial, nil) {
				s.logger.Debug("stream consumer stopped, run not recorded", "model", req.Model)
				return
			}
		}

		res := &result
		if streamErr != nil {
			res = nil
		}
		outcome, err := s.finish(ctx, req, hash, start, res, streamErr)
		if out != nil && outcome != nil {
			*out = *outcome
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func (s *Service) startSpan(ctx context.Context, name string, req Request) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String(tracing.AttrModel, req.Model)))
	tracing.SetRunAttributes(span, "", req.TenantID, req.VersionID)
	ctx = logging.WithRun(ctx, logging.RunFields{TenantID: req.TenantID, VersionID: req.VersionID})
	return ctx, span
}

// prepare validates req, hashes its input and consults the cache.
func (s *Service) prepare(ctx context.Context, req Request) (string, *ports.Run, error) {
	if err := req.validate(); err != nil {
		return "", nil, err
	}
	hash, err := InputHash(req)
	if err != nil {
		return "", nil, providers.NewInvalidRunOptions("%v", err)
	}
	if !req.UseCache {
		return hash, nil, nil
	}

	cached, err := s.store.FindCached(ctx, req.VersionID, hash)
	if err != nil {
		// A broken cache degrades to a fresh run.
		s.logger.WarnContext(ctx, "run cache lookup failed",
			"version_id", req.VersionID,
			"error", err,
		)
		return hash, nil, nil
	}
	if s.recorder != nil {
		s.recorder.RecordCacheLookup("runs", cached != nil)
	}
	tracing.SetCacheAttributes(trace.SpanFromContext(ctx), cached != nil, "runs")
	if cached != nil {
		s.logger.Debug("run served from cache",
			"run_id", cached.ID,
			"version_id", req.VersionID,
		)
	}
	return hash, cached, nil
}

func (s *Service) runOptions(req Request) llm.Options {
	opts := req.Options
	opts.Model = req.Model
	opts.TenantID = req.TenantID
	opts.VersionID = req.VersionID
	return opts
}

// finish turns the orchestrator result into a run, persists it and
// schedules billing and events.
func (s *Service) finish(ctx context.Context, req Request, hash string, start time.Time, result *routing.Result, runErr error) (*Outcome, error) {
	run := &ports.Run{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		VersionID: req.VersionID,
		InputHash: hash,
		Model:     req.Model,
		Input:     req.Messages,
		Duration:  s.now().Sub(start),
		CreatedAt: s.now().UTC(),
	}
	outcome := &Outcome{Run: run}
	store := true
	ctx = logging.WithRun(ctx, logging.RunFields{RunID: run.ID})

	var failover *routing.FailoverError
	switch {
	case runErr == nil:
		run.Status = ports.RunStatusSucceeded
		run.Provider = result.Provider
		run.Output = result.Output
		run.Usage = result.Usage
		run.Cost = result.Cost
		run.AttemptCount = len(result.Attempts)
		outcome.Attempts = result.Attempts

	case errors.As(runErr, &failover):
		run.Status = ports.RunStatusFailed
		run.Cost = failover.Cost
		run.AttemptCount = len(failover.Attempts)
		outcome.Attempts = failover.Attempts
		if n := len(failover.Attempts); n > 0 {
			run.Usage = failover.Attempts[n-1].Usage
		}
		if last := failover.LastError; last != nil {
			run.Provider = last.Provider
			run.Output = last.PartialOutput
			run.ErrorCode = string(last.Code)
			run.ErrorMessage = last.Message
			store = last.StoreTaskRun
		}

	default:
		span := trace.SpanFromContext(ctx)
		tracing.SetError(span, runErr)
		tracing.SetStatus(span, runErr)
		return nil, runErr
	}

	if store {
		if err := s.persist(ctx, run); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist run",
				"run_id", run.ID,
				"status", run.Status,
				"error", err,
			)
		} else {
			outcome.Persisted = true
		}
	}

	span := trace.SpanFromContext(ctx)
	tracing.SetRunAttributes(span, run.ID, "", "")
	tracing.SetRunStatus(span, string(run.Status))
	tracing.SetErrorCode(span, run.ErrorCode)
	tracing.SetCostAttributes(span, run.Cost, "USD")
	tracing.SetError(span, runErr)
	tracing.SetStatus(span, runErr)

	s.record(run, false)
	s.bill(run)
	if outcome.Persisted {
		s.publish(ctx, run)
	}

	s.logger.InfoContext(ctx, "run finished",
		"run_id", run.ID,
		"model", run.Model,
		"provider", run.Provider,
		"status", run.Status,
		"attempts", run.AttemptCount,
		"cost_usd", run.Cost,
		"persisted", outcome.Persisted,
		"duration", run.Duration,
	)

	if runErr != nil {
		return outcome, runErr
	}
	return outcome, nil
}

func (s *Service) record(run *ports.Run, cached bool) {
	if s.recorder != nil {
		s.recorder.RecordRun(run.Model, string(run.Status), cached, run.Duration)
	}
}

func (s *Service) persist(ctx context.Context, run *ports.Run) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.store.Save(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// bill charges the run's cost, failed attempts included.
func (s *Service) bill(run *ports.Run) {
	if s.ledger == nil || run.Cost <= 0 {
		return
	}
	tenant, amount, id := run.TenantID, run.Cost, run.ID

	err := s.tasks.Go("bill:"+id, func(ctx context.Context) {
		if err := s.ledger.Decrement(ctx, tenant, amount); err != nil {
			s.logger.Error("failed to bill run",
				"run_id", id,
				"tenant_id", tenant,
				"amount_usd", amount,
				"error", err,
			)
		}
	})
	if err != nil {
		s.logger.Error("billing task not scheduled", "run_id", id, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, run *ports.Run) {
	if s.bus == nil {
		return
	}
	event := ports.RunCreatedEvent{
		RunID:     run.ID,
		TenantID:  run.TenantID,
		VersionID: run.VersionID,
		Status:    run.Status,
		Cost:      run.Cost,
		CreatedAt: run.CreatedAt,
		Trace:     map[string]string{},
	}
	tracing.InjectToMap(ctx, event.Trace)

	err := s.tasks.Go("publish:"+run.ID, func(ctx context.Context) {
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish run event",
				"run_id", event.RunID,
				"error", err,
			)
		}
	})
	if err != nil {
		s.logger.Error("event task not scheduled", "run_id", run.ID, "error", err)
	}
}
