package routing

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// errConsumerStopped ends a streamed run when the consumer breaks out.
var errConsumerStopped = errors.New("stream consumer stopped")

type spanStarter interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// Orchestrator runs a completion across the candidate providers of a model.
// Attempts are sequential: a retryable error repeats the same provider up to
// its max_attempt_count, then the run fails over to the next candidate when
// the error allows it. Given the same failure sequence, the attempts made
// are always the same.
type Orchestrator struct {
	engines   map[string]Engine
	selector  *ProviderSelector
	providers map[string]config.ProviderConfig
	routing   config.RoutingConfig
	stats     *AtomicRoutingStats
	recorder  Recorder
	tracer    spanStarter
	logger    *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder reports attempts to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTracer records orchestrator spans on t.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an orchestrator over engines, keyed by provider
// name. Every provider named in the model mapping must have an engine.
func NewOrchestrator(cfg *config.Config, engines map[string]Engine, opts ...Option) (*Orchestrator, error) {
	if len(engines) == 0 {
		return nil, ErrNoProvidersConfigured
	}

	names := lo.Keys(engines)
	slices.Sort(names)
	for model, mapped := range cfg.Routing.ModelMapping {
		for _, name := range mapped {
			if _, ok := engines[name]; !ok {
				return nil, &ProviderNotFoundError{ProviderName: name, Model: model, AvailableProviders: names}
			}
		}
	}

	patterns := make(map[string][]string, len(engines))
	for _, name := range names {
		patterns[name] = cfg.Providers[name].Models
	}

	o := &Orchestrator{
		engines:   engines,
		selector:  NewProviderSelector(patterns, cfg.Routing.ModelMapping),
		providers: cfg.Providers,
		routing:   cfg.Routing,
		stats:     NewAtomicRoutingStats(),
		tracer:    otel.Tracer("mercator-hq/relay/routing"),
		logger:    slog.Default(),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "routing")
	return o, nil
}

// Candidates returns the providers that would be tried for model, in order.
func (o *Orchestrator) Candidates(model string) []string {
	return OrderByHealth(o.selector.Candidates(model), o.healthy)
}

// Selector exposes the candidate table.
func (o *Orchestrator) Selector() *ProviderSelector {
	return o.selector
}

// Stats returns a snapshot of the orchestrator counters.
func (o *Orchestrator) Stats() *RoutingStats {
	return o.stats.Snapshot()
}

// Run executes a non-streamed completion for model. On failure the error is
// an *ApplicationError for bad requests, the context error on cancellation,
// and a *FailoverError otherwise.
func (o *Orchestrator) Run(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*Result, error) {
	return o.execute(ctx, "routing.run", model, opts, func(ctx context.Context, engine Engine, opts *llm.Options, raw *llm.RawCompletion) (*llm.StructuredOutput, bool, error) {
		out, err := engine.Complete(ctx, messages, opts, raw)
		return out, false, err
	})
}

// Stream executes a streamed completion for model. Failover happens only
// before the first output has reached the consumer; after that any error
// is final. When the stream completes, res (if non-nil) receives the
// result. Errors are those of Run.
func (o *Orchestrator) Stream(ctx context.Context, model string, messages []llm.Message, opts *llm.Options, res *Result) iter.Seq2[*llm.StructuredOutput, error] {
	return func(yield func(*llm.StructuredOutput, error) bool) {
		result, err := o.execute(ctx, "routing.stream", model, opts, func(ctx context.Context, engine Engine, opts *llm.Options, raw *llm.RawCompletion) (*llm.StructuredOutput, bool, error) {
			var final *llm.StructuredOutput
			delivered := false
			for out, err := range engine.Stream(ctx, messages, opts, raw) {
				if err != nil {
					return nil, delivered, err
				}
				delivered = true
				if !yield(out, nil) {
					return nil, true, errConsumerStopped
				}
				if out.Final {
					final = out
				}
			}
			if final == nil {
				return nil, delivered, providers.NewProviderError(providers.CodeProviderInternal, engine.Provider(),
					"stream ended without a final output")
			}
			return final, delivered, nil
		})
		if errors.Is(err, errConsumerStopped) {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		if res != nil {
			*res = *result
		}
	}
}

// attemptFunc runs one attempt. delivered reports whether any output
// reached the caller, which makes every error final.
type attemptFunc func(ctx context.Context, engine Engine, opts *llm.Options, raw *llm.RawCompletion) (out *llm.StructuredOutput, delivered bool, err error)

// run is the state of one orchestrated run.
type run struct {
	model    string
	attempts []Attempt
}

func (r *run) cost() float64 {
	return lo.SumBy(r.attempts, func(a Attempt) float64 { return a.Cost() })
}

func (r *run) attemptedProviders() []string {
	return lo.Uniq(lo.Map(r.attempts, func(a Attempt, _ int) string { return a.Provider }))
}

func (o *Orchestrator) execute(ctx context.Context, spanName, model string, opts *llm.Options, fn attemptFunc) (*Result, error) {
	if opts == nil {
		return nil, providers.NewInvalidRunOptions("options are required")
	}
	candidates := o.Candidates(model)
	if len(candidates) == 0 {
		return nil, providers.NewObjectNotFound("no provider serves model %q", model)
	}
	o.stats.IncrementRuns()

	ctx, span := o.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.StringSlice("routing.candidates", candidates),
	))
	defer span.End()

	attemptOpts := *opts
	attemptOpts.Model = model
	r := &run{model: model}

	var last *providers.ProviderError
	for i, name := range candidates {
		if i > 0 {
			o.stats.IncrementFailover()
			if o.recorder != nil {
				o.recorder.RecordFailover(model, candidates[i-1], name)
			}
			o.logger.Info("failing over to next provider",
				"model", model,
				"from", candidates[i-1],
				"to", name,
				"code", last.Code,
			)
		}

		out, raw, delivered, err := o.tryProvider(ctx, name, &attemptOpts, r, fn)
		if err == nil {
			result := &Result{
				Output:   out,
				Provider: name,
				Attempts: r.attempts,
				Raw:      raw,
				Usage:    raw.Usage,
				Cost:     r.cost(),
			}
			span.SetAttributes(attribute.String("llm.provider", name), attribute.Int("routing.attempts", len(r.attempts)))
			tracing.SetCostAttributes(span, result.Cost, "USD")
			tracing.SetStatus(span, nil)
			return result, nil
		}

		var pe *providers.ProviderError
		if errors.Is(err, errConsumerStopped) || !errors.As(err, &pe) {
			// Application errors and cancellation are never failed over.
			if !errors.Is(err, errConsumerStopped) {
				o.stats.IncrementFailure()
				tracing.SetError(span, err)
				tracing.SetStatus(span, err)
			}
			return nil, err
		}
		last = pe
		if delivered || !pe.ShouldTryNextProvider {
			break
		}
	}

	o.stats.IncrementFailure()
	final := &FailoverError{
		Model:              model,
		AttemptedProviders: r.attemptedProviders(),
		Attempts:           r.attempts,
		LastError:          last,
		Cost:               r.cost(),
	}
	o.logger.Warn("run failed",
		"model", model,
		"attempted", final.AttemptedProviders,
		"code", last.Code,
		"status", last.StatusCode,
	)
	span.SetAttributes(attribute.Int("routing.attempts", len(r.attempts)))
	tracing.SetError(span, final)
	tracing.SetStatus(span, final)
	return nil, final
}

// tryProvider runs attempts against one provider until one succeeds, the
// error is not retryable, or the attempt budget is spent.
func (o *Orchestrator) tryProvider(ctx context.Context, name string, opts *llm.Options, r *run, fn attemptFunc) (*llm.StructuredOutput, llm.RawCompletion, bool, error) {
	engine := o.engines[name]
	maxAttempts := max(o.providers[name].MaxAttemptCount, 1)
	policy := o.newBackOff(maxAttempts)

	for number := 1; ; number++ {
		var raw llm.RawCompletion
		out, delivered, err := o.attempt(ctx, engine, opts, &raw, r, number, fn)
		if err == nil || delivered {
			return out, raw, delivered, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, raw, false, ctxErr
		}

		var pe *providers.ProviderError
		if !errors.As(err, &pe) || !pe.Retry {
			return nil, raw, false, err
		}
		if pe.Code == providers.CodeProviderUnavailable && o.routing.UnavailableMaxAttempts > 0 && number >= o.routing.UnavailableMaxAttempts {
			return nil, raw, false, err
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return nil, raw, false, err
		}
		if !pe.RetryAfter.IsZero() {
			wait := pe.RetryAfter.Wait(o.now())
			if o.routing.MaxRetryAfter > 0 && wait > o.routing.MaxRetryAfter {
				o.logger.Info("retry-after exceeds limit, not retrying provider",
					"provider", name,
					"retry_after", pe.RetryAfter.String(),
					"limit", o.routing.MaxRetryAfter,
				)
				return nil, raw, false, err
			}
			delay = wait
		}

		o.stats.IncrementRetry()
		o.logger.Info("retrying provider",
			"provider", name,
			"model", opts.Model,
			"attempt", number+1,
			"delay", delay,
			"code", pe.Code,
		)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, raw, false, err
		}
	}
}

// attempt runs fn once under its own span and records the outcome.
func (o *Orchestrator) attempt(ctx context.Context, engine Engine, opts *llm.Options, raw *llm.RawCompletion, r *run, number int, fn attemptFunc) (*llm.StructuredOutput, bool, error) {
	name := engine.Provider()
	ctx, span := o.tracer.Start(ctx, "routing.attempt")
	defer span.End()
	tracing.SetProviderAttributes(span, name, opts.Model)
	tracing.SetRetryAttribute(span, number-1)

	start := o.now()
	out, delivered, err := fn(ctx, engine, opts, raw)
	duration := o.now().Sub(start)

	result := err
	a := Attempt{Provider: name, Number: number, Duration: duration, Usage: raw.Usage, Err: err}
	outcome := "success"
	switch {
	case errors.Is(err, errConsumerStopped):
		outcome = "stopped"
		a.Err, err = nil, nil
	case err != nil:
		outcome = "error"
		var pe *providers.ProviderError
		if errors.As(err, &pe) {
			a.ErrorCode = pe.Code
			outcome = string(pe.Code)
			tracing.SetErrorCode(span, outcome)
		}
		o.stats.IncrementError(outcome)
		o.logger.Warn("provider attempt failed",
			"provider", name,
			"model", opts.Model,
			"attempt", number,
			"code", outcome,
			"error", err,
		)
	}
	r.attempts = append(r.attempts, a)
	o.stats.IncrementAttempt(name)

	if o.recorder != nil {
		o.recorder.RecordAttempt(name, opts.Model, outcome, duration)
		o.recorder.RecordUsage(name, opts.Model, &raw.Usage)
		if h, ok := engine.(healthReporter); ok {
			o.recorder.UpdateHealth(name, h.Healthy())
		}
	}

	tracing.SetCostWithTokens(span, llm.Value(raw.Usage.PromptTokens), llm.Value(raw.Usage.CompletionTokens), raw.Usage.TotalCost())
	tracing.SetError(span, err)
	tracing.SetStatus(span, err)
	return out, delivered, result
}

func (o *Orchestrator) newBackOff(maxAttempts int) backoff.BackOff {
	cfg := o.routing.Backoff
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialInterval),
		backoff.WithMaxInterval(cfg.MaxInterval),
		backoff.WithMultiplier(cfg.Multiplier),
		backoff.WithRandomizationFactor(cfg.RandomizationFactor),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithMaxRetries(eb, uint64(maxAttempts-1))
}

func (o *Orchestrator) healthy(name string) bool {
	if h, ok := o.engines[name].(healthReporter); ok {
		return h.Healthy()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
