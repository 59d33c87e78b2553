package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/processing"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/structured"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// DefaultTimeout bounds a non-streamed attempt, and the silence between
// stream frames, when none is configured.
const DefaultTimeout = 120 * time.Second

// Transport sends one HTTP request to a provider. *providers.HTTPProvider
// implements it; transport failures must already be classified.
type Transport interface {
	Send(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error)
	ReadBody(resp *http.Response) ([]byte, error)
}

// spanStarter is satisfied by both *tracing.Tracer and otel tracers.
type spanStarter interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// Engine runs one completion attempt against one provider. It owns the HTTP
// exchange, stream reconstruction, output extraction and usage finalization;
// the adapter only translates wire formats. An Engine is safe for concurrent
// use: all per-call state lives on the stack of Complete or Stream.
type Engine struct {
	adapter   providers.Adapter
	transport Transport
	processor *processing.Processor
	cache     *structured.SupportCache
	settings  config.EngineConfig
	timeout   time.Duration
	tracer    spanStarter
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProcessor sets the usage processor. Without one, usage is reported
// as the provider sent it and never priced.
func WithProcessor(p *processing.Processor) Option {
	return func(e *Engine) { e.processor = p }
}

// WithSupportCache shares a schema-support cache between engines.
func WithSupportCache(c *structured.SupportCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithSettings applies engine configuration.
func WithSettings(cfg config.EngineConfig) Option {
	return func(e *Engine) { e.settings = cfg }
}

// WithTimeout bounds non-streamed attempts and the wait for each stream frame.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTracer records engine spans on t.
func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine for adapter over transport.
func NewEngine(adapter providers.Adapter, transport Transport, opts ...Option) *Engine {
	e := &Engine{
		adapter:   adapter,
		transport: transport,
		timeout:   DefaultTimeout,
		tracer:    otel.Tracer("mercator-hq/relay/completion"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = structured.NewSupportCache()
	}
	e.logger = e.logger.With("component", "completion", "provider", adapter.Name())
	return e
}

// Provider returns the adapter's provider name.
func (e *Engine) Provider() string {
	return e.adapter.Name()
}

// Healthy reports the transport's circuit state. Transports that do not
// track health are always healthy.
func (e *Engine) Healthy() bool {
	if h, ok := e.transport.(interface{ IsHealthy() bool }); ok {
		return h.IsHealthy()
	}
	return true
}

// Complete runs a non-streamed completion. raw is owned by the caller and
// always receives the raw text and the finalized usage, even on error.
func (e *Engine) Complete(ctx context.Context, messages []llm.Message, opts *llm.Options, raw *llm.RawCompletion) (*llm.StructuredOutput, error) {
	if opts == nil {
		return nil, providers.NewInvalidRunOptions("options are required")
	}
	if raw == nil {
		raw = &llm.RawCompletion{}
	}

	ctx, span := e.tracer.Start(ctx, "completion.complete", trace.WithAttributes(
		attribute.String("llm.provider", e.adapter.Name()),
		attribute.String("llm.model", opts.Model),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	call, err := e.newCall(messages, opts)
	if err != nil {
		return nil, e.fail(span, call, err)
	}
	defer e.finalize(messages, opts, raw)

	out, err := e.complete(ctx, call, raw)
	if err != nil {
		return nil, e.fail(span, call, err)
	}
	tracing.SetStatus(span, nil)
	return out, nil
}

func (e *Engine) complete(ctx context.Context, call *call, raw *llm.RawCompletion) (*llm.StructuredOutput, error) {
	resp, err := e.send(ctx, call, false)
	if err != nil {
		return nil, err
	}
	body, err := e.transport.ReadBody(resp)
	// The raw body stands in for the response until content is extracted.
	raw.Response = string(body)
	if err != nil {
		return nil, err
	}

	decoded, err := e.adapter.DecodeResponse(body)
	if err != nil {
		return nil, err
	}
	// Usage is recorded even when extraction below fails.
	defer func() {
		raw.Usage.Merge(decoded.Usage())
		if reason := decoded.FinishReason(); reason != "" {
			raw.FinishReason = reason
		}
	}()

	toolCalls, err := decoded.ToolCalls()
	if err != nil {
		return nil, err
	}
	content, err := decoded.Content()
	if err != nil {
		return nil, err
	}

	reasoning := decoded.ReasoningSteps()
	if call.tags {
		tracker := newThinkingTracker(e.settings)
		text, inline := tracker.Feed(content)
		restText, restInline := tracker.Flush()
		content = text + restText
		if inline += restInline; inline != "" {
			reasoning = append(reasoning, llm.ReasoningStep{Explanation: inline})
		}
	}
	raw.Response = content

	return e.buildFinal(call, content, reasoning, toolCalls, len(toolCalls) > 0, decoded.FinishReason())
}

// send builds and posts the wire request. A non-2xx status is classified by
// the generic status table, then refined by the adapter.
func (e *Engine) send(ctx context.Context, call *call, stream bool) (*http.Response, error) {
	request, err := e.adapter.BuildRequest(call.messages, call.opts, stream)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	endpoint, err := e.adapter.RequestURL(call.opts.Model, stream)
	if err != nil {
		return nil, err
	}
	headers, err := e.adapter.RequestHeaders(request, endpoint, call.opts.Model)
	if err != nil {
		return nil, err
	}

	resp, err := e.transport.Send(ctx, http.MethodPost, endpoint, body, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	data, _ := e.transport.ReadBody(resp)
	if refined := e.adapter.ClassifyError(resp.StatusCode, resp.Header, data); refined != nil {
		return nil, refined
	}
	return nil, providers.ErrorFromStatus(e.adapter.Name(), resp.StatusCode, resp.Header, data)
}

// call is the per-attempt view of a request.
type call struct {
	messages []llm.Message
	opts     *llm.Options
	cacheKey string
	tags     bool
	full     *structured.Validator
	partial  *structured.Validator
}

// newCall resolves native structured generation through the support cache and
// compiles the output validators.
func (e *Engine) newCall(messages []llm.Message, opts *llm.Options) (*call, error) {
	c := &call{messages: messages, opts: opts}

	if opts.OutputSchema != nil {
		full, err := structured.NewValidator(opts.OutputSchema)
		if err != nil {
			return c, providers.NewInvalidRunOptions("invalid output schema: %v", err)
		}
		partial, err := structured.NewValidator(structured.OptionalSchema(opts.OutputSchema))
		if err != nil {
			return c, providers.NewInvalidRunOptions("invalid output schema: %v", err)
		}
		c.full, c.partial = full, partial
	}

	if opts.StructuredGeneration {
		c.cacheKey = structured.CacheKey(opts.TaskName, opts.Model, opts.OutputSchema)
		supported := e.cache.Supported(c.cacheKey, func() bool {
			return e.adapter.SupportsStructuredGeneration(opts)
		})
		if !supported {
			stripped := opts.WithoutStructuredGeneration()
			c.opts = &stripped
		}
	}

	if tagger, ok := e.adapter.(providers.ThinkingTagger); ok {
		c.tags = tagger.UsesThinkingTags(opts.Model)
	}
	return c, nil
}

// fail records the error on the span and, when the vendor rejected a
// constrained schema, remembers that so the retry goes unconstrained.
func (e *Engine) fail(span trace.Span, c *call, err error) error {
	if c != nil && c.cacheKey != "" && errors.Is(err, providers.ErrStructuredGeneration) {
		e.cache.MarkUnsupported(c.cacheKey)
		e.logger.Info("structured generation rejected, disabling for schema",
			"model", c.opts.Model,
			"task", c.opts.TaskName,
		)
	}

	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		span.SetAttributes(attribute.String("error.code", string(pe.Code)))
	}
	tracing.SetError(span, err)
	tracing.SetStatus(span, err)
	return err
}

// finalize estimates missing usage and prices it. It runs after every
// attempt, successful or not.
func (e *Engine) finalize(messages []llm.Message, opts *llm.Options, raw *llm.RawCompletion) {
	if e.processor == nil {
		return
	}
	e.processor.SeedUsage(messages, &raw.Usage)
	if err := e.processor.FinalizeUsage(e.adapter.Name(), opts.Model, messages, opts.EnabledTools, raw); err != nil {
		e.logger.Warn("failed to finalize usage", "model", opts.Model, "error", err)
	}
}
