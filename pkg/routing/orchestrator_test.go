package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/relay/pkg/completion"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/processing"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/providers/openai"
)

// step scripts one call of a scriptedEngine: partials outputs, then err or
// a final output.
type step struct {
	partials int
	err      error
}

type scriptedEngine struct {
	name    string
	steps   []step
	cost    float64
	calls   int
	healthy bool
}

func newScripted(name string, steps ...step) *scriptedEngine {
	return &scriptedEngine{name: name, steps: steps, healthy: true}
}

func (e *scriptedEngine) next() step {
	var s step
	if e.calls < len(e.steps) {
		s = e.steps[e.calls]
	}
	e.calls++
	return s
}

func (e *scriptedEngine) Provider() string { return e.name }

func (e *scriptedEngine) Healthy() bool { return e.healthy }

func (e *scriptedEngine) Complete(ctx context.Context, messages []llm.Message, opts *llm.Options, raw *llm.RawCompletion) (*llm.StructuredOutput, error) {
	s := e.next()
	raw.Usage.PromptCostUSD = llm.Float64Ptr(e.cost)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.StructuredOutput{Output: e.name, Final: true}, nil
}

func (e *scriptedEngine) Stream(ctx context.Context, messages []llm.Message, opts *llm.Options, raw *llm.RawCompletion) iter.Seq2[*llm.StructuredOutput, error] {
	return func(yield func(*llm.StructuredOutput, error) bool) {
		s := e.next()
		raw.Usage.PromptCostUSD = llm.Float64Ptr(e.cost)
		for i := range s.partials {
			if !yield(&llm.StructuredOutput{Output: fmt.Sprintf("%s-%d", e.name, i)}, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
			return
		}
		yield(&llm.StructuredOutput{Output: e.name, Final: true}, nil)
	}
}

func fail(code providers.ErrorCode) step {
	return step{err: providers.NewProviderError(code, "test", string(code))}
}

func failAfter(code providers.ErrorCode, retryAfter time.Duration) step {
	pe := providers.NewProviderError(code, "test", string(code))
	pe.RetryAfter = providers.RetryAfter{Delay: retryAfter}
	return step{err: pe}
}

func testConfig(maxAttempts map[string]int) *config.Config {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{},
		Routing: config.RoutingConfig{
			ModelMapping: map[string][]string{"m": {"p1", "p2"}},
		},
	}
	for _, name := range []string{"p1", "p2"} {
		cfg.Providers[name] = config.ProviderConfig{Type: config.TypeOpenAI, MaxAttemptCount: maxAttempts[name]}
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// newTestOrchestrator wires engines and records the delays it would sleep.
func newTestOrchestrator(t *testing.T, cfg *config.Config, engines ...Engine) (*Orchestrator, *[]time.Duration) {
	t.Helper()
	byName := make(map[string]Engine, len(engines))
	for _, e := range engines {
		byName[e.Provider()] = e
	}
	o, err := NewOrchestrator(cfg, byName)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	var delays []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return o, &delays
}

func TestRunRetryAndFailover(t *testing.T) {
	tests := []struct {
		name         string
		steps        []step
		maxAttempts  int
		wantProvider string
		wantCode     providers.ErrorCode
		wantP1Calls  int
		wantP2Calls  int
		wantDelays   []time.Duration
	}{
		{
			name:         "rate limit retries the same provider",
			steps:        []step{failAfter(providers.CodeRateLimit, 10*time.Second), failAfter(providers.CodeRateLimit, 10*time.Second)},
			wantProvider: "p1",
			wantP1Calls:  3,
			wantDelays:   []time.Duration{10 * time.Second, 10 * time.Second},
		},
		{
			name:         "internal error fails over without retry",
			steps:        []step{fail(providers.CodeProviderInternal)},
			wantProvider: "p2",
			wantP1Calls:  1,
			wantP2Calls:  1,
		},
		{
			name: "unavailable is capped below max attempts",
			steps: []step{
				fail(providers.CodeProviderUnavailable), fail(providers.CodeProviderUnavailable),
				fail(providers.CodeProviderUnavailable), fail(providers.CodeProviderUnavailable),
				fail(providers.CodeProviderUnavailable),
			},
			maxAttempts:  5,
			wantProvider: "p2",
			wantP1Calls:  3,
			wantP2Calls:  1,
		},
		{
			name:         "retry-after beyond the limit fails over",
			steps:        []step{failAfter(providers.CodeRateLimit, time.Minute)},
			wantProvider: "p2",
			wantP1Calls:  1,
			wantP2Calls:  1,
			wantDelays:   []time.Duration{},
		},
		{
			name:         "single attempt budget",
			steps:        []step{fail(providers.CodeProviderTimeout)},
			maxAttempts:  1,
			wantProvider: "p2",
			wantP1Calls:  1,
			wantP2Calls:  1,
		},
		{
			name:        "failed generation exhausts and stays on provider",
			steps:       []step{fail(providers.CodeFailedGeneration), fail(providers.CodeFailedGeneration), fail(providers.CodeFailedGeneration)},
			wantCode:    providers.CodeFailedGeneration,
			wantP1Calls: 3,
		},
		{
			name:        "bad request is final",
			steps:       []step{fail(providers.CodeBadRequest)},
			wantCode:    providers.CodeBadRequest,
			wantP1Calls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := newScripted("p1", tt.steps...)
			p2 := newScripted("p2")
			o, delays := newTestOrchestrator(t, testConfig(map[string]int{"p1": tt.maxAttempts}), p1, p2)

			result, err := o.Run(context.Background(), "m", nil, &llm.Options{})

			if tt.wantCode != "" {
				var fe *FailoverError
				if !errors.As(err, &fe) {
					t.Fatalf("expected FailoverError, got %v", err)
				}
				if fe.LastError.Code != tt.wantCode {
					t.Errorf("final code = %s, want %s", fe.LastError.Code, tt.wantCode)
				}
				if !errors.Is(err, ErrAllProvidersFailed) {
					t.Error("expected errors.Is(ErrAllProvidersFailed)")
				}
			} else {
				if err != nil {
					t.Fatalf("Run failed: %v", err)
				}
				if result.Provider != tt.wantProvider {
					t.Errorf("provider = %s, want %s", result.Provider, tt.wantProvider)
				}
				if result.Output.Output != tt.wantProvider {
					t.Errorf("output = %v, want %s", result.Output.Output, tt.wantProvider)
				}
				if len(result.Attempts) != tt.wantP1Calls+tt.wantP2Calls {
					t.Errorf("recorded %d attempts, want %d", len(result.Attempts), tt.wantP1Calls+tt.wantP2Calls)
				}
			}

			if p1.calls != tt.wantP1Calls {
				t.Errorf("p1 calls = %d, want %d", p1.calls, tt.wantP1Calls)
			}
			if p2.calls != tt.wantP2Calls {
				t.Errorf("p2 calls = %d, want %d", p2.calls, tt.wantP2Calls)
			}
			if tt.wantDelays != nil && !slices.Equal(*delays, tt.wantDelays) {
				t.Errorf("delays = %v, want %v", *delays, tt.wantDelays)
			}
		})
	}
}

func TestRunAggregatesFailedAttemptCost(t *testing.T) {
	p1 := newScripted("p1", fail(providers.CodeProviderInternal))
	p1.cost = 0.5
	p2 := newScripted("p2")
	p2.cost = 0.25
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)

	result, err := o.Run(context.Background(), "m", nil, &llm.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Cost != 0.75 {
		t.Errorf("total cost = %v, want 0.75", result.Cost)
	}
	if result.Usage.TotalCost() != 0.25 {
		t.Errorf("successful attempt cost = %v, want 0.25", result.Usage.TotalCost())
	}
	if result.Attempts[0].ErrorCode != providers.CodeProviderInternal || result.Attempts[1].ErrorCode != "" {
		t.Errorf("unexpected attempt codes %+v", result.Attempts)
	}
}

func TestRunSurfacesRetryAfter(t *testing.T) {
	rateLimited := func(name string) *scriptedEngine {
		return newScripted(name,
			failAfter(providers.CodeRateLimit, 10*time.Second),
			failAfter(providers.CodeRateLimit, 10*time.Second),
			failAfter(providers.CodeRateLimit, 10*time.Second),
		)
	}
	o, _ := newTestOrchestrator(t, testConfig(nil), rateLimited("p1"), rateLimited("p2"))

	_, err := o.Run(context.Background(), "m", nil, &llm.Options{})
	var fe *FailoverError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FailoverError, got %v", err)
	}
	if got := fe.RetryAfterHeader(); got != "10" {
		t.Errorf("RetryAfterHeader() = %q, want \"10\"", got)
	}
	if fe.StatusCode() != http.StatusTooManyRequests {
		t.Errorf("StatusCode() = %d, want 429", fe.StatusCode())
	}
	if !slices.Equal(fe.AttemptedProviders, []string{"p1", "p2"}) {
		t.Errorf("AttemptedProviders = %v", fe.AttemptedProviders)
	}
	if len(fe.Attempts) != 6 {
		t.Errorf("expected 6 attempts, got %d", len(fe.Attempts))
	}
	if !errors.Is(err, providers.ErrRateLimit) {
		t.Error("expected the rate limit code to survive wrapping")
	}
}

func TestRunUnknownModel(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(nil), newScripted("p1"), newScripted("p2"))

	_, err := o.Run(context.Background(), "nope", nil, &llm.Options{})
	var appErr *providers.ApplicationError
	if !errors.As(err, &appErr) || appErr.Code != providers.CodeObjectNotFound {
		t.Fatalf("expected object_not_found, got %v", err)
	}
}

func TestRunApplicationErrorIsNotFailedOver(t *testing.T) {
	p1 := newScripted("p1", step{err: providers.NewInvalidRunOptions("bad schema")})
	p2 := newScripted("p2")
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)

	_, err := o.Run(context.Background(), "m", nil, &llm.Options{})
	var appErr *providers.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ApplicationError, got %v", err)
	}
	if p2.calls != 0 {
		t.Error("application error must not fail over")
	}
}

func TestRunCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p1 := newScripted("p1", failAfter(providers.CodeRateLimit, time.Second))
	p2 := newScripted("p2")
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := o.Run(ctx, "m", nil, &llm.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p2.calls != 0 {
		t.Error("cancelled run must not fail over")
	}
}

func TestRunPrefersHealthyProvider(t *testing.T) {
	p1 := newScripted("p1")
	p1.healthy = false
	p2 := newScripted("p2")
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)

	if got := o.Candidates("m"); !slices.Equal(got, []string{"p2", "p1"}) {
		t.Fatalf("Candidates() = %v", got)
	}
	result, err := o.Run(context.Background(), "m", nil, &llm.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Provider != "p2" || p1.calls != 0 {
		t.Errorf("expected healthy p2 first, got %s (p1 calls %d)", result.Provider, p1.calls)
	}
}

func TestStreamFailsOverBeforeFirstOutput(t *testing.T) {
	p1 := newScripted("p1", fail(providers.CodeServerOverloaded))
	p2 := newScripted("p2", step{partials: 2})
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)

	var res Result
	var outputs []any
	for out, err := range o.Stream(context.Background(), "m", nil, &llm.Options{}, &res) {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		outputs = append(outputs, out.Output)
	}

	want := []any{"p2-0", "p2-1", "p2"}
	if !slices.Equal(outputs, want) {
		t.Errorf("outputs = %v, want %v", outputs, want)
	}
	if res.Provider != "p2" || len(res.Attempts) != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestStreamErrorAfterOutputIsFinal(t *testing.T) {
	p1 := newScripted("p1", step{partials: 1, err: providers.NewProviderError(providers.CodeProviderInternal, "p1", "reset")})
	p2 := newScripted("p2")
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)

	var yielded int
	var streamErr error
	for _, err := range o.Stream(context.Background(), "m", nil, &llm.Options{}, nil) {
		if err != nil {
			streamErr = err
			break
		}
		yielded++
	}

	if yielded != 1 {
		t.Errorf("expected one partial, got %d", yielded)
	}
	if !errors.Is(streamErr, providers.ErrProviderInternal) {
		t.Fatalf("expected the provider error, got %v", streamErr)
	}
	if p2.calls != 0 {
		t.Error("must not fail over after output reached the consumer")
	}
}

func TestStreamConsumerBreak(t *testing.T) {
	p1 := newScripted("p1", step{partials: 3})
	p2 := newScripted("p2")
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)

	for range o.Stream(context.Background(), "m", nil, &llm.Options{}, nil) {
		break
	}
	if p1.calls != 1 || p2.calls != 0 {
		t.Errorf("unexpected calls p1=%d p2=%d", p1.calls, p2.calls)
	}
	if stats := o.Stats(); stats.Failures != 0 {
		t.Errorf("consumer break counted as failure: %+v", stats)
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	if _, err := NewOrchestrator(testConfig(nil), nil); !errors.Is(err, ErrNoProvidersConfigured) {
		t.Errorf("expected ErrNoProvidersConfigured, got %v", err)
	}

	_, err := NewOrchestrator(testConfig(nil), map[string]Engine{"p1": newScripted("p1")})
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	var nf *ProviderNotFoundError
	if !errors.As(err, &nf) || nf.ProviderName != "p2" || nf.Model != "m" {
		t.Errorf("unexpected error %+v", err)
	}
}

type countingRecorder struct {
	attempts  map[string]int
	failovers int
	health    map[string]bool
}

func (r *countingRecorder) RecordAttempt(provider, model, outcome string, duration time.Duration) {
	r.attempts[provider+"/"+outcome]++
}

func (r *countingRecorder) RecordFailover(model, from, to string) { r.failovers++ }

func (r *countingRecorder) RecordUsage(provider, model string, usage *llm.LLMUsage) {}

func (r *countingRecorder) UpdateHealth(provider string, healthy bool) { r.health[provider] = healthy }

func TestRunRecordsMetricsAndStats(t *testing.T) {
	rec := &countingRecorder{attempts: map[string]int{}, health: map[string]bool{}}
	p1 := newScripted("p1", fail(providers.CodeProviderInternal))
	p2 := newScripted("p2")
	o, _ := newTestOrchestrator(t, testConfig(nil), p1, p2)
	o.recorder = rec

	if _, err := o.Run(context.Background(), "m", nil, &llm.Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if rec.attempts["p1/provider_internal_error"] != 1 || rec.attempts["p2/success"] != 1 {
		t.Errorf("unexpected attempts %v", rec.attempts)
	}
	if rec.failovers != 1 {
		t.Errorf("failovers = %d, want 1", rec.failovers)
	}
	if !rec.health["p2"] {
		t.Error("expected p2 health to be reported")
	}

	stats := o.Stats()
	if stats.TotalRuns != 1 || stats.Failovers != 1 || stats.Failures != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.ErrorsPerCode["provider_internal_error"] != 1 {
		t.Errorf("unexpected error counts %v", stats.ErrorsPerCode)
	}
}

// TestRunFailoverOverHTTP drives real engines: the first provider always
// answers 500 and the caller only ever sees the second provider's result.
func TestRunFailoverOverHTTP(t *testing.T) {
	var p1Hits atomic.Int32
	p1Server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p1Hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
	}))
	t.Cleanup(p1Server.Close)

	p2Server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"greeting\": \"hi\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1000,"completion_tokens":500,"total_tokens":1500}}`)
	}))
	t.Cleanup(p2Server.Close)

	processor := processing.NewProcessor(&config.ProcessingConfig{
		Tokens: config.TokensConfig{Estimator: "simple"},
		Costs: config.CostsConfig{Pricing: map[string]map[string]config.ModelPricingConfig{
			"p1": {"gpt-4o": {Prompt: 1.0, Completion: 2.0}},
			"p2": {"gpt-4o": {Prompt: 1.0, Completion: 2.0}},
		}},
	})
	newEngine := func(name, url string) Engine {
		cfg := providers.ProviderConfig{Name: name, Type: providers.TypeOpenAI, BaseURL: url, APIKey: "sk-test"}
		adapter, err := openai.NewAdapter(cfg)
		if err != nil {
			t.Fatalf("failed to create adapter: %v", err)
		}
		return completion.NewEngine(adapter, providers.NewHTTPProvider(cfg), completion.WithProcessor(processor))
	}

	cfg := testConfig(nil)
	cfg.Routing.ModelMapping = map[string][]string{"gpt-4o": {"p1", "p2"}}
	o, _ := newTestOrchestrator(t, cfg, newEngine("p1", p1Server.URL), newEngine("p2", p2Server.URL))

	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"greeting": map[string]any{"type": "string"}},
	}
	result, err := o.Run(context.Background(), "gpt-4o",
		[]llm.Message{{Role: llm.RoleUser, Content: "say hi"}},
		&llm.Options{OutputSchema: schema})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Provider != "p2" {
		t.Errorf("provider = %s, want p2", result.Provider)
	}
	if out, ok := result.Output.Output.(map[string]any); !ok || out["greeting"] != "hi" {
		t.Errorf("unexpected output %#v", result.Output.Output)
	}
	if p1Hits.Load() != 1 {
		t.Errorf("p1 hit %d times, want 1", p1Hits.Load())
	}
	if len(result.Attempts) != 2 || result.Attempts[0].ErrorCode != providers.CodeProviderInternal {
		t.Errorf("unexpected attempts %+v", result.Attempts)
	}
	if result.Cost <= result.Usage.TotalCost() {
		t.Errorf("expected failed attempt cost in total: total %v, success %v", result.Cost, result.Usage.TotalCost())
	}
}
