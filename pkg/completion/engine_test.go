package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/processing"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/providers/openai"
	"mercator-hq/relay/pkg/structured"
)

var greetingSchema = map[string]any{
	"type":     "object",
	"required": []any{"greeting"},
	"properties": map[string]any{
		"greeting": map[string]any{"type": "string"},
	},
}

func testProcessor() *processing.Processor {
	return processing.NewProcessor(&config.ProcessingConfig{
		Tokens: config.TokensConfig{Estimator: "simple"},
		Costs: config.CostsConfig{Pricing: map[string]map[string]config.ModelPricingConfig{
			"openai": {"gpt-4o": {Prompt: 1.0, Completion: 2.0}},
		}},
	})
}

func newTestEngine(t *testing.T, providerType string, handler http.HandlerFunc, opts ...Option) *Engine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := providers.ProviderConfig{
		Name:    "openai",
		Type:    providerType,
		BaseURL: server.URL,
		APIKey:  "sk-test",
	}
	adapter, err := openai.NewAdapter(cfg)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	opts = append([]Option{WithProcessor(testProcessor())}, opts...)
	return NewEngine(adapter, providers.NewHTTPProvider(cfg), opts...)
}

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 1000, "completion_tokens": 500, "total_tokens": 1500},
	})
	return string(body)
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func userMessage(text string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: text}}
}

func TestCompleteGreeting(t *testing.T) {
	engine := newTestEngine(t, providers.TypeOpenAI, jsonHandler(http.StatusOK, chatResponse(`{"greeting": "hi"}`)))

	var raw llm.RawCompletion
	out, err := engine.Complete(context.Background(), userMessage("say hi"), &llm.Options{Model: "gpt-4o", OutputSchema: greetingSchema}, &raw)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	output, ok := out.Output.(map[string]any)
	if !ok || output["greeting"] != "hi" {
		t.Errorf("expected greeting output, got %#v", out.Output)
	}
	if len(out.ToolCalls) != 0 || len(out.ReasoningSteps) != 0 {
		t.Errorf("expected no tool calls or reasoning, got %+v", out)
	}
	if !out.Final {
		t.Error("expected final output")
	}
	if raw.Response != `{"greeting": "hi"}` {
		t.Errorf("unexpected raw response %q", raw.Response)
	}
	if raw.Usage.PromptCostUSD == nil || *raw.Usage.PromptCostUSD != 1.0 {
		t.Errorf("expected prompt cost 1.0, got %v", raw.Usage.PromptCostUSD)
	}
	if raw.Usage.CompletionCostUSD == nil || *raw.Usage.CompletionCostUSD != 1.0 {
		t.Errorf("expected completion cost 1.0, got %v", raw.Usage.CompletionCostUSD)
	}
}

func TestCompleteWithoutSchemaReturnsText(t *testing.T) {
	engine := newTestEngine(t, providers.TypeOpenAI, jsonHandler(http.StatusOK, chatResponse("plain answer")))

	out, err := engine.Complete(context.Background(), userMessage("q"), &llm.Options{Model: "gpt-4o"}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out.Output != "plain answer" {
		t.Errorf("expected text output, got %#v", out.Output)
	}
}

func TestCompleteStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		header    map[string]string
		wantCode  providers.ErrorCode
		wantRetry bool
		wantNext  bool
	}{
		{
			name:      "rate limit with retry-after",
			status:    http.StatusTooManyRequests,
			body:      `{"error": {"message": "slow down", "type": "requests"}}`,
			header:    map[string]string{"Retry-After": "10"},
			wantCode:  providers.CodeRateLimit,
			wantRetry: true,
			wantNext:  true,
		},
		{
			name:     "internal",
			status:   http.StatusInternalServerError,
			body:     "oops",
			wantCode: providers.CodeProviderInternal,
			wantNext: true,
		},
		{
			name:     "context length refined",
			status:   http.StatusBadRequest,
			body:     `{"error": {"message": "too long", "type": "invalid_request_error", "code": "context_length_exceeded"}}`,
			wantCode: providers.CodeMaxTokensExceeded,
		},
		{
			name:     "auth",
			status:   http.StatusUnauthorized,
			body:     "denied",
			wantCode: providers.CodeInvalidProviderConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, providers.TypeOpenAI, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			var raw llm.RawCompletion
			_, err := engine.Complete(context.Background(), userMessage("q"), &llm.Options{Model: "gpt-4o"}, &raw)
			var pe *providers.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, pe.Code)
			}
			if pe.Retry != tt.wantRetry || pe.ShouldTryNextProvider != tt.wantNext {
				t.Errorf("unexpected flags retry=%v next=%v", pe.Retry, pe.ShouldTryNextProvider)
			}
			if pe.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, pe.StatusCode)
			}
			if tt.header["Retry-After"] != "" && pe.RetryAfter.String() != "10" {
				t.Errorf("expected retry-after 10, got %q", pe.RetryAfter.String())
			}
			if raw.Usage.PromptTokens == nil {
				t.Error("expected prompt tokens to be estimated on error")
			}
		})
	}
}

func TestCompleteExtractionErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		settings config.EngineConfig
		wantCode providers.ErrorCode
	}{
		{"not json", "I cannot produce that.", config.EngineConfig{}, providers.CodeFailedGeneration},
		{"schema mismatch", `{"greeting": 5}`, config.EngineConfig{}, providers.CodeInvalidGeneration},
		{"moderation apology", "I apologize, but that request is inappropriate.", config.EngineConfig{}, providers.CodeContentModeration},
		{
			"moderation heuristic disabled",
			"I apologize, but that request is offensive.",
			config.EngineConfig{ModerationHeuristic: new(bool)},
			providers.CodeFailedGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, providers.TypeOpenAI, jsonHandler(http.StatusOK, chatResponse(tt.content)), WithSettings(tt.settings))

			var raw llm.RawCompletion
			_, err := engine.Complete(context.Background(), userMessage("q"), &llm.Options{Model: "gpt-4o", OutputSchema: greetingSchema}, &raw)
			var pe *providers.ProviderError
			if !errors.As(err, &pe) || pe.Code != tt.wantCode {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if raw.Response != tt.content {
				t.Errorf("expected raw response to survive the error, got %q", raw.Response)
			}
			if llm.Value(raw.Usage.PromptTokens) != 1000 || raw.Usage.PromptCostUSD == nil {
				t.Errorf("expected usage to be finalized on error, got %+v", raw.Usage)
			}
		})
	}
}

func TestCompleteMalformedBodyKeepsRawResponse(t *testing.T) {
	engine := newTestEngine(t, providers.TypeOpenAI, jsonHandler(http.StatusOK, `{"choices": [`))

	var raw llm.RawCompletion
	_, err := engine.Complete(context.Background(), userMessage("q"), &llm.Options{Model: "gpt-4o"}, &raw)
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if raw.Response != `{"choices": [` {
		t.Errorf("expected the raw body for diagnostics, got %q", raw.Response)
	}
}

func TestCompleteToolCallsWithoutJSON(t *testing.T) {
	body := `{"choices": [{"index": 0, "message": {"role": "assistant", "content": "",
		"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"x\"}"}}]},
		"finish_reason": "tool_calls"}]}`
	engine := newTestEngine(t, providers.TypeOpenAI, jsonHandler(http.StatusOK, body))

	out, err := engine.Complete(context.Background(), userMessage("q"), &llm.Options{
		Model:        "gpt-4o",
		OutputSchema: greetingSchema,
		EnabledTools: []llm.Tool{{Name: "lookup"}},
	}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].ToolInput["q"] != "x" {
		t.Errorf("unexpected tool calls %+v", out.ToolCalls)
	}
	if out.Output != nil {
		t.Errorf("expected nil output, got %#v", out.Output)
	}
}

func TestCompleteThinkingTags(t *testing.T) {
	engine := newTestEngine(t, providers.TypeGroq, jsonHandler(http.StatusOK, chatResponse("<think>weighing options</think>final answer")))

	out, err := engine.Complete(context.Background(), userMessage("q"), &llm.Options{Model: "deepseek-r1-distill-llama-70b"}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out.Output != "final answer" {
		t.Errorf("expected content without thinking, got %#v", out.Output)
	}
	if len(out.ReasoningSteps) != 1 || out.ReasoningSteps[0].Explanation != "weighing options" {
		t.Errorf("unexpected reasoning %+v", out.ReasoningSteps)
	}
}

func TestCompleteStructuredGenerationFallback(t *testing.T) {
	var requests atomic.Int32
	var lastBody atomic.Value
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error": {"message": "Invalid schema for response_format", "type": "invalid_request_error", "param": "response_format"}}`)
			return
		}
		io.WriteString(w, chatResponse(`{"greeting": "hi"}`))
	}

	cache := structured.NewSupportCache()
	engine := newTestEngine(t, providers.TypeOpenAI, handler, WithSupportCache(cache))
	opts := &llm.Options{Model: "gpt-4o", OutputSchema: greetingSchema, StructuredGeneration: true, TaskName: "greet"}

	_, err := engine.Complete(context.Background(), userMessage("q"), opts, nil)
	if !errors.Is(err, providers.ErrStructuredGeneration) {
		t.Fatalf("expected structured generation error, got %v", err)
	}
	if !strings.Contains(lastBody.Load().(string), "response_format") {
		t.Error("expected first request to be constrained")
	}

	if _, err := engine.Complete(context.Background(), userMessage("q"), opts, nil); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if strings.Contains(lastBody.Load().(string), "response_format") {
		t.Error("expected retry to drop the schema constraint")
	}
	if opts.StructuredGeneration != true {
		t.Error("caller options must not be modified")
	}
}

func TestCompleteInvalidSchema(t *testing.T) {
	engine := newTestEngine(t, providers.TypeOpenAI, jsonHandler(http.StatusOK, chatResponse("{}")))

	_, err := engine.Complete(context.Background(), userMessage("q"), &llm.Options{
		Model:        "gpt-4o",
		OutputSchema: map[string]any{"type": 12},
	}, nil)
	var appErr *providers.ApplicationError
	if !errors.As(err, &appErr) || appErr.Code != providers.CodeInvalidRunOptions {
		t.Fatalf("expected invalid run options, got %v", err)
	}
}

func TestCompleteCancelled(t *testing.T) {
	release := make(chan struct{})
	engine := newTestEngine(t, providers.TypeOpenAI, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Complete(ctx, userMessage("q"), &llm.Options{Model: "gpt-4o"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		t.Errorf("cancellation must not be a provider error, got %v", pe)
	}
}
