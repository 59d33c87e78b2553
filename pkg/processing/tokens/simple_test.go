package tokens

import (
	"testing"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
)

func TestSimpleEstimator_EstimateText(t *testing.T) {
	cfg := &config.TokensConfig{
		Models: map[string]float64{
			"gpt-4":   4.0,
			"gpt-4o":  5.0,
			"claude":  3.5,
			"default": 4.0,
		},
	}

	estimator := NewSimpleEstimator(cfg)

	tests := []struct {
		name  string
		text  string
		model string
		want  int
	}{
		{"empty text", "", "gpt-4", 0},
		{"short text gpt-4", "Hello, world!", "gpt-4", 3},
		{"short text claude", "Hello, world!", "claude", 4},
		{"single char rounds up", "a", "gpt-4", 1},
		{"unknown model uses default", "Hello, world!", "unknown-model", 3},
		{"longest prefix match", "0123456789", "gpt-4o-mini", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := estimator.EstimateText(tt.text, tt.model)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d tokens, got %d", tt.want, got)
			}
		})
	}
}

func TestSimpleEstimator_EstimateMessages(t *testing.T) {
	estimator := NewSimpleEstimator(nil)

	if n, _ := estimator.EstimateMessages(nil, "gpt-4"); n != 0 {
		t.Errorf("expected 0 tokens for no messages, got %d", n)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful."},
		{Role: llm.RoleUser, Content: "What is the weather in Paris?"},
	}
	base, err := estimator.EstimateMessages(messages, "gpt-4")
	if err != nil {
		t.Fatal(err)
	}
	// 3 conversation + 2*(1+3) overhead + 4 + 7 text
	if base != 22 {
		t.Errorf("expected 22 tokens, got %d", base)
	}

	withTools := append(messages, llm.Message{
		Role: llm.RoleAssistant,
		ToolCallRequests: []llm.ToolCallRequest{
			{ID: "call_1", ToolName: "get_weather", ToolInput: map[string]any{"city": "Paris"}},
		},
	})
	n, err := estimator.EstimateMessages(withTools, "gpt-4")
	if err != nil {
		t.Fatal(err)
	}
	if n <= base+toolCallIDTokens {
		t.Errorf("expected tool calls to add tokens, got %d (base %d)", n, base)
	}
}

func TestSimpleEstimator_EstimateTools(t *testing.T) {
	estimator := NewSimpleEstimator(nil)

	tools := []llm.Tool{
		{
			Name:        "get_weather",
			Description: "Get the weather",
			InputSchema: map[string]any{"type": "object"},
		},
	}
	n, err := estimator.EstimateTools(tools, "gpt-4")
	if err != nil {
		t.Fatal(err)
	}
	if n <= toolOverhead {
		t.Errorf("expected more than the per-tool overhead, got %d", n)
	}

	if n, _ := estimator.EstimateTools(nil, "gpt-4"); n != 0 {
		t.Errorf("expected 0 for no tools, got %d", n)
	}
}
