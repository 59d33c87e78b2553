package llm

import "testing"

func TestLLMUsageMerge(t *testing.T) {
	u := LLMUsage{
		PromptTokens:     IntPtr(10),
		PromptImageCount: IntPtr(2),
	}

	u.Merge(&LLMUsage{
		PromptTokens:     IntPtr(12),
		CompletionTokens: IntPtr(5),
	})

	if Value(u.PromptTokens) != 12 {
		t.Errorf("expected prompt tokens 12, got %d", Value(u.PromptTokens))
	}
	if Value(u.CompletionTokens) != 5 {
		t.Errorf("expected completion tokens 5, got %d", Value(u.CompletionTokens))
	}
	if Value(u.PromptImageCount) != 2 {
		t.Errorf("expected seeded image count to survive merge, got %d", Value(u.PromptImageCount))
	}

	u.Merge(nil)
	if !u.HasTokenCounts() {
		t.Error("expected token counts after merge")
	}
}

func TestLLMUsageMergeCopiesValues(t *testing.T) {
	src := &LLMUsage{PromptTokens: IntPtr(3)}
	var dst LLMUsage
	dst.Merge(src)

	*src.PromptTokens = 99
	if Value(dst.PromptTokens) != 3 {
		t.Errorf("expected merge to copy values, got %d", Value(dst.PromptTokens))
	}
}

func TestLLMUsageTotalCost(t *testing.T) {
	u := LLMUsage{PromptCostUSD: Float64Ptr(0.25)}
	if u.TotalCost() != 0.25 {
		t.Errorf("expected 0.25, got %f", u.TotalCost())
	}

	u.CompletionCostUSD = Float64Ptr(0.5)
	if u.TotalCost() != 0.75 {
		t.Errorf("expected 0.75, got %f", u.TotalCost())
	}
}

func TestImageCount(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Files: []File{
			{ContentType: "image/png", Data: "aGk="},
			{ContentType: "audio/wav", URL: "https://example.com/a.wav"},
		}},
		{Role: RoleUser, Files: []File{{ContentType: "image/jpeg", URL: "https://example.com/b.jpg"}}},
	}

	if got := ImageCount(msgs); got != 2 {
		t.Errorf("expected 2 images, got %d", got)
	}
}

func TestToolCallResultText(t *testing.T) {
	tests := []struct {
		name   string
		result ToolCallResult
		want   string
	}{
		{"string", ToolCallResult{Result: "sunny"}, "sunny"},
		{"object", ToolCallResult{Result: map[string]any{"temp": 20}}, `{"temp":20}`},
		{"error", ToolCallResult{Error: "boom"}, "Error: boom"},
		{"nil", ToolCallResult{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.ResultText(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
