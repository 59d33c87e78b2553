package costs

import (
	"errors"
	"math"
	"sync"
	"testing"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
)

func testConfig() *config.CostsConfig {
	return &config.CostsConfig{
		Pricing: map[string]map[string]config.ModelPricingConfig{
			"openai": {
				"gpt-4o": {
					Prompt:                0.0025,
					Completion:            0.01,
					SupportsPromptCaching: true,
					ContextWindow:         128000,
				},
				"gpt-4o-mini": {
					Prompt:     0.00015,
					Completion: 0.0006,
				},
				"gpt-4": {
					Prompt:     0.03,
					Completion: 0.06,
				},
			},
			"anthropic": {
				"claude-3-5-sonnet": {
					Prompt:                0.003,
					Completion:            0.015,
					CachedPrompt:          0.0003,
					SupportsPromptCaching: true,
				},
				"default": {
					Prompt:     0.001,
					Completion: 0.002,
				},
			},
			"gemini": {
				"gemini-1.5-pro": {
					Prompt:         0.00125,
					Completion:     0.005,
					PerImage:       0.001,
					PerAudioSecond: 0.0001,
				},
			},
			"default": {
				"default": {
					Prompt:     0.0005,
					Completion: 0.0015,
				},
			},
		},
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculator_GetModelPricing(t *testing.T) {
	calculator := NewCalculator(testConfig())

	tests := []struct {
		name      string
		provider  string
		model     string
		wantEntry string
		wantRate  float64
	}{
		{"exact match", "openai", "gpt-4", "gpt-4", 0.03},
		{"longest prefix wins", "openai", "gpt-4o-mini-2024-07-18", "gpt-4o-mini", 0.00015},
		{"shorter prefix", "openai", "gpt-4o-2024-08-06", "gpt-4o", 0.0025},
		{"provider default", "anthropic", "claude-3-haiku", "default", 0.001},
		{"global default", "mistral", "mistral-large", "default", 0.0005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pricing, err := calculator.GetModelPricing(tt.model, tt.provider)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pricing.Entry != tt.wantEntry {
				t.Errorf("expected entry %q, got %q", tt.wantEntry, pricing.Entry)
			}
			if !approxEqual(pricing.PromptCostPer1K, tt.wantRate) {
				t.Errorf("expected prompt rate %v, got %v", tt.wantRate, pricing.PromptCostPer1K)
			}
		})
	}
}

func TestCalculator_NoPricing(t *testing.T) {
	calculator := NewCalculator(&config.CostsConfig{})
	_, err := calculator.GetModelPricing("gpt-4", "openai")
	if !errors.Is(err, ErrNoPricing) {
		t.Errorf("expected ErrNoPricing, got %v", err)
	}

	usage := &llm.LLMUsage{PromptTokens: llm.IntPtr(10)}
	if err := calculator.Finalize("openai", "gpt-4", usage); err == nil {
		t.Error("expected error without pricing")
	}
	if usage.PromptCostUSD != nil {
		t.Error("expected no cost to be filled")
	}
}

func TestCalculator_Finalize(t *testing.T) {
	calculator := NewCalculator(testConfig())

	tests := []struct {
		name           string
		provider       string
		model          string
		usage          llm.LLMUsage
		wantPrompt     *float64
		wantCompletion *float64
	}{
		{
			name:           "plain tokens",
			provider:       "openai",
			model:          "gpt-4",
			usage:          llm.LLMUsage{PromptTokens: llm.IntPtr(1000), CompletionTokens: llm.IntPtr(500)},
			wantPrompt:     llm.Float64Ptr(0.03),
			wantCompletion: llm.Float64Ptr(0.03),
		},
		{
			name:     "cached tokens at half price",
			provider: "openai",
			model:    "gpt-4o",
			usage: llm.LLMUsage{
				PromptTokens:       llm.IntPtr(2000),
				CachedPromptTokens: llm.IntPtr(1000),
				CompletionTokens:   llm.IntPtr(0),
			},
			wantPrompt:     llm.Float64Ptr(0.0025 + 0.00125),
			wantCompletion: llm.Float64Ptr(0),
		},
		{
			name:     "explicit cached rate",
			provider: "anthropic",
			model:    "claude-3-5-sonnet-20241022",
			usage: llm.LLMUsage{
				PromptTokens:       llm.IntPtr(1000),
				CachedPromptTokens: llm.IntPtr(1000),
			},
			wantPrompt: llm.Float64Ptr(0.0003),
		},
		{
			name:     "cached ignored without caching support",
			provider: "openai",
			model:    "gpt-4",
			usage: llm.LLMUsage{
				PromptTokens:       llm.IntPtr(1000),
				CachedPromptTokens: llm.IntPtr(1000),
			},
			wantPrompt: llm.Float64Ptr(0.03),
		},
		{
			name:     "media surcharges",
			provider: "gemini",
			model:    "gemini-1.5-pro-002",
			usage: llm.LLMUsage{
				PromptTokens:        llm.IntPtr(1000),
				PromptImageCount:    llm.IntPtr(2),
				PromptAudioDuration: llm.Float64Ptr(10),
			},
			wantPrompt: llm.Float64Ptr(0.00125 + 0.002 + 0.001),
		},
		{
			name:       "partial usage leaves completion unknown",
			provider:   "openai",
			model:      "gpt-4",
			usage:      llm.LLMUsage{PromptTokens: llm.IntPtr(500)},
			wantPrompt: llm.Float64Ptr(0.015),
		},
		{
			name:     "nothing known",
			provider: "openai",
			model:    "gpt-4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := tt.usage
			if err := calculator.Finalize(tt.provider, tt.model, &usage); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			checkCost(t, "prompt", tt.wantPrompt, usage.PromptCostUSD)
			checkCost(t, "completion", tt.wantCompletion, usage.CompletionCostUSD)
		})
	}
}

func checkCost(t *testing.T, label string, want, got *float64) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("expected no %s cost, got %v", label, *got)
	case want != nil && got == nil:
		t.Errorf("expected %s cost %v, got nil", label, *want)
	case want != nil && !approxEqual(*want, *got):
		t.Errorf("expected %s cost %v, got %v", label, *want, *got)
	}
}

func TestCalculator_FinalizeContextWindow(t *testing.T) {
	calculator := NewCalculator(testConfig())

	usage := &llm.LLMUsage{}
	if err := calculator.Finalize("openai", "gpt-4o", usage); err != nil {
		t.Fatal(err)
	}
	if llm.Value(usage.ModelContextWindowSize) != 128000 {
		t.Errorf("expected context window 128000, got %v", usage.ModelContextWindowSize)
	}

	reported := &llm.LLMUsage{ModelContextWindowSize: llm.IntPtr(8192)}
	if err := calculator.Finalize("openai", "gpt-4o", reported); err != nil {
		t.Fatal(err)
	}
	if *reported.ModelContextWindowSize != 8192 {
		t.Error("expected a reported context window to be kept")
	}

	if err := calculator.Finalize("openai", "gpt-4o", nil); err != nil {
		t.Errorf("expected nil usage to be ignored, got %v", err)
	}
}

func TestCalculator_UpdatePricing(t *testing.T) {
	calculator := NewCalculator(testConfig())

	calculator.UpdatePricing(&config.CostsConfig{
		Pricing: map[string]map[string]config.ModelPricingConfig{
			"openai": {"gpt-4": {Prompt: 0.01, Completion: 0.02}},
		},
	})

	pricing, err := calculator.GetModelPricing("gpt-4", "openai")
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(pricing.PromptCostPer1K, 0.01) {
		t.Errorf("expected updated rate 0.01, got %v", pricing.PromptCostPer1K)
	}

	calculator.UpdatePricing(nil)
	if _, err := calculator.GetModelPricing("gpt-4", "openai"); err != nil {
		t.Error("expected nil update to keep the current table")
	}
}

func TestCalculator_ConcurrentAccess(t *testing.T) {
	calculator := NewCalculator(testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			usage := &llm.LLMUsage{PromptTokens: llm.IntPtr(100), CompletionTokens: llm.IntPtr(100)}
			_ = calculator.Finalize("openai", "gpt-4o", usage)
		}()
		go func() {
			defer wg.Done()
			calculator.UpdatePricing(testConfig())
		}()
	}
	wg.Wait()
}
