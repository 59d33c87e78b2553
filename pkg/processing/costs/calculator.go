package costs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
)

// ErrNoPricing is returned when neither the model, a prefix of it, nor a
// default entry is priced.
var ErrNoPricing = errors.New("no pricing configured")

// DefaultKey names the fallback entry at both provider and model level.
const DefaultKey = "default"

// Calculator prices usage for provider responses.
// It is safe for concurrent use.
type Calculator struct {
	config *config.CostsConfig
	mu     sync.RWMutex
}

// ModelPricing is the resolved price sheet for one provider and model.
type ModelPricing struct {
	Provider string
	Model    string

	// Entry is the configured key that matched: the model itself, a
	// prefix of it, or "default".
	Entry string

	PromptCostPer1K       float64
	CompletionCostPer1K   float64
	CachedPromptCostPer1K float64
	SupportsPromptCaching bool
	CostPerImage          float64
	CostPerAudioSecond    float64
	ContextWindow         int
}

// NewCalculator creates a calculator over cfg. A nil cfg prices nothing.
func NewCalculator(cfg *config.CostsConfig) *Calculator {
	if cfg == nil {
		cfg = &config.CostsConfig{}
	}
	return &Calculator{config: cfg}
}

// Finalize fills usage's prompt and completion costs and, when known, the
// model context window. Counters that are still nil leave their cost nil.
func (c *Calculator) Finalize(provider, model string, usage *llm.LLMUsage) error {
	if usage == nil {
		return nil
	}

	pricing, err := c.GetModelPricing(model, provider)
	if err != nil {
		return err
	}

	if usage.ModelContextWindowSize == nil && pricing.ContextWindow > 0 {
		usage.ModelContextWindowSize = llm.IntPtr(pricing.ContextWindow)
	}

	if cost, ok := pricing.promptCost(usage); ok {
		usage.PromptCostUSD = llm.Float64Ptr(cost)
	}
	if usage.CompletionTokens != nil || usage.CompletionImageCount != nil {
		cost := calculateTokenCost(llm.Value(usage.CompletionTokens), pricing.CompletionCostPer1K)
		cost += float64(llm.Value(usage.CompletionImageCount)) * pricing.CostPerImage
		usage.CompletionCostUSD = llm.Float64Ptr(cost)
	}
	return nil
}

func (p *ModelPricing) promptCost(usage *llm.LLMUsage) (float64, bool) {
	known := false
	cost := 0.0

	if usage.PromptTokens != nil {
		known = true
		prompt := *usage.PromptTokens
		cached := llm.Value(usage.CachedPromptTokens)
		if cached > prompt {
			cached = prompt
		}
		if p.SupportsPromptCaching && cached > 0 {
			cost += calculateTokenCost(prompt-cached, p.PromptCostPer1K)
			cost += calculateTokenCost(cached, p.cachedRate())
		} else {
			cost += calculateTokenCost(prompt, p.PromptCostPer1K)
		}
	}

	// Surcharges apply only where the model bills media outside its token count.
	if p.CostPerImage > 0 && usage.PromptImageCount != nil {
		known = true
		cost += float64(*usage.PromptImageCount) * p.CostPerImage
	}
	if p.CostPerAudioSecond > 0 && usage.PromptAudioDuration != nil {
		known = true
		cost += *usage.PromptAudioDuration * p.CostPerAudioSecond
	}
	return cost, known
}

func (p *ModelPricing) cachedRate() float64 {
	if p.CachedPromptCostPer1K > 0 {
		return p.CachedPromptCostPer1K
	}
	return p.PromptCostPer1K / 2
}

// GetModelPricing resolves pricing for a model.
// It tries the exact model, the longest configured prefix, the provider's
// default entry, then the global default.
func (c *Calculator) GetModelPricing(model, provider string) (*ModelPricing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if models, ok := c.config.Pricing[provider]; ok {
		if p, ok := models[model]; ok {
			return newModelPricing(provider, model, model, p), nil
		}

		best := ""
		for key := range models {
			if key != DefaultKey && strings.HasPrefix(model, key) && len(key) > len(best) {
				best = key
			}
		}
		if best != "" {
			return newModelPricing(provider, model, best, models[best]), nil
		}

		if p, ok := models[DefaultKey]; ok {
			return newModelPricing(provider, model, DefaultKey, p), nil
		}
	}

	if models, ok := c.config.Pricing[DefaultKey]; ok {
		if p, ok := models[DefaultKey]; ok {
			return newModelPricing(provider, model, DefaultKey, p), nil
		}
	}

	return nil, fmt.Errorf("%w for model %s (provider %s)", ErrNoPricing, model, provider)
}

func newModelPricing(provider, model, entry string, p config.ModelPricingConfig) *ModelPricing {
	return &ModelPricing{
		Provider:              provider,
		Model:                 model,
		Entry:                 entry,
		PromptCostPer1K:       p.Prompt,
		CompletionCostPer1K:   p.Completion,
		CachedPromptCostPer1K: p.CachedPrompt,
		SupportsPromptCaching: p.SupportsPromptCaching,
		CostPerImage:          p.PerImage,
		CostPerAudioSecond:    p.PerAudioSecond,
		ContextWindow:         p.ContextWindow,
	}
}

// UpdatePricing replaces the pricing table.
func (c *Calculator) UpdatePricing(newConfig *config.CostsConfig) {
	if newConfig == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = newConfig
}

// calculateTokenCost returns the cost of tokens at a per-1K rate.
func calculateTokenCost(tokens int, costPer1K float64) float64 {
	return float64(tokens) / 1000.0 * costPer1K
}
