package tokens

import (
	"sync"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
)

const defaultCharsPerToken = 4.0

// SimpleEstimator implements character-based token estimation using
// model-specific characters-per-token ratios.
type SimpleEstimator struct {
	config *config.TokensConfig
	mu     sync.RWMutex
}

// NewSimpleEstimator creates a new character-based token estimator.
func NewSimpleEstimator(cfg *config.TokensConfig) *SimpleEstimator {
	if cfg == nil {
		cfg = &config.TokensConfig{}
	}
	return &SimpleEstimator{config: cfg}
}

// EstimateText estimates tokens for a single text string.
func (e *SimpleEstimator) EstimateText(text string, model string) (int, error) {
	if text == "" {
		return 0, nil
	}

	tokens := float64(len(text)) / e.getCharsPerToken(model)
	if tokens < 1.0 {
		tokens = 1.0 // Minimum 1 token for non-empty text
	}
	return int(tokens + 0.5), nil
}

// EstimateMessages estimates prompt tokens for a list of messages.
func (e *SimpleEstimator) EstimateMessages(messages []llm.Message, model string) (int, error) {
	return estimateMessages(e.EstimateText, messages, model)
}

// EstimateTools estimates tokens for tool definitions.
func (e *SimpleEstimator) EstimateTools(tools []llm.Tool, model string) (int, error) {
	return estimateTools(e.EstimateText, tools, model)
}

// getCharsPerToken returns the ratio for the exact model, else the longest
// configured prefix, else "default", else 4.
func (e *SimpleEstimator) getCharsPerToken(model string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ratio, ok := e.config.Models[model]; ok && ratio > 0 {
		return ratio
	}

	best, bestRatio := "", 0.0
	for pattern, ratio := range e.config.Models {
		if ratio > 0 && len(pattern) > len(best) && len(model) >= len(pattern) && model[:len(pattern)] == pattern {
			best, bestRatio = pattern, ratio
		}
	}
	if best != "" {
		return bestRatio
	}

	if ratio, ok := e.config.Models["default"]; ok && ratio > 0 {
		return ratio
	}
	return defaultCharsPerToken
}
