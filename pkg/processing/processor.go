package processing

import (
	"fmt"
	"log/slog"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/processing/costs"
	"mercator-hq/relay/pkg/processing/tokens"
)

// Processor fills and prices LLMUsage. It is safe for concurrent use.
type Processor struct {
	tokenEstimator tokens.Estimator
	costCalculator *costs.Calculator
	logger         *slog.Logger
}

// NewProcessor creates a processor with the given configuration.
func NewProcessor(cfg *config.ProcessingConfig) *Processor {
	if cfg == nil {
		cfg = &config.ProcessingConfig{}
	}
	return NewProcessorWith(tokens.NewEstimator(&cfg.Tokens), costs.NewCalculator(&cfg.Costs))
}

// NewProcessorWith creates a processor from explicit components.
func NewProcessorWith(estimator tokens.Estimator, calculator *costs.Calculator) *Processor {
	return &Processor{
		tokenEstimator: estimator,
		costCalculator: calculator,
		logger:         slog.Default().With("component", "processing"),
	}
}

// Calculator returns the cost calculator, for pricing hot reload.
func (p *Processor) Calculator() *costs.Calculator {
	return p.costCalculator
}

// SeedUsage records counts derived from the input before the call.
func (p *Processor) SeedUsage(messages []llm.Message, usage *llm.LLMUsage) {
	if usage == nil || usage.PromptImageCount != nil {
		return
	}
	if n := llm.ImageCount(messages); n > 0 {
		usage.PromptImageCount = llm.IntPtr(n)
	}
}

// FinalizeUsage estimates missing token counts and prices raw.Usage.
// It runs after every attempt; the returned error is informational and
// never replaces the attempt's own error.
func (p *Processor) FinalizeUsage(provider, model string, messages []llm.Message, tools []llm.Tool, raw *llm.RawCompletion) error {
	if raw == nil {
		return nil
	}
	usage := &raw.Usage

	if usage.PromptTokens == nil && p.tokenEstimator != nil {
		prompt, err := p.tokenEstimator.EstimateMessages(messages, model)
		if err != nil {
			return fmt.Errorf("failed to estimate prompt tokens: %w", err)
		}
		toolTokens, err := p.tokenEstimator.EstimateTools(tools, model)
		if err != nil {
			return fmt.Errorf("failed to estimate tool tokens: %w", err)
		}
		usage.PromptTokens = llm.IntPtr(prompt + toolTokens)
		p.logger.Debug("estimated prompt tokens",
			"provider", provider,
			"model", model,
			"tokens", prompt+toolTokens,
		)
	}

	if usage.CompletionTokens == nil && raw.Response != "" && p.tokenEstimator != nil {
		completion, err := p.tokenEstimator.EstimateText(raw.Response, model)
		if err != nil {
			return fmt.Errorf("failed to estimate completion tokens: %w", err)
		}
		usage.CompletionTokens = llm.IntPtr(completion)
	}

	if p.costCalculator == nil {
		return nil
	}
	if err := p.costCalculator.Finalize(provider, model, usage); err != nil {
		return fmt.Errorf("failed to price usage: %w", err)
	}
	return nil
}
