package tokens

import (
	"encoding/json"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
)

// Estimator estimates token counts for text and messages.
type Estimator interface {
	// EstimateText estimates tokens for a single text string.
	EstimateText(text string, model string) (int, error)

	// EstimateMessages estimates prompt tokens for a conversation,
	// including per-message formatting overhead.
	EstimateMessages(messages []llm.Message, model string) (int, error)

	// EstimateTools estimates tokens for tool definitions.
	EstimateTools(tools []llm.Tool, model string) (int, error)
}

// Per-message and per-conversation formatting overhead, in tokens.
const (
	messageOverhead      = 3
	conversationOverhead = 3
	toolOverhead         = 10
	toolCallIDTokens     = 10
)

// NewEstimator returns the estimator selected by cfg.Estimator.
// "tiktoken" (the default) falls back to character ratios when an encoding
// cannot be loaded.
func NewEstimator(cfg *config.TokensConfig) Estimator {
	if cfg == nil {
		cfg = &config.TokensConfig{}
	}
	simple := NewSimpleEstimator(cfg)
	if cfg.Estimator == "simple" {
		return simple
	}
	return NewTiktokenEstimator(cfg.Encoding, simple)
}

type textCounter func(text, model string) (int, error)

func estimateMessages(count textCounter, messages []llm.Message, model string) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	total := conversationOverhead
	for _, msg := range messages {
		// role
		total += 1 + messageOverhead

		n, err := count(msg.Content, model)
		if err != nil {
			return 0, err
		}
		total += n

		for _, tc := range msg.ToolCallRequests {
			total += toolCallIDTokens
			name, _ := count(tc.ToolName, model)
			args, _ := count(tc.ArgumentsJSON(), model)
			total += name + args
		}
		for _, tr := range msg.ToolCallResults {
			total += toolCallIDTokens
			result, _ := count(tr.ResultText(), model)
			total += result
		}
	}
	return total, nil
}

func estimateTools(count textCounter, tools []llm.Tool, model string) (int, error) {
	total := 0
	for _, tool := range tools {
		name, err := count(tool.Name, model)
		if err != nil {
			return 0, err
		}
		total += name + toolOverhead

		if tool.Description != "" {
			desc, _ := count(tool.Description, model)
			total += desc
		}
		if tool.InputSchema != nil {
			if b, err := json.Marshal(tool.InputSchema); err == nil {
				params, _ := count(string(b), model)
				total += params
			}
		}
	}
	return total, nil
}
