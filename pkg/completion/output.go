package completion

import (
	"strings"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
	"mercator-hq/relay/pkg/structured"
)

// buildFinal turns the completed text, reasoning and native tool calls into
// the final output. Without an output schema the output is the text itself.
// buffered reports whether the provider started any tool call, complete or
// not; text that is not JSON is then accepted without an output value.
func (e *Engine) buildFinal(c *call, content string, reasoning []llm.ReasoningStep, toolCalls []llm.ToolCallRequest, buffered bool, finishReason string) (*llm.StructuredOutput, error) {
	name := e.adapter.Name()
	out := &llm.StructuredOutput{ReasoningSteps: reasoning, ToolCalls: toolCalls, Final: true}

	if strings.TrimSpace(content) == "" && len(toolCalls) == 0 && finishReason == providers.FinishReasonLength {
		return nil, providers.NewProviderError(providers.CodeMaxTokensExceeded, name,
			"completion hit the token limit before producing output")
	}

	if c.full == nil {
		out.Output = content
		return out, nil
	}

	value, err := structured.ExtractJSON(content)
	if err != nil {
		if e.settings.ModerationHeuristicEnabled() && looksLikeModeration(content) {
			return nil, providers.NewProviderError(providers.CodeContentModeration, name,
				"model declined to answer").WithCause(err)
		}
		if buffered {
			return out, nil
		}
		return nil, providers.NewProviderError(providers.CodeFailedGeneration, name,
			"completion is not valid JSON").WithCause(err)
	}

	if err := c.full.Validate(value); err != nil {
		return nil, providers.NewProviderError(providers.CodeInvalidGeneration, name,
			"completion does not match the output schema").WithCause(err)
	}
	out.Output = value
	return out, nil
}

// buildPartial renders in-flight stream state. JSON output is decoded
// leniently and checked against the all-optional schema; a value that does
// not fit keeps the previous partial value.
func (e *Engine) buildPartial(c *call, state *streaming.State, previous *llm.StructuredOutput) *llm.StructuredOutput {
	out := &llm.StructuredOutput{
		ReasoningSteps: reasoningSteps(state.Reasoning()),
		ToolCalls:      append([]llm.ToolCallRequest(nil), state.ToolCalls()...),
	}

	if c.full == nil {
		out.Output = state.Content()
		return out
	}

	if previous != nil {
		out.Output = previous.Output
	}
	if value, ok := structured.ParsePartial(state.Content()); ok {
		if err := c.partial.Validate(value); err == nil {
			out.Output = value
		}
	}
	return out
}

// looksLikeModeration recognises a refusal phrased as an apology.
func looksLikeModeration(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "apologize") &&
		(strings.Contains(lower, "inappropriate") || strings.Contains(lower, "offensive"))
}

func reasoningSteps(text string) []llm.ReasoningStep {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []llm.ReasoningStep{{Explanation: text}}
}

func newThinkingTracker(cfg config.EngineConfig) *streaming.ThinkingTracker {
	return streaming.NewThinkingTracker(cfg.ThinkOpenTag, cfg.ThinkCloseTag)
}
