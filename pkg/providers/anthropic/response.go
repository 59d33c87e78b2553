package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

// response wraps a decoded Messages API response.
type response struct {
	provider string
	raw      MessagesResponse
}

func (r *response) Content() (string, error) {
	var texts []string
	hasToolUse := false
	for _, block := range r.raw.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			hasToolUse = true
		}
	}
	content := strings.Join(texts, "")

	switch {
	case r.raw.StopReason == "refusal":
		return "", providers.NewProviderError(providers.CodeContentModeration, r.provider, "model refused to answer")
	case r.raw.StopReason == "max_tokens" && content == "" && !hasToolUse:
		return "", providers.NewProviderError(providers.CodeMaxTokensExceeded, r.provider, "completion hit max_tokens before producing output")
	}
	return content, nil
}

func (r *response) ReasoningSteps() []llm.ReasoningStep {
	var steps []llm.ReasoningStep
	for _, block := range r.raw.Content {
		if block.Type == "thinking" && block.Thinking != "" {
			steps = append(steps, llm.ReasoningStep{Explanation: block.Thinking})
		}
	}
	return steps
}

func (r *response) ToolCalls() ([]llm.ToolCallRequest, error) {
	var calls []llm.ToolCallRequest
	for _, block := range r.raw.Content {
		if block.Type != "tool_use" {
			continue
		}
		input, err := decodeInput(block.Input)
		if err != nil {
			return nil, providers.NewProviderError(providers.CodeFailedGeneration, r.provider,
				fmt.Sprintf("invalid input for tool call %q", block.Name)).WithCause(err)
		}
		calls = append(calls, llm.ToolCallRequest{ID: block.ID, ToolName: block.Name, ToolInput: input})
	}
	return calls, nil
}

func (r *response) Usage() *llm.LLMUsage {
	u := r.raw.Usage
	if u == nil {
		return nil
	}
	usage := promptUsage(u.InputTokens, u.CacheReadInputTokens, u.CacheCreationInputTokens)
	usage.CompletionTokens = llm.IntPtr(u.OutputTokens)
	return usage
}

func (r *response) FinishReason() string {
	return normalizeStopReason(r.raw.StopReason)
}

// promptUsage totals the prompt: input tokens exclude cache reads and writes.
func promptUsage(input, cacheRead, cacheCreation int) *llm.LLMUsage {
	return &llm.LLMUsage{
		PromptTokens:       llm.IntPtr(input + cacheRead + cacheCreation),
		CachedPromptTokens: llm.IntPtr(cacheRead),
	}
}

func decodeInput(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

// normalizeStopReason maps Anthropic stop reasons to provider-agnostic values.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence", "pause_turn":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	case "refusal":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}
