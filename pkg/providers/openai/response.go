package openai

import (
	"encoding/json"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

// response wraps a decoded chat.completion body. Only the first choice is
// read; requests never ask for more than one.
type response struct {
	provider string
	raw      goopenai.ChatCompletionResponse
}

func (r *response) choice() goopenai.ChatCompletionChoice {
	return r.raw.Choices[0]
}

// Content returns the completion text. Refusals and filtered or truncated
// empty completions are reported as errors.
func (r *response) Content() (string, error) {
	choice := r.choice()
	msg := choice.Message

	if msg.Refusal != "" {
		return "", providers.NewProviderError(providers.CodeContentModeration, r.provider, msg.Refusal)
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		switch choice.FinishReason {
		case goopenai.FinishReasonContentFilter:
			return "", providers.NewProviderError(providers.CodeContentModeration, r.provider, "completion was filtered")
		case goopenai.FinishReasonLength:
			return "", providers.NewProviderError(providers.CodeMaxTokensExceeded, r.provider, "completion hit the token limit before producing output")
		}
	}
	return msg.Content, nil
}

func (r *response) ReasoningSteps() []llm.ReasoningStep {
	if text := r.choice().Message.ReasoningContent; text != "" {
		return []llm.ReasoningStep{{Explanation: text}}
	}
	return nil
}

// ToolCalls returns native tool calls with decoded arguments.
func (r *response) ToolCalls() ([]llm.ToolCallRequest, error) {
	calls := r.choice().Message.ToolCalls
	if len(calls) == 0 {
		return nil, nil
	}

	out := make([]llm.ToolCallRequest, 0, len(calls))
	for _, tc := range calls {
		input, err := parseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, providers.NewProviderError(providers.CodeFailedGeneration, r.provider,
				fmt.Sprintf("invalid arguments for tool call %q", tc.Function.Name)).WithCause(err)
		}
		out = append(out, llm.ToolCallRequest{ID: tc.ID, ToolName: tc.Function.Name, ToolInput: input})
	}
	return out, nil
}

func (r *response) Usage() *llm.LLMUsage {
	return convertUsage(&r.raw.Usage)
}

func (r *response) FinishReason() string {
	return normalizeFinishReason(r.choice().FinishReason)
}

// convertUsage maps vendor usage. An all-zero usage block means the vendor
// did not report it.
func convertUsage(u *goopenai.Usage) *llm.LLMUsage {
	if u == nil || (u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0) {
		return nil
	}

	usage := &llm.LLMUsage{
		PromptTokens:     llm.IntPtr(u.PromptTokens),
		CompletionTokens: llm.IntPtr(u.CompletionTokens),
	}
	if d := u.PromptTokensDetails; d != nil {
		usage.CachedPromptTokens = llm.IntPtr(d.CachedTokens)
		if d.AudioTokens > 0 {
			usage.PromptAudioTokens = llm.IntPtr(d.AudioTokens)
		}
	}
	if d := u.CompletionTokensDetails; d != nil {
		usage.ReasoningTokens = llm.IntPtr(d.ReasoningTokens)
	}
	return usage
}

// parseArguments decodes tool arguments. Empty arguments mean no input.
func parseArguments(arguments string) (map[string]any, error) {
	if arguments == "" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

// normalizeFinishReason maps vendor finish reasons to provider-agnostic values.
func normalizeFinishReason(reason goopenai.FinishReason) string {
	switch reason {
	case goopenai.FinishReasonStop:
		return providers.FinishReasonStop
	case goopenai.FinishReasonLength:
		return providers.FinishReasonLength
	case goopenai.FinishReasonToolCalls, goopenai.FinishReasonFunctionCall:
		return providers.FinishReasonToolCalls
	case goopenai.FinishReasonContentFilter:
		return providers.FinishReasonContentFilter
	case goopenai.FinishReasonNull:
		return ""
	default:
		return string(reason)
	}
}
