package openai

import (
	"encoding/json"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
)

// streamChunk is a chat.completion.chunk, or an error object sent mid-stream.
type streamChunk struct {
	goopenai.ChatCompletionStreamResponse
	Error *goopenai.APIError `json:"error,omitempty"`
}

// ExtractStreamDelta parses one SSE frame.
func (a *Adapter) ExtractStreamDelta(event streaming.Event, raw *llm.RawCompletion, buffers *streaming.ToolCallBuffers) (streaming.Delta, error) {
	var delta streaming.Delta
	if event.IsDone() || strings.TrimSpace(event.Data) == "" {
		return delta, nil
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
		return delta, &providers.ParseError{Provider: a.config.Name, RawResponse: event.Data, Cause: err}
	}
	if chunk.Error != nil {
		return delta, a.streamError(chunk.Error)
	}

	if chunk.Usage != nil {
		raw.Usage.Merge(convertUsage(chunk.Usage))
	}
	if len(chunk.Choices) == 0 {
		return delta, nil
	}

	choice := chunk.Choices[0]
	if reason := normalizeFinishReason(choice.FinishReason); reason != "" {
		raw.FinishReason = reason
	}
	if choice.Delta.Refusal != "" {
		return delta, providers.NewProviderError(providers.CodeContentModeration, a.config.Name, choice.Delta.Refusal)
	}

	delta.Content = choice.Delta.Content
	delta.Reasoning = choice.Delta.ReasoningContent

	for i, tc := range choice.Delta.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		if call, done := buffers.Apply(index, tc.ID, tc.Function.Name, tc.Function.Arguments); done {
			delta.ToolCalls = append(delta.ToolCalls, *call)
		}
	}
	return delta, nil
}

// streamError classifies an error object received after the 200 status.
func (a *Adapter) streamError(apiErr *goopenai.APIError) *providers.ProviderError {
	if err := a.refine(apiErr); err != nil {
		return err
	}
	code := providers.CodeProviderInternal
	if apiErr.Type == "rate_limit_exceeded" || errorCode(apiErr.Code) == "rate_limit_exceeded" {
		code = providers.CodeRateLimit
	}
	return providers.NewProviderError(code, a.config.Name, apiErr.Message)
}
