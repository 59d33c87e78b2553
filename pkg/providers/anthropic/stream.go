package anthropic

import (
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
)

// ExtractStreamDelta parses one SSE frame. Events are decoded with the SDK's
// event union; tool_use blocks are buffered by their content block index.
func (a *Adapter) ExtractStreamDelta(event streaming.Event, raw *llm.RawCompletion, buffers *streaming.ToolCallBuffers) (streaming.Delta, error) {
	var delta streaming.Delta
	data := strings.TrimSpace(event.Data)
	if data == "" {
		return delta, nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(data), &head); err != nil {
		return delta, &providers.ParseError{Provider: a.config.Name, RawResponse: data, Cause: err}
	}
	if head.Type == "ping" {
		return delta, nil
	}
	if head.Type == "error" || event.Name == "error" {
		var envelope ErrorResponse
		if err := json.Unmarshal([]byte(data), &envelope); err != nil || envelope.Error == nil {
			return delta, providers.NewProviderError(providers.CodeProviderInternal, a.config.Name, data)
		}
		return delta, a.streamError(envelope.Error)
	}

	var ev sdk.MessageStreamEventUnion
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return delta, &providers.ParseError{Provider: a.config.Name, RawResponse: data, Cause: err}
	}

	switch e := ev.AsAny().(type) {
	case sdk.MessageStartEvent:
		u := e.Message.Usage
		raw.Usage.Merge(promptUsage(int(u.InputTokens), int(u.CacheReadInputTokens), int(u.CacheCreationInputTokens)))

	case sdk.ContentBlockStartEvent:
		switch block := e.ContentBlock.AsAny().(type) {
		case sdk.TextBlock:
			delta.Content = block.Text
		case sdk.ToolUseBlock:
			// The start event carries an empty input object; arguments
			// arrive as input_json_delta fragments.
			if call, done := buffers.Apply(int(e.Index), block.ID, block.Name, ""); done {
				delta.ToolCalls = append(delta.ToolCalls, *call)
			}
		}

	case sdk.ContentBlockDeltaEvent:
		switch d := e.Delta.AsAny().(type) {
		case sdk.TextDelta:
			delta.Content = d.Text
		case sdk.ThinkingDelta:
			delta.Reasoning = d.Thinking
		case sdk.InputJSONDelta:
			if call, done := buffers.Apply(int(e.Index), "", "", d.PartialJSON); done {
				delta.ToolCalls = append(delta.ToolCalls, *call)
			}
		}

	case sdk.MessageDeltaEvent:
		if reason := string(e.Delta.StopReason); reason != "" {
			raw.FinishReason = normalizeStopReason(reason)
		}
		u := e.Usage
		usage := &llm.LLMUsage{CompletionTokens: llm.IntPtr(int(u.OutputTokens))}
		if u.InputTokens > 0 {
			usage.Merge(promptUsage(int(u.InputTokens), int(u.CacheReadInputTokens), int(u.CacheCreationInputTokens)))
		}
		raw.Usage.Merge(usage)
	}

	return delta, nil
}

// streamError classifies an error event received after the 200 status.
func (a *Adapter) streamError(apiErr *APIError) *providers.ProviderError {
	if err := a.refine(apiErr); err != nil {
		return err
	}
	return providers.NewProviderError(providers.CodeProviderInternal, a.config.Name, apiErr.Message)
}
