package gemini

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
)

// ExtractStreamDelta parses one SSE frame. Each frame is a complete
// GenerateResponse; function calls always arrive whole, so they complete in
// the frame that carries them.
func (a *Adapter) ExtractStreamDelta(event streaming.Event, raw *llm.RawCompletion, buffers *streaming.ToolCallBuffers) (streaming.Delta, error) {
	var delta streaming.Delta
	data := strings.TrimSpace(event.Data)
	if data == "" {
		return delta, nil
	}

	var chunk GenerateResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return delta, &providers.ParseError{Provider: a.config.Name, RawResponse: data, Cause: err}
	}
	if chunk.Error != nil {
		if refined := a.refine(chunk.Error); refined != nil {
			return delta, refined
		}
		return delta, providers.NewProviderError(providers.CodeProviderInternal, a.config.Name, chunk.Error.Message)
	}

	// Every chunk repeats the running totals.
	raw.Usage.Merge(convertUsage(chunk.UsageMetadata))

	if err := blockedError(a.config.Name, &chunk); err != nil {
		return delta, err
	}
	if len(chunk.Candidates) == 0 {
		return delta, nil
	}

	c := chunk.Candidates[0]
	if c.FinishReason != "" {
		raw.FinishReason = normalizeFinishReason(c.FinishReason)
		if c.FinishReason == "MALFORMED_FUNCTION_CALL" {
			return delta, providers.NewProviderError(providers.CodeFailedGeneration, a.config.Name, "model produced a malformed function call")
		}
	}
	if c.Content == nil {
		return delta, nil
	}

	var content, reasoning strings.Builder
	for _, p := range c.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			id := p.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			args := "{}"
			if p.FunctionCall.Args != nil {
				b, err := json.Marshal(p.FunctionCall.Args)
				if err != nil {
					return delta, &providers.ParseError{Provider: a.config.Name, RawResponse: data, Cause: err}
				}
				args = string(b)
			}
			if call, done := buffers.Apply(len(buffers.Completed()), id, p.FunctionCall.Name, args); done {
				delta.ToolCalls = append(delta.ToolCalls, *call)
			}
		case p.Thought:
			reasoning.WriteString(p.Text)
		default:
			content.WriteString(p.Text)
		}
	}
	delta.Content = content.String()
	delta.Reasoning = reasoning.String()
	return delta, nil
}
