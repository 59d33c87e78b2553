package gemini

import (
	"errors"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
)

func TestExtractStreamDelta(t *testing.T) {
	a := newTestAdapter(t)
	raw := &llm.RawCompletion{}
	buffers := streaming.NewToolCallBuffers()

	body := "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"plan\",\"thought\":true}]}}],\"usageMetadata\":{\"promptTokenCount\":12,\"thoughtsTokenCount\":3}}\r\n\r\n" +
		"data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"Hel\"}]}}]}\r\n\r\n" +
		"data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"lo\"},{\"functionCall\":{\"name\":\"lookup\",\"args\":{\"q\":\"x\"}}},{\"functionCall\":{\"name\":\"ping\"}}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":12,\"candidatesTokenCount\":7,\"thoughtsTokenCount\":3}}\r\n\r\n"

	splitter := streaming.NewFrameSplitter(strings.NewReader(body), a.StreamDelimiter())
	var content, reasoning strings.Builder
	var calls []llm.ToolCallRequest
	for {
		frame, err := splitter.Next()
		if err != nil {
			break
		}
		delta, err := a.ExtractStreamDelta(streaming.ParseSSE(frame), raw, buffers)
		if err != nil {
			t.Fatalf("ExtractStreamDelta failed: %v", err)
		}
		content.WriteString(delta.Content)
		reasoning.WriteString(delta.Reasoning)
		calls = append(calls, delta.ToolCalls...)
	}

	if content.String() != "Hello" {
		t.Errorf("expected Hello, got %q", content.String())
	}
	if reasoning.String() != "plan" {
		t.Errorf("expected reasoning, got %q", reasoning.String())
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %+v", calls)
	}
	if calls[0].ToolName != "lookup" || calls[0].ToolInput["q"] != "x" || calls[0].ID == "" {
		t.Errorf("unexpected first call %+v", calls[0])
	}
	if calls[1].ToolName != "ping" || len(calls[1].ToolInput) != 0 || calls[1].ID == calls[0].ID {
		t.Errorf("unexpected second call %+v", calls[1])
	}
	if raw.FinishReason != providers.FinishReasonStop {
		t.Errorf("unexpected finish reason %q", raw.FinishReason)
	}
	if llm.Value(raw.Usage.PromptTokens) != 12 || llm.Value(raw.Usage.CompletionTokens) != 10 || llm.Value(raw.Usage.ReasoningTokens) != 3 {
		t.Errorf("unexpected usage %+v", raw.Usage)
	}
}

func TestExtractStreamDeltaErrors(t *testing.T) {
	a := newTestAdapter(t)
	tests := []struct {
		name string
		data string
		want providers.ErrorCode
	}{
		{"error frame", `{"error":{"code":503,"status":"UNAVAILABLE","message":"overloaded"}}`, providers.CodeProviderUnavailable},
		{"unknown error frame", `{"error":{"code":500,"status":"UNKNOWN","message":"?"}}`, providers.CodeProviderInternal},
		{"safety", `{"candidates":[{"content":{"parts":[{"text":"x"}]},"finishReason":"SAFETY"}]}`, providers.CodeContentModeration},
		{"malformed call", `{"candidates":[{"finishReason":"MALFORMED_FUNCTION_CALL"}]}`, providers.CodeFailedGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.ExtractStreamDelta(streaming.Event{Data: tt.data}, &llm.RawCompletion{}, streaming.NewToolCallBuffers())
			var pe *providers.ProviderError
			if !errors.As(err, &pe) || pe.Code != tt.want {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}

	_, err := a.ExtractStreamDelta(streaming.Event{Data: "{broken"}, &llm.RawCompletion{}, streaming.NewToolCallBuffers())
	var parseErr *providers.ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ParseError, got %v", err)
	}
}
