package providers

import (
	"encoding/json"
	"net/http"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/streaming"
)

// Adapter is the capability interface every vendor implements. It translates
// canonical messages to and from one vendor's wire format; the completion
// engine owns the HTTP exchange and the streaming state.
//
// Adapters hold no per-call state. Anything shared across calls (such as a
// schema-support cache) must be safe for concurrent use.
//
// Example usage:
//
//	adapter, err := openai.NewAdapter(config)
//	if err != nil {
//	    return err
//	}
//
//	engine := completion.NewEngine(adapter, transport)
//	out, err := engine.Complete(ctx, messages, opts, &raw)
type Adapter interface {
	// Name returns the configured provider name.
	Name() string

	// Type returns the provider type (openai, anthropic, gemini, ...).
	Type() string

	// BuildRequest translates messages and options into a JSON-marshalable
	// wire request.
	BuildRequest(messages []llm.Message, opts *llm.Options, stream bool) (any, error)

	// RequestURL returns the endpoint for model.
	RequestURL(model string, stream bool) (string, error)

	// RequestHeaders returns authentication and vendor headers.
	RequestHeaders(request any, url, model string) (map[string]string, error)

	// DecodeResponse parses a non-streamed response body.
	DecodeResponse(body []byte) (Response, error)

	// ExtractStreamDelta parses one SSE frame. Tool-call fragments are applied
	// to buffers and completed calls are returned in the delta; usage is
	// merged into raw.Usage.
	ExtractStreamDelta(event streaming.Event, raw *llm.RawCompletion, buffers *streaming.ToolCallBuffers) (streaming.Delta, error)

	// StreamDelimiter returns the SSE frame delimiter.
	StreamDelimiter() []byte

	// StandardizeMessages converts wire messages back into canonical ones.
	StandardizeMessages(wire json.RawMessage) (StandardizeResult, error)

	// ClassifyError refines a failed response. It returns nil to fall back to
	// the generic status table.
	ClassifyError(status int, header http.Header, body []byte) *ProviderError

	// SupportsStructuredGeneration reports whether the wire request can
	// constrain output natively for these options.
	SupportsStructuredGeneration(opts *llm.Options) bool
}

// ThinkingTagger is implemented by adapters whose models inline a thinking
// section in the text channel.
type ThinkingTagger interface {
	UsesThinkingTags(model string) bool
}

// EndOfStreamer is implemented by adapters that recognise an explicit
// end-of-stream event.
type EndOfStreamer interface {
	IsEndOfStream(event streaming.Event) bool
}
