package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
)

const (
	defaultAPIVersion = "2023-06-01"
	defaultMaxTokens  = 4096
)

// Output token ceilings by model prefix, used when the caller leaves
// MaxTokens unset. Longest prefix wins.
var modelMaxTokens = map[string]int{
	"claude-3-haiku":    4096,
	"claude-3-opus":     4096,
	"claude-3-5-haiku":  8192,
	"claude-3-5-sonnet": 8192,
	"claude-3-7-sonnet": 64000,
	"claude-sonnet-4":   64000,
	"claude-opus-4":     32000,
	"claude-haiku-4":    64000,
}

// Adapter speaks the Anthropic Messages API.
type Adapter struct {
	config providers.ProviderConfig
}

// NewAdapter creates an adapter for one configured provider.
func NewAdapter(config providers.ProviderConfig) (*Adapter, error) {
	if config.Type != providers.TypeAnthropic {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "type",
			Message:  fmt.Sprintf("type %q is not served by the anthropic adapter", config.Type),
		}
	}
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "base_url", Message: "base URL is required"}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "api_key", Message: "API key is required"}
	}
	if config.APIVersion == "" {
		config.APIVersion = defaultAPIVersion
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Adapter{config: config}, nil
}

// Name returns the configured provider name.
func (a *Adapter) Name() string {
	return a.config.Name
}

// Type returns the provider type.
func (a *Adapter) Type() string {
	return a.config.Type
}

// BuildRequest translates canonical messages into a MessagesRequest. System
// messages are hoisted into the top-level system field.
func (a *Adapter) BuildRequest(messages []llm.Message, opts *llm.Options, stream bool) (any, error) {
	if opts == nil {
		return nil, &providers.ValidationError{Field: "options", Message: "options are required"}
	}

	req := &MessagesRequest{
		Model:       opts.Model,
		MaxTokens:   maxTokensFor(opts),
		Temperature: llm.Float64Ptr(opts.Temperature),
		Stream:      stream,
	}

	var system []string
	for i, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case llm.RoleUser:
			msg, err := a.userMessage(i, m)
			if err != nil {
				return nil, err
			}
			req.Messages = append(req.Messages, msg)
		case llm.RoleAssistant:
			msg, err := assistantMessage(m)
			if err != nil {
				return nil, err
			}
			req.Messages = append(req.Messages, msg)
		default:
			return nil, &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", m.Role),
			}
		}
	}
	req.System = strings.Join(system, "\n\n")

	if len(req.Messages) == 0 {
		return nil, &providers.ValidationError{Field: "messages", Message: "at least one non-system message is required"}
	}

	for _, tool := range opts.EnabledTools {
		schema := tool.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		req.Tools = append(req.Tools, Tool{Name: tool.Name, Description: tool.Description, InputSchema: schema})
	}

	return req, nil
}

func maxTokensFor(opts *llm.Options) int {
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 {
		return *opts.MaxTokens
	}
	best, limit := 0, defaultMaxTokens
	for prefix, n := range modelMaxTokens {
		if strings.HasPrefix(opts.Model, prefix) && len(prefix) > best {
			best, limit = len(prefix), n
		}
	}
	return limit
}

// userMessage places tool results first, then text, then attachments, all in
// one user turn.
func (a *Adapter) userMessage(index int, m llm.Message) (Message, error) {
	if len(m.ToolCallResults) == 0 && len(m.Files) == 0 {
		return Message{Role: llm.RoleUser, Content: m.Content}, nil
	}

	blocks := make([]ContentBlock, 0, len(m.ToolCallResults)+len(m.Files)+1)
	for _, r := range m.ToolCallResults {
		content, err := json.Marshal(r.ResultText())
		if err != nil {
			return Message{}, err
		}
		blocks = append(blocks, ContentBlock{
			Type:      "tool_result",
			ToolUseID: r.ID,
			Content:   content,
			IsError:   r.Error != "",
		})
	}
	if m.Content != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
	}

	for j, f := range m.Files {
		source := &Source{Type: "base64", MediaType: f.ContentType, Data: f.Data}
		if f.Data == "" {
			source = &Source{Type: "url", URL: f.URL}
		}
		switch {
		case f.IsImage():
			blocks = append(blocks, ContentBlock{Type: "image", Source: source})
		case f.IsPDF():
			blocks = append(blocks, ContentBlock{Type: "document", Source: source})
		case f.IsAudio():
			return Message{}, providers.NewProviderError(providers.CodeModelNotSupported, a.config.Name, "audio input is not supported by anthropic")
		default:
			return Message{}, &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].files[%d]", index, j),
				Message: fmt.Sprintf("unsupported content type %q", f.ContentType),
			}
		}
	}
	return Message{Role: llm.RoleUser, Content: blocks}, nil
}

func assistantMessage(m llm.Message) (Message, error) {
	if len(m.ToolCallRequests) == 0 {
		return Message{Role: llm.RoleAssistant, Content: m.Content}, nil
	}

	blocks := make([]ContentBlock, 0, len(m.ToolCallRequests)+1)
	if m.Content != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
	}
	for _, call := range m.ToolCallRequests {
		blocks = append(blocks, ContentBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.ToolName,
			Input: json.RawMessage(call.ArgumentsJSON()),
		})
	}
	return Message{Role: llm.RoleAssistant, Content: blocks}, nil
}

// RequestURL returns the messages endpoint.
func (a *Adapter) RequestURL(model string, stream bool) (string, error) {
	return a.config.BaseURL + "/messages", nil
}

// RequestHeaders returns the API key and version headers.
func (a *Adapter) RequestHeaders(request any, endpoint, model string) (map[string]string, error) {
	headers := map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         a.config.APIKey,
		"anthropic-version": a.config.APIVersion,
	}
	if req, ok := request.(*MessagesRequest); ok && req.Stream {
		headers["Accept"] = "text/event-stream"
	}
	return headers, nil
}

// DecodeResponse parses a non-streamed message.
func (a *Adapter) DecodeResponse(body []byte) (providers.Response, error) {
	var resp MessagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &providers.ParseError{Provider: a.config.Name, RawResponse: string(body), Cause: err}
	}
	if resp.Type == "error" {
		return nil, &providers.ParseError{Provider: a.config.Name, RawResponse: string(body), Cause: errors.New("error object in successful response")}
	}
	return &response{provider: a.config.Name, raw: resp}, nil
}

// StreamDelimiter returns the SSE frame delimiter.
func (a *Adapter) StreamDelimiter() []byte {
	return []byte("\n\n")
}

// IsEndOfStream recognises message_stop.
func (a *Adapter) IsEndOfStream(event streaming.Event) bool {
	return event.Name == "message_stop"
}

// SupportsStructuredGeneration is always false: the Messages API has no
// schema-constrained output mode, so the engine falls back to extraction.
func (a *Adapter) SupportsStructuredGeneration(opts *llm.Options) bool {
	return false
}

var (
	_ providers.Adapter       = (*Adapter)(nil)
	_ providers.EndOfStreamer = (*Adapter)(nil)
)
