package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
)

// variant captures what differs between the Chat Completions dialects.
type variant struct {
	strictTools      bool
	images           bool
	audio            bool
	documents        bool
	streamUsage      bool
	completionTokens bool
	thinkingTags     bool
}

var variants = map[string]variant{
	providers.TypeOpenAI: {
		strictTools: true, images: true, audio: true, documents: true,
		streamUsage: true, completionTokens: true,
	},
	providers.TypeAzureOpenAI: {
		strictTools: true, images: true, audio: true, documents: true,
		streamUsage: true, completionTokens: true,
	},
	providers.TypeFireworks: {strictTools: true, images: true, streamUsage: true, thinkingTags: true},
	providers.TypeGroq:      {strictTools: true, streamUsage: true, thinkingTags: true},
	// Mistral rejects stream_options and always reports usage on the last chunk.
	providers.TypeMistral: {images: true},
}

// Models that emit an inline <think> section on Fireworks and Groq.
var thinkingModels = []string{"deepseek-r1", "qwq"}

// Reasoning model families that only accept the default temperature.
var reasoningModelPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

// Adapter speaks the OpenAI Chat Completions dialect for OpenAI, Azure
// OpenAI, Fireworks, Groq and Mistral.
type Adapter struct {
	config  providers.ProviderConfig
	variant variant
}

// NewAdapter creates an adapter for one configured provider.
func NewAdapter(config providers.ProviderConfig) (*Adapter, error) {
	v, ok := variants[config.Type]
	if !ok {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "type",
			Message:  fmt.Sprintf("type %q is not served by the openai adapter", config.Type),
		}
	}
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "base_url", Message: "base URL is required"}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "api_key", Message: "API key is required"}
	}
	if config.Type == providers.TypeAzureOpenAI && config.APIVersion == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "api_version", Message: "api_version is required for azure_openai"}
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Adapter{config: config, variant: v}, nil
}

// Name returns the configured provider name.
func (a *Adapter) Name() string {
	return a.config.Name
}

// Type returns the provider type.
func (a *Adapter) Type() string {
	return a.config.Type
}

// BuildRequest translates canonical messages into a ChatRequest.
func (a *Adapter) BuildRequest(messages []llm.Message, opts *llm.Options, stream bool) (any, error) {
	if opts == nil {
		return nil, &providers.ValidationError{Field: "options", Message: "options are required"}
	}

	wire, err := a.convertMessages(messages)
	if err != nil {
		return nil, err
	}

	req := &ChatRequest{
		Model:    opts.Model,
		Messages: wire,
		Stream:   stream,
	}
	if !isReasoningModel(opts.Model) {
		req.Temperature = llm.Float64Ptr(opts.Temperature)
	}
	if opts.MaxTokens != nil {
		if a.variant.completionTokens {
			req.MaxCompletionTokens = llm.IntPtr(*opts.MaxTokens)
		} else {
			req.MaxTokens = llm.IntPtr(*opts.MaxTokens)
		}
	}
	if stream && a.variant.streamUsage {
		req.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	for _, tool := range opts.EnabledTools {
		req.Tools = append(req.Tools, a.convertTool(tool))
	}

	if opts.StructuredGeneration && a.SupportsStructuredGeneration(opts) {
		format := &JSONSchema{Name: "output", Schema: opts.OutputSchema}
		if a.variant.strictTools {
			format.Strict = boolPtr(true)
		}
		req.ResponseFormat = &ResponseFormat{Type: "json_schema", JSONSchema: format}
	}

	return req, nil
}

func (a *Adapter) convertMessages(messages []llm.Message) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0, len(messages))
	for i, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, ChatMessage{Role: llm.RoleSystem, Content: m.Content})

		case llm.RoleAssistant:
			msg := ChatMessage{Role: llm.RoleAssistant}
			if m.Content != "" {
				msg.Content = m.Content
			}
			for _, call := range m.ToolCallRequests {
				msg.ToolCalls = append(msg.ToolCalls, ChatToolCall{
					ID:   call.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      call.ToolName,
						Arguments: call.ArgumentsJSON(),
					},
				})
			}
			out = append(out, msg)

		case llm.RoleUser:
			// Each tool result is its own "tool" message, ahead of any text.
			for _, result := range m.ToolCallResults {
				out = append(out, ChatMessage{Role: "tool", ToolCallID: result.ID, Content: result.ResultText()})
			}
			if len(m.ToolCallResults) > 0 && m.Content == "" && len(m.Files) == 0 {
				continue
			}
			content, err := a.userContent(i, m)
			if err != nil {
				return nil, err
			}
			out = append(out, ChatMessage{Role: llm.RoleUser, Content: content})

		default:
			return nil, &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", m.Role),
			}
		}
	}
	return out, nil
}

// userContent returns a plain string for text-only messages and a part list
// when files are attached.
func (a *Adapter) userContent(index int, m llm.Message) (any, error) {
	if len(m.Files) == 0 {
		return m.Content, nil
	}

	parts := make([]ContentPart, 0, len(m.Files)+1)
	if m.Content != "" {
		parts = append(parts, ContentPart{Type: "text", Text: m.Content})
	}

	for j, f := range m.Files {
		field := fmt.Sprintf("messages[%d].files[%d]", index, j)
		switch {
		case f.IsImage():
			if !a.variant.images {
				return nil, a.unsupported("image input")
			}
			parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: f.DataURL()}})

		case f.IsAudio():
			if !a.variant.audio {
				return nil, a.unsupported("audio input")
			}
			if f.Data == "" {
				return nil, &providers.ValidationError{Field: field, Message: "audio must be inlined"}
			}
			parts = append(parts, ContentPart{Type: "input_audio", InputAudio: &InputAudio{Data: f.Data, Format: audioFormat(f)}})

		case f.IsPDF():
			if !a.variant.documents {
				return nil, a.unsupported("document input")
			}
			if f.Data == "" {
				return nil, &providers.ValidationError{Field: field, Message: "documents must be inlined"}
			}
			parts = append(parts, ContentPart{Type: "file", File: &FilePart{Filename: fmt.Sprintf("document-%d.pdf", j), FileData: f.DataURL()}})

		default:
			return nil, &providers.ValidationError{Field: field, Message: fmt.Sprintf("unsupported content type %q", f.ContentType)}
		}
	}
	return parts, nil
}

func (a *Adapter) unsupported(what string) *providers.ProviderError {
	return providers.NewProviderError(providers.CodeModelNotSupported, a.config.Name,
		fmt.Sprintf("%s is not supported by %s", what, a.config.Type))
}

func (a *Adapter) convertTool(tool llm.Tool) ChatTool {
	params := tool.InputSchema
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	def := FunctionDefinition{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  params,
	}
	if a.variant.strictTools && tool.Strict {
		def.Strict = boolPtr(true)
	}
	return ChatTool{Type: "function", Function: def}
}

// RequestURL returns the chat completions endpoint. Azure addresses a
// deployment rather than a model.
func (a *Adapter) RequestURL(model string, stream bool) (string, error) {
	if a.config.Type != providers.TypeAzureOpenAI {
		return a.config.BaseURL + "/chat/completions", nil
	}

	deployment := model
	if d, ok := a.config.Deployments[model]; ok {
		deployment = d
	}
	if deployment == "" {
		return "", &providers.ConfigError{Provider: a.config.Name, Field: "deployments", Message: "no deployment for empty model"}
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		a.config.BaseURL, url.PathEscape(deployment), url.QueryEscape(a.config.APIVersion)), nil
}

// RequestHeaders returns authentication headers.
func (a *Adapter) RequestHeaders(request any, endpoint, model string) (map[string]string, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	if a.config.Type == providers.TypeAzureOpenAI {
		headers["api-key"] = a.config.APIKey
	} else {
		headers["Authorization"] = "Bearer " + a.config.APIKey
	}
	if req, ok := request.(*ChatRequest); ok && req.Stream {
		headers["Accept"] = "text/event-stream"
	}
	return headers, nil
}

// DecodeResponse parses a chat.completion body.
func (a *Adapter) DecodeResponse(body []byte) (providers.Response, error) {
	var resp goopenai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &providers.ParseError{Provider: a.config.Name, RawResponse: string(body), Cause: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &providers.ParseError{Provider: a.config.Name, RawResponse: string(body), Cause: errors.New("no choices in response")}
	}
	return &response{provider: a.config.Name, raw: resp}, nil
}

// StreamDelimiter returns the SSE frame delimiter.
func (a *Adapter) StreamDelimiter() []byte {
	return []byte("\n\n")
}

// IsEndOfStream recognises the [DONE] sentinel.
func (a *Adapter) IsEndOfStream(event streaming.Event) bool {
	return event.IsDone()
}

// SupportsStructuredGeneration reports whether a json_schema response format
// can be sent. Chat Completions only accepts object roots.
func (a *Adapter) SupportsStructuredGeneration(opts *llm.Options) bool {
	if opts == nil || opts.OutputSchema == nil {
		return false
	}
	t, _ := opts.OutputSchema["type"].(string)
	return t == "object"
}

// UsesThinkingTags reports whether model inlines a <think> section.
func (a *Adapter) UsesThinkingTags(model string) bool {
	if !a.variant.thinkingTags {
		return false
	}
	model = strings.ToLower(model)
	for _, m := range thinkingModels {
		if strings.Contains(model, m) {
			return true
		}
	}
	return false
}

func isReasoningModel(model string) bool {
	for _, p := range reasoningModelPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func audioFormat(f llm.File) string {
	switch format := f.Format(); format {
	case "mpeg", "mp3":
		return "mp3"
	case "x-wav", "wave":
		return "wav"
	default:
		return format
	}
}

func boolPtr(v bool) *bool {
	return &v
}

var (
	_ providers.Adapter        = (*Adapter)(nil)
	_ providers.ThinkingTagger = (*Adapter)(nil)
	_ providers.EndOfStreamer  = (*Adapter)(nil)
)
