package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

const vertexGlobalHost = "https://aiplatform.googleapis.com"

// Models that return thought summaries when asked.
var thinkingModelPrefixes = []string{"gemini-2.5", "gemini-3"}

// Adapter speaks the Gemini generateContent API, either through AI Studio
// (API key in the query string) or Vertex AI (bearer token).
type Adapter struct {
	config providers.ProviderConfig
}

// NewAdapter creates an adapter for one configured provider.
func NewAdapter(config providers.ProviderConfig) (*Adapter, error) {
	switch config.Type {
	case providers.TypeGemini:
		if config.BaseURL == "" {
			return nil, &providers.ConfigError{Provider: config.Name, Field: "base_url", Message: "base URL is required"}
		}
	case providers.TypeVertex:
		if config.Project == "" {
			return nil, &providers.ConfigError{Provider: config.Name, Field: "project", Message: "project is required for vertex"}
		}
		if config.Region == "" {
			return nil, &providers.ConfigError{Provider: config.Name, Field: "region", Message: "region is required for vertex"}
		}
	default:
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "type",
			Message:  fmt.Sprintf("type %q is not served by the gemini adapter", config.Type),
		}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "api_key", Message: "API key is required"}
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

// BuildRequest translates canonical messages into a GenerateRequest.
func (a *Adapter) BuildRequest(messages []llm.Message, opts *llm.Options, stream bool) (any, error) {
	if opts == nil {
		return nil, &providers.ValidationError{Field: "options", Message: "options are required"}
	}

	req := &GenerateRequest{
		GenerationConfig: &GenerationConfig{
			Temperature:     llm.Float64Ptr(opts.Temperature),
			MaxOutputTokens: opts.MaxTokens,
		},
		stream: stream,
	}

	var system []Part
	for i, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if m.Content != "" {
				system = append(system, Part{Text: m.Content})
			}
		case llm.RoleUser:
			content, err := a.userContent(i, m)
			if err != nil {
				return nil, err
			}
			req.Contents = append(req.Contents, content)
		case llm.RoleAssistant:
			req.Contents = append(req.Contents, modelContent(m))
		default:
			return nil, &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", m.Role),
			}
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &Content{Parts: system}
	}
	if len(req.Contents) == 0 {
		return nil, &providers.ValidationError{Field: "messages", Message: "at least one non-system message is required"}
	}

	if len(opts.EnabledTools) > 0 {
		decls := make([]FunctionDeclaration, 0, len(opts.EnabledTools))
		for _, tool := range opts.EnabledTools {
			decl := FunctionDeclaration{Name: tool.Name, Description: tool.Description}
			if tool.InputSchema != nil {
				decl.Parameters = responseSchema(tool.InputSchema)
			}
			decls = append(decls, decl)
		}
		req.Tools = []ToolDecl{{FunctionDeclarations: decls}}
	}

	if opts.StructuredGeneration && a.SupportsStructuredGeneration(opts) {
		req.GenerationConfig.ResponseMimeType = "application/json"
		req.GenerationConfig.ResponseSchema = responseSchema(opts.OutputSchema)
	}

	if isThinkingModel(opts.Model) {
		req.GenerationConfig.ThinkingConfig = &ThinkingConfig{IncludeThoughts: true}
	}

	return req, nil
}

func isThinkingModel(model string) bool {
	for _, prefix := range thinkingModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// userContent places function responses first, then text, then attachments.
func (a *Adapter) userContent(index int, m llm.Message) (Content, error) {
	content := Content{Role: "user"}
	for _, r := range m.ToolCallResults {
		response := map[string]any{"result": r.Result}
		if r.Error != "" {
			response = map[string]any{"error": r.Error}
		}
		content.Parts = append(content.Parts, Part{
			FunctionResponse: &FunctionResponse{ID: r.ID, Name: r.ToolName, Response: response},
		})
	}
	if m.Content != "" {
		content.Parts = append(content.Parts, Part{Text: m.Content})
	}
	for j, f := range m.Files {
		if !f.IsImage() && !f.IsAudio() && !f.IsPDF() {
			return Content{}, &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].files[%d]", index, j),
				Message: fmt.Sprintf("unsupported content type %q", f.ContentType),
			}
		}
		if f.Data != "" {
			content.Parts = append(content.Parts, Part{InlineData: &Blob{MimeType: f.ContentType, Data: f.Data}})
		} else {
			content.Parts = append(content.Parts, Part{FileData: &FileData{MimeType: f.ContentType, FileURI: f.URL}})
		}
	}
	if len(content.Parts) == 0 {
		content.Parts = []Part{{Text: ""}}
	}
	return content, nil
}

func modelContent(m llm.Message) Content {
	content := Content{Role: "model"}
	if m.Content != "" {
		content.Parts = append(content.Parts, Part{Text: m.Content})
	}
	for _, call := range m.ToolCallRequests {
		args := call.ToolInput
		if args == nil {
			args = map[string]any{}
		}
		content.Parts = append(content.Parts, Part{FunctionCall: &FunctionCall{ID: call.ID, Name: call.ToolName, Args: args}})
	}
	if len(content.Parts) == 0 {
		content.Parts = []Part{{Text: ""}}
	}
	return content
}

// RequestURL returns the generateContent or streamGenerateContent endpoint.
// AI Studio authenticates with the key query parameter.
func (a *Adapter) RequestURL(model string, stream bool) (string, error) {
	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}

	if a.config.Type == providers.TypeVertex {
		base := a.config.BaseURL
		if base == "" {
			base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", a.config.Region)
			if a.config.Region == "global" {
				base = vertexGlobalHost
			}
		}
		endpoint := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
			base, url.PathEscape(a.config.Project), url.PathEscape(a.config.Region), url.PathEscape(model), method)
		if stream {
			endpoint += "?alt=sse"
		}
		return endpoint, nil
	}

	query := url.Values{}
	if stream {
		query.Set("alt", "sse")
	}
	query.Set("key", a.config.APIKey)
	return fmt.Sprintf("%s/models/%s:%s?%s", a.config.BaseURL, url.PathEscape(model), method, query.Encode()), nil
}

// RequestHeaders returns the bearer token for Vertex; AI Studio carries its
// key in the URL.
func (a *Adapter) RequestHeaders(request any, endpoint, model string) (map[string]string, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	if a.config.Type == providers.TypeVertex {
		headers["Authorization"] = "Bearer " + a.config.APIKey
	}
	if req, ok := request.(*GenerateRequest); ok && req.stream {
		headers["Accept"] = "text/event-stream"
	}
	return headers, nil
}

// DecodeResponse parses a non-streamed response. Function calls without an
// id are assigned one here.
func (a *Adapter) DecodeResponse(body []byte) (providers.Response, error) {
	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &providers.ParseError{Provider: a.config.Name, RawResponse: string(body), Cause: err}
	}
	if resp.Error != nil {
		return nil, &providers.ParseError{Provider: a.config.Name, RawResponse: string(body), Cause: errors.New("error object in successful response")}
	}
	assignCallIDs(&resp)
	return &response{provider: a.config.Name, raw: resp}, nil
}

// StreamDelimiter returns the SSE frame delimiter.
func (a *Adapter) StreamDelimiter() []byte {
	return []byte("\r\n\r\n")
}

// SupportsStructuredGeneration reports whether the output schema can be sent
// as a responseSchema. Schemas using references cannot be expressed in the
// OpenAPI subset Gemini accepts.
func (a *Adapter) SupportsStructuredGeneration(opts *llm.Options) bool {
	if opts == nil || opts.OutputSchema == nil {
		return false
	}
	return !usesReferences(opts.OutputSchema)
}

var _ providers.Adapter = (*Adapter)(nil)
