package llm

import (
	"encoding/json"
	"strings"
)

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single canonical conversation turn.
type Message struct {
	// Role identifies the sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the text content of the message
	Content string `json:"content,omitempty"`

	// Files are attachments in the order they were provided
	Files []File `json:"files,omitempty"`

	// ToolCallRequests are tool invocations the model asked the caller to run
	ToolCallRequests []ToolCallRequest `json:"tool_call_requests,omitempty"`

	// ToolCallResults are the outputs of previously requested tool calls
	ToolCallResults []ToolCallResult `json:"tool_call_results,omitempty"`
}

// File is a typed attachment. Exactly one of Data or URL is expected to be set.
type File struct {
	// ContentType is the MIME type (image/png, audio/wav, application/pdf, ...)
	ContentType string `json:"content_type"`

	// Data is the base64 encoded file content
	Data string `json:"data,omitempty"`

	// URL points at the file when it is not inlined
	URL string `json:"url,omitempty"`
}

// IsImage reports whether the file is an image.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}

// IsAudio reports whether the file is an audio clip.
func (f File) IsAudio() bool {
	return strings.HasPrefix(f.ContentType, "audio/")
}

// IsPDF reports whether the file is a PDF document.
func (f File) IsPDF() bool {
	return f.ContentType == "application/pdf"
}

// DataURL returns the file as a data: URL when it is inlined, or its URL otherwise.
func (f File) DataURL() string {
	if f.Data != "" {
		return "data:" + f.ContentType + ";base64," + f.Data
	}
	return f.URL
}

// FileFromURL builds a File from a data: URL or a remote URL. Remote URLs
// take fallbackType as their content type.
func FileFromURL(url, fallbackType string) File {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return File{ContentType: fallbackType, URL: url}
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return File{ContentType: fallbackType, URL: url}
	}
	contentType, _, _ := strings.Cut(meta, ";")
	if contentType == "" {
		contentType = fallbackType
	}
	return File{ContentType: contentType, Data: data}
}

// Format returns the subtype of the content type ("png" for "image/png").
func (f File) Format() string {
	_, sub, _ := strings.Cut(f.ContentType, "/")
	return sub
}

// ToolCallRequest is a completed tool invocation requested by the model.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input_dict"`
}

// ArgumentsJSON returns the tool input encoded as a JSON object.
func (r ToolCallRequest) ArgumentsJSON() string {
	if r.ToolInput == nil {
		return "{}"
	}
	b, err := json.Marshal(r.ToolInput)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ToolCallResult is the output of a tool call previously requested by the model.
type ToolCallResult struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input_dict,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ResultText renders the result (or the error) as text for vendors that only
// accept string tool outputs.
func (r ToolCallResult) ResultText() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	switch v := r.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Tool is a function the model may call.
type Tool struct {
	// Name is the function name
	Name string `json:"name"`

	// Description explains what the function does
	Description string `json:"description,omitempty"`

	// InputSchema is a JSON Schema object describing the arguments
	InputSchema map[string]any `json:"input_schema,omitempty"`

	// Strict asks the vendor to enforce the schema when supported
	Strict bool `json:"strict,omitempty"`
}

// ImageCount returns the number of image attachments across messages.
func ImageCount(messages []Message) int {
	n := 0
	for _, m := range messages {
		for _, f := range m.Files {
			if f.IsImage() {
				n++
			}
		}
	}
	return n
}
