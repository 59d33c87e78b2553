package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

// StandardizeMessages converts Gemini contents back into canonical messages.
// wire is either the contents array or a full request object, in which case
// the system instruction becomes a leading system message.
//
// Function calls usually lack ids, so each one gets a fresh id and responses
// are matched to the oldest unanswered call with the same name.
func (a *Adapter) StandardizeMessages(wire json.RawMessage) (providers.StandardizeResult, error) {
	var result providers.StandardizeResult

	var contents []Content
	if err := json.Unmarshal(wire, &contents); err != nil {
		var req GenerateRequest
		if err := json.Unmarshal(wire, &req); err != nil {
			return result, fmt.Errorf("failed to decode contents: %w", err)
		}
		if req.SystemInstruction != nil {
			if system := joinParts(req.SystemInstruction.Parts); system != "" {
				result.Messages = append(result.Messages, llm.Message{Role: llm.RoleSystem, Content: system})
			}
		}
		contents = req.Contents
	}

	skip := func(index int, format string, args ...any) {
		result.Skipped = append(result.Skipped, providers.SkippedItem{Index: index, Reason: fmt.Sprintf(format, args...)})
	}

	pending := make(map[string][]string)
	previousResultsOnly := false

	for i, c := range contents {
		switch c.Role {
		case "user", "":
			msg := llm.Message{Role: llm.RoleUser}
			var texts []string
			for _, p := range c.Parts {
				switch {
				case p.FunctionResponse != nil:
					msg.ToolCallResults = append(msg.ToolCallResults, functionResult(p.FunctionResponse, pending))
				case p.InlineData != nil:
					msg.Files = append(msg.Files, llm.File{ContentType: p.InlineData.MimeType, Data: p.InlineData.Data})
				case p.FileData != nil:
					msg.Files = append(msg.Files, llm.File{ContentType: p.FileData.MimeType, URL: p.FileData.FileURI})
				case p.Text != "":
					texts = append(texts, p.Text)
				}
			}
			msg.Content = strings.Join(texts, "\n")

			resultsOnly := msg.Content == "" && len(msg.Files) == 0 && len(msg.ToolCallResults) > 0
			if n := len(result.Messages); resultsOnly && previousResultsOnly && n > 0 {
				last := &result.Messages[n-1]
				last.ToolCallResults = append(last.ToolCallResults, msg.ToolCallResults...)
			} else {
				result.Messages = append(result.Messages, msg)
			}
			previousResultsOnly = resultsOnly
			continue

		case "model":
			msg := llm.Message{Role: llm.RoleAssistant}
			var texts []string
			for _, p := range c.Parts {
				switch {
				case p.FunctionCall != nil:
					id := p.FunctionCall.ID
					if id == "" {
						id = uuid.NewString()
					}
					pending[p.FunctionCall.Name] = append(pending[p.FunctionCall.Name], id)
					args := p.FunctionCall.Args
					if args == nil {
						args = map[string]any{}
					}
					msg.ToolCallRequests = append(msg.ToolCallRequests, llm.ToolCallRequest{ID: id, ToolName: p.FunctionCall.Name, ToolInput: args})
				case p.Thought:
				case p.InlineData != nil || p.FileData != nil:
					skip(i, "model turns cannot carry files")
				default:
					texts = append(texts, p.Text)
				}
			}
			msg.Content = strings.Join(texts, "")
			result.Messages = append(result.Messages, msg)

		default:
			skip(i, "unknown role %q", c.Role)
		}
		previousResultsOnly = false
	}

	return result, nil
}

func functionResult(fr *FunctionResponse, pending map[string][]string) llm.ToolCallResult {
	id := fr.ID
	if queue := pending[fr.Name]; len(queue) > 0 {
		if id == "" {
			id = queue[0]
		}
		pending[fr.Name] = queue[1:]
	}
	r := llm.ToolCallResult{ID: id, ToolName: fr.Name}
	if e, ok := fr.Response["error"]; ok {
		r.Error = fmt.Sprint(e)
		return r
	}
	if v, ok := fr.Response["result"]; ok {
		r.Result = v
	} else {
		r.Result = fr.Response
	}
	return r
}

func joinParts(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}
