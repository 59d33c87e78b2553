package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

// StandardizeMessages converts Messages API turns back into canonical
// messages. wire is either the messages array or a full request object, in
// which case the hoisted system prompt becomes a leading system message.
// tool_result blocks are split out into ToolCallResults; consecutive user
// turns made only of tool results are merged.
func (a *Adapter) StandardizeMessages(wire json.RawMessage) (providers.StandardizeResult, error) {
	var result providers.StandardizeResult

	var messages []wireMessage
	if err := json.Unmarshal(wire, &messages); err != nil {
		var req struct {
			System   json.RawMessage `json:"system"`
			Messages []wireMessage   `json:"messages"`
		}
		if err := json.Unmarshal(wire, &req); err != nil {
			return result, fmt.Errorf("failed to decode messages: %w", err)
		}
		if system := resultText(req.System); system != "" {
			result.Messages = append(result.Messages, llm.Message{Role: llm.RoleSystem, Content: system})
		}
		messages = req.Messages
	}

	skip := func(index int, format string, args ...any) {
		result.Skipped = append(result.Skipped, providers.SkippedItem{Index: index, Reason: fmt.Sprintf(format, args...)})
	}

	toolNames := make(map[string]string)
	previousResultsOnly := false

	for i, m := range messages {
		blocks, err := m.blocks()
		if err != nil {
			skip(i, "undecodable content: %v", err)
			previousResultsOnly = false
			continue
		}

		switch m.Role {
		case llm.RoleUser:
			msg := llm.Message{Role: llm.RoleUser}
			var texts []string
			for _, b := range blocks {
				switch b.Type {
				case "text":
					texts = append(texts, b.Text)
				case "tool_result":
					r := llm.ToolCallResult{ID: b.ToolUseID, ToolName: toolNames[b.ToolUseID]}
					text := resultText(b.Content)
					if b.IsError {
						r.Error = strings.TrimPrefix(text, "Error: ")
					} else {
						r.Result = text
					}
					msg.ToolCallResults = append(msg.ToolCallResults, r)
				case "image", "document":
					if b.Source == nil {
						skip(i, "%s block without source", b.Type)
						continue
					}
					msg.Files = append(msg.Files, sourceFile(b))
				default:
					skip(i, "unsupported block %q", b.Type)
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

		case llm.RoleAssistant:
			msg := llm.Message{Role: llm.RoleAssistant}
			var texts []string
			for _, b := range blocks {
				switch b.Type {
				case "text":
					texts = append(texts, b.Text)
				case "tool_use":
					input, err := decodeInput(b.Input)
					if err != nil {
						skip(i, "invalid input for tool call %q", b.ID)
						continue
					}
					toolNames[b.ID] = b.Name
					msg.ToolCallRequests = append(msg.ToolCallRequests, llm.ToolCallRequest{ID: b.ID, ToolName: b.Name, ToolInput: input})
				case "thinking", "redacted_thinking":
					// Reasoning is not part of the canonical history.
				default:
					skip(i, "unsupported block %q", b.Type)
				}
			}
			msg.Content = strings.Join(texts, "")
			result.Messages = append(result.Messages, msg)

		default:
			skip(i, "unknown role %q", m.Role)
		}
		previousResultsOnly = false
	}

	return result, nil
}

func sourceFile(b ContentBlock) llm.File {
	if b.Source.Type == "url" {
		fallback := "image/jpeg"
		if b.Type == "document" {
			fallback = "application/pdf"
		}
		return llm.File{ContentType: fallback, URL: b.Source.URL}
	}
	return llm.File{ContentType: b.Source.MediaType, Data: b.Source.Data}
}
