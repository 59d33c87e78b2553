package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

// StandardizeMessages converts Chat Completions messages back into canonical
// messages. Consecutive "tool" messages become one user turn carrying all
// their results.
func (a *Adapter) StandardizeMessages(wire json.RawMessage) (providers.StandardizeResult, error) {
	var result providers.StandardizeResult

	var messages []wireMessage
	if err := json.Unmarshal(wire, &messages); err != nil {
		return result, fmt.Errorf("failed to decode messages: %w", err)
	}

	toolNames := make(map[string]string)
	previousTool := false

	skip := func(index int, format string, args ...any) {
		result.Skipped = append(result.Skipped, providers.SkippedItem{Index: index, Reason: fmt.Sprintf(format, args...)})
	}

	for i, m := range messages {
		text, parts, err := m.parts()
		if err != nil {
			skip(i, "undecodable content: %v", err)
			previousTool = false
			continue
		}

		switch m.Role {
		case "system", "developer":
			result.Messages = append(result.Messages, llm.Message{Role: llm.RoleSystem, Content: joinText(text, parts)})

		case "user":
			msg := llm.Message{Role: llm.RoleUser, Content: text}
			var texts []string
			if text != "" {
				texts = append(texts, text)
			}
			for _, p := range parts {
				switch p.Type {
				case "text":
					texts = append(texts, p.Text)
				case "image_url":
					if p.ImageURL == nil {
						skip(i, "image part without url")
						continue
					}
					msg.Files = append(msg.Files, llm.FileFromURL(p.ImageURL.URL, "image/jpeg"))
				case "input_audio":
					if p.InputAudio == nil {
						skip(i, "audio part without data")
						continue
					}
					msg.Files = append(msg.Files, llm.File{ContentType: "audio/" + p.InputAudio.Format, Data: p.InputAudio.Data})
				case "file":
					if p.File == nil {
						skip(i, "file part without data")
						continue
					}
					msg.Files = append(msg.Files, llm.FileFromURL(p.File.FileData, "application/pdf"))
				default:
					skip(i, "unsupported content part %q", p.Type)
				}
			}
			msg.Content = strings.Join(texts, "\n")
			result.Messages = append(result.Messages, msg)

		case "assistant":
			msg := llm.Message{Role: llm.RoleAssistant, Content: joinText(text, parts)}
			for _, tc := range m.ToolCalls {
				input, err := parseArguments(tc.Function.Arguments)
				if err != nil {
					skip(i, "invalid arguments for tool call %q", tc.ID)
					continue
				}
				toolNames[tc.ID] = tc.Function.Name
				msg.ToolCallRequests = append(msg.ToolCallRequests, llm.ToolCallRequest{
					ID:        tc.ID,
					ToolName:  tc.Function.Name,
					ToolInput: input,
				})
			}
			if msg.Content == "" && len(msg.ToolCallRequests) == 0 {
				skip(i, "empty assistant message")
				break
			}
			result.Messages = append(result.Messages, msg)

		case "tool":
			toolResult := llm.ToolCallResult{
				ID:       m.ToolCallID,
				ToolName: toolNames[m.ToolCallID],
				Result:   joinText(text, parts),
			}
			if n := len(result.Messages); previousTool && n > 0 {
				last := &result.Messages[n-1]
				last.ToolCallResults = append(last.ToolCallResults, toolResult)
			} else {
				result.Messages = append(result.Messages, llm.Message{
					Role:            llm.RoleUser,
					ToolCallResults: []llm.ToolCallResult{toolResult},
				})
			}

		default:
			skip(i, "unknown role %q", m.Role)
		}

		previousTool = m.Role == "tool"
	}

	return result, nil
}

// joinText flattens text parts; non-text parts are ignored.
func joinText(text string, parts []ContentPart) string {
	if len(parts) == 0 {
		return text
	}
	texts := make([]string, 0, len(parts)+1)
	if text != "" {
		texts = append(texts, text)
	}
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
