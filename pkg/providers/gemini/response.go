package gemini

import (
	"strings"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

// Finish reasons that mean the candidate was withheld by safety filtering.
var moderationReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"RECITATION":         true,
	"IMAGE_SAFETY":       true,
}

// response wraps a decoded generateContent response.
type response struct {
	provider string
	raw      GenerateResponse
}

func (r *response) candidate() *Candidate {
	if len(r.raw.Candidates) == 0 {
		return nil
	}
	return &r.raw.Candidates[0]
}

func (r *response) Content() (string, error) {
	if err := blockedError(r.provider, &r.raw); err != nil {
		return "", err
	}
	c := r.candidate()
	if c == nil {
		return "", providers.NewProviderError(providers.CodeFailedGeneration, r.provider, "response contained no candidates")
	}

	content, hasCalls := candidateText(c)
	switch {
	case c.FinishReason == "MALFORMED_FUNCTION_CALL":
		return "", providers.NewProviderError(providers.CodeFailedGeneration, r.provider, "model produced a malformed function call")
	case c.FinishReason == "MAX_TOKENS" && content == "" && !hasCalls:
		return "", providers.NewProviderError(providers.CodeMaxTokensExceeded, r.provider, "completion hit maxOutputTokens before producing output")
	}
	return content, nil
}

func (r *response) ReasoningSteps() []llm.ReasoningStep {
	c := r.candidate()
	if c == nil || c.Content == nil {
		return nil
	}
	var steps []llm.ReasoningStep
	for _, p := range c.Content.Parts {
		if p.Thought && p.Text != "" {
			steps = append(steps, llm.ReasoningStep{Explanation: p.Text})
		}
	}
	return steps
}

func (r *response) ToolCalls() ([]llm.ToolCallRequest, error) {
	c := r.candidate()
	if c == nil || c.Content == nil {
		return nil, nil
	}
	var calls []llm.ToolCallRequest
	for _, p := range c.Content.Parts {
		if p.FunctionCall == nil {
			continue
		}
		args := p.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, llm.ToolCallRequest{ID: p.FunctionCall.ID, ToolName: p.FunctionCall.Name, ToolInput: args})
	}
	return calls, nil
}

func (r *response) Usage() *llm.LLMUsage {
	return convertUsage(r.raw.UsageMetadata)
}

func (r *response) FinishReason() string {
	if c := r.candidate(); c != nil {
		return normalizeFinishReason(c.FinishReason)
	}
	return ""
}

// candidateText joins the non-thought text parts.
func candidateText(c *Candidate) (string, bool) {
	if c.Content == nil {
		return "", false
	}
	var b strings.Builder
	hasCalls := false
	for _, p := range c.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			hasCalls = true
		case !p.Thought:
			b.WriteString(p.Text)
		}
	}
	return b.String(), hasCalls
}

// blockedError reports a prompt block or a safety-filtered candidate.
func blockedError(provider string, resp *GenerateResponse) *providers.ProviderError {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return providers.NewProviderError(providers.CodeContentModeration, provider,
			"prompt blocked: "+resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && moderationReasons[resp.Candidates[0].FinishReason] {
		return providers.NewProviderError(providers.CodeContentModeration, provider,
			"candidate blocked: "+resp.Candidates[0].FinishReason)
	}
	return nil
}

// assignCallIDs gives every function call an id; Gemini usually omits them.
func assignCallIDs(resp *GenerateResponse) {
	for i := range resp.Candidates {
		content := resp.Candidates[i].Content
		if content == nil {
			continue
		}
		for j := range content.Parts {
			if call := content.Parts[j].FunctionCall; call != nil && call.ID == "" {
				call.ID = uuid.NewString()
			}
		}
	}
}

// convertUsage maps usage metadata. Thought tokens are billed as output, so
// they are added to the completion count and reported separately.
func convertUsage(u *UsageMetadata) *llm.LLMUsage {
	if u == nil || (u.PromptTokenCount == 0 && u.CandidatesTokenCount == 0 && u.ThoughtsTokenCount == 0) {
		return nil
	}
	usage := &llm.LLMUsage{
		PromptTokens:     llm.IntPtr(u.PromptTokenCount),
		CompletionTokens: llm.IntPtr(u.CandidatesTokenCount + u.ThoughtsTokenCount),
	}
	if u.CachedContentTokenCount > 0 {
		usage.CachedPromptTokens = llm.IntPtr(u.CachedContentTokenCount)
	}
	if u.ThoughtsTokenCount > 0 {
		usage.ReasoningTokens = llm.IntPtr(u.ThoughtsTokenCount)
	}
	return usage
}

// normalizeFinishReason maps Gemini finish reasons to provider-agnostic values.
func normalizeFinishReason(reason string) string {
	switch {
	case reason == "":
		return ""
	case reason == "STOP":
		return providers.FinishReasonStop
	case reason == "MAX_TOKENS":
		return providers.FinishReasonLength
	case moderationReasons[reason]:
		return providers.FinishReasonContentFilter
	default:
		return strings.ToLower(reason)
	}
}
