package llm

// LLMUsage is the canonical token and cost accounting for one provider attempt.
// Every counter is nullable so that "not reported" is distinguishable from zero.
type LLMUsage struct {
	PromptTokens       *int `json:"prompt_token_count,omitempty"`
	CompletionTokens   *int `json:"completion_token_count,omitempty"`
	CachedPromptTokens *int `json:"prompt_token_count_cached,omitempty"`
	ReasoningTokens    *int `json:"reasoning_token_count,omitempty"`

	PromptImageCount     *int     `json:"prompt_image_count,omitempty"`
	PromptAudioDuration  *float64 `json:"prompt_audio_duration_seconds,omitempty"`
	PromptAudioTokens    *int     `json:"prompt_audio_token_count,omitempty"`
	CompletionImageCount *int     `json:"completion_image_count,omitempty"`

	PromptCostUSD     *float64 `json:"prompt_cost_usd,omitempty"`
	CompletionCostUSD *float64 `json:"completion_cost_usd,omitempty"`

	ModelContextWindowSize *int `json:"model_context_window_size,omitempty"`
}

// Merge overwrites the fields set on other.
func (u *LLMUsage) Merge(other *LLMUsage) {
	if other == nil {
		return
	}
	mergeInt(&u.PromptTokens, other.PromptTokens)
	mergeInt(&u.CompletionTokens, other.CompletionTokens)
	mergeInt(&u.CachedPromptTokens, other.CachedPromptTokens)
	mergeInt(&u.ReasoningTokens, other.ReasoningTokens)
	mergeInt(&u.PromptImageCount, other.PromptImageCount)
	mergeFloat(&u.PromptAudioDuration, other.PromptAudioDuration)
	mergeInt(&u.PromptAudioTokens, other.PromptAudioTokens)
	mergeInt(&u.CompletionImageCount, other.CompletionImageCount)
	mergeFloat(&u.PromptCostUSD, other.PromptCostUSD)
	mergeFloat(&u.CompletionCostUSD, other.CompletionCostUSD)
	mergeInt(&u.ModelContextWindowSize, other.ModelContextWindowSize)
}

// HasTokenCounts reports whether both prompt and completion counts are known.
func (u *LLMUsage) HasTokenCounts() bool {
	return u.PromptTokens != nil && u.CompletionTokens != nil
}

// TotalCost returns prompt plus completion cost. Unknown parts count as zero.
func (u *LLMUsage) TotalCost() float64 {
	total := 0.0
	if u.PromptCostUSD != nil {
		total += *u.PromptCostUSD
	}
	if u.CompletionCostUSD != nil {
		total += *u.CompletionCostUSD
	}
	return total
}

// Value returns the pointed-to integer, or zero.
func Value(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func mergeInt(dst **int, src *int) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// RawCompletion is owned by the caller and passed by pointer into the engine
// so that the raw text and usage survive a failed attempt.
type RawCompletion struct {
	// Response is the raw completion text, kept for diagnostics even on failure
	Response string `json:"response"`

	// Usage accumulates token counts and costs
	Usage LLMUsage `json:"usage"`

	// FinishReason is the vendor finish reason, normalized when possible
	FinishReason string `json:"finish_reason,omitempty"`
}
