package llm

// ReasoningStep is one block of model reasoning.
type ReasoningStep struct {
	Title       string `json:"title,omitempty"`
	Explanation string `json:"explanation"`
}

// StructuredOutput is the unit yielded by both completion paths. A stream
// yields a sequence of non-final values followed by one final value.
type StructuredOutput struct {
	// Output is the decoded JSON value (nil while nothing parseable has arrived)
	Output any `json:"output"`

	// ReasoningSteps holds reasoning emitted alongside the output
	ReasoningSteps []ReasoningStep `json:"reasoning_steps,omitempty"`

	// ToolCalls holds completed tool invocations
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`

	// Final is set on the last value of a stream and on synchronous results
	Final bool `json:"final,omitempty"`
}

// ReasoningText joins reasoning explanations.
func (o *StructuredOutput) ReasoningText() string {
	if o == nil {
		return ""
	}
	s := ""
	for i, step := range o.ReasoningSteps {
		if i > 0 {
			s += "\n"
		}
		s += step.Explanation
	}
	return s
}
