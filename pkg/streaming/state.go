package streaming

import (
	"strings"

	"mercator-hq/relay/pkg/llm"
)

// Delta is what an adapter extracts from one SSE frame.
type Delta struct {
	// Content is a fragment of completion text
	Content string

	// Reasoning is a fragment of reasoning text carried in a dedicated field
	Reasoning string

	// ToolCalls are tool calls completed by this frame
	ToolCalls []llm.ToolCallRequest
}

// Empty reports whether the delta carries nothing.
func (d Delta) Empty() bool {
	return d.Content == "" && d.Reasoning == "" && len(d.ToolCalls) == 0
}

// State is the per-stream reconstruction context. It is created fresh for
// every stream and threaded through each frame, so concurrent or cancelled
// streams never share state.
type State struct {
	Buffers *ToolCallBuffers

	thinking  *ThinkingTracker
	content   strings.Builder
	reasoning strings.Builder
	toolCalls []llm.ToolCallRequest
	skipped   []SkippedToolCall
}

// StateOption configures a State.
type StateOption func(*State)

// WithThinkingTags enables inline thinking-section tracking.
func WithThinkingTags(openTag, closeTag string) StateOption {
	return func(s *State) {
		s.thinking = NewThinkingTracker(openTag, closeTag)
	}
}

// NewState creates a fresh per-stream state.
func NewState(opts ...StateOption) *State {
	s := &State{Buffers: NewToolCallBuffers()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply folds a delta into the accumulated state and reports whether content,
// reasoning or the set of completed tool calls changed.
func (s *State) Apply(d Delta) bool {
	changed := false

	content, reasoning := d.Content, d.Reasoning
	if s.thinking != nil && content != "" {
		var inline string
		content, inline = s.thinking.Feed(content)
		reasoning += inline
	}

	if content != "" {
		s.content.WriteString(content)
		changed = true
	}
	if reasoning != "" {
		s.reasoning.WriteString(reasoning)
		changed = true
	}
	if len(d.ToolCalls) > 0 {
		s.toolCalls = append(s.toolCalls, d.ToolCalls...)
		changed = true
	}
	return changed
}

// Finish flushes held-back thinking text and any argument-less tool calls.
// It reports whether anything changed.
func (s *State) Finish() bool {
	changed := false
	if s.thinking != nil {
		content, reasoning := s.thinking.Flush()
		if content != "" || reasoning != "" {
			s.content.WriteString(content)
			s.reasoning.WriteString(reasoning)
			changed = true
		}
	}

	flushed, skipped := s.Buffers.Flush()
	if len(flushed) > 0 {
		s.toolCalls = append(s.toolCalls, flushed...)
		changed = true
	}
	s.skipped = append(s.skipped, skipped...)
	return changed
}

// Content returns the accumulated completion text.
func (s *State) Content() string {
	return s.content.String()
}

// Reasoning returns the accumulated reasoning text.
func (s *State) Reasoning() string {
	return s.reasoning.String()
}

// ToolCalls returns every completed tool call in completion order.
func (s *State) ToolCalls() []llm.ToolCallRequest {
	return s.toolCalls
}

// AnyToolCalls reports whether any tool call was buffered, complete or not.
func (s *State) AnyToolCalls() bool {
	return s.Buffers.Any() || len(s.toolCalls) > 0
}

// Skipped returns tool calls dropped at Finish.
func (s *State) Skipped() []SkippedToolCall {
	return s.skipped
}

// ThinkingState returns the inline thinking state, or NotYetThinking when
// tracking is disabled.
func (s *State) ThinkingState() ThinkingState {
	if s.thinking == nil {
		return NotYetThinking
	}
	return s.thinking.State()
}
