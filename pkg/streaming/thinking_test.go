package streaming

import (
	"testing"

	"mercator-hq/relay/pkg/llm"
)

func feedAll(tr *ThinkingTracker, fragments []string) (string, string) {
	var content, reasoning string
	for _, f := range fragments {
		c, r := tr.Feed(f)
		content += c
		reasoning += r
	}
	c, r := tr.Flush()
	return content + c, reasoning + r
}

func TestThinkingTracker(t *testing.T) {
	tests := []struct {
		name          string
		fragments     []string
		wantContent   string
		wantReasoning string
		wantState     ThinkingState
	}{
		{
			name:          "whole tags in one frame",
			fragments:     []string{"<think>plan</think>{\"a\":1}"},
			wantContent:   `{"a":1}`,
			wantReasoning: "plan",
			wantState:     PastThinking,
		},
		{
			name:          "open tag straddles frames",
			fragments:     []string{"<th", "ink>plan</think>ok"},
			wantContent:   "ok",
			wantReasoning: "plan",
			wantState:     PastThinking,
		},
		{
			name:          "close tag straddles three frames",
			fragments:     []string{"<think>step one", "</thi", "nk", ">done"},
			wantContent:   "done",
			wantReasoning: "step one",
			wantState:     PastThinking,
		},
		{
			name:          "partial match refuted",
			fragments:     []string{"a <th", "ree> b"},
			wantContent:   "a <three> b",
			wantReasoning: "",
			wantState:     NotYetThinking,
		},
		{
			name:          "no tags",
			fragments:     []string{"plain ", "text"},
			wantContent:   "plain text",
			wantReasoning: "",
			wantState:     NotYetThinking,
		},
		{
			name:          "unterminated thinking",
			fragments:     []string{"<think>still going</th"},
			wantContent:   "",
			wantReasoning: "still going</th",
			wantState:     Thinking,
		},
		{
			name:          "tags after thinking are content",
			fragments:     []string{"<think>x</think>", "<think>y</think>"},
			wantContent:   "<think>y</think>",
			wantReasoning: "x",
			wantState:     PastThinking,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewThinkingTracker("", "")
			content, reasoning := feedAll(tr, tt.fragments)
			if content != tt.wantContent {
				t.Errorf("expected content %q, got %q", tt.wantContent, content)
			}
			if reasoning != tt.wantReasoning {
				t.Errorf("expected reasoning %q, got %q", tt.wantReasoning, reasoning)
			}
			if tr.State() != tt.wantState {
				t.Errorf("expected state %s, got %s", tt.wantState, tr.State())
			}
		})
	}
}

func TestThinkingTrackerHoldsBackPartialTag(t *testing.T) {
	tr := NewThinkingTracker("", "")

	c, r := tr.Feed("hello <thi")
	if c != "hello " || r != "" {
		t.Errorf("expected held-back tail, got content=%q reasoning=%q", c, r)
	}
	if tr.State() != NotYetThinking {
		t.Errorf("expected not-yet-thinking, got %s", tr.State())
	}

	c, r = tr.Feed("nk>why")
	if c != "" || r != "why" {
		t.Errorf("expected reasoning after tag, got content=%q reasoning=%q", c, r)
	}
	if tr.State() != Thinking {
		t.Errorf("expected thinking, got %s", tr.State())
	}
}

func TestStateApply(t *testing.T) {
	s := NewState(WithThinkingTags("", ""))

	if !s.Apply(Delta{Content: "<think>plan"}) {
		t.Error("expected reasoning change")
	}
	if s.Apply(Delta{Content: "</thi"}) {
		t.Error("expected no visible change while tag is pending")
	}
	if !s.Apply(Delta{Content: "nk>{}"}) {
		t.Error("expected content change")
	}
	if !s.Apply(Delta{ToolCalls: []llm.ToolCallRequest{{ID: "1", ToolName: "x"}}}) {
		t.Error("expected tool call change")
	}
	if s.Apply(Delta{}) {
		t.Error("expected empty delta to change nothing")
	}

	if s.Content() != "{}" {
		t.Errorf("expected content {}, got %q", s.Content())
	}
	if s.Reasoning() != "plan" {
		t.Errorf("expected reasoning plan, got %q", s.Reasoning())
	}
	if len(s.ToolCalls()) != 1 || !s.AnyToolCalls() {
		t.Errorf("expected one tool call, got %+v", s.ToolCalls())
	}
}

func TestStateFinishFlushesBuffers(t *testing.T) {
	s := NewState()
	s.Buffers.Apply(0, "id", "ping", "")

	if !s.Finish() {
		t.Fatal("expected flush to report a change")
	}
	if len(s.ToolCalls()) != 1 || s.ToolCalls()[0].ToolName != "ping" {
		t.Errorf("expected flushed tool call, got %+v", s.ToolCalls())
	}
}
