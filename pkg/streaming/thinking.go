package streaming

import "strings"

// Default thinking delimiters.
const (
	DefaultThinkOpen  = "<think>"
	DefaultThinkClose = "</think>"
)

// ThinkingState tracks where a stream is relative to its thinking section.
type ThinkingState int

const (
	NotYetThinking ThinkingState = iota
	Thinking
	PastThinking
)

func (s ThinkingState) String() string {
	switch s {
	case NotYetThinking:
		return "not-yet-thinking"
	case Thinking:
		return "thinking"
	case PastThinking:
		return "past-thinking"
	default:
		return "unknown"
	}
}

// ThinkingTracker splits a text stream into content and reasoning for vendors
// that inline a thinking section in the same text channel.
//
// A tag may straddle two frames. The tracker holds back any tail that could
// be the start of the next expected tag until the following frame confirms or
// refutes it.
type ThinkingTracker struct {
	open    string
	close   string
	state   ThinkingState
	pending string
}

// NewThinkingTracker creates a tracker for the given tags. Empty tags fall
// back to <think> and </think>.
func NewThinkingTracker(openTag, closeTag string) *ThinkingTracker {
	if openTag == "" {
		openTag = DefaultThinkOpen
	}
	if closeTag == "" {
		closeTag = DefaultThinkClose
	}
	return &ThinkingTracker{open: openTag, close: closeTag}
}

// State returns the current thinking state.
func (t *ThinkingTracker) State() ThinkingState {
	return t.state
}

// Feed consumes one fragment and returns the parts that are now known to be
// content and reasoning.
func (t *ThinkingTracker) Feed(fragment string) (content, reasoning string) {
	text := t.pending + fragment
	t.pending = ""

	var c, r strings.Builder
	for text != "" {
		switch t.state {
		case NotYetThinking:
			if i := strings.Index(text, t.open); i >= 0 {
				c.WriteString(text[:i])
				text = text[i+len(t.open):]
				t.state = Thinking
				continue
			}
			keep := partialSuffix(text, t.open)
			c.WriteString(text[:len(text)-keep])
			t.pending = text[len(text)-keep:]
			text = ""

		case Thinking:
			if i := strings.Index(text, t.close); i >= 0 {
				r.WriteString(text[:i])
				text = text[i+len(t.close):]
				t.state = PastThinking
				continue
			}
			keep := partialSuffix(text, t.close)
			r.WriteString(text[:len(text)-keep])
			t.pending = text[len(text)-keep:]
			text = ""

		default:
			c.WriteString(text)
			text = ""
		}
	}
	return c.String(), r.String()
}

// Flush releases any held-back tail once the stream has ended.
func (t *ThinkingTracker) Flush() (content, reasoning string) {
	pending := t.pending
	t.pending = ""
	if t.state == Thinking {
		return "", pending
	}
	return pending, ""
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialSuffix(s, tag string) int {
	limit := len(tag) - 1
	if limit > len(s) {
		limit = len(s)
	}
	for n := limit; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
