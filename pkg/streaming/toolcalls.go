package streaming

import (
	"encoding/json"
	"sort"
	"strings"

	"mercator-hq/relay/pkg/llm"
)

// BufferState is the reconstruction state of a single streamed tool call.
type BufferState int

// Buffer states, in the order a well-formed stream moves through them.
const (
	BufferEmpty BufferState = iota
	BufferIDKnown
	BufferNameKnown
	BufferAccumulating
	BufferComplete
)

func (s BufferState) String() string {
	switch s {
	case BufferEmpty:
		return "empty"
	case BufferIDKnown:
		return "id-known"
	case BufferNameKnown:
		return "name-known"
	case BufferAccumulating:
		return "arguments-accumulating"
	case BufferComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ToolCallBuffer accumulates the fragments of one streamed tool call.
type ToolCallBuffer struct {
	ID    *string
	Name  *string
	Input strings.Builder

	complete bool
}

// State returns the buffer's reconstruction state.
func (b *ToolCallBuffer) State() BufferState {
	switch {
	case b.complete:
		return BufferComplete
	case b.Input.Len() > 0:
		return BufferAccumulating
	case b.Name != nil:
		return BufferNameKnown
	case b.ID != nil:
		return BufferIDKnown
	default:
		return BufferEmpty
	}
}

// tryComplete returns the tool call if id and name are known and the
// accumulated input is a JSON object.
func (b *ToolCallBuffer) tryComplete() (*llm.ToolCallRequest, bool) {
	if b.complete || b.ID == nil || b.Name == nil {
		return nil, false
	}

	input, ok := parseObject(b.Input.String())
	if !ok {
		return nil, false
	}

	b.complete = true
	return &llm.ToolCallRequest{ID: *b.ID, ToolName: *b.Name, ToolInput: input}, true
}

func parseObject(s string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// SkippedToolCall records a buffered tool call that never became valid.
type SkippedToolCall struct {
	Index  int
	Reason string
}

// ToolCallBuffers holds the per-index buffers of one stream. It is owned by
// the goroutine driving the stream and is not safe for concurrent use.
type ToolCallBuffers struct {
	buffers   map[int]*ToolCallBuffer
	completed []llm.ToolCallRequest
}

// NewToolCallBuffers creates an empty buffer set.
func NewToolCallBuffers() *ToolCallBuffers {
	return &ToolCallBuffers{buffers: make(map[int]*ToolCallBuffer)}
}

// Apply records a fragment for the tool call at index. Empty id or name
// values leave the corresponding field untouched. It returns the tool call
// the first time the buffer becomes complete; fragments arriving after
// completion are ignored.
func (b *ToolCallBuffers) Apply(index int, id, name, fragment string) (*llm.ToolCallRequest, bool) {
	buf, ok := b.buffers[index]
	if !ok {
		buf = &ToolCallBuffer{}
		b.buffers[index] = buf
	}
	if buf.complete {
		return nil, false
	}

	if id != "" && buf.ID == nil {
		buf.ID = &id
	}
	if name != "" && buf.Name == nil {
		buf.Name = &name
	}
	buf.Input.WriteString(fragment)

	call, done := buf.tryComplete()
	if done {
		b.completed = append(b.completed, *call)
	}
	return call, done
}

// Buffer returns the buffer at index, or nil.
func (b *ToolCallBuffers) Buffer(index int) *ToolCallBuffer {
	return b.buffers[index]
}

// Any reports whether any tool call fragment was ever buffered.
func (b *ToolCallBuffers) Any() bool {
	return len(b.buffers) > 0
}

// Completed returns the tool calls completed so far, in completion order.
func (b *ToolCallBuffers) Completed() []llm.ToolCallRequest {
	return b.completed
}

// Flush is called once the stream ends. Buffers with a known id and name and
// no arguments complete with an empty input. Buffers whose input never
// parsed are reported as skipped.
func (b *ToolCallBuffers) Flush() ([]llm.ToolCallRequest, []SkippedToolCall) {
	indexes := make([]int, 0, len(b.buffers))
	for i := range b.buffers {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var flushed []llm.ToolCallRequest
	var skipped []SkippedToolCall
	for _, i := range indexes {
		buf := b.buffers[i]
		if buf.complete {
			continue
		}

		switch {
		case buf.ID == nil || buf.Name == nil:
			skipped = append(skipped, SkippedToolCall{Index: i, Reason: "missing id or name"})
		case strings.TrimSpace(buf.Input.String()) == "":
			buf.complete = true
			call := llm.ToolCallRequest{ID: *buf.ID, ToolName: *buf.Name, ToolInput: map[string]any{}}
			b.completed = append(b.completed, call)
			flushed = append(flushed, call)
		default:
			skipped = append(skipped, SkippedToolCall{Index: i, Reason: "arguments are not a valid JSON object"})
		}
	}
	return flushed, skipped
}
