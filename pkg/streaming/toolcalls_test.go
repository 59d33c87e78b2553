package streaming

import (
	"fmt"
	"testing"
)

func TestToolCallBuffersCompleteOnFirstValidFrame(t *testing.T) {
	b := NewToolCallBuffers()

	frames := []struct {
		id, name, fragment string
		wantDone           bool
	}{
		{"call_1", "get_weather", `{"city":`, false},
		{"", "", `"Paris"`, false},
		{"", "", `}`, true},
	}

	for i, f := range frames {
		call, done := b.Apply(0, f.id, f.name, f.fragment)
		if done != f.wantDone {
			t.Fatalf("frame %d: expected done=%v, got %v", i, f.wantDone, done)
		}
		if !done && call != nil {
			t.Fatalf("frame %d: expected no call before completion", i)
		}
		if done {
			if call.ID != "call_1" || call.ToolName != "get_weather" {
				t.Errorf("unexpected call identity: %+v", call)
			}
			if call.ToolInput["city"] != "Paris" {
				t.Errorf("expected city Paris, got %v", call.ToolInput["city"])
			}
		}
	}

	if got := len(b.Completed()); got != 1 {
		t.Errorf("expected exactly one completed call, got %d", got)
	}
}

func TestToolCallBuffersStateTransitions(t *testing.T) {
	b := NewToolCallBuffers()

	b.Apply(0, "", "", "")
	if s := b.Buffer(0).State(); s != BufferEmpty {
		t.Errorf("expected empty, got %s", s)
	}

	b.Apply(0, "id", "", "")
	if s := b.Buffer(0).State(); s != BufferIDKnown {
		t.Errorf("expected id-known, got %s", s)
	}

	b.Apply(0, "", "lookup", "")
	if s := b.Buffer(0).State(); s != BufferNameKnown {
		t.Errorf("expected name-known, got %s", s)
	}

	b.Apply(0, "", "", `{"q":`)
	if s := b.Buffer(0).State(); s != BufferAccumulating {
		t.Errorf("expected arguments-accumulating, got %s", s)
	}

	b.Apply(0, "", "", `1}`)
	if s := b.Buffer(0).State(); s != BufferComplete {
		t.Errorf("expected complete, got %s", s)
	}
}

func TestToolCallBuffersIgnoreFragmentsAfterCompletion(t *testing.T) {
	b := NewToolCallBuffers()

	if _, done := b.Apply(0, "a", "f", `{}`); !done {
		t.Fatal("expected completion on empty object")
	}
	if _, done := b.Apply(0, "", "", `{"late":true}`); done {
		t.Error("expected late fragment to be ignored")
	}
	if len(b.Completed()) != 1 {
		t.Errorf("expected one completed call, got %d", len(b.Completed()))
	}
}

func TestToolCallBuffersWaitForIDAndName(t *testing.T) {
	b := NewToolCallBuffers()

	if _, done := b.Apply(0, "", "", `{"x":1}`); done {
		t.Error("expected no completion without id and name")
	}
	if _, done := b.Apply(0, "id", "", ""); done {
		t.Error("expected no completion without name")
	}
	call, done := b.Apply(0, "", "fn", "")
	if !done {
		t.Fatal("expected completion once name arrives")
	}
	if call.ToolInput["x"] != float64(1) {
		t.Errorf("unexpected input: %v", call.ToolInput)
	}
}

func TestToolCallBuffersInterleavedIndexes(t *testing.T) {
	b := NewToolCallBuffers()

	b.Apply(0, "a", "first", `{"n":`)
	b.Apply(1, "b", "second", `{"n":`)
	if _, done := b.Apply(1, "", "", `2}`); !done {
		t.Fatal("expected index 1 to complete")
	}
	if _, done := b.Apply(0, "", "", `1}`); !done {
		t.Fatal("expected index 0 to complete")
	}

	completed := b.Completed()
	if completed[0].ToolName != "second" || completed[1].ToolName != "first" {
		t.Errorf("expected completion order, got %+v", completed)
	}
}

func TestToolCallBuffersFlush(t *testing.T) {
	b := NewToolCallBuffers()

	b.Apply(0, "a", "no_args", "")
	b.Apply(1, "b", "broken", `{"x":`)
	b.Apply(2, "", "", `{}`)

	flushed, skipped := b.Flush()
	if len(flushed) != 1 || flushed[0].ToolName != "no_args" {
		t.Fatalf("expected argument-less call to flush, got %+v", flushed)
	}
	if len(flushed[0].ToolInput) != 0 {
		t.Errorf("expected empty input, got %v", flushed[0].ToolInput)
	}

	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped buffers, got %+v", skipped)
	}
	if skipped[0].Index != 1 || skipped[1].Index != 2 {
		t.Errorf("expected skipped indexes 1 and 2, got %+v", skipped)
	}
}

func TestToolCallBuffersNonObjectInputNeverCompletes(t *testing.T) {
	b := NewToolCallBuffers()

	for i, frag := range []string{"1", "2", "3"} {
		if _, done := b.Apply(0, "id", "fn", frag); done {
			t.Fatalf("fragment %d: expected scalar input to stay incomplete", i)
		}
	}
}

func ExampleToolCallBuffers() {
	b := NewToolCallBuffers()
	for _, frag := range []string{`{"city":`, `"Paris"`, `}`} {
		call, done := b.Apply(0, "call_1", "get_weather", frag)
		if done {
			fmt.Println(call.ToolName, call.ToolInput["city"])
		}
	}
	// Output: get_weather Paris
}
