package structured

import (
	"encoding/json"
	"errors"
	"testing"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain object", `{"greeting": "hi"}`, `{"greeting":"hi"}`},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a":1}`},
		{"prose around object", "Sure! Here it is: {\"a\": [1, 2]} Hope that helps.", `{"a":[1,2]}`},
		{"trailing comma", `{"a": 1, "b": [1, 2,],}`, `{"a":1,"b":[1,2]}`},
		{"comments", "{\n// note\n\"a\": 1 /* inline */\n}", `{"a":1}`},
		{"array", `[{"a": 1}]`, `[{"a":1}]`},
		{"array of objects", `[{"a": 1}, {"b": 2}]`, `[{"a":1},{"b":2}]`},
		{"fenced array", "```json\n[1, 2]\n```", `[1,2]`},
		{"bracketed prose before object", `[draft] {"a": 1}`, `{"a":1}`},
		{"large number preserved", `{"id": 12345678901234567890}`, `{"id":12345678901234567890}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s := mustJSON(t, got); s != tt.want {
				t.Errorf("expected %s, got %s", tt.want, s)
			}
		})
	}
}

func TestExtractJSONFailures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no braces", "I cannot help with that."},
		{"unbalanced", `{"a": `},
		{"two objects", `{"a": 1} and {"b": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ExtractJSON(tt.text); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := ExtractJSON("no json here"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}

func TestParsePartial(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"nothing yet", "", "", false},
		{"open brace", "{", `{}`, true},
		{"open string value", `{"greeting": "h`, `{"greeting":"h"}`, true},
		{"open key", `{"a": 1, "b`, `{"a":1}`, true},
		{"dangling colon", `{"a": 1, "b":`, `{"a":1}`, true},
		{"partial literal", `{"a": tr`, `{}`, true},
		{"nested", `{"a": {"b": [1, 2`, `{"a":{"b":[1,2]}}`, true},
		{"escaped quote", `{"a": "say \"hi`, `{"a":"say \"hi"}`, true},
		{"trailing backslash", `{"a": "x\`, `{"a":"x"}`, true},
		{"complete with trailer", `{"a": 1} trailing`, `{"a":1}`, true},
		{"leading think text", `plan first {"a": "b"`, `{"a":"b"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePartial(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v (value %v)", tt.wantOK, ok, got)
			}
			if !ok {
				return
			}
			if s := mustJSON(t, got); s != tt.want {
				t.Errorf("expected %s, got %s", tt.want, s)
			}
		})
	}
}
