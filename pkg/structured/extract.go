package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrNoJSON is returned when no JSON value can be located in the text.
var ErrNoJSON = errors.New("no JSON object found in text")

// ExtractJSON locates and decodes the JSON value embedded in a completion.
// Markdown code fences are stripped, then the outermost object or array,
// whichever opens first, is decoded; the other is tried when it fails. When
// strict decoding fails a candidate is retried leniently, tolerating comments
// and trailing commas.
// Numbers decode as json.Number.
func ExtractJSON(text string) (any, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, ErrNoJSON
	}

	candidates := locate(text)
	if len(candidates) == 0 {
		return nil, ErrNoJSON
	}

	var firstErr error
	for _, candidate := range candidates {
		v, err := decode([]byte(candidate))
		if err == nil {
			return v, nil
		}
		if lenient, lerr := decode(jsonc.ToJSON([]byte(candidate))); lerr == nil {
			return lenient, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("invalid JSON in completion: %w", firstErr)
}

// locate returns the outermost object and array spans in text, the one that
// opens first leading.
func locate(text string) []string {
	var spans []string
	var starts []int
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start, end := strings.IndexByte(text, pair[0]), strings.LastIndexByte(text, pair[1])
		if start >= 0 && end > start {
			spans = append(spans, text[start:end+1])
			starts = append(starts, start)
		}
	}
	if len(spans) == 2 && starts[1] < starts[0] {
		spans[0], spans[1] = spans[1], spans[0]
	}
	return spans
}

func stripCodeFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	// Drop the info string (```json)
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func decode(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// ParsePartial decodes in-flight JSON from a stream. It closes any open
// string, array and object; when that is not enough it falls back to the
// last point where a complete member ended. It reports false while nothing
// decodable has arrived.
func ParsePartial(text string) (any, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, false
	}
	text = text[start:]

	var (
		stack       []byte
		inString    bool
		escaped     bool
		checkpoints []checkpoint
	)

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
			checkpoints = append(checkpoints, checkpoint{end: i + 1, closers: closers(stack)})
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				// Complete top-level value; ignore anything after it.
				v, err := decode([]byte(text[:i+1]))
				return v, err == nil
			}
		case ',':
			checkpoints = append(checkpoints, checkpoint{end: i, closers: closers(stack)})
		}
	}

	tail := text
	if inString {
		if escaped {
			tail = tail[:len(tail)-1]
		}
		tail += `"`
	}
	if v, err := decode([]byte(tail + closers(stack))); err == nil {
		return v, true
	}

	for i := len(checkpoints) - 1; i >= 0 && i >= len(checkpoints)-4; i-- {
		cp := checkpoints[i]
		if v, err := decode([]byte(text[:cp.end] + cp.closers)); err == nil {
			return v, true
		}
	}
	return nil, false
}

type checkpoint struct {
	end     int
	closers string
}

func closers(stack []byte) string {
	b := make([]byte, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b = append(b, '}')
		} else {
			b = append(b, ']')
		}
	}
	return string(b)
}
