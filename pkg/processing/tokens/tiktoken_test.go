package tokens

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

// wordEncoder yields one token per whitespace-separated word.
type wordEncoder struct{}

func (wordEncoder) Encode(text string, _ []string, _ []string) []int {
	return make([]int, len(strings.Fields(text)))
}

func TestTiktokenEstimator_EncodingForModel(t *testing.T) {
	e := NewTiktokenEstimator("", nil)

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", EncodingO200K},
		{"o3-mini", EncodingO200K},
		{"gpt-4", EncodingCL100K},
		{"claude-3-5-sonnet", EncodingCL100K},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := e.EncodingForModel(tt.model); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTiktokenEstimator_UsesEncoder(t *testing.T) {
	var loads int32
	e := newTiktokenEstimator("", nil, func(name string) (encoder, error) {
		atomic.AddInt32(&loads, 1)
		return wordEncoder{}, nil
	})

	for i := 0; i < 3; i++ {
		n, err := e.EstimateText("one two three four", "gpt-4")
		if err != nil {
			t.Fatal(err)
		}
		if n != 4 {
			t.Errorf("expected 4 tokens, got %d", n)
		}
	}
	if atomic.LoadInt32(&loads) != 1 {
		t.Errorf("expected the encoding to load once, got %d", loads)
	}

	// A different family loads its own encoding.
	_, _ = e.EstimateText("x", "gpt-4o")
	if atomic.LoadInt32(&loads) != 2 {
		t.Errorf("expected a second encoding load, got %d", loads)
	}
}

func TestTiktokenEstimator_FallsBack(t *testing.T) {
	var loads int32
	e := newTiktokenEstimator("", NewSimpleEstimator(nil), func(name string) (encoder, error) {
		atomic.AddInt32(&loads, 1)
		return nil, errors.New("offline")
	})

	for i := 0; i < 2; i++ {
		n, err := e.EstimateText("01234567", "gpt-4")
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("expected chars/4 fallback of 2, got %d", n)
		}
	}
	if atomic.LoadInt32(&loads) != 1 {
		t.Errorf("expected a failed load not to be retried, got %d loads", loads)
	}
}
