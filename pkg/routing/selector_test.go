package routing

import (
	"slices"
	"testing"
)

func TestProviderSelector_Candidates(t *testing.T) {
	patterns := map[string][]string{
		"openai":     {"gpt-*", "o1*"},
		"azure-east": {"gpt-4o"},
		"anthropic":  {"claude-*"},
		"empty":      nil,
	}
	mapping := map[string][]string{
		"gpt-4o":       {"azure-east", "openai", "azure-east"},
		"experimental": {"anthropic"},
	}
	selector := NewProviderSelector(patterns, mapping)

	tests := []struct {
		name  string
		model string
		want  []string
	}{
		{name: "mapping wins and is deduplicated", model: "gpt-4o", want: []string{"azure-east", "openai"}},
		{name: "mapping without glob match", model: "experimental", want: []string{"anthropic"}},
		{name: "glob match", model: "gpt-4o-mini", want: []string{"openai"}},
		{name: "second glob", model: "o1-preview", want: []string{"openai"}},
		{name: "claude", model: "claude-sonnet-4-5", want: []string{"anthropic"}},
		{name: "unknown model", model: "llama-3", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selector.Candidates(tt.model)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Candidates(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestProviderSelector_GlobOrderIsByName(t *testing.T) {
	selector := NewProviderSelector(map[string][]string{
		"zeta":  {"*"},
		"alpha": {"*"},
		"mid":   {"gpt-*"},
	}, nil)

	got := selector.Candidates("gpt-4o")
	want := []string{"alpha", "mid", "zeta"}
	if !slices.Equal(got, want) {
		t.Errorf("Candidates() = %v, want %v", got, want)
	}
}

func TestOrderByHealth(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		unhealthy map[string]bool
		want      []string
	}{
		{
			name:  "all healthy keeps order",
			input: []string{"a", "b", "c"},
			want:  []string{"a", "b", "c"},
		},
		{
			name:      "unhealthy moved last",
			input:     []string{"a", "b", "c"},
			unhealthy: map[string]bool{"a": true},
			want:      []string{"b", "c", "a"},
		},
		{
			name:      "all unhealthy still tried",
			input:     []string{"a", "b"},
			unhealthy: map[string]bool{"a": true, "b": true},
			want:      []string{"a", "b"},
		},
		{
			name:  "single candidate",
			input: []string{"a"},
			want:  []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OrderByHealth(tt.input, func(name string) bool { return !tt.unhealthy[name] })
			if !slices.Equal(got, tt.want) {
				t.Errorf("OrderByHealth() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderSelector_Updates(t *testing.T) {
	selector := NewProviderSelector(nil, nil)
	if got := selector.Candidates("gpt-4o"); got != nil {
		t.Fatalf("expected no candidates, got %v", got)
	}

	selector.UpdateProviders(map[string][]string{"openai": {"gpt-*"}})
	selector.UpdateModelMapping(map[string][]string{"b-model": {"openai"}, "a-model": {"openai"}})

	if got := selector.GetProviderNames(); !slices.Equal(got, []string{"openai"}) {
		t.Errorf("GetProviderNames() = %v", got)
	}
	if got := selector.GetSupportedModels(); !slices.Equal(got, []string{"a-model", "b-model"}) {
		t.Errorf("GetSupportedModels() = %v", got)
	}
	if got := selector.Candidates("gpt-4o"); !slices.Equal(got, []string{"openai"}) {
		t.Errorf("Candidates() = %v", got)
	}
}
