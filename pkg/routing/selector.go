package routing

import (
	"log/slog"
	"path"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// ProviderSelector resolves the ordered candidate providers for a model.
// An explicit model mapping wins; otherwise every provider whose model
// globs match is a candidate, in name order.
type ProviderSelector struct {
	mu sync.RWMutex

	// modelMapping maps model names to ordered provider names.
	modelMapping map[string][]string

	// patterns maps provider names to the model globs they serve.
	patterns map[string][]string

	// names holds the provider names in sorted order.
	names []string
}

// NewProviderSelector creates a new provider selector.
func NewProviderSelector(patterns map[string][]string, modelMapping map[string][]string) *ProviderSelector {
	s := &ProviderSelector{}
	s.UpdateProviders(patterns)
	s.UpdateModelMapping(modelMapping)
	return s
}

// Candidates returns the providers able to serve model, in priority order.
// It returns nil when no provider serves the model.
func (s *ProviderSelector) Candidates(model string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mapped, ok := s.modelMapping[model]; ok {
		return lo.Uniq(mapped)
	}

	candidates := lo.Filter(s.names, func(name string, _ int) bool {
		return lo.SomeBy(s.patterns[name], func(pattern string) bool {
			matched, err := path.Match(pattern, model)
			return err == nil && matched
		})
	})
	if len(candidates) == 0 {
		return nil
	}
	return candidates
}

// OrderByHealth moves unhealthy candidates behind healthy ones, keeping the
// relative order of each group. Unhealthy providers are still tried last
// so a run never fails only because every circuit is open.
func OrderByHealth(candidates []string, healthy func(name string) bool) []string {
	if len(candidates) < 2 {
		return candidates
	}

	up, down := lo.FilterReject(candidates, func(name string, _ int) bool {
		return healthy(name)
	})
	if len(down) > 0 {
		slog.Debug("deprioritized unhealthy providers",
			"healthy", up,
			"unhealthy", down,
		)
	}
	return append(up, down...)
}

// GetProviderNames returns the names of all configured providers.
func (s *ProviderSelector) GetProviderNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.names)
}

// GetSupportedModels returns all models that are explicitly mapped, sorted.
// This does not include models that are only matched by provider globs.
func (s *ProviderSelector) GetSupportedModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	models := lo.Keys(s.modelMapping)
	slices.Sort(models)
	return models
}

// UpdateProviders replaces the provider glob table.
func (s *ProviderSelector) UpdateProviders(patterns map[string][]string) {
	if patterns == nil {
		patterns = make(map[string][]string)
	}
	names := lo.Keys(patterns)
	slices.Sort(names)

	s.mu.Lock()
	s.patterns = patterns
	s.names = names
	s.mu.Unlock()
}

// UpdateModelMapping updates the model mapping configuration.
func (s *ProviderSelector) UpdateModelMapping(modelMapping map[string][]string) {
	if modelMapping == nil {
		modelMapping = make(map[string][]string)
	}
	s.mu.Lock()
	s.modelMapping = modelMapping
	s.mu.Unlock()
}
