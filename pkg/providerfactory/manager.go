package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"

	"mercator-hq/relay/pkg/completion"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/routing"
)

// member is one managed provider.
type member struct {
	engine    *completion.Engine
	transport *providers.HTTPProvider
}

// Manager manages the engines of all configured providers and the pooled
// transports behind them.
//
// Manager is thread-safe and can be used concurrently.
type Manager struct {
	members map[string]member
	opts    []completion.Option
	mu      sync.RWMutex
}

// NewManager creates a new provider manager. opts are applied to every
// engine it creates.
func NewManager(opts ...completion.Option) *Manager {
	return &Manager{
		members: make(map[string]member),
		opts:    opts,
	}
}

// AddProvider adds a provider to the manager.
// If a provider with the same name already exists, it is replaced and the old one is closed.
func (m *Manager) AddProvider(cfg providers.ProviderConfig) error {
	engine, transport, err := NewEngine(cfg, m.opts...)
	if err != nil {
		return fmt.Errorf("failed to add provider %q: %w", cfg.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.members[cfg.Name]; ok {
		slog.Warn("replacing existing provider", "name", cfg.Name)
		existing.transport.Close()
	}
	m.members[cfg.Name] = member{engine: engine, transport: transport}

	slog.Info("provider added to manager",
		"name", cfg.Name,
		"total_providers", len(m.members),
	)
	return nil
}

// RemoveProvider removes a provider from the manager and closes it.
func (m *Manager) RemoveProvider(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.members[name]
	if !ok {
		return fmt.Errorf("provider %q not found", name)
	}
	if err := existing.transport.Close(); err != nil {
		slog.Error("error closing provider", "name", name, "error", err)
	}
	delete(m.members, name)

	slog.Info("provider removed from manager",
		"name", name,
		"remaining_providers", len(m.members),
	)
	return nil
}

// GetEngine returns a provider's engine by name.
func (m *Manager) GetEngine(name string) (*completion.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing, ok := m.members[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", name)
	}
	return existing.engine, nil
}

// Engines returns the engines keyed by provider name, ready for the
// failover orchestrator. The returned map is a copy and safe to modify.
func (m *Manager) Engines() map[string]routing.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.MapValues(m.members, func(existing member, _ string) routing.Engine {
		return existing.engine
	})
}

// GetProviderNames returns a sorted list of all provider names.
func (m *Manager) GetProviderNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := lo.Keys(m.members)
	slices.Sort(names)
	return names
}

// ProviderCount returns the total number of providers.
func (m *Manager) ProviderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

// LoadFromConfig creates a provider for every configured entry, in name
// order. Every failure is reported.
func (m *Manager) LoadFromConfig(cfg *config.Config) error {
	names := lo.Keys(cfg.Providers)
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		if err := m.AddProvider(ProviderConfig(name, cfg.Providers[name])); err != nil {
			errs = append(errs, err)
			slog.Error("failed to load provider",
				"name", name,
				"error", err,
			)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to load %d provider(s): %w", len(errs), errors.Join(errs...))
	}

	slog.Info("all providers loaded successfully", "count", len(names))
	return nil
}

// Close closes all transports.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, existing := range m.members {
		if err := existing.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}
	m.members = make(map[string]member)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing providers: %w", errors.Join(errs...))
	}
	slog.Debug("provider manager closed")
	return nil
}

// GetHealthSummary returns a summary of provider health status.
func (m *Manager) GetHealthSummary() HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := HealthSummary{
		Total:   len(m.members),
		Details: make(map[string]providers.ProviderHealth),
	}
	for name, existing := range m.members {
		health := existing.transport.GetHealth()
		summary.Details[name] = health
		if health.IsHealthy {
			summary.Healthy++
		}
	}
	summary.Unhealthy = summary.Total - summary.Healthy
	return summary
}

// HealthSummary provides an overview of provider health across the manager.
type HealthSummary struct {
	// Total is the total number of providers
	Total int

	// Healthy is the number of healthy providers
	Healthy int

	// Unhealthy is the number of unhealthy providers
	Unhealthy int

	// Details contains per-provider health information
	Details map[string]providers.ProviderHealth
}
