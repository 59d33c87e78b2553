package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// ProviderMetrics tracks provider health, errors and failovers.
//
// Metrics:
//   - relay_engine_provider_health: Provider health status (1=healthy, 0=unhealthy)
//   - relay_engine_provider_errors_total: Provider errors by error code
//   - relay_engine_failovers_total: Switches from one provider to the next
type ProviderMetrics struct {
	// Provider health status (gauge: 1=healthy, 0=unhealthy)
	health *prometheus.GaugeVec

	// Provider error counter
	errors *prometheus.CounterVec

	// Failover counter
	failovers *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_health",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors by error code",
			},
			[]string{"provider", "code"},
		),

		failovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "failovers_total",
				Help:      "Total number of failovers between providers",
			},
			[]string{"model", "from", "to"},
		),
	}

	registry.MustRegister(
		pm.health,
		pm.errors,
		pm.failovers,
	)

	return pm
}

// UpdateHealth updates the health status of a provider.
//
// The health metric is a gauge where 1=healthy, 0=unhealthy.
func (pm *ProviderMetrics) UpdateHealth(provider string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	pm.health.WithLabelValues(provider).Set(value)
}

// RecordError records a provider error by its stable error code
// (e.g., "rate_limit", "provider_timeout", "failed_generation").
func (pm *ProviderMetrics) RecordError(provider, code string) {
	pm.errors.WithLabelValues(provider, code).Inc()
}

// RecordFailover records a switch from one provider to the next.
func (pm *ProviderMetrics) RecordFailover(model, from, to string) {
	pm.failovers.WithLabelValues(model, from, to).Inc()
}
