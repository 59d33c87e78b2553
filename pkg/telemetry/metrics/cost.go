package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// CostMetrics tracks provider spend. Failed attempts are billed by
// providers too, so cost is recorded per attempt.
//
// Metrics:
//   - relay_engine_cost_usd_total: Total cost in USD by provider and model
//   - relay_engine_cost_per_attempt_usd: Cost distribution per attempt
type CostMetrics struct {
	costTotal      *prometheus.CounterVec
	costPerAttempt *prometheus.HistogramVec
}

// NewCostMetrics creates and registers cost metrics with the provided registry.
func NewCostMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_usd_total",
				Help:      "Total cost in USD by provider and model",
			},
			[]string{"provider", "model"},
		),

		costPerAttempt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_per_attempt_usd",
				Help:      "Cost distribution per attempt in USD",
				// $0.0001 to $10
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"provider", "model"},
		),
	}

	registry.MustRegister(
		cm.costTotal,
		cm.costPerAttempt,
	)

	return cm
}

// RecordCost records the cost of one attempt. Non-positive costs are ignored.
func (cm *CostMetrics) RecordCost(provider, model string, costUSD float64) {
	if costUSD <= 0 {
		return
	}

	cm.costTotal.WithLabelValues(provider, model).Add(costUSD)
	cm.costPerAttempt.WithLabelValues(provider, model).Observe(costUSD)
}
