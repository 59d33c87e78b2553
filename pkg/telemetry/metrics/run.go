package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// RunMetrics tracks whole runs, across retries and failover.
//
// Metrics:
//   - relay_engine_runs_total: runs by model, status and whether they were cached
//   - relay_engine_run_duration_seconds: end-to-end run duration
type RunMetrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewRunMetrics creates and registers run metrics with the provided registry.
func NewRunMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RunMetrics {
	rm := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "runs_total",
				Help:      "Total number of runs by status",
			},
			[]string{"model", "status", "cached"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "run_duration_seconds",
				Help:      "End-to-end run duration in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"model", "status"},
		),
	}

	registry.MustRegister(
		rm.runsTotal,
		rm.runDuration,
	)

	return rm
}

// RecordRun counts a run. Cached runs are not observed in the duration
// histogram since no provider was called.
func (rm *RunMetrics) RecordRun(model, status string, cached bool, duration time.Duration) {
	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
	}
	rm.runsTotal.WithLabelValues(model, status, cachedLabel).Inc()
	if !cached {
		rm.runDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	}
}
