package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// AttemptMetrics tracks individual provider attempts.
//
// Metrics:
//   - relay_engine_attempts_total: attempts by provider, model and outcome
//   - relay_engine_attempt_duration_seconds: attempt duration histogram
//   - relay_engine_tokens_total: tokens by provider, model and type
//   - relay_engine_tokens_per_attempt: prompt+completion tokens per attempt
type AttemptMetrics struct {
	attemptsTotal    *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	tokensPerAttempt *prometheus.HistogramVec
}

// NewAttemptMetrics creates and registers attempt metrics with the provided registry.
func NewAttemptMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AttemptMetrics {
	am := &AttemptMetrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempts_total",
				Help:      "Total number of provider attempts by outcome",
			},
			[]string{"provider", "model", "outcome"},
		),

		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of provider attempts in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"provider", "model"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Total number of tokens reported by providers",
			},
			[]string{"provider", "model", "type"},
		),

		tokensPerAttempt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_per_attempt",
				Help:      "Prompt plus completion tokens per attempt",
				Buckets:   cfg.TokenCountBuckets,
			},
			[]string{"provider", "model"},
		),
	}

	registry.MustRegister(
		am.attemptsTotal,
		am.attemptDuration,
		am.tokensTotal,
		am.tokensPerAttempt,
	)

	return am
}

// RecordAttempt counts an attempt and observes its duration.
func (am *AttemptMetrics) RecordAttempt(provider, model, outcome string, duration time.Duration) {
	am.attemptsTotal.WithLabelValues(provider, model, outcome).Inc()
	am.attemptDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens adds token counts by type. Zero counts are skipped.
func (am *AttemptMetrics) RecordTokens(provider, model string, prompt, completion, cached, reasoning int) {
	for kind, n := range map[string]int{
		"prompt":     prompt,
		"completion": completion,
		"cached":     cached,
		"reasoning":  reasoning,
	} {
		if n > 0 {
			am.tokensTotal.WithLabelValues(provider, model, kind).Add(float64(n))
		}
	}
	if total := prompt + completion; total > 0 {
		am.tokensPerAttempt.WithLabelValues(provider, model).Observe(float64(total))
	}
}
