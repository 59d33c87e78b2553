package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// CacheMetrics tracks cache lookups, such as the run cache.
//
// Metrics:
//   - relay_engine_cache_hits_total: Total cache hits by cache name
//   - relay_engine_cache_misses_total: Total cache misses by cache name
type CacheMetrics struct {
	hitsTotal   *prometheus.CounterVec
	missesTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),

		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
	)

	return cm
}

// RecordLookup records a hit or a miss for cacheName.
//
// Hit rate in PromQL:
//
//	rate(relay_engine_cache_hits_total{cache="runs"}[5m]) /
//	(rate(relay_engine_cache_hits_total{cache="runs"}[5m]) +
//	 rate(relay_engine_cache_misses_total{cache="runs"}[5m]))
func (cm *CacheMetrics) RecordLookup(cacheName string, hit bool) {
	if hit {
		cm.hitsTotal.WithLabelValues(cacheName).Inc()
		return
	}
	cm.missesTotal.WithLabelValues(cacheName).Inc()
}
