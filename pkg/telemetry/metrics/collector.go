package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/llm"
)

// Attempt outcomes that are not errors.
const (
	OutcomeSuccess = "success"
	OutcomeStopped = "stopped"
)

// Collector owns every Prometheus metric of the engine. It implements
// routing.Recorder for per-attempt metrics and the run service's metrics
// hooks for runs and the run cache.
//
// Model labels pass through a cardinality limiter; label sets beyond the
// limit are aggregated under model="other".
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	attemptMetrics  *AttemptMetrics
	providerMetrics *ProviderMetrics
	costMetrics     *CostMetrics
	runMetrics      *RunMetrics
	cacheMetrics    *CacheMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is used.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// LLM latencies: 100ms - 60s
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}
	}
	if len(cfg.TokenCountBuckets) == 0 {
		cfg.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		attemptMetrics:     NewAttemptMetrics(cfg, registry),
		providerMetrics:    NewProviderMetrics(cfg, registry),
		costMetrics:        NewCostMetrics(cfg, registry),
		runMetrics:         NewRunMetrics(cfg, registry),
		cacheMetrics:       NewCacheMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}
}

// model returns model, or "other" when the label set would exceed the
// cardinality limit.
func (c *Collector) model(kind, provider, model string) string {
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s:%s", kind, provider, model)) {
		return "other"
	}
	return model
}

// RecordAttempt records one provider attempt. Outcomes other than
// success and stopped are error codes and also count as provider errors.
func (c *Collector) RecordAttempt(provider, model, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	model = c.model("attempt", provider, model)
	c.attemptMetrics.RecordAttempt(provider, model, outcome, duration)
	if outcome != OutcomeSuccess && outcome != OutcomeStopped {
		c.providerMetrics.RecordError(provider, outcome)
	}
}

// RecordFailover records a switch between providers for model.
func (c *Collector) RecordFailover(model, from, to string) {
	if !c.config.Enabled {
		return
	}
	c.providerMetrics.RecordFailover(c.model("failover", from+">"+to, model), from, to)
}

// RecordUsage records the tokens and cost of one attempt.
func (c *Collector) RecordUsage(provider, model string, usage *llm.LLMUsage) {
	if !c.config.Enabled || usage == nil {
		return
	}

	model = c.model("attempt", provider, model)
	c.attemptMetrics.RecordTokens(provider, model,
		llm.Value(usage.PromptTokens),
		llm.Value(usage.CompletionTokens),
		llm.Value(usage.CachedPromptTokens),
		llm.Value(usage.ReasoningTokens),
	)
	c.costMetrics.RecordCost(provider, model, usage.TotalCost())
}

// UpdateHealth updates the health gauge of a provider.
func (c *Collector) UpdateHealth(provider string, healthy bool) {
	if !c.config.Enabled {
		return
	}
	c.providerMetrics.UpdateHealth(provider, healthy)
}

// RecordRun records a finished run.
func (c *Collector) RecordRun(model, status string, cached bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.runMetrics.RecordRun(c.model("run", "", model), status, cached, duration)
}

// RecordCacheLookup records a cache hit or miss.
func (c *Collector) RecordCacheLookup(cache string, hit bool) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordLookup(cache, hit)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
