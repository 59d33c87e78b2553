package config

import "time"

// Config is the root configuration structure for Relay.
// It contains the provider registry, failover routing, engine behavior,
// usage processing, run persistence, and telemetry settings.
type Config struct {
	// Providers contains configuration for all provider integrations.
	// Keys are provider names (e.g., "openai", "azure-east").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Routing contains failover configuration: the ordered candidate
	// providers per model and the retry pacing between attempts.
	Routing RoutingConfig `yaml:"routing"`

	// Engine contains completion engine configuration.
	Engine EngineConfig `yaml:"engine"`

	// Processing contains token estimation and cost calculation configuration.
	Processing ProcessingConfig `yaml:"processing"`

	// RunStore contains configuration for the local run store.
	RunStore RunStoreConfig `yaml:"runstore"`

	// Tasks contains background task registry configuration.
	Tasks TasksConfig `yaml:"tasks"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProviderConfig contains configuration for a single provider.
type ProviderConfig struct {
	// Type selects the adapter.
	// Options: "openai", "azure_openai", "fireworks", "groq", "mistral",
	// "anthropic", "gemini", "vertex". Defaults to the provider name.
	Type string `yaml:"type"`

	// BaseURL is the base URL for the provider's API endpoint.
	// Each type has a default; Azure requires one.
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider. "${VAR}" is
	// expanded from the environment. For Vertex this is an access token.
	APIKey string `yaml:"api_key"`

	// APIVersion is sent as the api-version query (Azure) or the
	// anthropic-version header.
	APIVersion string `yaml:"api_version"`

	// Project and Region locate Vertex AI endpoints.
	Project string `yaml:"project"`
	Region  string `yaml:"region"`

	// Deployments maps model names to Azure deployment names.
	Deployments map[string]string `yaml:"deployments"`

	// Models lists glob patterns of the models this provider serves.
	// Used when routing.model_mapping has no entry for a model.
	Models []string `yaml:"models"`

	// Timeout bounds one non-streamed attempt and the wait for response
	// headers on streamed attempts.
	// Default: 120s
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttemptCount is the number of attempts on this provider for
	// retryable errors before failing over.
	// Default: 3
	MaxAttemptCount int `yaml:"max_attempt_count"`

	// Connection pool settings.
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// RoutingConfig contains failover configuration.
type RoutingConfig struct {
	// ModelMapping maps model names to an ordered list of provider names.
	// Example: "gpt-4o" -> ["azure-east", "openai"]
	ModelMapping map[string][]string `yaml:"model_mapping"`

	// Backoff paces retries against the same provider.
	Backoff BackoffConfig `yaml:"backoff"`

	// MaxRetryAfter caps how long a provider's Retry-After can delay a
	// same-provider retry. Longer delays fail over instead.
	// Default: 30s
	MaxRetryAfter time.Duration `yaml:"max_retry_after"`

	// UnavailableMaxAttempts caps attempts on a provider that refuses
	// connections, regardless of max_attempt_count.
	// Default: 3
	UnavailableMaxAttempts int `yaml:"unavailable_max_attempts"`
}

// BackoffConfig configures exponential backoff between attempts.
type BackoffConfig struct {
	// Default: 500ms
	InitialInterval time.Duration `yaml:"initial_interval"`

	// Default: 10s
	MaxInterval time.Duration `yaml:"max_interval"`

	// Default: 2.0
	Multiplier float64 `yaml:"multiplier"`

	// Default: 0.2
	RandomizationFactor float64 `yaml:"randomization_factor"`
}

// EngineConfig contains completion engine configuration.
type EngineConfig struct {
	// ThinkOpenTag and ThinkCloseTag delimit inline reasoning for models
	// that emit it inside content.
	// Default: "<think>" and "</think>"
	ThinkOpenTag  string `yaml:"think_open_tag"`
	ThinkCloseTag string `yaml:"think_close_tag"`

	// ModerationHeuristic reclassifies an apology that mentions
	// inappropriate or offensive content as a moderation refusal.
	// Default: true
	ModerationHeuristic *bool `yaml:"moderation_heuristic"`
}

// ModerationHeuristicEnabled reports the effective heuristic setting.
func (e EngineConfig) ModerationHeuristicEnabled() bool {
	return e.ModerationHeuristic == nil || *e.ModerationHeuristic
}

// ProcessingConfig contains usage processing configuration.
type ProcessingConfig struct {
	// Tokens contains token estimation configuration.
	Tokens TokensConfig `yaml:"tokens"`

	// Costs contains cost calculation configuration.
	Costs CostsConfig `yaml:"costs"`
}

// TokensConfig contains token estimation configuration.
type TokensConfig struct {
	// Estimator is the token estimator type (tiktoken, simple).
	// Default: "tiktoken"
	Estimator string `yaml:"estimator"`

	// Encoding is the default BPE encoding for the tiktoken estimator.
	// Default: "cl100k_base"
	Encoding string `yaml:"encoding"`

	// Models contains model-specific characters-per-token ratios, used by
	// the simple estimator and as the tiktoken fallback.
	Models map[string]float64 `yaml:"models"`
}

// CostsConfig contains cost calculation configuration.
type CostsConfig struct {
	// Pricing contains model pricing configurations by provider.
	Pricing map[string]map[string]ModelPricingConfig `yaml:"pricing"`

	// PricingFile is an optional YAML file holding a pricing map. When set
	// it replaces Pricing and is reloaded on change.
	PricingFile string `yaml:"pricing_file"`
}

// ModelPricingConfig contains pricing for a specific model.
type ModelPricingConfig struct {
	// Prompt is the cost per 1K prompt tokens in USD.
	Prompt float64 `yaml:"prompt"`

	// Completion is the cost per 1K completion tokens in USD.
	Completion float64 `yaml:"completion"`

	// CachedPrompt is the cost per 1K cached prompt tokens in USD (optional).
	// Defaults to half the prompt rate when prompt caching is supported.
	CachedPrompt float64 `yaml:"cached_prompt,omitempty"`

	// SupportsPromptCaching enables the cached prompt rate.
	SupportsPromptCaching bool `yaml:"supports_prompt_caching,omitempty"`

	// PerImage and PerAudioSecond are surcharges for models that bill
	// media outside their token count.
	PerImage       float64 `yaml:"per_image,omitempty"`
	PerAudioSecond float64 `yaml:"per_audio_second,omitempty"`

	// ContextWindow is the model context window in tokens (optional).
	ContextWindow int `yaml:"context_window,omitempty"`
}

// RunStoreConfig contains configuration for the SQLite run store.
type RunStoreConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/runs.db"
	Path string `yaml:"path"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain runs.
	// 0 means keep runs forever (no pruning).
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}

// TasksConfig contains background task registry configuration.
type TasksConfig struct {
	// DrainTimeout bounds the wait for background tasks at shutdown.
	// Default: 10s
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables redaction of API keys and other secrets in logs.
	// Default: true
	RedactPII *bool `yaml:"redact_pii"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactionEnabled reports the effective redaction setting.
func (l LoggingConfig) RedactionEnabled() bool {
	return l.RedactPII == nil || *l.RedactPII
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Address is the listen address for the metrics endpoint.
	// Default: "127.0.0.1:9090"
	Address string `yaml:"address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "relay"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "engine"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for attempt duration (seconds).
	// Default: [0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`

	// TokenCountBuckets defines histogram buckets for token counts.
	// Default: [100, 500, 1000, 5000, 10000, 50000, 100000]
	TokenCountBuckets []float64 `yaml:"token_count_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter determines the trace exporter to use.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the trace collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
