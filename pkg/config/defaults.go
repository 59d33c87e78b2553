package config

import (
	"time"

	"dario.cat/mergo"
)

// Default values for configuration fields.
const (
	// Provider defaults
	DefaultProviderTimeout         = 120 * time.Second
	DefaultProviderMaxAttemptCount = 3
	DefaultMaxIdleConns            = 100
	DefaultMaxIdleConnsPerHost     = 10
	DefaultIdleConnTimeout         = 90 * time.Second

	// Routing defaults
	DefaultBackoffInitialInterval     = 500 * time.Millisecond
	DefaultBackoffMaxInterval         = 10 * time.Second
	DefaultBackoffMultiplier          = 2.0
	DefaultBackoffRandomization       = 0.2
	DefaultMaxRetryAfter              = 30 * time.Second
	DefaultUnavailableMaxAttemptCount = 3

	// Engine defaults
	DefaultThinkOpenTag  = "<think>"
	DefaultThinkCloseTag = "</think>"

	// Processing defaults
	DefaultTokensEstimator     = "tiktoken"
	DefaultTokensEncoding      = "cl100k_base"
	DefaultTokensCharsPerToken = 4.0
	DefaultCostsPricing        = 0.001 // $0.001 per 1K tokens

	// RunStore defaults
	DefaultRunStorePath         = "data/runs.db"
	DefaultRunStoreBusyTimeout  = 5 * time.Second
	DefaultRunRetentionDays     = 30
	DefaultRunRetentionSchedule = "0 3 * * *"
	DefaultTasksDrainTimeout    = 10 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsAddress      = "127.0.0.1:9090"
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "relay"
	DefaultMetricsSubsystem    = "engine"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingExporter     = "otlp"
	DefaultTracingServiceName  = "relay"
	DefaultOTLPTimeout         = 10 * time.Second
)

// Provider types.
const (
	TypeOpenAI      = "openai"
	TypeAzureOpenAI = "azure_openai"
	TypeFireworks   = "fireworks"
	TypeGroq        = "groq"
	TypeMistral     = "mistral"
	TypeAnthropic   = "anthropic"
	TypeGemini      = "gemini"
	TypeVertex      = "vertex"
)

// providerTypeDefaults holds per-type settings merged under each provider
// entry. Fields set in the file always win.
var providerTypeDefaults = map[string]ProviderConfig{
	TypeOpenAI:      {BaseURL: "https://api.openai.com/v1"},
	TypeAzureOpenAI: {APIVersion: "2024-10-21"},
	TypeFireworks:   {BaseURL: "https://api.fireworks.ai/inference/v1"},
	TypeGroq:        {BaseURL: "https://api.groq.com/openai/v1"},
	TypeMistral:     {BaseURL: "https://api.mistral.ai/v1"},
	TypeAnthropic:   {BaseURL: "https://api.anthropic.com/v1", APIVersion: "2023-06-01"},
	TypeGemini:      {BaseURL: "https://generativelanguage.googleapis.com/v1beta"},
	TypeVertex:      {Region: "us-central1"},
}

// commonProviderDefaults applies to every provider type.
var commonProviderDefaults = ProviderConfig{
	Timeout:             DefaultProviderTimeout,
	MaxAttemptCount:     DefaultProviderMaxAttemptCount,
	MaxIdleConns:        DefaultMaxIdleConns,
	MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
	IdleConnTimeout:     DefaultIdleConnTimeout,
}

// KnownProviderType reports whether t names a supported adapter.
func KnownProviderType(t string) bool {
	_, ok := providerTypeDefaults[t]
	return ok
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Provider defaults - applied to each provider
	for name, provider := range cfg.Providers {
		cfg.Providers[name] = applyProviderDefaults(name, provider)
	}

	// Routing defaults
	if cfg.Routing.Backoff.InitialInterval == 0 {
		cfg.Routing.Backoff.InitialInterval = DefaultBackoffInitialInterval
	}
	if cfg.Routing.Backoff.MaxInterval == 0 {
		cfg.Routing.Backoff.MaxInterval = DefaultBackoffMaxInterval
	}
	if cfg.Routing.Backoff.Multiplier == 0 {
		cfg.Routing.Backoff.Multiplier = DefaultBackoffMultiplier
	}
	if cfg.Routing.Backoff.RandomizationFactor == 0 {
		cfg.Routing.Backoff.RandomizationFactor = DefaultBackoffRandomization
	}
	if cfg.Routing.MaxRetryAfter == 0 {
		cfg.Routing.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if cfg.Routing.UnavailableMaxAttempts == 0 {
		cfg.Routing.UnavailableMaxAttempts = DefaultUnavailableMaxAttemptCount
	}

	// Engine defaults
	if cfg.Engine.ThinkOpenTag == "" {
		cfg.Engine.ThinkOpenTag = DefaultThinkOpenTag
	}
	if cfg.Engine.ThinkCloseTag == "" {
		cfg.Engine.ThinkCloseTag = DefaultThinkCloseTag
	}

	// RunStore defaults
	if cfg.RunStore.Path == "" {
		cfg.RunStore.Path = DefaultRunStorePath
	}
	if cfg.RunStore.BusyTimeout == 0 {
		cfg.RunStore.BusyTimeout = DefaultRunStoreBusyTimeout
	}
	if cfg.RunStore.Retention.Days == 0 {
		cfg.RunStore.Retention.Days = DefaultRunRetentionDays
	}
	if cfg.RunStore.Retention.PruneSchedule == "" {
		cfg.RunStore.Retention.PruneSchedule = DefaultRunRetentionSchedule
	}
	if cfg.Tasks.DrainTimeout == 0 {
		cfg.Tasks.DrainTimeout = DefaultTasksDrainTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Address == "" {
		cfg.Telemetry.Metrics.Address = DefaultMetricsAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}

	// Processing defaults
	applyProcessingDefaults(cfg)
}

// applyProviderDefaults fills unset fields of p from its type defaults and
// then from the common defaults.
func applyProviderDefaults(name string, p ProviderConfig) ProviderConfig {
	if p.Type == "" {
		p.Type = name
	}
	if defaults, ok := providerTypeDefaults[p.Type]; ok {
		// mergo only fills zero-valued fields of p without WithOverride.
		_ = mergo.Merge(&p, defaults)
	}
	_ = mergo.Merge(&p, commonProviderDefaults)
	return p
}

// applyProcessingDefaults applies default values to processing configuration.
func applyProcessingDefaults(cfg *Config) {
	// Tokens defaults
	if cfg.Processing.Tokens.Estimator == "" {
		cfg.Processing.Tokens.Estimator = DefaultTokensEstimator
	}
	if cfg.Processing.Tokens.Encoding == "" {
		cfg.Processing.Tokens.Encoding = DefaultTokensEncoding
	}
	if cfg.Processing.Tokens.Models == nil {
		cfg.Processing.Tokens.Models = map[string]float64{
			"gpt-4":   4.0,
			"gpt-3.5": 4.0,
			"o1":      4.0,
			"claude":  3.5,
			"gemini":  4.0,
			"default": DefaultTokensCharsPerToken,
		}
	}

	// Costs defaults
	if cfg.Processing.Costs.Pricing == nil {
		cfg.Processing.Costs.Pricing = DefaultPricing()
	}
}

// DefaultPricing returns the built-in pricing table, in USD per 1K tokens.
func DefaultPricing() map[string]map[string]ModelPricingConfig {
	return map[string]map[string]ModelPricingConfig{
		TypeOpenAI: {
			"gpt-4o": {
				Prompt:                0.0025,
				Completion:            0.01,
				SupportsPromptCaching: true,
				ContextWindow:         128000,
			},
			"gpt-4o-mini": {
				Prompt:                0.00015,
				Completion:            0.0006,
				SupportsPromptCaching: true,
				ContextWindow:         128000,
			},
			"gpt-4": {
				Prompt:        0.03,
				Completion:    0.06,
				ContextWindow: 8192,
			},
			"gpt-3.5-turbo": {
				Prompt:        0.0005,
				Completion:    0.0015,
				ContextWindow: 16385,
			},
		},
		TypeAnthropic: {
			"claude-3-5-sonnet": {
				Prompt:                0.003,
				Completion:            0.015,
				CachedPrompt:          0.0003,
				SupportsPromptCaching: true,
				ContextWindow:         200000,
			},
			"claude-3-opus": {
				Prompt:        0.015,
				Completion:    0.075,
				ContextWindow: 200000,
			},
			"claude-3-haiku": {
				Prompt:        0.00025,
				Completion:    0.00125,
				ContextWindow: 200000,
			},
		},
		TypeGemini: {
			"gemini-1.5-pro": {
				Prompt:        0.00125,
				Completion:    0.005,
				ContextWindow: 2000000,
			},
			"gemini-1.5-flash": {
				Prompt:        0.000075,
				Completion:    0.0003,
				ContextWindow: 1000000,
			},
		},
		"default": {
			"default": {
				Prompt:     DefaultCostsPricing,
				Completion: DefaultCostsPricing * 2,
			},
		},
	}
}
