package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with one OpenAI provider.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"openai": {APIKey: "test-key"},
		},
	}
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithProvider adds a provider, applying its type defaults.
func (b *ConfigBuilder) WithProvider(name string, provider ProviderConfig) *ConfigBuilder {
	b.cfg.Providers[name] = applyProviderDefaults(name, provider)
	return b
}

// WithModelMapping routes model to providers in order.
func (b *ConfigBuilder) WithModelMapping(model string, providers ...string) *ConfigBuilder {
	if b.cfg.Routing.ModelMapping == nil {
		b.cfg.Routing.ModelMapping = make(map[string][]string)
	}
	b.cfg.Routing.ModelMapping[model] = providers
	return b
}

// WithMaxRetryAfter sets the retry-after cap.
func (b *ConfigBuilder) WithMaxRetryAfter(d time.Duration) *ConfigBuilder {
	b.cfg.Routing.MaxRetryAfter = d
	return b
}

// WithLogging sets the logging level and format.
func (b *ConfigBuilder) WithLogging(level, format string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	b.cfg.Telemetry.Logging.Format = format
	return b
}
