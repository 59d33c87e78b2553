package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It expands "${VAR}" references in provider credentials, applies default
// values, loads the pricing file when one is configured, and validates.
// Environment overrides are not applied; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration, expands credentials, loads the pricing
// file and applies defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	expandProviderEnv(&cfg)

	if cfg.Processing.Costs.PricingFile != "" {
		pricing, err := LoadPricingFile(cfg.Processing.Costs.PricingFile)
		if err != nil {
			return nil, err
		}
		cfg.Processing.Costs.Pricing = pricing
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadPricingFile reads a pricing map (provider -> model -> pricing) from YAML.
func LoadPricingFile(path string) (map[string]map[string]ModelPricingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file %q: %w", path, err)
	}

	var pricing map[string]map[string]ModelPricingConfig
	if err := yaml.Unmarshal(data, &pricing); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %q: %w", path, err)
	}
	if errs := validatePricing("pricing", pricing); len(errs) > 0 {
		return nil, ValidationError{Errors: errs}
	}
	return pricing, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_TELEMETRY_LOGGING_LEVEL).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandProviderEnv expands "${VAR}" and "$VAR" in provider credentials
// and endpoints.
func expandProviderEnv(cfg *Config) {
	for name, p := range cfg.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		p.Project = os.ExpandEnv(p.Project)
		cfg.Providers[name] = p
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format RELAY_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Provider overrides, for every configured provider
	for name := range cfg.Providers {
		applyProviderEnvOverrides(cfg, name)
	}

	// Routing overrides
	if val := os.Getenv("RELAY_ROUTING_MAX_RETRY_AFTER"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Routing.MaxRetryAfter = d
		}
	}
	if val := os.Getenv("RELAY_ROUTING_UNAVAILABLE_MAX_ATTEMPTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Routing.UnavailableMaxAttempts = i
		}
	}

	// Engine overrides
	if val := os.Getenv("RELAY_ENGINE_MODERATION_HEURISTIC"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.ModerationHeuristic = &b
		}
	}

	// Processing overrides
	if val := os.Getenv("RELAY_PROCESSING_TOKENS_ESTIMATOR"); val != "" {
		cfg.Processing.Tokens.Estimator = val
	}
	if val := os.Getenv("RELAY_PROCESSING_COSTS_PRICING_FILE"); val != "" {
		if pricing, err := LoadPricingFile(val); err == nil {
			cfg.Processing.Costs.PricingFile = val
			cfg.Processing.Costs.Pricing = pricing
		}
	}

	// RunStore overrides
	if val := os.Getenv("RELAY_RUNSTORE_PATH"); val != "" {
		cfg.RunStore.Path = val
	}
	if val := os.Getenv("RELAY_RUNSTORE_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.RunStore.Retention.Days = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("RELAY_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("RELAY_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("RELAY_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("RELAY_TELEMETRY_METRICS_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.Address = val
	}
	if val := os.Getenv("RELAY_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("RELAY_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
}

// applyProviderEnvOverrides applies environment variable overrides for a specific provider.
// Provider environment variables follow the format RELAY_PROVIDERS_<NAME>_<FIELD>
// where NAME is the uppercase provider name with dashes replaced by underscores.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	provider := cfg.Providers[providerName]

	key := strings.ToUpper(strings.ReplaceAll(providerName, "-", "_"))
	prefix := fmt.Sprintf("RELAY_PROVIDERS_%s_", key)

	if val := os.Getenv(prefix + "BASE_URL"); val != "" {
		provider.BaseURL = val
	}
	if val := os.Getenv(prefix + "API_KEY"); val != "" {
		provider.APIKey = val
	}
	if val := os.Getenv(prefix + "TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			provider.Timeout = d
		}
	}
	if val := os.Getenv(prefix + "MAX_ATTEMPT_COUNT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			provider.MaxAttemptCount = i
		}
	}

	cfg.Providers[providerName] = provider
}
