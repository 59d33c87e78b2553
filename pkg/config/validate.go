package config

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "providers.openai.base_url").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateRouting(&cfg.Routing, cfg.Providers)...)
	errs = append(errs, validateProcessing(&cfg.Processing)...)
	errs = append(errs, validateRunStore(&cfg.RunStore)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProviders validates provider configurations.
func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	if len(providers) == 0 {
		errs = append(errs, FieldError{
			Field:   "providers",
			Message: "at least one provider must be configured",
		})
		return errs
	}

	// Sorted for stable error output
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		provider := providers[name]
		prefix := fmt.Sprintf("providers.%s", name)

		if !KnownProviderType(provider.Type) {
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown provider type %q", provider.Type),
			})
			continue
		}

		switch provider.Type {
		case TypeVertex:
			if provider.Project == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".project",
					Message: "project is required for vertex",
				})
			}
		default:
			if provider.BaseURL == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: "base URL is required",
				})
			}
		}

		if provider.BaseURL != "" {
			if u, err := url.Parse(provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("invalid URL %q", provider.BaseURL),
				})
			}
		}

		// API keys may be empty here and injected later through the environment.

		if provider.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "timeout must be positive",
			})
		}
		if provider.MaxAttemptCount < 1 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_attempt_count",
				Message: "max attempt count must be at least 1",
			})
		}
		if provider.MaxAttemptCount > 10 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_attempt_count",
				Message: "max attempt count exceeds reasonable limit (10)",
			})
		}
		for i, pattern := range provider.Models {
			if _, err := path.Match(pattern, ""); err != nil {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s.models[%d]", prefix, i),
					Message: fmt.Sprintf("invalid glob %q: %v", pattern, err),
				})
			}
		}
	}

	return errs
}

// validateRouting validates that model mappings reference configured providers.
func validateRouting(cfg *RoutingConfig, providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	for model, names := range cfg.ModelMapping {
		field := fmt.Sprintf("routing.model_mapping.%s", model)
		if len(names) == 0 {
			errs = append(errs, FieldError{
				Field:   field,
				Message: "at least one provider is required",
			})
		}
		for _, name := range names {
			if _, ok := providers[name]; !ok {
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("unknown provider %q", name),
				})
			}
		}
	}

	if cfg.Backoff.Multiplier < 1 {
		errs = append(errs, FieldError{
			Field:   "routing.backoff.multiplier",
			Message: "multiplier must be at least 1",
		})
	}
	if cfg.Backoff.RandomizationFactor < 0 || cfg.Backoff.RandomizationFactor > 1 {
		errs = append(errs, FieldError{
			Field:   "routing.backoff.randomization_factor",
			Message: "randomization factor must be between 0.0 and 1.0",
		})
	}
	if cfg.MaxRetryAfter < 0 {
		errs = append(errs, FieldError{
			Field:   "routing.max_retry_after",
			Message: "max retry after must be positive",
		})
	}

	return errs
}

// validateProcessing validates estimator and pricing configuration.
func validateProcessing(cfg *ProcessingConfig) []FieldError {
	var errs []FieldError

	switch cfg.Tokens.Estimator {
	case "tiktoken", "simple":
	default:
		errs = append(errs, FieldError{
			Field:   "processing.tokens.estimator",
			Message: fmt.Sprintf("invalid estimator %q: must be 'tiktoken' or 'simple'", cfg.Tokens.Estimator),
		})
	}

	errs = append(errs, validatePricing("processing.costs.pricing", cfg.Costs.Pricing)...)
	return errs
}

func validatePricing(prefix string, pricing map[string]map[string]ModelPricingConfig) []FieldError {
	var errs []FieldError
	for provider, models := range pricing {
		for model, p := range models {
			if p.Prompt < 0 || p.Completion < 0 || p.CachedPrompt < 0 || p.PerImage < 0 || p.PerAudioSecond < 0 {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s.%s.%s", prefix, provider, model),
					Message: "prices must be non-negative",
				})
			}
		}
	}
	return errs
}

// validateRunStore validates run store configuration.
func validateRunStore(cfg *RunStoreConfig) []FieldError {
	var errs []FieldError

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "runstore.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "runstore.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text' or 'console'", cfg.Logging.Format),
		})
	}

	// Validate metrics path
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	// Validate tracing configuration
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
