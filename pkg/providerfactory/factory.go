package providerfactory

import (
	"fmt"
	"log/slog"

	"mercator-hq/relay/pkg/completion"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/providers/anthropic"
	"mercator-hq/relay/pkg/providers/gemini"
	"mercator-hq/relay/pkg/providers/openai"
)

// NewAdapter creates the wire adapter for a provider configuration.
//
// Supported provider types:
//   - "openai", "azure_openai", "fireworks", "groq", "mistral": Chat Completions dialect
//   - "anthropic": Anthropic Messages API
//   - "gemini", "vertex": Gemini generateContent, on AI Studio or Vertex AI
//
// The type is inferred from the provider name when unset.
func NewAdapter(cfg providers.ProviderConfig) (providers.Adapter, error) {
	if cfg.Type == "" {
		cfg.Type = cfg.Name
	}

	switch cfg.Type {
	case providers.TypeOpenAI, providers.TypeAzureOpenAI, providers.TypeFireworks,
		providers.TypeGroq, providers.TypeMistral:
		return adapt(openai.NewAdapter(cfg))

	case providers.TypeAnthropic:
		return adapt(anthropic.NewAdapter(cfg))

	case providers.TypeGemini, providers.TypeVertex:
		return adapt(gemini.NewAdapter(cfg))

	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "type",
			Message: fmt.Sprintf("unsupported provider type: %q (supported: openai, azure_openai, fireworks, groq, mistral, anthropic, gemini, vertex)",
				cfg.Type),
		}
	}
}

// adapt keeps a failed constructor from returning a typed nil adapter.
func adapt[A providers.Adapter](a A, err error) (providers.Adapter, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ProviderConfig converts a named configuration entry into the settings
// adapters and transports consume.
func ProviderConfig(name string, c config.ProviderConfig) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:                name,
		Type:                c.Type,
		BaseURL:             c.BaseURL,
		APIKey:              c.APIKey,
		APIVersion:          c.APIVersion,
		Project:             c.Project,
		Region:              c.Region,
		Deployments:         c.Deployments,
		Timeout:             c.Timeout,
		MaxAttemptCount:     c.MaxAttemptCount,
		MaxIdleConns:        c.MaxIdleConns,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
	}
}

// NewEngine creates the adapter, the pooled transport and the completion
// engine for one provider. The transport is returned so callers can close
// it and read its health.
func NewEngine(cfg providers.ProviderConfig, opts ...completion.Option) (*completion.Engine, *providers.HTTPProvider, error) {
	adapter, err := NewAdapter(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider %q: %w", cfg.Name, err)
	}

	transport := providers.NewHTTPProvider(cfg)
	opts = append(opts, completion.WithTimeout(cfg.Timeout))
	engine := completion.NewEngine(adapter, transport, opts...)

	slog.Debug("provider created",
		"name", cfg.Name,
		"type", adapter.Type(),
		"base_url", providers.RedactURL(cfg.BaseURL),
	)
	return engine, transport, nil
}
