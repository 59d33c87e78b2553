package providerfactory

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
)

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name     string
		config   providers.ProviderConfig
		wantType string
	}{
		{
			name:     "openai",
			config:   providers.ProviderConfig{Name: "openai", Type: "openai", BaseURL: "https://api.openai.com/v1", APIKey: "k"},
			wantType: providers.TypeOpenAI,
		},
		{
			name:     "azure",
			config:   providers.ProviderConfig{Name: "azure-east", Type: "azure_openai", BaseURL: "https://east.openai.azure.com", APIKey: "k", APIVersion: "2024-10-21"},
			wantType: providers.TypeAzureOpenAI,
		},
		{
			name:     "groq",
			config:   providers.ProviderConfig{Name: "groq", Type: "groq", BaseURL: "https://api.groq.com/openai/v1", APIKey: "k"},
			wantType: providers.TypeGroq,
		},
		{
			name:     "anthropic",
			config:   providers.ProviderConfig{Name: "anthropic", Type: "anthropic", BaseURL: "https://api.anthropic.com/v1", APIKey: "k"},
			wantType: providers.TypeAnthropic,
		},
		{
			name:     "gemini",
			config:   providers.ProviderConfig{Name: "gemini", Type: "gemini", BaseURL: "https://generativelanguage.googleapis.com/v1beta", APIKey: "k"},
			wantType: providers.TypeGemini,
		},
		{
			name:     "vertex",
			config:   providers.ProviderConfig{Name: "vertex", Type: "vertex", Project: "p", Region: "us-central1", APIKey: "token"},
			wantType: providers.TypeVertex,
		},
		{
			name:     "type inferred from name",
			config:   providers.ProviderConfig{Name: "mistral", BaseURL: "https://api.mistral.ai/v1", APIKey: "k"},
			wantType: providers.TypeMistral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.config)
			if err != nil {
				t.Fatalf("NewAdapter() failed: %v", err)
			}
			if adapter.Name() != tt.config.Name {
				t.Errorf("Name() = %s, want %s", adapter.Name(), tt.config.Name)
			}
			if adapter.Type() != tt.wantType {
				t.Errorf("Type() = %s, want %s", adapter.Type(), tt.wantType)
			}
		})
	}
}

func TestNewAdapter_Errors(t *testing.T) {
	tests := []struct {
		name      string
		config    providers.ProviderConfig
		wantField string
	}{
		{name: "unsupported type", config: providers.ProviderConfig{Name: "ollama", APIKey: "k"}, wantField: "type"},
		{name: "missing key", config: providers.ProviderConfig{Name: "openai", Type: "openai", BaseURL: "https://x"}, wantField: "api_key"},
		{name: "vertex without project", config: providers.ProviderConfig{Name: "v", Type: "vertex", Region: "r", APIKey: "k"}, wantField: "project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.config)
			if adapter != nil {
				t.Errorf("expected nil adapter, got %#v", adapter)
			}
			var cfgErr *providers.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %s, want %s", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestProviderConfig(t *testing.T) {
	got := ProviderConfig("azure-east", config.ProviderConfig{
		Type:            "azure_openai",
		BaseURL:         "https://east.openai.azure.com",
		APIKey:          "k",
		APIVersion:      "2024-10-21",
		Deployments:     map[string]string{"gpt-4o": "prod-4o"},
		Models:          []string{"gpt-*"},
		Timeout:         30 * time.Second,
		MaxAttemptCount: 2,
	})

	if got.Name != "azure-east" || got.Type != "azure_openai" {
		t.Errorf("unexpected identity %s/%s", got.Name, got.Type)
	}
	if got.Deployments["gpt-4o"] != "prod-4o" {
		t.Errorf("deployments not carried: %v", got.Deployments)
	}
	if got.Timeout != 30*time.Second || got.MaxAttemptCount != 2 {
		t.Errorf("unexpected limits %v/%d", got.Timeout, got.MaxAttemptCount)
	}
}

func TestNewEngine(t *testing.T) {
	engine, transport, err := NewEngine(providers.ProviderConfig{
		Name:    "openai",
		Type:    "openai",
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "test-key",
		Timeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	defer transport.Close()

	if engine.Provider() != "openai" {
		t.Errorf("Provider() = %s, want openai", engine.Provider())
	}
	if !engine.Healthy() {
		t.Error("new engine should start healthy")
	}
}
