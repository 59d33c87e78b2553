package providers

import (
	"time"

	"mercator-hq/relay/pkg/llm"
)

// Provider type constants
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

// Finish reason constants
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// ProviderHealth tracks the health status of a provider.
type ProviderHealth struct {
	// IsHealthy indicates whether the provider is currently healthy
	IsHealthy bool

	// LastCheck is the timestamp of the last health update
	LastCheck time.Time

	// LastError is the most recent error encountered (nil if healthy)
	LastError error

	// ConsecutiveFailures counts sequential failed requests
	ConsecutiveFailures int

	// LastSuccessfulRequest is the timestamp of the last successful request
	LastSuccessfulRequest time.Time

	// TotalRequests is the total number of requests sent to this provider
	TotalRequests int64

	// FailedRequests is the total number of failed requests
	FailedRequests int64
}

// ProviderConfig contains configuration for a single provider instance.
// This is a subset of config.ProviderConfig with only the fields needed by adapters.
type ProviderConfig struct {
	// Name is the provider identifier (e.g., "openai-primary")
	Name string

	// Type is the provider type (openai, azure_openai, anthropic, gemini, ...)
	Type string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the authentication key (or bearer token for Vertex)
	APIKey string

	// APIVersion is a vendor API version (Azure api-version, Anthropic version header)
	APIVersion string

	// Project is the cloud project (Vertex)
	Project string

	// Region is the cloud region (Vertex)
	Region string

	// Deployments maps canonical models to Azure deployment names
	Deployments map[string]string

	// Timeout is the request timeout duration
	Timeout time.Duration

	// MaxAttemptCount bounds attempts on this provider for retryable errors
	MaxAttemptCount int

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// Response is a decoded non-streamed vendor response.
type Response interface {
	// Content returns the completion text.
	Content() (string, error)

	// ReasoningSteps returns reasoning emitted alongside the completion.
	ReasoningSteps() []llm.ReasoningStep

	// ToolCalls returns native tool calls.
	ToolCalls() ([]llm.ToolCallRequest, error)

	// Usage returns the reported usage, or nil when the vendor omitted it.
	Usage() *llm.LLMUsage

	// FinishReason returns the normalized finish reason.
	FinishReason() string
}

// SkippedItem records an item a conversion could not translate.
type SkippedItem struct {
	Index  int
	Reason string
}

// StandardizeResult holds converted messages and everything that was skipped.
type StandardizeResult struct {
	Messages []llm.Message
	Skipped  []SkippedItem
}
