package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Relay-specific keys use the "relay.*" namespace.
const (
	AttrProvider = "relay.provider"
	AttrModel    = "relay.model"

	AttrTokensPrompt     = "relay.tokens.prompt"
	AttrTokensCompletion = "relay.tokens.completion"
	AttrTokensTotal      = "relay.tokens.total"

	AttrCost         = "relay.cost.total"
	AttrCostCurrency = "relay.cost.currency"
	AttrCostPerToken = "relay.cost.per_token"

	AttrRetryCount = "relay.retry_count"
	AttrErrorCode  = "relay.error.code"

	AttrRunID     = "relay.run.id"
	AttrTenantID  = "relay.run.tenant_id"
	AttrVersionID = "relay.run.version_id"
	AttrRunStatus = "relay.run.status"

	AttrCacheHit  = "relay.cache.hit"
	AttrCacheName = "relay.cache.name"
)

// SetProviderAttributes sets provider-related attributes on a span.
//
//	SetProviderAttributes(span, "openai", "gpt-4o")
func SetProviderAttributes(span trace.Span, provider, model string) {
	span.SetAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	)
}

// SetTokenAttributes sets token count attributes on a span.
func SetTokenAttributes(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Int(AttrTokensPrompt, promptTokens),
		attribute.Int(AttrTokensCompletion, completionTokens),
		attribute.Int(AttrTokensTotal, promptTokens+completionTokens),
	)
}

// SetCostAttributes sets cost-related attributes on a span.
//
//	SetCostAttributes(span, 0.05, "USD")
func SetCostAttributes(span trace.Span, cost float64, currency string) {
	span.SetAttributes(
		attribute.Float64(AttrCost, cost),
		attribute.String(AttrCostCurrency, currency),
	)
}

// SetCostWithTokens sets cost and token attributes on a span, plus the
// cost per token when any tokens were used.
func SetCostWithTokens(span trace.Span, promptTokens, completionTokens int, cost float64) {
	SetTokenAttributes(span, promptTokens, completionTokens)
	SetCostAttributes(span, cost, "USD")

	if total := promptTokens + completionTokens; total > 0 {
		span.SetAttributes(attribute.Float64(AttrCostPerToken, cost/float64(total)))
	}
}

// SetRetryAttribute sets the number of retries that preceded this attempt.
func SetRetryAttribute(span trace.Span, retryCount int) {
	span.SetAttributes(attribute.Int(AttrRetryCount, retryCount))
}

// SetErrorCode tags the span with a provider error code.
func SetErrorCode(span trace.Span, code string) {
	if code == "" {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorCode, code))
}

// SetRunAttributes identifies the run a span belongs to. Empty values are
// skipped.
func SetRunAttributes(span trace.Span, runID, tenantID, versionID string) {
	attrs := make([]attribute.KeyValue, 0, 3)
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	if tenantID != "" {
		attrs = append(attrs, attribute.String(AttrTenantID, tenantID))
	}
	if versionID != "" {
		attrs = append(attrs, attribute.String(AttrVersionID, versionID))
	}
	span.SetAttributes(attrs...)
}

// SetRunStatus records the final status of a run.
func SetRunStatus(span trace.Span, status string) {
	span.SetAttributes(attribute.String(AttrRunStatus, status))
}

// SetCacheAttributes sets cache lookup attributes on a span.
func SetCacheAttributes(span trace.Span, hit bool, cacheName string) {
	span.SetAttributes(
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheName, cacheName),
	)
}
