package gemini

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mercator-hq/relay/pkg/providers"
)

// ClassifyError refines a failed response from the google.rpc.Status body.
// Vertex wraps the envelope in a one-element array.
func (a *Adapter) ClassifyError(status int, header http.Header, body []byte) *providers.ProviderError {
	apiErr := decodeError(body)
	if apiErr == nil {
		return nil
	}

	refined := a.refine(apiErr)
	if refined == nil {
		return nil
	}
	refined.WithStatus(status)
	if header != nil {
		refined.RetryAfter = providers.ParseRetryAfter(header.Get("Retry-After"))
	}
	if refined.RetryAfter.IsZero() {
		refined.RetryAfter = providers.RetryAfter{Delay: retryDelay(apiErr)}
	}
	return refined
}

func decodeError(body []byte) *APIError {
	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error
	}
	var list []ErrorResponse
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 && list[0].Error != nil {
		return list[0].Error
	}
	return nil
}

func (a *Adapter) refine(apiErr *APIError) *providers.ProviderError {
	lower := strings.ToLower(apiErr.Message)
	newErr := func(code providers.ErrorCode) *providers.ProviderError {
		return providers.NewProviderError(code, a.config.Name, apiErr.Message)
	}

	switch {
	case apiErr.Status == "RESOURCE_EXHAUSTED":
		return newErr(providers.CodeRateLimit)
	case strings.Contains(lower, "exceeds the maximum number of tokens"):
		return newErr(providers.CodeMaxTokensExceeded)
	case apiErr.Status == "UNAUTHENTICATED" || apiErr.Status == "PERMISSION_DENIED" ||
		strings.Contains(lower, "api key not valid"):
		return newErr(providers.CodeInvalidProviderConfig)
	case apiErr.Status == "NOT_FOUND" && strings.Contains(lower, "model"):
		return newErr(providers.CodeModelNotSupported)
	case apiErr.Status == "INVALID_ARGUMENT" &&
		(strings.Contains(lower, "response_schema") || strings.Contains(lower, "responseschema")):
		return newErr(providers.CodeStructuredGenerationError)
	case apiErr.Status == "UNAVAILABLE":
		return newErr(providers.CodeProviderUnavailable)
	case apiErr.Status == "INTERNAL":
		return newErr(providers.CodeProviderInternal)
	}
	return nil
}

// retryDelay reads the RetryInfo detail ("retryDelay": "37s").
func retryDelay(apiErr *APIError) time.Duration {
	for _, raw := range apiErr.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if err := json.Unmarshal(raw, &detail); err != nil || detail.RetryDelay == "" {
			continue
		}
		if !strings.HasSuffix(detail.Type, "RetryInfo") {
			continue
		}
		if d, err := time.ParseDuration(detail.RetryDelay); err == nil && d > 0 {
			return d
		}
	}
	return 0
}
