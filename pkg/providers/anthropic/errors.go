package anthropic

import (
	"encoding/json"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/providers"
)

// ClassifyError refines a failed response from the typed error body.
func (a *Adapter) ClassifyError(status int, header http.Header, body []byte) *providers.ProviderError {
	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return nil
	}

	refined := a.refine(envelope.Error)
	if refined == nil {
		return nil
	}
	refined.WithStatus(status)
	if header != nil {
		refined.RetryAfter = providers.ParseRetryAfter(header.Get("Retry-After"))
	}
	return refined
}

func (a *Adapter) refine(apiErr *APIError) *providers.ProviderError {
	lower := strings.ToLower(apiErr.Message)
	newErr := func(code providers.ErrorCode) *providers.ProviderError {
		return providers.NewProviderError(code, a.config.Name, apiErr.Message)
	}

	switch {
	case apiErr.Type == "overloaded_error":
		return newErr(providers.CodeServerOverloaded)
	case strings.Contains(lower, "prompt is too long"):
		return newErr(providers.CodeMaxTokensExceeded)
	case apiErr.Type == "rate_limit_error":
		return newErr(providers.CodeRateLimit)
	case apiErr.Type == "authentication_error" || apiErr.Type == "permission_error":
		return newErr(providers.CodeInvalidProviderConfig)
	case apiErr.Type == "not_found_error" && strings.Contains(lower, "model"):
		return newErr(providers.CodeModelNotSupported)
	case apiErr.Type == "api_error":
		return newErr(providers.CodeProviderInternal)
	}
	return nil
}
