package openai

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"mercator-hq/relay/pkg/providers"
)

// ClassifyError refines a failed response using the vendor error body. It
// returns nil when the body carries nothing more specific than the status.
func (a *Adapter) ClassifyError(status int, header http.Header, body []byte) *providers.ProviderError {
	var envelope goopenai.ErrorResponse
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

func (a *Adapter) refine(apiErr *goopenai.APIError) *providers.ProviderError {
	code := errorCode(apiErr.Code)
	message := apiErr.Message
	lower := strings.ToLower(message)

	newErr := func(c providers.ErrorCode) *providers.ProviderError {
		return providers.NewProviderError(c, a.config.Name, message)
	}

	switch {
	case code == "context_length_exceeded" || strings.Contains(lower, "maximum context length"):
		return newErr(providers.CodeMaxTokensExceeded)

	case code == "content_filter" || code == "content_policy_violation" ||
		(apiErr.InnerError != nil && apiErr.InnerError.Code == "ResponsibleAIPolicyViolation"):
		return newErr(providers.CodeContentModeration)

	case code == "invalid_api_key":
		return newErr(providers.CodeInvalidProviderConfig)

	case code == "model_not_found" || code == "DeploymentNotFound" || strings.Contains(lower, "does not exist"):
		return newErr(providers.CodeModelNotSupported)

	// Groq reports malformed tool calls and JSON mode failures this way.
	case code == "tool_use_failed" || code == "json_validate_failed":
		return newErr(providers.CodeFailedGeneration)

	case rejectsSchema(apiErr, lower):
		return newErr(providers.CodeStructuredGenerationError)
	}
	return nil
}

// rejectsSchema reports whether the vendor refused the json_schema
// response format.
func rejectsSchema(apiErr *goopenai.APIError, lower string) bool {
	if apiErr.Param != nil && strings.HasPrefix(*apiErr.Param, "response_format") {
		return true
	}
	return strings.Contains(lower, "json_schema") || strings.Contains(lower, "response_format")
}

// errorCode normalizes the code field, which vendors send as a string or
// a number.
func errorCode(code any) string {
	switch c := code.(type) {
	case string:
		return c
	case int:
		return strconv.Itoa(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return ""
	}
}
