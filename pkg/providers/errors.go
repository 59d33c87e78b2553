package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mercator-hq/relay/pkg/llm"
)

// ErrorCode is the stable, client-facing identifier of an error kind. It does
// not change across retries or providers.
type ErrorCode string

// Provider error codes
const (
	CodeInvalidProviderConfig     ErrorCode = "invalid_provider_config"
	CodeProviderTimeout           ErrorCode = "provider_timeout"
	CodeRateLimit                 ErrorCode = "rate_limit"
	CodeProviderInternal          ErrorCode = "provider_internal_error"
	CodeProviderUnavailable       ErrorCode = "provider_unavailable"
	CodeServerOverloaded          ErrorCode = "server_overloaded"
	CodeBadRequest                ErrorCode = "bad_request"
	CodeMaxTokensExceeded         ErrorCode = "max_tokens_exceeded"
	CodeContentModeration         ErrorCode = "content_moderation"
	CodeFailedGeneration          ErrorCode = "failed_generation"
	CodeInvalidGeneration         ErrorCode = "invalid_generation"
	CodeModelNotSupported         ErrorCode = "model_not_supported"
	CodeStructuredGenerationError ErrorCode = "structured_generation_error"
	CodeUnknownProviderError      ErrorCode = "unknown_provider_error"
)

// Application error codes
const (
	CodeObjectNotFound    ErrorCode = "object_not_found"
	CodeInvalidRunOptions ErrorCode = "invalid_run_options"
)

// kindDefaults are the static properties every provider error kind declares.
type kindDefaults struct {
	status       int
	retry        bool
	tryNext      bool
	storeTaskRun bool
	capture      bool
}

var kinds = map[ErrorCode]kindDefaults{
	CodeInvalidProviderConfig:     {status: 401, capture: true, storeTaskRun: true},
	CodeProviderTimeout:           {status: 408, retry: true, tryNext: true, storeTaskRun: true},
	CodeRateLimit:                 {status: 429, retry: true, tryNext: true},
	CodeProviderInternal:          {status: 500, tryNext: true, storeTaskRun: true},
	CodeProviderUnavailable:       {status: 503, retry: true, tryNext: true, storeTaskRun: true},
	CodeServerOverloaded:          {status: 529, tryNext: true, storeTaskRun: true},
	CodeBadRequest:                {status: 400, capture: true, storeTaskRun: true},
	CodeMaxTokensExceeded:         {status: 400},
	CodeContentModeration:         {status: 400, storeTaskRun: true},
	CodeFailedGeneration:          {status: 400, retry: true, storeTaskRun: true},
	CodeInvalidGeneration:         {status: 400, retry: true, storeTaskRun: true},
	CodeModelNotSupported:         {status: 400, tryNext: true},
	CodeStructuredGenerationError: {status: 400, retry: true, storeTaskRun: true},
	CodeUnknownProviderError:      {status: 500, capture: true, storeTaskRun: true},
}

// ProviderError is a fault raised while calling an upstream model. The flags
// drive the failover orchestrator: Retry repeats the same provider,
// ShouldTryNextProvider moves on to the next candidate.
type ProviderError struct {
	// Code identifies the error kind
	Code ErrorCode

	// Provider is the name of the provider that produced the error
	Provider string

	// StatusCode is the HTTP status surfaced to callers
	StatusCode int

	// Message is the error message
	Message string

	// Retry allows another attempt on the same provider
	Retry bool

	// ShouldTryNextProvider allows failing over to the next candidate
	ShouldTryNextProvider bool

	// StoreTaskRun indicates the failed run should still be persisted
	StoreTaskRun bool

	// Capture indicates the error should be reported to error telemetry
	Capture bool

	// RetryAfter is the upstream back-off hint, if any
	RetryAfter RetryAfter

	// PartialOutput is whatever was generated before the failure
	PartialOutput *llm.StructuredOutput

	// Cause is the underlying error (if any)
	Cause error
}

// NewProviderError creates an error of the given kind with its default flags.
func NewProviderError(code ErrorCode, provider, message string) *ProviderError {
	d, ok := kinds[code]
	if !ok {
		d = kinds[CodeUnknownProviderError]
	}
	return &ProviderError{
		Code:                  code,
		Provider:              provider,
		StatusCode:            d.status,
		Message:               message,
		Retry:                 d.retry,
		ShouldTryNextProvider: d.tryNext,
		StoreTaskRun:          d.storeTaskRun,
		Capture:               d.capture,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q %s (status %d): %s", e.Provider, e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %q %s: %s", e.Provider, e.Code, msg)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches provider errors by code, so sentinel values work with errors.Is.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Provider == "" || t.Provider == e.Provider)
}

// WithCause sets the underlying error and returns e.
func (e *ProviderError) WithCause(cause error) *ProviderError {
	e.Cause = cause
	return e
}

// WithStatus overrides the surfaced HTTP status and returns e.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	if status > 0 {
		e.StatusCode = status
	}
	return e
}

// Sentinel provider errors for use with errors.Is.
var (
	ErrInvalidProviderConfig = &ProviderError{Code: CodeInvalidProviderConfig}
	ErrProviderTimeout       = &ProviderError{Code: CodeProviderTimeout}
	ErrRateLimit             = &ProviderError{Code: CodeRateLimit}
	ErrProviderInternal      = &ProviderError{Code: CodeProviderInternal}
	ErrProviderUnavailable   = &ProviderError{Code: CodeProviderUnavailable}
	ErrServerOverloaded      = &ProviderError{Code: CodeServerOverloaded}
	ErrBadRequest            = &ProviderError{Code: CodeBadRequest}
	ErrMaxTokensExceeded     = &ProviderError{Code: CodeMaxTokensExceeded}
	ErrContentModeration     = &ProviderError{Code: CodeContentModeration}
	ErrFailedGeneration      = &ProviderError{Code: CodeFailedGeneration}
	ErrInvalidGeneration     = &ProviderError{Code: CodeInvalidGeneration}
	ErrModelNotSupported     = &ProviderError{Code: CodeModelNotSupported}
	ErrStructuredGeneration  = &ProviderError{Code: CodeStructuredGenerationError}
	ErrUnknownProvider       = &ProviderError{Code: CodeUnknownProviderError}
)

// ClassifyStatus maps an HTTP status to its default error kind.
func ClassifyStatus(status int) ErrorCode {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeInvalidProviderConfig
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CodeProviderTimeout
	case http.StatusTooManyRequests:
		return CodeRateLimit
	case http.StatusInternalServerError, 520, 530:
		return CodeProviderInternal
	case http.StatusBadGateway, http.StatusServiceUnavailable, 522:
		return CodeProviderUnavailable
	case 529:
		return CodeServerOverloaded
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return CodeBadRequest
	default:
		return CodeUnknownProviderError
	}
}

// ErrorFromStatus runs the generic status dispatch table. The surfaced status
// is the upstream one and the Retry-After header, when present, is attached.
func ErrorFromStatus(provider string, status int, header http.Header, body []byte) *ProviderError {
	err := NewProviderError(ClassifyStatus(status), provider, truncate(string(body), 1000))
	err.StatusCode = status
	if header != nil {
		err.RetryAfter = ParseRetryAfter(header.Get("Retry-After"))
	}
	return err
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryAfter is an upstream back-off hint: either a delay or an absolute time.
type RetryAfter struct {
	// Delay is a relative back-off
	Delay time.Duration

	// At is an absolute time before which retrying is pointless
	At time.Time
}

// IsZero reports whether no hint is set.
func (r RetryAfter) IsZero() bool {
	return r.Delay <= 0 && r.At.IsZero()
}

// String normalizes the hint for a Retry-After style signal: ISO-8601 for
// absolute timestamps, decimal seconds otherwise. It is empty when unset.
func (r RetryAfter) String() string {
	if !r.At.IsZero() {
		return r.At.UTC().Format(time.RFC3339)
	}
	if r.Delay > 0 {
		return strconv.FormatFloat(r.Delay.Seconds(), 'f', -1, 64)
	}
	return ""
}

// Wait returns how long to wait from now.
func (r RetryAfter) Wait(now time.Time) time.Duration {
	if !r.At.IsZero() {
		if d := r.At.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return r.Delay
}

// RetryAfterSeconds builds a delay hint from float seconds.
func RetryAfterSeconds(seconds float64) RetryAfter {
	if seconds <= 0 {
		return RetryAfter{}
	}
	return RetryAfter{Delay: time.Duration(seconds * float64(time.Second))}
}

// ParseRetryAfter parses a Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func ParseRetryAfter(header string) RetryAfter {
	header = strings.TrimSpace(header)
	if header == "" {
		return RetryAfter{}
	}

	// Try parsing as seconds
	if seconds, err := strconv.ParseFloat(header, 64); err == nil {
		return RetryAfterSeconds(seconds)
	}

	// Try parsing as HTTP date
	if t, err := http.ParseTime(header); err == nil {
		return RetryAfter{At: t}
	}

	// Some vendors send ISO-8601 timestamps
	if t, err := time.Parse(time.RFC3339, header); err == nil {
		return RetryAfter{At: t}
	}

	return RetryAfter{}
}

// ApplicationError is a request or validation fault. It is never retried and
// is surfaced to the caller as-is.
type ApplicationError struct {
	// Code identifies the error kind
	Code ErrorCode

	// StatusCode is the HTTP status surfaced to callers
	StatusCode int

	// Message is the user-facing message
	Message string
}

// Error implements the error interface.
func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// NewObjectNotFound creates a 404 application error.
func NewObjectNotFound(format string, args ...any) *ApplicationError {
	return &ApplicationError{Code: CodeObjectNotFound, StatusCode: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidRunOptions creates a 400 application error for bad run options.
func NewInvalidRunOptions(format string, args ...any) *ApplicationError {
	return &ApplicationError{Code: CodeInvalidRunOptions, StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// ValidationError represents a request validation failure.
// This occurs when the request has invalid fields before sending to the provider.
type ValidationError struct {
	// Field is the name of the invalid field
	Field string

	// Message describes what is invalid about the field
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// ConfigError represents a provider configuration error.
// This occurs when the provider configuration is invalid.
type ConfigError struct {
	// Provider is the name of the provider with invalid configuration
	Provider string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}

// ParseError represents a response parsing failure.
// This occurs when the provider returns a malformed response.
type ParseError struct {
	// Provider is the name of the provider that returned the malformed response
	Provider string

	// RawResponse is the raw response body that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// AsProviderError returns err as a *ProviderError. Errors that are not
// already provider errors become unknown provider errors wrapping err.
func AsProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return NewProviderError(CodeUnknownProviderError, provider, err.Error()).WithCause(err)
}
