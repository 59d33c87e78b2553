package routing

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/providers"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrProviderNotFound is returned when the model mapping names a
	// provider that has no engine.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrAllProvidersFailed is returned when every candidate has been
	// exhausted or a failure was not eligible for failover.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrNoProvidersConfigured is returned when no providers are available.
	ErrNoProvidersConfigured = errors.New("no providers configured")
)

// ProviderNotFoundError is returned when routing configuration references
// a provider that does not exist.
type ProviderNotFoundError struct {
	// ProviderName is the requested provider that was not found.
	ProviderName string

	// Model is the model whose mapping references the provider.
	Model string

	// AvailableProviders contains the names of configured providers.
	AvailableProviders []string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q mapped for model %q not found (available providers: %s)",
		e.ProviderName, e.Model, strings.Join(e.AvailableProviders, ", "))
}

// Is implements error matching for errors.Is().
func (e *ProviderNotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}

// FailoverError is the final error of a run. It wraps the last provider
// error, so errors.Is matches its code, and keeps the attempts made so
// callers can persist and bill a failed run.
type FailoverError struct {
	// Model is the requested model.
	Model string

	// AttemptedProviders lists the providers tried, in order, without repeats.
	AttemptedProviders []string

	// Attempts holds every attempt, successful or not.
	Attempts []Attempt

	// LastError is the error that ended the run.
	LastError *providers.ProviderError

	// Cost is the total cost in USD across all attempts.
	Cost float64
}

// Error implements the error interface.
func (e *FailoverError) Error() string {
	return fmt.Sprintf("all providers failed for model %q (attempted: %s, last error: %v)",
		e.Model, strings.Join(e.AttemptedProviders, ", "), e.LastError)
}

// Is implements error matching for errors.Is().
func (e *FailoverError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *FailoverError) Unwrap() error {
	if e.LastError == nil {
		return nil
	}
	return e.LastError
}

// StatusCode is the HTTP status of the last provider error.
func (e *FailoverError) StatusCode() int {
	if e.LastError == nil {
		return 500
	}
	return e.LastError.StatusCode
}

// RetryAfterHeader renders the last error's retry hint for a Retry-After
// header: ISO-8601 for timestamps, decimal seconds otherwise. It is empty
// when the provider gave no hint.
func (e *FailoverError) RetryAfterHeader() string {
	if e.LastError == nil || e.LastError.RetryAfter.IsZero() {
		return ""
	}
	return e.LastError.RetryAfter.String()
}
