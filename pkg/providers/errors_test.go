package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestProviderErrorMessage(t *testing.T) {
	t.Run("with status code", func(t *testing.T) {
		err := NewProviderError(CodeProviderInternal, "openai", "internal error")

		expected := `provider "openai" provider_internal_error (status 500): internal error`
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}
	})

	t.Run("without provider", func(t *testing.T) {
		err := &ProviderError{Code: CodeFailedGeneration, Message: "no json"}

		expected := `failed_generation: no json`
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("network timeout")
		err := NewProviderError(CodeProviderTimeout, "openai", "").WithCause(cause)

		if !errors.Is(err, cause) {
			t.Error("expected error to wrap cause")
		}
		if !strings.Contains(err.Error(), "network timeout") {
			t.Errorf("expected message to fall back to cause, got %q", err.Error())
		}
	})
}

func TestProviderErrorIs(t *testing.T) {
	err := fmt.Errorf("attempt failed: %w", NewProviderError(CodeRateLimit, "groq", "slow down"))

	if !errors.Is(err, ErrRateLimit) {
		t.Error("expected wrapped rate limit error to match sentinel")
	}
	if errors.Is(err, ErrProviderTimeout) {
		t.Error("expected rate limit not to match timeout sentinel")
	}
	if !errors.Is(err, &ProviderError{Code: CodeRateLimit, Provider: "groq"}) {
		t.Error("expected provider-scoped match")
	}
	if errors.Is(err, &ProviderError{Code: CodeRateLimit, Provider: "openai"}) {
		t.Error("expected different provider not to match")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status      int
		wantCode    ErrorCode
		wantNext    bool
		wantRetry   bool
		wantStorage bool
	}{
		{401, CodeInvalidProviderConfig, false, false, true},
		{403, CodeInvalidProviderConfig, false, false, true},
		{408, CodeProviderTimeout, true, true, true},
		{429, CodeRateLimit, true, true, false},
		{500, CodeProviderInternal, true, false, true},
		{520, CodeProviderInternal, true, false, true},
		{530, CodeProviderInternal, true, false, true},
		{502, CodeProviderUnavailable, true, true, true},
		{503, CodeProviderUnavailable, true, true, true},
		{522, CodeProviderUnavailable, true, true, true},
		{529, CodeServerOverloaded, true, false, true},
		{400, CodeBadRequest, false, false, true},
		{418, CodeUnknownProviderError, false, false, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := ErrorFromStatus("p", tt.status, nil, []byte("body"))
			if err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, err.Code)
			}
			if err.ShouldTryNextProvider != tt.wantNext {
				t.Errorf("expected should_try_next_provider=%v, got %v", tt.wantNext, err.ShouldTryNextProvider)
			}
			if err.Retry != tt.wantRetry {
				t.Errorf("expected retry=%v, got %v", tt.wantRetry, err.Retry)
			}
			if err.StoreTaskRun != tt.wantStorage {
				t.Errorf("expected store_task_run=%v, got %v", tt.wantStorage, err.StoreTaskRun)
			}
			if err.StatusCode != tt.status {
				t.Errorf("expected upstream status %d, got %d", tt.status, err.StatusCode)
			}
		})
	}
}

func TestTryNextProviderByStatus(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 522, 529} {
		if !ErrorFromStatus("p", status, nil, nil).ShouldTryNextProvider {
			t.Errorf("status %d: expected should_try_next_provider=true", status)
		}
	}
	for _, status := range []int{400, 401, 403} {
		if ErrorFromStatus("p", status, nil, nil).ShouldTryNextProvider {
			t.Errorf("status %d: expected should_try_next_provider=false", status)
		}
	}
}

func TestRateLimitRetryAfterHeader(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "10")

	err := ErrorFromStatus("openai", http.StatusTooManyRequests, header, []byte(`{"error":"slow down"}`))

	if !err.Retry {
		t.Error("expected rate limit to be retryable")
	}
	if !err.ShouldTryNextProvider {
		t.Error("expected rate limit to try the next provider")
	}
	if got := err.RetryAfter.String(); got != "10" {
		t.Errorf("expected retry-after \"10\", got %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	date := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"integer seconds", "10", "10"},
		{"decimal seconds", "1.5", "1.5"},
		{"http date", date.Format(http.TimeFormat), "2026-01-02T03:04:05Z"},
		{"iso timestamp", "2026-01-02T04:04:05+01:00", "2026-01-02T03:04:05Z"},
		{"garbage", "soon", ""},
		{"negative", "-3", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.header).String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRetryAfterWait(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := (RetryAfter{Delay: 2 * time.Second}).Wait(now); got != 2*time.Second {
		t.Errorf("expected 2s, got %s", got)
	}
	if got := (RetryAfter{At: now.Add(5 * time.Second)}).Wait(now); got != 5*time.Second {
		t.Errorf("expected 5s, got %s", got)
	}
	if got := (RetryAfter{At: now.Add(-time.Second)}).Wait(now); got != 0 {
		t.Errorf("expected 0 for past timestamps, got %s", got)
	}
	if !(RetryAfter{}).IsZero() {
		t.Error("expected zero value to be zero")
	}
}

func TestAsProviderError(t *testing.T) {
	parse := &ParseError{Provider: "p", Cause: errors.New("bad json")}
	pe := AsProviderError("p", parse)

	if pe.Code != CodeUnknownProviderError {
		t.Errorf("expected unknown provider error, got %s", pe.Code)
	}
	var target *ParseError
	if !errors.As(pe, &target) {
		t.Error("expected parse error to remain in the chain")
	}

	orig := NewProviderError(CodeRateLimit, "p", "x")
	if AsProviderError("p", fmt.Errorf("wrap: %w", orig)) != orig {
		t.Error("expected existing provider error to be returned as-is")
	}
	if AsProviderError("p", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestApplicationError(t *testing.T) {
	err := NewObjectNotFound("model %q not found", "gpt-x")
	if err.StatusCode != http.StatusNotFound || err.Code != CodeObjectNotFound {
		t.Errorf("unexpected application error: %+v", err)
	}
	if !strings.Contains(err.Error(), `model "gpt-x" not found`) {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Provider: "openai", Field: "api_key", Message: "API key is required"}

	expected := `provider "openai" configuration error for field "api_key": API key is required`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}
