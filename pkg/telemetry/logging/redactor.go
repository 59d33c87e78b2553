package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"mercator-hq/relay/pkg/config"
)

// Redactor removes credentials from log output. Values of sensitive keys
// are masked entirely; other string values are scrubbed with patterns.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternQueryKey    = "query_key"
	PatternPassword    = "password"
	PatternEmail       = "email"
)

// defaultPatterns run in order, before any custom pattern.
var defaultPatterns = []struct {
	name        string
	regex       string
	replacement string
}{
	// OpenAI (sk-, sk-proj-), Anthropic (sk-ant-) and similar keys.
	{PatternAPIKey, `\bsk-[A-Za-z0-9_\-]{8,}`, "sk-***"},
	{PatternBearerToken, `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`, "Bearer ***"},
	// Google style ?key=... query parameters.
	{PatternQueryKey, `(?i)([?&](?:key|api_key|apikey|access_token)=)[^&\s"]+`, "${1}***"},
	{PatternPassword, `(?i)(password|passwd|pwd)[:=]\s*[^\s]+`, "$1: ***"},
	{PatternEmail, `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`, "***@***"},
}

// Attribute values are masked when the key, or one of its "_" separated
// words, is listed here. "prompt_tokens" is not a secret; "access_token" is.
var (
	sensitiveKeys  = []string{"api_key", "apikey", "x_api_key", "private_key", "authorization"}
	sensitiveWords = []string{"password", "passwd", "secret", "token", "credential"}
)

// NewRedactor creates a Redactor with the built-in patterns plus custom.
func NewRedactor(custom []config.RedactPattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}
	return r, nil
}

// RedactString scrubs every pattern from value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr redacts a single attribute, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		group := v.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskSecret(v.String()))
	}

	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
		if s, ok := v.Any().(fmt.Stringer); ok {
			return slog.String(a.Key, r.RedactString(s.String()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func isSensitiveKey(key string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(key), "-", "_")
	if slices.Contains(sensitiveKeys, normalized) {
		return true
	}
	return slices.ContainsFunc(strings.Split(normalized, "_"), func(word string) bool {
		return slices.Contains(sensitiveWords, word)
	})
}

// MaskSecret keeps the first four characters of a secret for
// identification.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}
