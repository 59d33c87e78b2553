package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"mercator-hq/relay/pkg/telemetry/tracing"
)

// acceptEncoding is advertised on every request. Setting it explicitly turns
// off net/http's transparent gzip handling, so bodies are decoded here.
const acceptEncoding = "br, gzip, zstd"

// HTTPProvider is the shared HTTP transport for one configured provider.
// It provides connection pooling, transport error classification, response
// decoding and passive health tracking. It is safe for concurrent use.
type HTTPProvider struct {
	// config contains the provider configuration
	config ProviderConfig

	// client is the HTTP client with connection pooling
	client *http.Client

	// health tracks the provider's health status
	health ProviderHealth

	// healthMu protects concurrent access to health status
	healthMu sync.RWMutex
}

// NewHTTPProvider creates a new base HTTP provider with connection pooling.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	// Create HTTP transport with connection pooling
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.Timeout,
		// Enable HTTP/2
		ForceAttemptHTTP2: true,
	}

	// No client-level timeout: it would cap the length of a stream.
	// Non-streamed calls are bounded by the engine's context deadline.
	client := &http.Client{
		Transport: transport,
	}

	return &HTTPProvider{
		config: config,
		client: client,
		health: ProviderHealth{
			IsHealthy:             true, // Start optimistic
			LastCheck:             time.Now(),
			LastSuccessfulRequest: time.Now(),
		},
	}
}

// NewHTTPProviderWithClient creates a provider around an existing client.
func NewHTTPProviderWithClient(config ProviderConfig, client *http.Client) *HTTPProvider {
	p := NewHTTPProvider(config)
	if client != nil {
		p.client = client
	}
	return p
}

// GetName returns the provider's configured name.
func (p *HTTPProvider) GetName() string {
	return p.config.Name
}

// GetConfig returns the provider's configuration.
func (p *HTTPProvider) GetConfig() ProviderConfig {
	return p.config
}

// IsHealthy returns the current health status.
func (p *HTTPProvider) IsHealthy() bool {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health.IsHealthy
}

// GetHealth returns detailed health information.
func (p *HTTPProvider) GetHealth() ProviderHealth {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// updateHealth records the outcome of one request.
func (p *HTTPProvider) updateHealth(success bool, err error) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()

	p.health.LastCheck = time.Now()
	p.health.TotalRequests++

	if success {
		if !p.health.IsHealthy {
			slog.Info("provider marked healthy",
				"provider", p.config.Name,
				"previous_failures", p.health.ConsecutiveFailures,
			)
		}
		p.health.IsHealthy = true
		p.health.ConsecutiveFailures = 0
		p.health.LastError = nil
		p.health.LastSuccessfulRequest = time.Now()
		return
	}

	p.health.FailedRequests++
	p.health.ConsecutiveFailures++
	p.health.LastError = err

	// Mark unhealthy after 3 consecutive failures (circuit breaker)
	if p.health.ConsecutiveFailures >= 3 && p.health.IsHealthy {
		p.health.IsHealthy = false
		slog.Warn("provider marked unhealthy",
			"provider", p.config.Name,
			"consecutive_failures", p.health.ConsecutiveFailures,
			"error", err,
		)
	}
}

// Send performs a single HTTP request. It does not retry: attempts are
// owned by the failover orchestrator. Any HTTP status is returned as a
// response; only transport failures produce an error, already classified.
// The returned body is transparently decoded (br, gzip, zstd).
func (p *HTTPProvider) Send(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)
	tracing.Inject(ctx, req.Header)

	slog.Debug("sending request to provider",
		"provider", p.config.Name,
		"method", method,
		"url", RedactURL(url),
	)

	resp, err := p.client.Do(req)
	if err != nil {
		classified := ClassifyTransportError(p.config.Name, err)
		if !errors.Is(classified, context.Canceled) {
			p.updateHealth(false, classified)
		}
		return nil, classified
	}

	if err := decodeBody(resp); err != nil {
		resp.Body.Close()
		p.updateHealth(false, err)
		return nil, NewProviderError(CodeProviderInternal, p.config.Name, "failed to decode response body").WithCause(err)
	}

	// 5xx and 429 count against health; 4xx are caller faults.
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		p.updateHealth(false, fmt.Errorf("status %d", resp.StatusCode))
	} else {
		p.updateHealth(true, nil)
	}

	return resp, nil
}

// ReadBody reads and closes a response body, classifying read failures.
func (p *HTTPProvider) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return b, ClassifyTransportError(p.config.Name, err)
	}
	return b, nil
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	slog.Debug("provider closed", "provider", p.config.Name)
	return nil
}

// ClassifyTransportError maps a network failure to a provider error.
// Context cancellation is returned unchanged: it is the caller going away,
// not a provider fault.
func ClassifyTransportError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return NewProviderError(CodeProviderTimeout, provider, "request timed out").WithCause(err)

	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return NewProviderError(CodeProviderUnavailable, provider, "connection failed").WithCause(err)

	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return NewProviderError(CodeProviderInternal, provider, "remote end closed connection without response").WithCause(err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return NewProviderError(CodeProviderUnavailable, provider, "connection failed").WithCause(err)
	}

	return NewProviderError(CodeUnknownProviderError, provider, err.Error()).WithCause(err)
}

// decodeBody replaces resp.Body with a decoding reader for compressed bodies.
func decodeBody(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	body := resp.Body

	switch encoding {
	case "", "identity":
		return nil
	case "br":
		resp.Body = &decodedBody{Reader: brotli.NewReader(body), source: body}
	case "gzip":
		gz, err := gzip.NewReader(body)
		switch {
		case errors.Is(err, io.EOF):
			// Empty body: nothing to decode, the status still classifies it.
			resp.Body = &decodedBody{Reader: strings.NewReader(""), source: body}
		case err != nil:
			return err
		default:
			resp.Body = &decodedBody{Reader: gz, source: body, closer: gz.Close}
		}
	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return err
		}
		resp.Body = &decodedBody{Reader: dec, source: body, closer: func() error { dec.Close(); return nil }}
	default:
		return fmt.Errorf("unsupported content encoding %q", encoding)
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return nil
}

type decodedBody struct {
	io.Reader
	source io.ReadCloser
	closer func() error
}

func (b *decodedBody) Close() error {
	if b.closer != nil {
		_ = b.closer()
	}
	return b.source.Close()
}

// RedactURL masks API keys passed as query parameters.
func RedactURL(raw string) string {
	i := strings.Index(raw, "key=")
	if i < 0 {
		return raw
	}
	end := strings.IndexByte(raw[i:], '&')
	if end < 0 {
		return raw[:i] + "key=REDACTED"
	}
	return raw[:i] + "key=REDACTED" + raw[i+end:]
}
