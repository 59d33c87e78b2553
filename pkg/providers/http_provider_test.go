package providers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func newTestProvider(t *testing.T, url string) *HTTPProvider {
	t.Helper()
	return NewHTTPProvider(ProviderConfig{
		Name:                "test-provider",
		Type:                TypeOpenAI,
		BaseURL:             url,
		Timeout:             5 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
	})
}

func TestHTTPProvider_SendDoesNotRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	resp, err := p.Send(context.Background(), http.MethodPost, server.URL, []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("expected response for non-2xx status, got error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got)
	}
}

func TestHTTPProvider_SetsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected default content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Accept-Encoding") != acceptEncoding {
			t.Errorf("expected accept-encoding %q, got %q", acceptEncoding, r.Header.Get("Accept-Encoding"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	resp, err := p.Send(context.Background(), http.MethodPost, server.URL, []byte(`{}`), map[string]string{
		"Authorization": "Bearer sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
}

func TestHTTPProvider_DecodesCompressedBodies(t *testing.T) {
	const payload = `{"message":"hello"}`

	encoders := map[string]func(t *testing.T) []byte{
		"br": func(t *testing.T) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write([]byte(payload))
			_ = w.Close()
			return buf.Bytes()
		},
		"gzip": func(t *testing.T) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write([]byte(payload))
			_ = w.Close()
			return buf.Bytes()
		},
		"zstd": func(t *testing.T) []byte {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				t.Fatalf("zstd writer: %v", err)
			}
			defer enc.Close()
			return enc.EncodeAll([]byte(payload), nil)
		},
	}

	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			body := encode(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", encoding)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
			}))
			defer server.Close()

			p := newTestProvider(t, server.URL)
			resp, err := p.Send(context.Background(), http.MethodPost, server.URL, []byte(`{}`), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := p.ReadBody(resp)
			if err != nil {
				t.Fatalf("unexpected read error: %v", err)
			}
			if string(got) != payload {
				t.Errorf("expected %q, got %q", payload, got)
			}
		})
	}
}

func TestHTTPProvider_EmptyGzipErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	resp, err := p.Send(context.Background(), http.MethodPost, server.URL, []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("expected the status to reach the caller, got %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", resp.StatusCode)
	}

	got, err := p.ReadBody(resp)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected an empty body, got %q", got)
	}
	if code := ErrorFromStatus("test-provider", resp.StatusCode, resp.Header, got).Code; code != CodeProviderUnavailable {
		t.Errorf("expected provider_unavailable, got %s", code)
	}
}

func TestHTTPProvider_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := newTestProvider(t, "http://"+addr)
	_, err = p.Send(context.Background(), http.MethodPost, "http://"+addr, []byte(`{}`), nil)

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if pe.Code != CodeProviderUnavailable {
		t.Errorf("expected %s, got %s", CodeProviderUnavailable, pe.Code)
	}
	if !pe.Retry || !pe.ShouldTryNextProvider {
		t.Error("expected unavailable errors to be retryable and fail over")
	}
}

func TestHTTPProvider_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server notices a client disconnect only once the body is read.
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := p.Send(ctx, http.MethodPost, server.URL, []byte(`{}`), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !p.IsHealthy() || p.GetHealth().FailedRequests != 0 {
		t.Error("expected cancellation not to count against provider health")
	}
}

func TestHTTPProvider_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, http.MethodPost, server.URL, []byte(`{}`), nil)
	if !errors.Is(err, ErrProviderTimeout) {
		t.Errorf("expected provider timeout, got %v", err)
	}
}

func TestHTTPProvider_HealthCircuitBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	for i := 0; i < 3; i++ {
		resp, err := p.Send(context.Background(), http.MethodPost, server.URL, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	if p.IsHealthy() {
		t.Error("expected provider to be unhealthy after 3 consecutive failures")
	}
	health := p.GetHealth()
	if health.TotalRequests != 3 || health.FailedRequests != 3 {
		t.Errorf("expected 3/3 failed requests, got %d/%d", health.FailedRequests, health.TotalRequests)
	}
}

func TestHTTPProvider_ReadBodyUnexpectedEOF(t *testing.T) {
	p := newTestProvider(t, "http://unused")
	resp := &http.Response{Body: io.NopCloser(io.MultiReader(strings.NewReader("partial"), errReader{io.ErrUnexpectedEOF}))}

	_, err := p.ReadBody(resp)
	if !errors.Is(err, ErrProviderInternal) {
		t.Errorf("expected provider internal error, got %v", err)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrProviderTimeout},
		{"unexpected eof", io.ErrUnexpectedEOF, ErrProviderInternal},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrProviderUnavailable},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, ErrProviderUnavailable},
		{"other", errors.New("weird"), ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransportError("p", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if err := ClassifyTransportError("p", context.Canceled); err != context.Canceled {
		t.Errorf("expected cancellation to pass through, got %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://x/models/m:generateContent?key=secret", "https://x/models/m:generateContent?key=REDACTED"},
		{"https://x/m?key=secret&alt=sse", "https://x/m?key=REDACTED&alt=sse"},
		{"https://x/m", "https://x/m"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
