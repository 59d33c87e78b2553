// Package providers defines the vendor adapter protocol, the provider error
// taxonomy and the pooled HTTP transport shared by every adapter.
//
// # Overview
//
// Every upstream vendor (OpenAI, Azure OpenAI, Fireworks, Groq, Mistral,
// Anthropic, Gemini, Vertex AI) is reached through an Adapter. The Adapter is
// a flat capability interface: each vendor implements it independently and
// the completion engine composes it by injection. Adapters only translate;
// the engine owns the HTTP exchange, stream framing and output decoding.
//
// # Architecture
//
//  1. Adapter - wire translation hooks (request, URL, headers, decode, stream delta, error refinement)
//  2. HTTPProvider - pooled http.Client per provider, transport error classification, body decoding
//  3. ProviderError - error kinds with static retry/failover/storage/telemetry defaults
//
// # Error Taxonomy
//
// Upstream failures are *ProviderError values. Each ErrorCode declares its
// default HTTP status and whether it should be retried on the same provider,
// failed over to the next provider, stored as a failed run, and captured by
// error telemetry. The generic status table is:
//
//	401, 403       invalid_provider_config  (no retry, no failover)
//	408, 504       provider_timeout         (retry, failover)
//	429            rate_limit               (retry, failover, run not stored)
//	500, 520, 530  provider_internal_error  (failover)
//	502, 503, 522  provider_unavailable     (retry, failover)
//	529            server_overloaded        (failover)
//
// Adapters refine the table from the response body through ClassifyError,
// for example mapping a context-length code to max_tokens_exceeded.
//
// Codes are stable across retries and providers. Sentinel values work with
// errors.Is:
//
//	if errors.Is(err, providers.ErrRateLimit) {
//	    wait := pe.RetryAfter.String() // "10" or "2026-01-02T03:04:05Z"
//	}
//
// Request and validation faults are *ApplicationError values and are never
// retried.
//
// # Transport
//
// HTTPProvider.Send performs exactly one attempt. Retries belong to the
// failover orchestrator, so that attempt counts stay deterministic. Network
// failures come back already classified: refused or reset connections are
// provider_unavailable, timeouts are provider_timeout, and a remote end that
// disconnects mid-response is provider_internal_error. Context cancellation
// is returned unchanged.
//
// Response bodies encoded with br, gzip or zstd are decoded transparently.
//
// # Thread Safety
//
// HTTPProvider is safe for concurrent use. Adapters are stateless across
// calls apart from read-mostly caches, which are safe under concurrent
// first use.
package providers
