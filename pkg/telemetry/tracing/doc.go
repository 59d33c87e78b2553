// Package tracing provides OpenTelemetry tracing for relay runs.
//
// A run produces one "routing.run" span with a child "routing.attempt"
// span per provider attempt. Attempt spans carry the provider, model,
// retry count, token usage and cost. Outgoing provider requests carry the
// W3C traceparent header.
//
// Spans are exported over OTLP/gRPC:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//	    exporter: otlp
//	    endpoint: localhost:4317
//	    otlp:
//	      insecure: true
//
// When tracing is disabled New returns a Tracer backed by a noop provider,
// so callers never need to nil-check it.
package tracing
