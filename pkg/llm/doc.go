// Package llm defines the canonical message model shared by every provider
// adapter, the completion engine and the failover orchestrator.
//
// # Overview
//
// Requests are expressed as an ordered list of Message values plus Options.
// Adapters translate these into vendor wire formats and never mutate them.
// Results come back as StructuredOutput values, and token accounting is
// carried on a caller-owned RawCompletion so that usage and the raw text
// survive a failed call.
//
// # Lifecycle
//
// Messages and Options are created per request and are read-only for the
// duration of a call. RawCompletion and StructuredOutput live for a single
// provider attempt; a retry or a failover starts with fresh instances.
package llm
