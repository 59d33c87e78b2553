// Package logging configures log/slog for relay.
//
// New builds a JSON, text or console handler from telemetry.logging and
// wraps it in a Handler that:
//
//   - masks values of secret-looking keys (api_key, authorization, *_token)
//   - scrubs provider keys, bearer tokens, ?key= parameters and emails from
//     messages and string values
//   - appends run_id, tenant_id and version_id stored with WithRun, and
//     the trace_id and span_id of the active span
//
// Only the *Context logging methods see context fields:
//
//	ctx = logging.WithRun(ctx, logging.RunFields{RunID: id})
//	logger.InfoContext(ctx, "run finished", "status", "succeeded")
package logging
