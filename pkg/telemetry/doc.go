// Package telemetry groups the observability packages of the engine.
//
//   - logging: slog handlers with secret redaction and run/trace context fields
//   - metrics: Prometheus metrics for attempts, failovers, usage, runs and the run cache
//   - tracing: OpenTelemetry spans for runs, attempts and provider calls
//   - health: liveness and readiness probes served next to the metrics endpoint
//
// "relay serve" wires all four:
//
//	logger, _ := logging.New(cfg.Telemetry.Logging, os.Stderr)
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing)
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	server := collector.NewServer(checker.Mount)
package telemetry
