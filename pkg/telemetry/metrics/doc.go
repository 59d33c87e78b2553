// Package metrics provides Prometheus metrics for the completion engine.
//
// # Metrics Categories
//
//   - Attempt metrics: attempts by outcome, attempt duration, token counts
//   - Provider metrics: health gauge, errors by code, failovers
//   - Cost metrics: spend per provider and model, failed attempts included
//   - Run metrics: runs by status, end-to-end duration
//   - Cache metrics: run cache hits and misses
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	orchestrator, err := routing.NewOrchestrator(cfg, engines, routing.WithRecorder(collector))
//
//	server := collector.NewServer()
//	go server.ListenAndServe()
//
// Exposition example:
//
//	# HELP relay_engine_attempts_total Total number of provider attempts by outcome
//	# TYPE relay_engine_attempts_total counter
//	relay_engine_attempts_total{model="gpt-4o",outcome="rate_limit",provider="openai"} 3
//
// # Cardinality Management
//
// Model labels are limited to 10,000 label sets; beyond that they are
// aggregated into model="other".
package metrics
