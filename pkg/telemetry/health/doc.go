// Package health serves liveness and readiness probes next to the metrics
// endpoint of "relay serve".
//
//	checker := health.New(5 * time.Second)
//	checker.Register("runstore", health.PingCheck(store))
//	checker.Register("providers", health.ProvidersCheck(counts, 1))
//	server := collector.NewServer(checker.Mount)
//
// /healthz answers 200 while the process runs. /readyz answers 503 with
// the failing checks when any check fails or times out.
package health
