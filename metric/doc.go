// Package metric provides Prometheus metrics for zoneagent.
//
// A MetricsRegistry wraps a private prometheus.Registry that carries the
// core agent metrics (Metrics) and the Go runtime collectors. Queues and
// worker pools register their own collectors through RegisterCounter and
// friends, keyed by owner so one subscriber's metrics can be removed with
// UnregisterOwner when it shuts down.
//
// Server exposes the registry at /metrics and an agent health document at
// /health:
//
//	reg := metric.NewMetricsRegistry()
//	srv := metric.NewServer(9090, "/metrics", reg, orchestrator.HealthReport)
//	if err := srv.Start(); err != nil { ... }
//	defer srv.Stop(ctx)
//
// Metrics are optional everywhere. Every component accepts a nil registry.
package metric
