// Package health tracks the health of a running agent.
//
// The orchestrator records one Status per zone ("zone:<id>") and one per
// entity ("publisher:<id>", "subscriber:<id>") in a Monitor. A zone that
// fails to connect, or whose connection drops later, is unhealthy; a
// subscriber whose pool failed to stop in time is degraded. Aggregate folds
// everything into one document served at /health by the metric server.
//
// Error messages are sanitized before they are exposed: URLs, paths, IP
// addresses, ports and credentials are replaced with placeholders.
//
//	monitor := health.NewMonitor()
//	monitor.UpdateError("zone:north", err, "connected")
//	north, _ := monitor.Get("zone:north")
//	status := health.Aggregate("agent", []health.Status{north})
package health
