/*
Package monitoring provides Prometheus metrics for the policy layer.

Metrics are registered on a private registry per collector, which the
diagnostics server exposes on /metrics. Counters cover policy decisions and
violations, integrity derivations, bridge traffic, clipboard publication and
staleness, and host script evaluations.

Usage:

	metrics := monitoring.NewMetrics()
	metrics.RecordDecision("navigation_requested", "deny", "auxiliary")
	router.Use(monitoring.Middleware(metrics))
*/
package monitoring
