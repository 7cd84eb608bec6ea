// Package metrics exposes Prometheus metrics for cost recording, budget
// enforcement, alerting and the HTTP API.
//
// A Collector registers everything on an injected registry, so tests can
// use a fresh prometheus.NewRegistry and assert with testutil. A nil
// *Collector is valid and records nothing.
package metrics
