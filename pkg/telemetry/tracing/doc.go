// Package tracing wraps OpenTelemetry for the meter service.
//
// Components accept a *Tracer and fall back to Noop when given nil, so
// tracing never has to be configured in tests. When enabled, spans are
// exported through OTLP over gRPC with ratio-based sampling.
//
// Span names:
//   - meter.record: one cost recording, with budget and alert checks as children
//   - meter.budget.check: budget matching and threshold evaluation
//   - meter.alert.check: alert evaluation
//   - meter.summary: summary computation
//
// Attribute keys live in the "meter.*" namespace, see attributes.go.
package tracing
