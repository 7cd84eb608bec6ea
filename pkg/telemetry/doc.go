// Package telemetry bundles the observability stack of the meter service.
//
//   - logging: slog logger with redaction of sensitive attributes
//   - metrics: Prometheus collector on an injected registry
//   - tracing: OpenTelemetry tracer exporting over OTLP gRPC
//   - health: liveness and readiness probes
//
// New builds all four from the telemetry configuration section:
//
//	tel, err := telemetry.New(&cfg.Telemetry, version)
//	defer tel.Shutdown(ctx)
package telemetry
