// Package server provides the HTTP API of the meter service.
//
// The server is a thin JSON layer over engine.Engine. It owns routing,
// request decoding, error mapping and lifecycle management.
//
// # Basic Usage
//
//	srv := server.New(server.Options{
//	    Config:  &cfg.Server,
//	    Engine:  eng,
//	    Health:  tel.Health,
//	    Metrics: tel.Metrics,
//	    Version: server.VersionInfo{Version: version},
//	})
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until ctx is canceled or the listener fails, then shuts down
// gracefully within ServerConfig.ShutdownTimeout.
//
// # Routes
//
//   - POST /api/v1/costs - Record a completed operation
//   - GET /api/v1/costs - List ledger entries (filters, limit, offset, sort)
//   - GET /api/v1/costs/{id} - Fetch one ledger entry
//   - POST /api/v1/estimates - Aggregate estimate over several operations
//   - POST /api/v1/estimates/{surface} - Estimate one operation (tool, llm,
//     openai, workflow, research, infrastructure)
//   - GET, POST /api/v1/budgets and GET /api/v1/budgets/{id}
//   - GET, POST /api/v1/alerts and GET /api/v1/alerts/{id}
//   - GET /api/v1/summary?start=&end= - Cost summary
//   - GET /api/v1/optimizations?start=&end= - Recommendations
//   - GET /api/v1/export?start=&end=&format=csv|json[&entries=true] - Download
//   - GET /api/v1/decision?category=&service=&department_id= - Gate decision
//   - GET /health/live, /health/ready, /version and the metrics path
//
// Range bounds accept RFC3339, a date, "now", or a relative age like "7d".
// An omitted end means now; an omitted start is rejected.
//
// # Errors
//
// Errors are returned as {"error": "...", "problems": [...]}. Validation
// failures map to 400, unknown ids to 404, duplicates to 409 and everything
// else to 500 with a generic message.
//
// # Middleware Chain
//
// Requests pass through, outermost first: OpenTelemetry (otelhttp),
// Recovery, RequestID, Logging and per-route Metrics.
package server
