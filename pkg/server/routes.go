package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mercator-hq/meter/pkg/server/middleware"
	"mercator-hq/meter/pkg/telemetry/health"
)

// routes builds the router and its middleware chain.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	if s.metrics != nil {
		r.Use(middleware.Metrics(s.metrics))
	}

	r.Get("/health/live", s.health.LivenessHandler())
	r.Get("/health/ready", s.health.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.version.Version, s.version.Commit, s.version.BuildTime))
	r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/costs", func(r chi.Router) {
			r.Post("/", s.handleRecordCost)
			r.Get("/", s.handleListEntries)
			r.Get("/{id}", s.handleGetEntry)
		})

		r.Post("/estimates", s.handleAggregateEstimate)
		r.Post("/estimates/{surface}", s.handleEstimate)

		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", s.handleListBudgets)
			r.Post("/", s.handleCreateBudget)
			r.Get("/{id}", s.handleGetBudget)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/", s.handleCreateAlert)
			r.Get("/{id}", s.handleGetAlert)
		})

		r.Get("/summary", s.handleSummary)
		r.Get("/optimizations", s.handleOptimizations)
		r.Get("/export", s.handleExport)
		r.Get("/decision", s.handleDecision)
	})

	return otelhttp.NewHandler(r, "meter.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
