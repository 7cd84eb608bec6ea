package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c := NewCollector(&config.MetricsConfig{Namespace: "meter"}, prometheus.NewRegistry())
	if c == nil {
		t.Fatal("Expected non-nil collector")
	}
	return c
}

func TestCollector_RecordEntry(t *testing.T) {
	c := newTestCollector(t)

	c.RecordEntry(&costs.Entry{Category: costs.CategoryLLMAPI, Service: "openai", Tier: costs.TierLow, CostUSD: 0.25})
	c.RecordEntry(&costs.Entry{Category: costs.CategoryLLMAPI, Service: "openai", Tier: costs.TierLow, CostUSD: 0.5})
	c.RecordEntry(&costs.Entry{Category: costs.CategoryLLMAPI, Service: "openai", Tier: costs.TierFree, CostUSD: 0})

	if got := testutil.ToFloat64(c.costMetrics.recordedUSD.WithLabelValues("llm-api", "openai", "low")); got != 0.75 {
		t.Errorf("Expected 0.75 recorded, got %v", got)
	}
	if got := testutil.ToFloat64(c.costMetrics.entries.WithLabelValues("llm-api", "free")); got != 1 {
		t.Errorf("Expected 1 free entry, got %v", got)
	}
	if got := testutil.CollectAndCount(c.costMetrics.perEntry); got != 1 {
		t.Errorf("Expected 1 histogram series, got %d", got)
	}
}

func TestCollector_ServiceCardinality(t *testing.T) {
	c := newTestCollector(t)
	c.services = NewCardinalityLimiter(1)

	c.RecordEntry(&costs.Entry{Category: costs.CategoryScrapingTool, Service: "a", Tier: costs.TierLow, CostUSD: 1})
	c.RecordEntry(&costs.Entry{Category: costs.CategoryScrapingTool, Service: "b", Tier: costs.TierLow, CostUSD: 1})

	if got := testutil.ToFloat64(c.costMetrics.recordedUSD.WithLabelValues("scraping-tool", OtherLabel, "low")); got != 1 {
		t.Errorf("Expected overflow service folded into %q, got %v", OtherLabel, got)
	}
}

func TestCollector_BudgetAndAlertMetrics(t *testing.T) {
	c := newTestCollector(t)

	c.SetBudgetUtilization("b1", 42.5)
	c.RecordBudgetAction("b1", "notify", "warning")
	c.RecordUnknownAction("b1")
	c.RecordAlertFired("a1", "critical")
	c.RecordAlertSuppressed("a1", "cooldown")
	c.RecordNotification("slack", "failure")
	c.RecordFailure(StageBudget)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"utilization", testutil.ToFloat64(c.budgetMetrics.utilization.WithLabelValues("b1")), 42.5},
		{"actions", testutil.ToFloat64(c.budgetMetrics.actions.WithLabelValues("b1", "notify", "warning")), 1},
		{"unknown", testutil.ToFloat64(c.budgetMetrics.unknownActions.WithLabelValues("b1")), 1},
		{"fired", testutil.ToFloat64(c.alertMetrics.fired.WithLabelValues("a1", "critical")), 1},
		{"suppressed", testutil.ToFloat64(c.alertMetrics.suppressed.WithLabelValues("a1", "cooldown")), 1},
		{"notifications", testutil.ToFloat64(c.alertMetrics.notifications.WithLabelValues("slack", "failure")), 1},
		{"failures", testutil.ToFloat64(c.costMetrics.failures.WithLabelValues("budget")), 1},
	}
	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, tt.got)
		}
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	disabled := false
	c := NewCollector(&config.MetricsConfig{Enabled: &disabled}, nil)
	if c != nil {
		t.Fatal("Expected nil collector when disabled")
	}

	c.RecordEntry(&costs.Entry{})
	c.RecordFailure(StagePersist)
	c.RecordHTTPRequest("/x", "GET", 200, time.Millisecond)
	if c.Registry() != nil {
		t.Error("Expected nil registry")
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 from nil collector handler, got %d", rec.Code)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.RecordHTTPRequest("/api/v1/costs", "POST", 201, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "meter_http_requests_total") {
		t.Error("Expected request counter in exposition")
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)
	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("Expected first two values allowed")
	}
	if cl.Allow("c") {
		t.Error("Expected third value rejected")
	}
	if !cl.Allow("a") {
		t.Error("Expected known value allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Expected count 2, got %d", cl.Count())
	}
}
