package server_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/engine"
	"mercator-hq/meter/pkg/estimate"
	"mercator-hq/meter/pkg/ledger/storage"
	"mercator-hq/meter/pkg/pricing"
	"mercator-hq/meter/pkg/server"
	"mercator-hq/meter/pkg/summary"
	"mercator-hq/meter/pkg/telemetry/health"
	"mercator-hq/meter/pkg/telemetry/metrics"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (http.Handler, *metrics.Collector) {
	t.Helper()
	clock := func() time.Time { return now }
	eng, err := engine.New(engine.Options{
		Ledger:     storage.NewMemoryStorage(),
		Calculator: pricing.NewCalculator(pricing.DefaultTable()),
		Now:        clock,
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	checker := health.New(0)
	eng.RegisterHealthChecks(checker)
	collector := metrics.NewCollector(nil, nil)

	srv := server.New(server.Options{
		Config:  &config.Default().Server,
		Engine:  eng,
		Health:  checker,
		Metrics: collector,
		Version: server.VersionInfo{Version: "1.2.3", Commit: "abc"},
		Now:     clock,
	})
	return srv.Handler(), collector
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func recordBody(category, service string, cost float64) string {
	b, _ := json.Marshal(map[string]any{
		"timestamp":      now.Add(-time.Hour),
		"category":       category,
		"service":        service,
		"operation":      "run",
		"cost_usd":       cost,
		"units_consumed": 1,
		"initiated_by":   map[string]string{"type": "agent", "id": "agent-1"},
	})
	return string(b)
}

func TestServer_RecordAndList(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/costs", recordBody("llm-api", "openai", 2.5))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry costs.Entry
	decode(t, rec, &entry)
	if entry.ID == "" {
		t.Fatal("Expected entry ID")
	}
	if entry.CostUSD != 2.5 {
		t.Errorf("Expected cost 2.5, got %v", entry.CostUSD)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}

	do(t, h, http.MethodPost, "/api/v1/costs", recordBody("scraping-tool", "apify", 0.5))

	rec = do(t, h, http.MethodGet, "/api/v1/costs?category=llm-api", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Entries []costs.Entry `json:"entries"`
		Limit   int           `json:"limit"`
	}
	decode(t, rec, &list)
	if len(list.Entries) != 1 {
		t.Errorf("Expected 1 llm entry, got %d", len(list.Entries))
	}
	if list.Limit != 100 {
		t.Errorf("Expected default limit 100, got %d", list.Limit)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/costs/"+entry.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for existing entry, got %d", rec.Code)
	}
}

func TestServer_ListEntriesBadParams(t *testing.T) {
	h, _ := newTestServer(t)

	for _, target := range []string{
		"/api/v1/costs?limit=ten",
		"/api/v1/costs?min_cost=cheap",
		"/api/v1/costs?start=yesterday",
		"/api/v1/costs?limit=1000000",
		"/api/v1/costs?sort_by=name",
	} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestServer_ValidationProblems(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/costs", `{"category":"bogus","units_consumed":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	var resp struct {
		Error    string   `json:"error"`
		Problems []string `json:"problems"`
	}
	decode(t, rec, &resp)
	if len(resp.Problems) == 0 {
		t.Errorf("Expected problems in response, got %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/costs", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestServer_NotFound(t *testing.T) {
	h, _ := newTestServer(t)

	for _, target := range []string{
		"/api/v1/costs/missing",
		"/api/v1/budgets/missing",
		"/api/v1/alerts/missing",
	} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rec.Code)
		}
	}
}

func TestServer_BudgetsAndDecision(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/budgets", `{
		"id": "llm-monthly",
		"name": "LLM monthly",
		"period": "monthly",
		"budget_usd": 10,
		"categories": ["llm-api"],
		"auto_actions": {"on_maximum": "block"}
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/budgets", `{"id":"llm-monthly","name":"LLM monthly","period":"monthly","budget_usd":10,"categories":["llm-api"]}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate budget, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/decision?category=llm-api&service=openai", "")
	var d budget.Decision
	decode(t, rec, &d)
	if !d.Allowed {
		t.Errorf("Expected allowed before spending, got %+v", d)
	}

	do(t, h, http.MethodPost, "/api/v1/costs", recordBody("llm-api", "openai", 12))

	rec = do(t, h, http.MethodGet, "/api/v1/budgets/llm-monthly", "")
	var b budget.Budget
	decode(t, rec, &b)
	if b.SpentUSD != 12 {
		t.Errorf("Expected spent 12, got %v", b.SpentUSD)
	}
	if b.Status != budget.StatusExceeded {
		t.Errorf("Expected exceeded, got %s", b.Status)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/decision?category=llm-api&service=openai", "")
	d = budget.Decision{}
	decode(t, rec, &d)
	if d.Allowed || d.Verdict != budget.VerdictBlock {
		t.Errorf("Expected block, got %+v", d)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/budgets", "")
	var list []budget.Budget
	decode(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 budget, got %d", len(list))
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/decision?category=nope", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown category, got %d", rec.Code)
	}
}

func TestServer_Alerts(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/alerts", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty alert list, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/alerts", `{"name":"spike","type":"spike"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for spike without percentage, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/alerts", `{"name":"big spend","conditions":{"cost_threshold_usd":5}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, rec, &created)
	if rec := do(t, h, http.MethodGet, "/api/v1/alerts/"+created.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for created alert, got %d", rec.Code)
	}
}

func TestServer_Estimates(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/estimates/llm", `{"provider":"openai","model":"gpt-4o","estimated_input_tokens":1000,"estimated_output_tokens":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var est estimate.Estimate
	decode(t, rec, &est)
	if est.EstimatedCost <= 0 {
		t.Errorf("Expected positive estimate, got %v", est.EstimatedCost)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/estimates/teleport", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown surface, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/estimates", `{"operations":[
		{"surface":"llm","params":{"provider":"openai","model":"gpt-4o","estimated_input_tokens":1000,"estimated_output_tokens":500}},
		{"surface":"llm","params":{"provider":"openai","model":"gpt-4o","estimated_input_tokens":1000,"estimated_output_tokens":500}}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var agg estimate.AggregateEstimate
	decode(t, rec, &agg)
	if diff := agg.TotalCost - 2*est.EstimatedCost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected aggregate %v, got %v", 2*est.EstimatedCost, agg.TotalCost)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/estimates", `{"operations":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty aggregate, got %d", rec.Code)
	}
}

func TestServer_SummaryAndExport(t *testing.T) {
	h, _ := newTestServer(t)

	do(t, h, http.MethodPost, "/api/v1/costs", recordBody("llm-api", "openai", 3))
	do(t, h, http.MethodPost, "/api/v1/costs", recordBody("scraping-tool", "apify", 1))

	if rec := do(t, h, http.MethodGet, "/api/v1/summary", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without start, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/summary?start=7d", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sum summary.Summary
	decode(t, rec, &sum)
	if sum.TotalCostUSD != 4 || sum.TotalOperations != 2 {
		t.Errorf("Expected total 4 over 2 operations, got %v over %d", sum.TotalCostUSD, sum.TotalOperations)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/export?start=7d", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/export?start=7d&entries=true&category=llm-api", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Expected header plus 1 row, got %d rows", len(rows))
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/export?start=7d&format=xml", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for xml, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/optimizations?start=30d", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for optimizations, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_HealthVersionMetrics(t *testing.T) {
	h, collector := newTestServer(t)

	if rec := do(t, h, http.MethodGet, "/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected live 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/health/ready", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected ready 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/version", "")
	if !strings.Contains(rec.Body.String(), "1.2.3") {
		t.Errorf("Expected version in body, got %s", rec.Body.String())
	}

	do(t, h, http.MethodGet, "/api/v1/budgets", "")
	rec = do(t, h, http.MethodGet, config.DefaultMetricsPath, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/api/v1/budgets`) {
		t.Errorf("Expected budget route in metrics, got:\n%s", rec.Body.String())
	}
	if collector.Registry() == nil {
		t.Error("Expected registry")
	}
}
