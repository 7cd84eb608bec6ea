package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/meter/pkg/alert"
	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/estimate"
	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/ledger/export"
	"mercator-hq/meter/pkg/ledger/query"
	"mercator-hq/meter/pkg/optimize"
	"mercator-hq/meter/pkg/summary"
)

// --- Costs ---

// handleRecordCost handles POST /api/v1/costs
func (s *Server) handleRecordCost(w http.ResponseWriter, r *http.Request) {
	var draft costs.Draft
	if !s.readJSON(w, r, &draft) {
		return
	}
	entry, err := s.engine.RecordCost(r.Context(), draft)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type entriesResponse struct {
	Entries []*costs.Entry `json:"entries"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// handleListEntries handles GET /api/v1/costs
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseEntriesQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.engine.ListEntries(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*costs.Entry{}
	}
	limit := q.Limit
	if limit == 0 {
		limit = query.DefaultLimit
	}
	writeJSON(w, http.StatusOK, entriesResponse{Entries: entries, Limit: limit, Offset: q.Offset})
}

// handleGetEntry handles GET /api/v1/costs/{id}
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.engine.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// --- Estimates ---

// estimateFor decodes params for one surface and estimates it.
func (s *Server) estimateFor(surface string, params json.RawMessage) (estimate.Estimate, error) {
	decode := func(v any) error {
		if len(params) == 0 {
			return nil
		}
		if err := json.Unmarshal(params, v); err != nil {
			return fmt.Errorf("%w: invalid %s params: %v", errBadRequest, surface, err)
		}
		return nil
	}

	switch surface {
	case "tool":
		var p estimate.ToolParams
		if err := decode(&p); err != nil {
			return estimate.Estimate{}, err
		}
		return s.engine.EstimateTool(p), nil
	case "llm":
		var p estimate.LLMParams
		if err := decode(&p); err != nil {
			return estimate.Estimate{}, err
		}
		return s.engine.EstimateLLM(p), nil
	case "openai":
		var p estimate.LLMParams
		if err := decode(&p); err != nil {
			return estimate.Estimate{}, err
		}
		return s.engine.EstimateOpenAI(p), nil
	case "workflow":
		var p estimate.WorkflowParams
		if err := decode(&p); err != nil {
			return estimate.Estimate{}, err
		}
		return s.engine.EstimateWorkflow(p), nil
	case "research":
		var p estimate.ResearchParams
		if err := decode(&p); err != nil {
			return estimate.Estimate{}, err
		}
		return s.engine.EstimateResearch(p), nil
	case "infrastructure", "infra":
		var p estimate.InfrastructureParams
		if err := decode(&p); err != nil {
			return estimate.Estimate{}, err
		}
		return s.engine.EstimateInfrastructure(p), nil
	default:
		return estimate.Estimate{}, fmt.Errorf("%w: unknown estimate surface %q", errBadRequest, surface)
	}
}

// handleEstimate handles POST /api/v1/estimates/{surface}
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var params json.RawMessage
	if !s.readJSON(w, r, &params) {
		return
	}
	est, err := s.estimateFor(chi.URLParam(r, "surface"), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

type aggregateRequest struct {
	Operations []struct {
		Surface string          `json:"surface"`
		Params  json.RawMessage `json:"params"`
	} `json:"operations"`
}

// handleAggregateEstimate handles POST /api/v1/estimates
func (s *Server) handleAggregateEstimate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if len(req.Operations) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: operations must not be empty", errBadRequest))
		return
	}
	estimates := make([]estimate.Estimate, 0, len(req.Operations))
	for i, op := range req.Operations {
		est, err := s.estimateFor(op.Surface, op.Params)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("operation %d: %w", i, err))
			return
		}
		estimates = append(estimates, est)
	}
	writeJSON(w, http.StatusOK, estimate.Aggregate(estimates...))
}

// --- Budgets ---

// handleListBudgets handles GET /api/v1/budgets
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.engine.ListBudgets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if budgets == nil {
		budgets = []*budget.Budget{}
	}
	writeJSON(w, http.StatusOK, budgets)
}

// handleCreateBudget handles POST /api/v1/budgets
func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var spec budget.Spec
	if !s.readJSON(w, r, &spec) {
		return
	}
	b, err := s.engine.CreateBudget(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleGetBudget handles GET /api/v1/budgets/{id}
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.GetBudget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- Alerts ---

// handleListAlerts handles GET /api/v1/alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.engine.ListAlerts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*alert.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleCreateAlert handles POST /api/v1/alerts
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var spec alert.Spec
	if !s.readJSON(w, r, &spec) {
		return
	}
	a, err := s.engine.CreateAlert(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// handleGetAlert handles GET /api/v1/alerts/{id}
func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// --- Reporting ---

// handleSummary handles GET /api/v1/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := s.parseRange(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.engine.GetCostSummary(r.Context(), start, end, parseFilters(q))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type optimizationsResponse struct {
	Optimizations   []optimize.Optimization `json:"optimizations"`
	TotalSavingsUSD float64                 `json:"total_potential_savings_usd"`
	PeriodStart     string                  `json:"period_start"`
	PeriodEnd       string                  `json:"period_end"`
}

// handleOptimizations handles GET /api/v1/optimizations
func (s *Server) handleOptimizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := s.parseRange(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := s.engine.GetOptimizationRecommendations(r.Context(), start, end, parseFilters(q))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if opts == nil {
		opts = []optimize.Optimization{}
	}
	var total float64
	for _, o := range opts {
		total += o.PotentialSavingsUSD
	}
	writeJSON(w, http.StatusOK, optimizationsResponse{
		Optimizations:   opts,
		TotalSavingsUSD: total,
		PeriodStart:     start.UTC().Format(time.RFC3339),
		PeriodEnd:       end.UTC().Format(time.RFC3339),
	})
}

// attachmentWriter sets download headers on the first write, so a failure
// before any output can still be reported as a JSON error.
type attachmentWriter struct {
	w        http.ResponseWriter
	filename string
	mimeType string
	started  bool
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", a.mimeType)
		a.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.filename))
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

// handleExport handles GET /api/v1/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := s.parseRange(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := q.Get("format")
	if format == "" {
		format = string(export.FormatCSV)
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if entries, _ := strconv.ParseBool(q.Get("entries")); entries {
		aw := &attachmentWriter{w: w, filename: export.EntriesFilename(start, end, f), mimeType: f.MimeType()}
		n, err := s.engine.ExportEntries(r.Context(), start, end, parseFilters(q), format, aw)
		if err != nil {
			if !aw.started {
				s.writeError(w, r, err)
				return
			}
			s.logger.ErrorContext(r.Context(), "entry export aborted", "written", n, "error", err)
			return
		}
		if !aw.started {
			_, _ = aw.Write(nil)
		}
		return
	}

	payload, err := s.engine.ExportCostData(r.Context(), start, end, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	aw := &attachmentWriter{w: w, filename: payload.Filename, mimeType: payload.MimeType}
	_, _ = aw.Write(payload.Data)
}

// handleDecision handles GET /api/v1/decision
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := costs.Category(q.Get("category"))
	if category != "" && !category.Valid() {
		s.writeError(w, r, fmt.Errorf("%w: unknown category %q", errBadRequest, category))
		return
	}
	d := s.engine.Decide(costs.Draft{
		Category: category,
		Service:  q.Get("service"),
		Metadata: costs.Metadata{DepartmentID: q.Get("department_id")},
	})
	if d.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Round(time.Second).Seconds())))
	}
	writeJSON(w, http.StatusOK, d)
}

// --- Parameter parsing ---

// listParam collects repeated and comma-separated values.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func parseFilters(q url.Values) summary.Filters {
	f := summary.Filters{
		Services:      listParam(q, "service"),
		DepartmentID:  q.Get("department_id"),
		InitiatorType: costs.InitiatorType(q.Get("initiator_type")),
		InitiatorID:   q.Get("initiator_id"),
		SessionID:     q.Get("session_id"),
	}
	for _, c := range listParam(q, "category") {
		f.Categories = append(f.Categories, costs.Category(c))
	}
	return f
}

// parseRange reads start and end. End defaults to now.
func (s *Server) parseRange(q url.Values) (time.Time, time.Time, error) {
	now := s.now()
	end := now
	if v := q.Get("end"); v != "" {
		var err error
		if end, err = query.ParseTime("end", v, now); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	start, err := query.ParseTime("start", q.Get("start"), now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (s *Server) parseEntriesQuery(q url.Values) (ledger.Query, error) {
	f := parseFilters(q)
	lq := ledger.Query{
		Categories:    f.Categories,
		Services:      f.Services,
		DepartmentID:  f.DepartmentID,
		InitiatorType: f.InitiatorType,
		InitiatorID:   f.InitiatorID,
		SessionID:     f.SessionID,
		SortBy:        q.Get("sort_by"),
		SortOrder:     q.Get("sort_order"),
	}

	now := s.now()
	for _, b := range []struct {
		name string
		dst  **time.Time
	}{{"start", &lq.StartTime}, {"end", &lq.EndTime}} {
		if v := q.Get(b.name); v != "" {
			t, err := query.ParseTime(b.name, v, now)
			if err != nil {
				return lq, err
			}
			*b.dst = &t
		}
	}

	for _, i := range []struct {
		name string
		dst  *int
	}{{"limit", &lq.Limit}, {"offset", &lq.Offset}} {
		if v := q.Get(i.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return lq, ledger.NewQueryError(i.name, "must be an integer")
			}
			*i.dst = n
		}
	}

	for _, c := range []struct {
		name string
		dst  **float64
	}{{"min_cost", &lq.MinCost}, {"max_cost", &lq.MaxCost}} {
		if v := q.Get(c.name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return lq, ledger.NewQueryError(c.name, "must be a number")
			}
			*c.dst = &f
		}
	}
	return lq, nil
}
