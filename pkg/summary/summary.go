// Package summary aggregates cost entries over a period.
//
// A Summary is always computed from the ledger on request and never cached,
// so it can never diverge from a fresh recomputation. Every entry lands in
// exactly one category, one service and one tier, so each of those
// breakdowns sums to TotalCostUSD.
package summary

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/ledger/query"
	"mercator-hq/meter/pkg/telemetry/tracing"
)

// TopDriverCount is the number of cost drivers reported in a summary.
const TopDriverCount = 10

// Filters narrows the entries included in a summary.
type Filters struct {
	Categories    []costs.Category    `json:"categories,omitempty"`
	Services      []string            `json:"services,omitempty"`
	DepartmentID  string              `json:"department_id,omitempty"`
	InitiatorType costs.InitiatorType `json:"initiator_type,omitempty"`
	InitiatorID   string              `json:"initiator_id,omitempty"`
	SessionID     string              `json:"session_id,omitempty"`
}

// Query converts the filters and period into a ledger query.
func (f Filters) Query(start, end time.Time) *ledger.Query {
	return &ledger.Query{
		StartTime:     &start,
		EndTime:       &end,
		Categories:    f.Categories,
		Services:      f.Services,
		DepartmentID:  f.DepartmentID,
		InitiatorType: f.InitiatorType,
		InitiatorID:   f.InitiatorID,
		SessionID:     f.SessionID,
	}
}

// InitiatorStats aggregates spend for one initiator.
type InitiatorStats struct {
	Type         costs.InitiatorType `json:"type"`
	ID           string              `json:"id"`
	Name         string              `json:"name,omitempty"`
	TotalCostUSD float64             `json:"total_cost_usd"`
	Count        int                 `json:"count"`
	MeanCostUSD  float64             `json:"mean_cost_usd"`
}

// CostDriver is one service:operation pair ranked by spend.
type CostDriver struct {
	Key        string  `json:"key"` // "service:operation"
	Service    string  `json:"service"`
	Operation  string  `json:"operation"`
	CostUSD    float64 `json:"cost_usd"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Summary is a computed, never persisted, view of a period.
type Summary struct {
	PeriodStart     time.Time                  `json:"period_start"`
	PeriodEnd       time.Time                  `json:"period_end"`
	TotalCostUSD    float64                    `json:"total_cost_usd"`
	TotalOperations int                        `json:"total_operations"`
	ByCategory      map[costs.Category]float64 `json:"by_category"`
	ByService       map[string]float64         `json:"by_service"`
	ByTier          map[costs.Tier]float64     `json:"by_tier"`
	ByInitiator     map[string]InitiatorStats  `json:"by_initiator"`
	TopCostDrivers  []CostDriver               `json:"top_cost_drivers"`

	// ServicesByCategory splits each category's spend by service.
	ServicesByCategory map[costs.Category]map[string]float64 `json:"services_by_category"`
}

// Builder accumulates entries into a summary one at a time, so callers can
// fold a stream without holding it in memory.
type Builder struct {
	s       *Summary
	drivers map[string]*CostDriver
}

// NewBuilder starts an empty summary for the period.
func NewBuilder(start, end time.Time) *Builder {
	return &Builder{
		s: &Summary{
			PeriodStart:    start,
			PeriodEnd:      end,
			ByCategory:     make(map[costs.Category]float64),
			ByService:      make(map[string]float64),
			ByTier:         make(map[costs.Tier]float64),
			ByInitiator:    make(map[string]InitiatorStats),
			TopCostDrivers: []CostDriver{},

			ServicesByCategory: make(map[costs.Category]map[string]float64),
		},
		drivers: make(map[string]*CostDriver),
	}
}

// Add folds one entry into the summary.
func (b *Builder) Add(e *costs.Entry) {
	s := b.s
	s.TotalCostUSD += e.CostUSD
	s.TotalOperations++

	s.ByCategory[e.Category] += e.CostUSD
	s.ByService[e.Service] += e.CostUSD
	if s.ServicesByCategory[e.Category] == nil {
		s.ServicesByCategory[e.Category] = make(map[string]float64)
	}
	s.ServicesByCategory[e.Category][e.Service] += e.CostUSD

	// Tier is re-derived so a mislabelled row cannot break the partition.
	s.ByTier[costs.CalculateTier(e.CostUSD)] += e.CostUSD

	key := e.InitiatedBy.Key()
	stats := s.ByInitiator[key]
	stats.Type, stats.ID = e.InitiatedBy.Type, e.InitiatedBy.ID
	if e.InitiatedBy.Name != "" {
		stats.Name = e.InitiatedBy.Name
	}
	stats.TotalCostUSD += e.CostUSD
	stats.Count++
	s.ByInitiator[key] = stats

	driverKey := e.Service + ":" + e.Operation
	d, ok := b.drivers[driverKey]
	if !ok {
		d = &CostDriver{Key: driverKey, Service: e.Service, Operation: e.Operation}
		b.drivers[driverKey] = d
	}
	d.CostUSD += e.CostUSD
	d.Count++
}

// Summary finalizes means and the top cost drivers.
func (b *Builder) Summary() *Summary {
	s := b.s

	for key, stats := range s.ByInitiator {
		stats.MeanCostUSD = stats.TotalCostUSD / float64(stats.Count)
		s.ByInitiator[key] = stats
	}

	drivers := make([]CostDriver, 0, len(b.drivers))
	for _, d := range b.drivers {
		drivers = append(drivers, *d)
	}
	slices.SortFunc(drivers, func(a, b CostDriver) int {
		if c := cmp.Compare(b.CostUSD, a.CostUSD); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	if len(drivers) > TopDriverCount {
		drivers = drivers[:TopDriverCount]
	}
	for i := range drivers {
		if s.TotalCostUSD > 0 {
			drivers[i].Percentage = drivers[i].CostUSD / s.TotalCostUSD * 100
		}
	}
	s.TopCostDrivers = drivers

	return s
}

// Compute builds a summary from an in-memory slice of entries.
func Compute(start, end time.Time, entries []*costs.Entry) *Summary {
	b := NewBuilder(start, end)
	for _, e := range entries {
		b.Add(e)
	}
	return b.Summary()
}

// Aggregator answers summary queries against the ledger. It only reads.
type Aggregator struct {
	store  ledger.Storage
	tracer *tracing.Tracer
	logger *slog.Logger
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store ledger.Storage, tracer *tracing.Tracer, logger *slog.Logger) *Aggregator {
	if tracer == nil {
		tracer = tracing.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:  store,
		tracer: tracer,
		logger: logger.With("component", "summary.aggregator"),
	}
}

// GetCostSummary summarizes entries with start <= timestamp <= end matching
// the filters. Malformed parameters are rejected before any read.
func (a *Aggregator) GetCostSummary(ctx context.Context, start, end time.Time, filters Filters) (*Summary, error) {
	if err := query.ValidatePeriod(start, end); err != nil {
		return nil, err
	}
	q := filters.Query(start, end)
	if err := query.Validate(q); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "meter.summary")
	defer span.End()

	entriesCh, errCh, err := a.store.QueryStream(ctx, q)
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}

	b := NewBuilder(start, end)
	for e := range entriesCh {
		b.Add(e)
	}
	if err := <-errCh; err != nil {
		tracing.SetError(span, err)
		return nil, err
	}

	s := b.Summary()
	span.SetAttributes(
		attribute.Float64(tracing.AttrCostTotal, s.TotalCostUSD),
		attribute.Int(tracing.AttrOperations, s.TotalOperations),
	)
	a.logger.Debug("cost summary computed",
		"period_start", start,
		"period_end", end,
		"total_cost_usd", s.TotalCostUSD,
		"total_operations", s.TotalOperations,
	)
	return s, nil
}
