package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/pricing"
	"mercator-hq/meter/pkg/telemetry/metrics"
	"mercator-hq/meter/pkg/telemetry/tracing"
)

// Metadata attribute keys written by the recorder.
const (
	AttrModel            = "model"
	AttrPricingBreakdown = "pricing_breakdown"
	AttrPricingModel     = "pricing_model"
	AttrPricingFallback  = "pricing_fallback"
)

// DefaultMaxFieldLength bounds string parameters stored with an entry.
const DefaultMaxFieldLength = 500

// BudgetChecker applies a committed entry to budgets.
type BudgetChecker interface {
	CheckBudgets(ctx context.Context, entry *costs.Entry) error
}

// AlertChecker evaluates alerts against a committed entry.
type AlertChecker interface {
	CheckAlerts(ctx context.Context, entry *costs.Entry) error
}

// Options configures a Recorder. Ledger is required. Calculator is required
// to record drafts without a cost.
type Options struct {
	Ledger     ledger.Storage
	Calculator *pricing.Calculator
	Budgets    BudgetChecker
	Alerts     AlertChecker

	// MaxFieldLength truncates string parameters.
	// Default: 500
	MaxFieldLength int

	Logger  *slog.Logger
	Tracer  *tracing.Tracer
	Metrics *metrics.Collector
	Now     func() time.Time
}

// Recorder commits cost entries. It is safe for concurrent use.
type Recorder struct {
	ledger     ledger.Storage
	calculator *pricing.Calculator
	budgets    BudgetChecker
	alerts     AlertChecker
	maxField   int

	logger  *slog.Logger
	tracer  *tracing.Tracer
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates a recorder.
func New(opts Options) *Recorder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxFieldLength == 0 {
		opts.MaxFieldLength = DefaultMaxFieldLength
	}
	return &Recorder{
		ledger:     opts.Ledger,
		calculator: opts.Calculator,
		budgets:    opts.Budgets,
		alerts:     opts.Alerts,
		maxField:   opts.MaxFieldLength,
		logger:     opts.Logger.With("component", "recorder"),
		tracer:     opts.Tracer,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// RecordCost commits draft and returns the stored entry.
//
// The returned error is non-nil only when the draft is invalid or the append
// fails. Cancelling ctx does not abort a call that has been accepted.
func (r *Recorder) RecordCost(ctx context.Context, draft costs.Draft) (*costs.Entry, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := r.tracer.Start(ctx, "meter.record")
	defer span.End()

	if err := Validate(draft); err != nil {
		tracing.SetError(span, err)
		return nil, err
	}

	entry, err := r.build(draft)
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	tracing.SetEntryAttributes(span, entry)
	span.SetAttributes(attribute.Bool(tracing.AttrCostFallback, entry.Metadata.Attributes[AttrPricingFallback] == "true"))

	if err := r.ledger.Append(ctx, entry); err != nil {
		r.metrics.RecordFailure(metrics.StagePersist)
		r.logger.Error("failed to persist cost entry",
			"entry_id", entry.ID,
			"service", entry.Service,
			"cost_usd", entry.CostUSD,
			"error", err,
		)
		tracing.SetError(span, err)
		return nil, fmt.Errorf("failed to persist cost entry %s: %w", entry.ID, err)
	}
	r.metrics.RecordEntry(entry)

	r.logger.Debug("cost entry recorded",
		"entry_id", entry.ID,
		"category", entry.Category,
		"service", entry.Service,
		"operation", entry.Operation,
		"cost_usd", entry.CostUSD,
		"tier", entry.Tier,
		"initiator", entry.InitiatedBy.Key(),
	)

	// The entry is durable from here on. Downstream checks get their own
	// copies so they cannot mutate what the caller receives.
	if r.budgets != nil {
		if err := r.budgets.CheckBudgets(ctx, entry.Clone()); err != nil {
			r.metrics.RecordFailure(metrics.StageBudget)
			r.logger.Error("budget check failed", "entry_id", entry.ID, "error", err)
			span.AddEvent("budget.check.failed")
		}
	}
	if r.alerts != nil {
		if err := r.alerts.CheckAlerts(ctx, entry.Clone()); err != nil {
			r.metrics.RecordFailure(metrics.StageAlert)
			r.logger.Error("alert check failed", "entry_id", entry.ID, "error", err)
			span.AddEvent("alert.check.failed")
		}
	}

	tracing.SetStatus(span, nil)
	return entry, nil
}

// build turns a validated draft into an entry.
func (r *Recorder) build(d costs.Draft) (*costs.Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry id: %w", err)
	}

	unitType := d.UnitType
	if unitType == "" {
		unitType = DefaultUnitType(d.Category)
	}
	units := d.UnitsConsumed
	if units == 0 {
		units = unitsFromConsumption(unitType, d.Consumption)
	}
	ts := d.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	entry := (&costs.Entry{
		ID:            id.String(),
		Timestamp:     ts.UTC(),
		Category:      d.Category,
		Service:       d.Service,
		Operation:     d.Operation,
		UnitsConsumed: units,
		UnitType:      unitType,
		InitiatedBy:   d.InitiatedBy,
		SessionID:     d.SessionID,
		Metadata:      d.Metadata,
	}).Clone()
	entry.Metadata.Parameters = sanitizeParameters(entry.Metadata.Parameters, r.maxField)

	if d.CostUSD != nil {
		entry.CostUSD = *d.CostUSD
	} else {
		if r.calculator == nil {
			return nil, fmt.Errorf("%w: cost_usd is required when no pricing calculator is configured", ErrInvalidDraft)
		}
		res := r.price(d)
		entry.CostUSD = res.Cost
		if entry.Metadata.Attributes == nil {
			entry.Metadata.Attributes = make(map[string]string)
		}
		entry.Metadata.Attributes[AttrPricingBreakdown] = res.Breakdown
		entry.Metadata.Attributes[AttrPricingModel] = string(res.Model)
		if res.Fallback {
			entry.Metadata.Attributes[AttrPricingFallback] = strconv.FormatBool(true)
			r.logger.Warn("no pricing descriptor, default pricing applied",
				"service", d.Service,
				"model", d.Metadata.Attributes[AttrModel],
				"cost_usd", res.Cost,
			)
		}
	}

	entry.Tier = costs.CalculateTier(entry.CostUSD)
	entry.CostPerUnit = costs.CostPerUnit(entry.CostUSD, entry.UnitsConsumed)
	return entry, nil
}

// price computes the cost of a draft. LLM calls are priced by the model
// attribute with the service as provider.
func (r *Recorder) price(d costs.Draft) pricing.Result {
	if d.Category == costs.CategoryLLMAPI {
		if model := d.Metadata.Attributes[AttrModel]; model != "" {
			return r.calculator.CalculateLLMCost(d.Service, model, d.Consumption.InputTokens, d.Consumption.OutputTokens)
		}
	}
	return r.calculator.CalculateServiceCost(d.Service, d.Consumption)
}

// Validate reports every problem with a draft.
func Validate(d costs.Draft) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !d.Category.Valid() {
		add("unknown category %q", d.Category)
	}
	if strings.TrimSpace(d.Service) == "" {
		add("service is required")
	}
	if strings.TrimSpace(d.Operation) == "" {
		add("operation is required")
	}
	if d.CostUSD != nil && (*d.CostUSD < 0 || math.IsNaN(*d.CostUSD) || math.IsInf(*d.CostUSD, 0)) {
		add("cost_usd must be a finite non-negative number")
	}
	if d.UnitsConsumed < 0 {
		add("units_consumed cannot be negative")
	}
	if d.UnitType != "" && !d.UnitType.Valid() {
		add("unknown unit type %q", d.UnitType)
	}
	if !d.InitiatedBy.Type.Valid() {
		add("initiated_by.type must be agent, user or system (got %q)", d.InitiatedBy.Type)
	}
	if strings.TrimSpace(d.InitiatedBy.ID) == "" {
		add("initiated_by.id is required")
	}
	c := d.Consumption
	if c.Results < 0 || c.Minutes < 0 || c.InputTokens < 0 || c.OutputTokens < 0 || c.Executions < 0 || c.Units < 0 {
		add("consumption cannot be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// DefaultUnitType returns the unit a category is usually measured in.
func DefaultUnitType(c costs.Category) costs.UnitType {
	switch c {
	case costs.CategoryLLMAPI:
		return costs.UnitTokens
	case costs.CategoryScrapingTool:
		return costs.UnitResults
	case costs.CategoryWorkflowN8N, costs.CategoryWorkflowZapier:
		return costs.UnitWorkflowRuns
	case costs.CategoryDeepResearch:
		return costs.UnitAPICalls
	case costs.CategoryInfrastructure:
		return costs.UnitComputeMinutes
	default:
		return costs.UnitRequests
	}
}

func unitsFromConsumption(u costs.UnitType, c costs.Consumption) int64 {
	switch u {
	case costs.UnitTokens:
		return c.InputTokens + c.OutputTokens
	case costs.UnitResults:
		return c.Results
	case costs.UnitWorkflowRuns:
		return c.Executions
	case costs.UnitComputeMinutes:
		return int64(math.Ceil(c.Minutes))
	default:
		return c.Units
	}
}
