package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/meter/pkg/costs"
)

// Attribute keys use the "meter.*" namespace.
const (
	// Entry attributes
	AttrEntryID   = "meter.entry.id"
	AttrCategory  = "meter.category"
	AttrService   = "meter.service"
	AttrOperation = "meter.operation"
	AttrTier      = "meter.tier"
	AttrInitiator = "meter.initiator"
	AttrSession   = "meter.session"

	// Cost attributes
	AttrCost         = "meter.cost.usd"
	AttrCostFallback = "meter.cost.fallback"
	AttrCostTotal    = "meter.cost.total"
	AttrOperations   = "meter.operations"

	// Budget attributes
	AttrBudgetID       = "meter.budget.id"
	AttrBudgetsMatched = "meter.budget.matched"
	AttrUtilization    = "meter.budget.utilization_percent"
	AttrAction         = "meter.budget.action"

	// Alert attributes
	AttrAlertID     = "meter.alert.id"
	AttrAlertsFired = "meter.alert.fired"
)

// SetEntryAttributes records the identifying fields of a cost entry.
func SetEntryAttributes(span trace.Span, e *costs.Entry) {
	span.SetAttributes(
		attribute.String(AttrEntryID, e.ID),
		attribute.String(AttrCategory, string(e.Category)),
		attribute.String(AttrService, e.Service),
		attribute.String(AttrOperation, e.Operation),
		attribute.String(AttrTier, string(e.Tier)),
		attribute.String(AttrInitiator, e.InitiatedBy.Key()),
		attribute.Float64(AttrCost, e.CostUSD),
	)
	if e.SessionID != "" {
		span.SetAttributes(attribute.String(AttrSession, e.SessionID))
	}
}
