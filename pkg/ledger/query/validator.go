// Package query validates ledger queries before they reach a backend.
package query

import (
	"fmt"
	"math"
	"time"

	"mercator-hq/meter/pkg/ledger"
)

const (
	// DefaultLimit is the default number of entries returned by a listing.
	DefaultLimit = 100

	// MaxLimit is the maximum number of entries a single listing may return.
	MaxLimit = 10000
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	ledger.SortByTimestamp: true,
	ledger.SortByCost:      true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	ledger.SortAsc:  true,
	ledger.SortDesc: true,
}

// Validate rejects malformed parameters. It never touches storage.
func Validate(q *ledger.Query) error {
	if q == nil {
		return ledger.NewQueryError("query", "must not be nil")
	}

	if q.Limit < 0 {
		return ledger.NewQueryError("limit", fmt.Sprintf("must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return ledger.NewQueryError("limit", fmt.Sprintf("must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return ledger.NewQueryError("offset", fmt.Sprintf("must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return ledger.NewQueryError("sort_by", fmt.Sprintf("invalid sort field %q", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return ledger.NewQueryError("sort_order", fmt.Sprintf("invalid sort order %q (must be 'asc' or 'desc')", q.SortOrder))
	}

	if err := ValidateRange(q.StartTime, q.EndTime); err != nil {
		return err
	}

	for _, c := range q.Categories {
		if !c.Valid() {
			return ledger.NewQueryError("categories", fmt.Sprintf("unknown category %q", c))
		}
	}
	if q.InitiatorType != "" && !q.InitiatorType.Valid() {
		return ledger.NewQueryError("initiator_type", fmt.Sprintf("unknown initiator type %q (must be agent, user or system)", q.InitiatorType))
	}

	for field, v := range map[string]*float64{"min_cost": q.MinCost, "max_cost": q.MaxCost} {
		if v != nil && (math.IsNaN(*v) || *v < 0) {
			return ledger.NewQueryError(field, "must be a non-negative number")
		}
	}
	if q.MinCost != nil && q.MaxCost != nil && *q.MinCost > *q.MaxCost {
		return ledger.NewQueryError("min_cost", "must be <= max_cost")
	}

	return nil
}

// ValidateRange checks an optional time range. A nil bound is open.
func ValidateRange(start, end *time.Time) error {
	if start != nil && start.IsZero() {
		return ledger.NewQueryError("start_time", "must not be the zero time")
	}
	if end != nil && end.IsZero() {
		return ledger.NewQueryError("end_time", "must not be the zero time")
	}
	if start != nil && end != nil && start.After(*end) {
		return ledger.NewQueryError("start_time", "must not be after end_time")
	}
	return nil
}

// ValidatePeriod checks a closed range used by summaries and exports, where
// both bounds are required.
func ValidatePeriod(start, end time.Time) error {
	if start.IsZero() {
		return ledger.NewQueryError("start_time", "is required")
	}
	if end.IsZero() {
		return ledger.NewQueryError("end_time", "is required")
	}
	return ValidateRange(&start, &end)
}

// ApplyDefaults fills in listing defaults.
func ApplyDefaults(q *ledger.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = ledger.SortByTimestamp
	}
	if q.SortOrder == "" {
		q.SortOrder = ledger.SortDesc
	}
}
