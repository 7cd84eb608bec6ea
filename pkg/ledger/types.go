package ledger

import (
	"context"
	"slices"
	"time"

	"mercator-hq/meter/pkg/costs"
)

// Query defines filter parameters for reading cost entries.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	Categories    []costs.Category    `json:"categories,omitempty"`
	Services      []string            `json:"services,omitempty"`
	DepartmentID  string              `json:"department_id,omitempty"`
	InitiatorType costs.InitiatorType `json:"initiator_type,omitempty"`
	InitiatorID   string              `json:"initiator_id,omitempty"`
	SessionID     string              `json:"session_id,omitempty"`

	// Thresholds
	MinCost *float64 `json:"min_cost,omitempty"`
	MaxCost *float64 `json:"max_cost,omitempty"`

	// Pagination. Limit zero means unlimited for streams and sums.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "timestamp", "cost"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Sort keys and orders accepted by backends.
const (
	SortByTimestamp = "timestamp"
	SortByCost      = "cost"
	SortAsc         = "asc"
	SortDesc        = "desc"
)

// Matches reports whether e satisfies every filter in q. Pagination and
// sorting are ignored. Backends that filter in memory share this.
func (q *Query) Matches(e *costs.Entry) bool {
	if q == nil {
		return true
	}
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	if len(q.Categories) > 0 && !slices.Contains(q.Categories, e.Category) {
		return false
	}
	if len(q.Services) > 0 && !slices.Contains(q.Services, e.Service) {
		return false
	}
	if q.DepartmentID != "" && e.Metadata.DepartmentID != q.DepartmentID {
		return false
	}
	if q.InitiatorType != "" && e.InitiatedBy.Type != q.InitiatorType {
		return false
	}
	if q.InitiatorID != "" && e.InitiatedBy.ID != q.InitiatorID {
		return false
	}
	if q.SessionID != "" && e.SessionID != q.SessionID {
		return false
	}
	if q.MinCost != nil && e.CostUSD < *q.MinCost {
		return false
	}
	if q.MaxCost != nil && e.CostUSD > *q.MaxCost {
		return false
	}
	return true
}

// Stats is an aggregate over matching entries.
type Stats struct {
	TotalCostUSD float64 `json:"total_cost_usd"`
	Count        int64   `json:"count"`
}

// Storage defines the interface for cost ledger backends.
// Implementations must be thread-safe and support concurrent access.
type Storage interface {
	// Append persists a new entry. Returns ErrDuplicateEntry if the id is
	// already present.
	Append(ctx context.Context, entry *costs.Entry) error

	// Get returns a single entry by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*costs.Entry, error)

	// Query returns entries matching the query, honoring pagination and sort.
	// Returns an empty slice if nothing matches.
	Query(ctx context.Context, query *Query) ([]*costs.Entry, error)

	// QueryStream returns a channel of entries for memory-efficient reads.
	//
	// Returns:
	//   - entriesCh: Channel of entries (buffered)
	//   - errCh: Channel for errors (buffered, max 1 error)
	//   - error: Immediate error (e.g., invalid query)
	//
	// Both channels are closed when the stream completes. Callers should
	// drain entriesCh and then read errCh.
	QueryStream(ctx context.Context, query *Query) (<-chan *costs.Entry, <-chan error, error)

	// Stats sums cost and counts entries matching the query filters.
	Stats(ctx context.Context, query *Query) (Stats, error)

	// Count returns the number of entries matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes entries matching the query filters and returns the
	// number removed. Only the retention pruner calls this.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}
