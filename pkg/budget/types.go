package budget

import (
	"context"
	"slices"
	"time"

	"mercator-hq/meter/pkg/costs"
)

// Period is the budget's reset cadence.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodCustom  Period = "custom"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodCustom:
		return true
	}
	return false
}

// Status is the budget's state within the current period.
type Status string

const (
	StatusActive   Status = "active"
	StatusExceeded Status = "exceeded"
)

// Level names a threshold.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
	LevelMaximum  Level = "maximum"
)

// Levels returns every level in ascending order.
func Levels() []Level {
	return []Level{LevelWarning, LevelCritical, LevelMaximum}
}

// Action is an auto-action taken when a threshold is reached.
type Action string

const (
	ActionNone     Action = ""
	ActionNotify   Action = "notify"
	ActionThrottle Action = "throttle"
	ActionSuspend  Action = "suspend"
	ActionBlock    Action = "block"
)

// Known reports whether a is one of the handled actions, including none.
func (a Action) Known() bool {
	switch a {
	case ActionNone, ActionNotify, ActionThrottle, ActionSuspend, ActionBlock:
		return true
	}
	return false
}

// Thresholds are utilization percentages with 0 < Warning < Critical <= Maximum.
type Thresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
	Maximum  float64 `json:"maximum"`
}

// For returns the percentage for level.
func (t Thresholds) For(level Level) float64 {
	switch level {
	case LevelWarning:
		return t.Warning
	case LevelCritical:
		return t.Critical
	default:
		return t.Maximum
	}
}

// DefaultThresholds returns 50/80/100.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 50, Critical: 80, Maximum: 100}
}

// AutoActions maps each level to its action.
type AutoActions struct {
	OnWarning  Action `json:"on_warning,omitempty"`
	OnCritical Action `json:"on_critical,omitempty"`
	OnMaximum  Action `json:"on_maximum,omitempty"`
}

// For returns the action configured for level.
func (a AutoActions) For(level Level) Action {
	switch level {
	case LevelWarning:
		return a.OnWarning
	case LevelCritical:
		return a.OnCritical
	default:
		return a.OnMaximum
	}
}

// Budget is a spending cap and its running state.
type Budget struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Period Period `json:"period"`

	// PeriodStart is inclusive and PeriodEnd exclusive. For custom budgets
	// they are the fixed validity window.
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	BudgetUSD          float64 `json:"budget_usd"`
	SpentUSD           float64 `json:"spent_usd"`
	UtilizationPercent float64 `json:"utilization_percent"`

	Categories   []costs.Category `json:"categories"`
	Services     []string         `json:"services,omitempty"`
	DepartmentID string           `json:"department_id,omitempty"`

	Thresholds  Thresholds  `json:"thresholds"`
	AutoActions AutoActions `json:"auto_actions"`

	Status Status `json:"status"`

	// Reached lists the levels already triggered in the current period.
	Reached []Level `json:"reached,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Utilization returns spent/budget*100.
func Utilization(spentUSD, budgetUSD float64) float64 {
	if budgetUSD <= 0 {
		return 0
	}
	return spentUSD / budgetUSD * 100
}

// Applies reports whether the budget's scope covers an entry: the category
// is listed, the service is listed or services are unset, the department
// matches or the budget is global, and for custom budgets the timestamp
// falls inside the window.
func (b *Budget) Applies(e *costs.Entry) bool {
	if !matchesScope(b.Categories, b.Services, b.DepartmentID, e.Category, e.Service, e.Metadata.DepartmentID) {
		return false
	}
	if b.Period == PeriodCustom && !b.inWindow(e.Timestamp) {
		return false
	}
	return true
}

func (b *Budget) inWindow(t time.Time) bool {
	return !t.Before(b.PeriodStart) && t.Before(b.PeriodEnd)
}

// HasReached reports whether level was already triggered this period.
func (b *Budget) HasReached(level Level) bool {
	return slices.Contains(b.Reached, level)
}

// MarkCrossed records every level whose threshold the current utilization
// has reached but that was not yet reached this period. Reaching maximum
// sets StatusExceeded. It returns the newly reached levels in order.
func (b *Budget) MarkCrossed() []Level {
	var crossed []Level
	for _, level := range Levels() {
		if b.HasReached(level) || b.UtilizationPercent < b.Thresholds.For(level) {
			continue
		}
		b.Reached = append(b.Reached, level)
		if level == LevelMaximum {
			b.Status = StatusExceeded
		}
		crossed = append(crossed, level)
	}
	return crossed
}

// Clone returns a deep copy.
func (b *Budget) Clone() *Budget {
	if b == nil {
		return nil
	}
	c := *b
	c.Categories = slices.Clone(b.Categories)
	c.Services = slices.Clone(b.Services)
	c.Reached = slices.Clone(b.Reached)
	return &c
}

func matchesScope(categories []costs.Category, services []string, departmentID string,
	category costs.Category, service, entryDepartment string) bool {
	if !slices.Contains(categories, category) {
		return false
	}
	if len(services) > 0 && !slices.Contains(services, service) {
		return false
	}
	if departmentID != "" && departmentID != entryDepartment {
		return false
	}
	return true
}

// Store persists budgets. Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new budget, or returns ErrDuplicateBudget.
	Create(ctx context.Context, b *Budget) error

	// Get returns a budget by id, or ErrBudgetNotFound.
	Get(ctx context.Context, id string) (*Budget, error)

	// List returns every budget ordered by creation time, then id.
	List(ctx context.Context) ([]*Budget, error)

	// AddSpend increments spent_usd by delta, recomputes utilization from
	// the stored values and marks crossed thresholds (see MarkCrossed), all
	// as one atomic operation. It returns the updated budget and the levels
	// this call newly reached; concurrent callers never both see the same
	// level.
	AddSpend(ctx context.Context, id string, delta float64, at time.Time) (*Budget, []Level, error)

	// Reset writes b's period bounds, spend, utilization, status and reached
	// levels if the stored period still starts at prevStart. It reports
	// false when another writer already moved the period on.
	Reset(ctx context.Context, b *Budget, prevStart time.Time) (bool, error)

	// Close releases resources held by the store.
	Close() error
}
