package budget

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
)

// Spec is the caller-supplied definition of a new budget.
type Spec struct {
	// ID is optional. A UUID is generated when empty.
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name"`
	Period       Period           `json:"period"`
	Start        time.Time        `json:"start,omitempty"`
	End          time.Time        `json:"end,omitempty"`
	BudgetUSD    float64          `json:"budget_usd"`
	Categories   []costs.Category `json:"categories"`
	Services     []string         `json:"services,omitempty"`
	DepartmentID string           `json:"department_id,omitempty"`
	Thresholds   *Thresholds      `json:"thresholds,omitempty"`
	AutoActions  AutoActions      `json:"auto_actions"`
}

// Validate checks the spec. Unknown auto-actions are not rejected here;
// the enforcer logs them as configuration warnings.
func (s *Spec) Validate() error {
	var problems []string

	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !s.Period.Valid() {
		problems = append(problems, fmt.Sprintf("period must be one of daily, weekly, monthly, custom (got %q)", s.Period))
	}
	if s.Period == PeriodCustom && (s.Start.IsZero() || !s.End.After(s.Start)) {
		problems = append(problems, "custom period requires start before end")
	}
	if s.BudgetUSD <= 0 {
		problems = append(problems, "budget_usd must be positive")
	}
	if len(s.Categories) == 0 {
		problems = append(problems, "at least one category is required")
	}
	for _, c := range s.Categories {
		if !c.Valid() {
			problems = append(problems, fmt.Sprintf("unknown category %q", c))
		}
	}
	if s.Thresholds != nil {
		t := s.Thresholds
		if t.Warning <= 0 || t.Warning >= t.Critical || t.Critical > t.Maximum {
			problems = append(problems, "thresholds must satisfy 0 < warning < critical <= maximum")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// newBudget builds the initial state for a validated spec at now.
func newBudget(s Spec, now time.Time) *Budget {
	b := &Budget{
		ID:           s.ID,
		Name:         s.Name,
		Period:       s.Period,
		BudgetUSD:    s.BudgetUSD,
		Categories:   append([]costs.Category(nil), s.Categories...),
		Services:     append([]string(nil), s.Services...),
		DepartmentID: s.DepartmentID,
		Thresholds:   DefaultThresholds(),
		AutoActions:  s.AutoActions,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if b.ID == "" {
		b.ID = uuid.Must(uuid.NewV7()).String()
	}
	if s.Thresholds != nil {
		b.Thresholds = *s.Thresholds
	}
	if s.Period == PeriodCustom {
		b.PeriodStart, b.PeriodEnd = s.Start.UTC(), s.End.UTC()
	} else {
		b.PeriodStart, b.PeriodEnd = Bounds(s.Period, now)
	}
	return b
}

// SpecFromConfig converts a configured budget. Defaults are expected to
// have been applied already.
func SpecFromConfig(cfg config.BudgetConfig) Spec {
	s := Spec{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Period:       Period(cfg.Period),
		Start:        cfg.Start,
		End:          cfg.End,
		BudgetUSD:    cfg.BudgetUSD,
		Services:     cfg.Services,
		DepartmentID: cfg.DepartmentID,
		Thresholds: &Thresholds{
			Warning:  cfg.Thresholds.Warning,
			Critical: cfg.Thresholds.Critical,
			Maximum:  cfg.Thresholds.Maximum,
		},
		AutoActions: AutoActions{
			OnWarning:  Action(cfg.AutoActions.OnWarning),
			OnCritical: Action(cfg.AutoActions.OnCritical),
			OnMaximum:  Action(cfg.AutoActions.OnMaximum),
		},
	}
	for _, c := range cfg.Categories {
		s.Categories = append(s.Categories, costs.Category(c))
	}
	if s.ID == "" {
		s.ID = Slug(cfg.Name)
	}
	return s
}

// Slug lowercases name and replaces runs of other characters with '-'.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
