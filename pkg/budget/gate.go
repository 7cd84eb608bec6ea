package budget

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/meter/pkg/costs"
)

// Verdict is the pre-flight outcome for a new operation.
type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictThrottle Verdict = "throttle"
	VerdictSuspend  Verdict = "suspend"
	VerdictBlock    Verdict = "block"
)

// severity orders verdicts so the most restrictive wins.
func (v Verdict) severity() int {
	switch v {
	case VerdictThrottle:
		return 1
	case VerdictSuspend:
		return 2
	case VerdictBlock:
		return 3
	}
	return 0
}

// Decision is returned by Gate.Decide.
type Decision struct {
	// Allowed is false for suspend and block. Throttled operations may
	// proceed after waiting RetryAfter.
	Allowed bool    `json:"allowed"`
	Verdict Verdict `json:"verdict"`

	// BudgetID is the budget whose restriction produced the verdict.
	BudgetID string `json:"budget_id,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// RetryAfter is the throttle delay, or the time left in the period for
	// a suspension. Zero for block.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Restriction is an active throttle, suspension or block on a budget scope.
type Restriction struct {
	BudgetID     string
	Verdict      Verdict
	Categories   []costs.Category
	Services     []string
	DepartmentID string
	Until        time.Time
	Reason       string
}

// Gate holds the restrictions imposed by budget auto-actions.
type Gate struct {
	mu           sync.RWMutex
	restrictions map[string]Restriction
	throttle     time.Duration
	now          func() time.Time
}

// NewGate creates a gate. throttle is the retry-after hint given to
// throttled callers.
func NewGate(throttle time.Duration) *Gate {
	if throttle <= 0 {
		throttle = 30 * time.Second
	}
	return &Gate{
		restrictions: make(map[string]Restriction),
		throttle:     throttle,
		now:          time.Now,
	}
}

// Restrict records r, replacing a less severe restriction on the same budget.
func (g *Gate) Restrict(r Restriction) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cur, ok := g.restrictions[r.BudgetID]; ok && cur.Verdict.severity() > r.Verdict.severity() {
		return
	}
	g.restrictions[r.BudgetID] = r
}

// Clear lifts any restriction on a budget.
func (g *Gate) Clear(budgetID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.restrictions, budgetID)
}

// Replace sets the restriction on budgetID to r, or lifts it when r is nil.
func (g *Gate) Replace(budgetID string, r *Restriction) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r == nil {
		delete(g.restrictions, budgetID)
		return
	}
	g.restrictions[budgetID] = *r
}

// Restrictions returns a snapshot of active restrictions.
func (g *Gate) Restrictions() []Restriction {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Restriction, 0, len(g.restrictions))
	for _, r := range g.restrictions {
		out = append(out, r)
	}
	return out
}

// Decide returns the most restrictive verdict among restrictions whose scope
// covers the draft. Expired restrictions are ignored.
func (g *Gate) Decide(d costs.Draft) Decision {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	var winner *Restriction
	for id := range g.restrictions {
		r := g.restrictions[id]
		if !r.Until.IsZero() && !now.Before(r.Until) {
			continue
		}
		if !matchesScope(r.Categories, r.Services, r.DepartmentID, d.Category, d.Service, d.Metadata.DepartmentID) {
			continue
		}
		if winner == nil || r.Verdict.severity() > winner.Verdict.severity() ||
			(r.Verdict == winner.Verdict && r.BudgetID < winner.BudgetID) {
			winner = &r
		}
	}

	if winner == nil {
		return Decision{Allowed: true, Verdict: VerdictAllow}
	}

	dec := Decision{
		Verdict:  winner.Verdict,
		BudgetID: winner.BudgetID,
		Reason:   winner.Reason,
	}
	switch winner.Verdict {
	case VerdictThrottle:
		dec.Allowed = true
		dec.RetryAfter = g.throttle
	case VerdictSuspend:
		if !winner.Until.IsZero() {
			dec.RetryAfter = winner.Until.Sub(now)
		}
	}
	return dec
}

// verdictFor maps a restricting auto-action to its verdict.
func verdictFor(a Action) (Verdict, bool) {
	switch a {
	case ActionThrottle:
		return VerdictThrottle, true
	case ActionSuspend:
		return VerdictSuspend, true
	case ActionBlock:
		return VerdictBlock, true
	}
	return "", false
}

func restrictionFor(b *Budget, v Verdict, level Level) Restriction {
	return Restriction{
		BudgetID:     b.ID,
		Verdict:      v,
		Categories:   b.Categories,
		Services:     b.Services,
		DepartmentID: b.DepartmentID,
		Until:        b.PeriodEnd,
		Reason: fmt.Sprintf("budget %q reached %s threshold (%.1f%% of $%.2f)",
			b.Name, level, b.UtilizationPercent, b.BudgetUSD),
	}
}
