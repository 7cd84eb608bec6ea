package optimize

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/summary"
)

// Kind classifies a recommendation.
type Kind string

const (
	KindCaching        Kind = "caching"
	KindModelDowngrade Kind = "model_downgrade"
	KindConsolidation  Kind = "consolidation"
	KindQuota          Kind = "quota"
)

// Priority ranks how much a recommendation matters.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Optimization is one advisory recommendation.
type Optimization struct {
	ID                  string         `json:"id"`
	Kind                Kind           `json:"kind"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	Category            costs.Category `json:"category,omitempty"`
	Service             string         `json:"service,omitempty"`
	CurrentCostUSD      float64        `json:"current_cost_usd"`
	PotentialSavingsUSD float64        `json:"potential_savings_usd"`
	Priority            Priority       `json:"priority"`
}

// Rules holds the thresholds and savings shares.
type Rules struct {
	CachingMinServiceUSD float64
	CachingSavings       float64
	DowngradeSavings     float64

	ConsolidationMinServices    int
	ConsolidationMinCategoryUSD float64
	ConsolidationSavings        float64

	QuotaMinTotalUSD float64
	QuotaSavings     float64
}

// DefaultRules returns the built-in heuristics.
func DefaultRules() Rules {
	return Rules{
		CachingMinServiceUSD:        20,
		CachingSavings:              0.30,
		DowngradeSavings:            0.40,
		ConsolidationMinServices:    3,
		ConsolidationMinCategoryUSD: 50,
		ConsolidationSavings:        0.15,
		QuotaMinTotalUSD:            100,
		QuotaSavings:                0.10,
	}
}

// Advisor produces recommendations from summaries.
type Advisor struct {
	rules Rules
}

// NewAdvisor creates an advisor with the default rules.
func NewAdvisor() *Advisor {
	return &Advisor{rules: DefaultRules()}
}

// NewAdvisorWithRules creates an advisor with custom rules.
func NewAdvisorWithRules(r Rules) *Advisor {
	return &Advisor{rules: r}
}

// Recommend returns recommendations for s sorted by potential savings
// descending, ties broken by id. A nil summary yields none.
func (a *Advisor) Recommend(s *summary.Summary) []Optimization {
	out := []Optimization{}
	if s == nil {
		return out
	}
	r := a.rules

	llm := s.ServicesByCategory[costs.CategoryLLMAPI]
	for service, spend := range s.ByService {
		if spend <= r.CachingMinServiceUSD {
			continue
		}
		out = append(out, Optimization{
			ID:    "caching:" + service,
			Kind:  KindCaching,
			Title: fmt.Sprintf("Cache or reduce calls to %s", service),
			Description: fmt.Sprintf("%s cost $%.2f in this period. Caching repeated results or lowering result limits could save about %.0f%%.",
				service, spend, r.CachingSavings*100),
			Service:             service,
			CurrentCostUSD:      spend,
			PotentialSavingsUSD: spend * r.CachingSavings,
			Priority:            priorityFor(spend, s.TotalCostUSD),
		})

		if _, ok := llm[service]; ok {
			out = append(out, Optimization{
				ID:    "model_downgrade:" + service,
				Kind:  KindModelDowngrade,
				Title: fmt.Sprintf("Route simple %s requests to a smaller model", service),
				Description: fmt.Sprintf("LLM spend on %s was $%.2f. Sending routine prompts to a cheaper model tier could save about %.0f%%.",
					service, spend, r.DowngradeSavings*100),
				Category:            costs.CategoryLLMAPI,
				Service:             service,
				CurrentCostUSD:      spend,
				PotentialSavingsUSD: spend * r.DowngradeSavings,
				Priority:            priorityFor(spend, s.TotalCostUSD),
			})
		}
	}

	for category, spend := range s.ByCategory {
		services := s.ServicesByCategory[category]
		if len(services) < r.ConsolidationMinServices || spend <= r.ConsolidationMinCategoryUSD {
			continue
		}
		names := make([]string, 0, len(services))
		for name := range services {
			names = append(names, name)
		}
		slices.Sort(names)
		out = append(out, Optimization{
			ID:    "consolidation:" + string(category),
			Kind:  KindConsolidation,
			Title: fmt.Sprintf("Consolidate %s providers", category),
			Description: fmt.Sprintf("%d services (%s) share $%.2f of %s spend. Standardising on fewer providers could save about %.0f%%.",
				len(names), strings.Join(names, ", "), spend, category, r.ConsolidationSavings*100),
			Category:            category,
			CurrentCostUSD:      spend,
			PotentialSavingsUSD: spend * r.ConsolidationSavings,
			Priority:            priorityFor(spend, s.TotalCostUSD),
		})
	}

	if s.TotalCostUSD > r.QuotaMinTotalUSD {
		out = append(out, Optimization{
			ID:    "quota:total",
			Kind:  KindQuota,
			Title: "Set spending quotas",
			Description: fmt.Sprintf("Total spend reached $%.2f. Per-agent or per-department quotas could save about %.0f%%.",
				s.TotalCostUSD, r.QuotaSavings*100),
			CurrentCostUSD:      s.TotalCostUSD,
			PotentialSavingsUSD: s.TotalCostUSD * r.QuotaSavings,
			Priority:            PriorityHigh,
		})
	}

	slices.SortFunc(out, func(a, b Optimization) int {
		if c := cmp.Compare(b.PotentialSavingsUSD, a.PotentialSavingsUSD); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// TotalSavings sums the potential savings of recommendations.
func TotalSavings(opts []Optimization) float64 {
	var total float64
	for _, o := range opts {
		total += o.PotentialSavingsUSD
	}
	return total
}

// priorityFor ranks spend by its share of the total.
func priorityFor(spend, total float64) Priority {
	if total <= 0 {
		return PriorityLow
	}
	switch share := spend / total; {
	case share >= 0.5:
		return PriorityHigh
	case share >= 0.2:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
