package metrics

import "github.com/prometheus/client_golang/prometheus"

// BudgetMetrics tracks budget state and enforcement.
//
// Metrics:
//   - meter_budget_utilization_percent: current utilization per budget
//   - meter_budget_actions_total: auto-actions taken
//   - meter_budget_unknown_actions_total: auto-actions with no handler
type BudgetMetrics struct {
	utilization    *prometheus.GaugeVec
	actions        *prometheus.CounterVec
	unknownActions *prometheus.CounterVec
}

// NewBudgetMetrics creates and registers budget metrics.
func NewBudgetMetrics(namespace string, registry *prometheus.Registry) *BudgetMetrics {
	bm := &BudgetMetrics{
		utilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_utilization_percent",
				Help:      "Budget utilization as a percentage of the budget",
			},
			[]string{"budget"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_actions_total",
				Help:      "Budget auto-actions taken by threshold level",
			},
			[]string{"budget", "action", "level"},
		),
		unknownActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_unknown_actions_total",
				Help:      "Budget auto-actions skipped because no handler exists",
			},
			[]string{"budget"},
		),
	}

	registry.MustRegister(bm.utilization, bm.actions, bm.unknownActions)
	return bm
}
