package metrics

import "github.com/prometheus/client_golang/prometheus"

// CostMetrics tracks recorded spend.
//
// Metrics:
//   - meter_cost_recorded_usd_total: spend by category, service and tier
//   - meter_cost_entries_total: entry count by category and tier
//   - meter_cost_per_entry_usd: cost distribution per entry
//   - meter_record_failures_total: failed recording stages
type CostMetrics struct {
	recordedUSD *prometheus.CounterVec
	entries     *prometheus.CounterVec
	perEntry    *prometheus.HistogramVec
	failures    *prometheus.CounterVec
}

// NewCostMetrics creates and registers cost metrics with the provided registry.
func NewCostMetrics(namespace string, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		recordedUSD: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_recorded_usd_total",
				Help:      "Total recorded cost in USD",
			},
			[]string{"category", "service", "tier"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_entries_total",
				Help:      "Number of recorded cost entries",
			},
			[]string{"category", "tier"},
		),
		perEntry: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cost_per_entry_usd",
				Help:      "Cost distribution per entry in USD",
				// Bucket edges follow the tier breakpoints.
				Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 100, 1000},
			},
			[]string{"category"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "record_failures_total",
				Help:      "Failed cost recording stages",
			},
			[]string{"stage"},
		),
	}

	registry.MustRegister(cm.recordedUSD, cm.entries, cm.perEntry, cm.failures)
	return cm
}

// RecordEntry records one entry's cost.
func (cm *CostMetrics) RecordEntry(category, service, tier string, costUSD float64) {
	cm.entries.WithLabelValues(category, tier).Inc()
	cm.perEntry.WithLabelValues(category).Observe(costUSD)
	if costUSD > 0 {
		cm.recordedUSD.WithLabelValues(category, service, tier).Add(costUSD)
	}
}
