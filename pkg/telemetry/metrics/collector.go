package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
)

// OtherLabel replaces label values once a cardinality limit is reached.
const OtherLabel = "other"

// Failure stages for RecordFailure.
const (
	StagePersist = "persist"
	StageBudget  = "budget"
	StageAlert   = "alert"
)

// Collector owns every Prometheus metric of the meter service. All methods
// are safe to call on a nil *Collector, which records nothing.
type Collector struct {
	registry *prometheus.Registry

	costMetrics    *CostMetrics
	budgetMetrics  *BudgetMetrics
	alertMetrics   *AlertMetrics
	requestMetrics *RequestMetrics

	// Service names are caller-supplied free text.
	services *CardinalityLimiter
}

// NewCollector creates a collector registered on registry. If registry is
// nil a fresh registry is created. It returns nil when metrics are disabled.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg != nil && !cfg.IsEnabled() {
		return nil
	}
	namespace := config.DefaultMetricsNamespace
	if cfg != nil && cfg.Namespace != "" {
		namespace = cfg.Namespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Collector{
		registry:       registry,
		costMetrics:    NewCostMetrics(namespace, registry),
		budgetMetrics:  NewBudgetMetrics(namespace, registry),
		alertMetrics:   NewAlertMetrics(namespace, registry),
		requestMetrics: NewRequestMetrics(namespace, registry),
		services:       NewCardinalityLimiter(500),
	}
}

// RecordEntry records a persisted cost entry.
func (c *Collector) RecordEntry(e *costs.Entry) {
	if c == nil {
		return
	}
	service := e.Service
	if !c.services.Allow(service) {
		service = OtherLabel
	}
	c.costMetrics.RecordEntry(string(e.Category), service, string(e.Tier), e.CostUSD)
}

// RecordFailure counts a failed recording stage.
func (c *Collector) RecordFailure(stage string) {
	if c == nil {
		return
	}
	c.costMetrics.failures.WithLabelValues(stage).Inc()
}

// SetBudgetUtilization publishes a budget's current utilization.
func (c *Collector) SetBudgetUtilization(budgetID string, percent float64) {
	if c == nil {
		return
	}
	c.budgetMetrics.utilization.WithLabelValues(budgetID).Set(percent)
}

// RecordBudgetAction counts an auto-action taken at a threshold level.
func (c *Collector) RecordBudgetAction(budgetID, action, level string) {
	if c == nil {
		return
	}
	c.budgetMetrics.actions.WithLabelValues(budgetID, action, level).Inc()
}

// RecordUnknownAction counts auto-action values no handler exists for.
func (c *Collector) RecordUnknownAction(budgetID string) {
	if c == nil {
		return
	}
	c.budgetMetrics.unknownActions.WithLabelValues(budgetID).Inc()
}

// RecordAlertFired counts a fired alert.
func (c *Collector) RecordAlertFired(alertID, severity string) {
	if c == nil {
		return
	}
	c.alertMetrics.fired.WithLabelValues(alertID, severity).Inc()
}

// RecordAlertSuppressed counts an alert that matched but did not fire.
func (c *Collector) RecordAlertSuppressed(alertID, reason string) {
	if c == nil {
		return
	}
	c.alertMetrics.suppressed.WithLabelValues(alertID, reason).Inc()
}

// RecordNotification counts a delivery attempt. result is "success" or
// "failure".
func (c *Collector) RecordNotification(channel, result string) {
	if c == nil {
		return
	}
	c.alertMetrics.notifications.WithLabelValues(channel, result).Inc()
}

// RecordHTTPRequest records one API request.
func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestMetrics.Record(route, method, status, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CardinalityLimiter caps the number of distinct values a label may take.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label. Known values are
// always allowed; new values are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
