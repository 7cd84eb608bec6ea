package pricing

import (
	"fmt"
	"strings"
	"sync"

	"mercator-hq/meter/pkg/costs"
)

// Calculator prices consumption against a pricing table.
// It is thread-safe and supports hot-reload of the table.
type Calculator struct {
	// table is the active pricing table
	table Table

	// mu protects table for concurrent access
	mu sync.RWMutex
}

// NewCalculator creates a calculator over a copy of the given table.
func NewCalculator(table Table) *Calculator {
	return &Calculator{table: table.Clone()}
}

// UpdatePricing swaps the active table (hot-reload support).
// In-flight calculations finish against the table they started with.
func (c *Calculator) UpdatePricing(table Table) {
	table = table.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.table = table
}

// Table returns a copy of the active table.
func (c *Calculator) Table() Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.table.Clone()
}

// Descriptor returns the descriptor for serviceID, if present.
func (c *Calculator) Descriptor(serviceID string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.table.Services[serviceID]
	return d, ok
}

// CalculateServiceCost prices consumption for a service. Unknown services
// are priced with the table's fallback; this never fails.
func (c *Calculator) CalculateServiceCost(serviceID string, usage costs.Consumption) Result {
	c.mu.RLock()
	d, ok := c.table.Services[serviceID]
	fallback := c.table.Default
	c.mu.RUnlock()

	if !ok {
		return fallbackCost(serviceID, usage, fallback)
	}
	return priceDescriptor(serviceID, d, usage)
}

// CalculateLLMCost prices a completion for a provider and model.
//
// The model is resolved by exact match first, then by the longest
// descriptor name that prefixes it ("gpt-4-0613" resolves to "gpt-4"),
// then by the fallback token rates.
func (c *Calculator) CalculateLLMCost(provider, model string, inputTokens, outputTokens int64) Result {
	c.mu.RLock()
	id, d, ok := c.lookupModelLocked(provider, model)
	fallback := c.table.Default
	c.mu.RUnlock()

	usage := costs.Consumption{InputTokens: inputTokens, OutputTokens: outputTokens}
	if !ok {
		cost := tokenCost(inputTokens, fallback.InputPer1K) + tokenCost(outputTokens, fallback.OutputPer1K)
		return Result{
			Cost: cost,
			Breakdown: fmt.Sprintf("default pricing (no descriptor for %q): %s = $%.6f",
				provider+"/"+model, tokenBreakdown(usage, fallback.InputPer1K, fallback.OutputPer1K), cost),
			Model:    ModelFallback,
			Fallback: true,
		}
	}
	return priceDescriptor(id, d, usage)
}

// lookupModelLocked resolves a per_token descriptor for a model.
// Caller must hold read lock.
func (c *Calculator) lookupModelLocked(provider, model string) (string, Descriptor, bool) {
	if d, ok := c.table.Services[model]; ok && d.Model == ModelPerToken && providerMatches(d, provider) {
		return model, d, true
	}

	var (
		bestID string
		best   Descriptor
	)
	for id, d := range c.table.Services {
		if d.Model != ModelPerToken || !providerMatches(d, provider) {
			continue
		}
		if strings.HasPrefix(model, id) && len(id) > len(bestID) {
			bestID, best = id, d
		}
	}
	return bestID, best, bestID != ""
}

func providerMatches(d Descriptor, provider string) bool {
	return provider == "" || d.Provider == "" || strings.EqualFold(d.Provider, provider)
}

func priceDescriptor(serviceID string, d Descriptor, usage costs.Consumption) Result {
	label := serviceID
	if d.Name != "" {
		label = d.Name
	}

	switch d.Model {
	case ModelPerCall:
		calls := usage.Executions
		if calls <= 0 {
			calls = 1
		}
		cost := float64(calls) * d.CostPerCall
		return Result{
			Cost:      cost,
			Breakdown: fmt.Sprintf("%s per_call: %d call(s) @ $%.4f = $%.6f", label, calls, d.CostPerCall, cost),
			Model:     d.Model,
		}

	case ModelPerToken:
		cost := tokenCost(usage.InputTokens, d.InputPer1K) + tokenCost(usage.OutputTokens, d.OutputPer1K)
		return Result{
			Cost:      cost,
			Breakdown: fmt.Sprintf("%s per_token: %s = $%.6f", label, tokenBreakdown(usage, d.InputPer1K, d.OutputPer1K), cost),
			Model:     d.Model,
		}

	case ModelPerUnit:
		qty := quantity(usage, d.Dimension)
		cost := qty * d.UnitCost
		return Result{
			Cost:      cost,
			Breakdown: fmt.Sprintf("%s per_unit: %g %s @ $%.4f = $%.6f", label, qty, d.Dimension, d.UnitCost, cost),
			Model:     d.Model,
		}

	case ModelTieredSubscription:
		qty := quantity(usage, d.Dimension)
		cost := d.BaseFee + calculateTieredCost(qty, d.Tiers)
		return Result{
			Cost: cost,
			Breakdown: fmt.Sprintf("%s tiered_subscription: base $%.4f + %g %s across %d tier(s) = $%.6f",
				label, d.BaseFee, qty, d.Dimension, len(d.Tiers), cost),
			Model: d.Model,
		}
	}

	// A descriptor that slipped past validation still must not block billing.
	return Result{
		Cost:      0,
		Breakdown: fmt.Sprintf("%s: unsupported pricing model %q, recorded at $0", label, d.Model),
		Model:     d.Model,
		Fallback:  true,
	}
}

func fallbackCost(serviceID string, usage costs.Consumption, f Fallback) Result {
	cost := f.Fixed + float64(usage.Results)*f.PerResult + usage.Minutes*f.PerMinute
	return Result{
		Cost: cost,
		Breakdown: fmt.Sprintf("default pricing (no descriptor for %q): $%.4f fixed + %d results @ $%.4f + %g minutes @ $%.4f = $%.6f",
			serviceID, f.Fixed, usage.Results, f.PerResult, usage.Minutes, f.PerMinute, cost),
		Model:    ModelFallback,
		Fallback: true,
	}
}

func quantity(usage costs.Consumption, dim Dimension) float64 {
	switch dim {
	case DimensionResults:
		return float64(usage.Results)
	case DimensionMinutes:
		return usage.Minutes
	case DimensionExecutions:
		return float64(usage.Executions)
	case DimensionUnits:
		return float64(usage.Units)
	}
	return 0
}

func tokenBreakdown(usage costs.Consumption, inRate, outRate float64) string {
	return fmt.Sprintf("%d input tokens @ $%.5f/1K + %d output tokens @ $%.5f/1K",
		usage.InputTokens, inRate, usage.OutputTokens, outRate)
}

// tokenCost calculates the cost for a given number of tokens.
// costPer1K is the cost per 1000 tokens in USD.
func tokenCost(tokens int64, costPer1K float64) float64 {
	if tokens <= 0 {
		return 0.0
	}

	return (float64(tokens) / 1000.0) * costPer1K
}
