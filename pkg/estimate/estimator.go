package estimate

import (
	"fmt"
	"log/slog"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/estimate/tokens"
	"mercator-hq/meter/pkg/pricing"
)

// Defaults applied when a caller leaves a dimension unset.
const (
	DefaultToolResults       = 10
	DefaultToolMinutes       = 1.0
	DefaultInputTokens       = 1000
	DefaultOutputTokens      = 500
	DefaultWorkflowRuns      = 1
	DefaultWorkflowSteps     = 5
	DefaultResearchSources   = 10
	DefaultResearchDepth     = DepthStandard
	DefaultResearchProvider  = "openai"
	DefaultResearchModel     = "gpt-4o"
	DefaultInfraResource     = "compute"
	DefaultInfraUnits        = 1
	researchSearchService    = "perplexity-research"
	highCostWarningThreshold = 10.0
)

// Warning thresholds. A value strictly greater than the threshold warns.
const (
	MaxTokensBeforeWarning      = 50000
	MaxResultsBeforeWarning     = 1000
	MaxToolMinutesBeforeWarning = 30
	MaxExecutionsBeforeWarning  = 1000
	MaxSourcesBeforeWarning     = 50
)

// researchTokens is the LLM synthesis load per source for each depth.
var researchTokens = map[ResearchDepth]struct{ input, output int64 }{
	DepthQuick:      {500, 100},
	DepthStandard:   {1500, 300},
	DepthDeep:       {3000, 600},
	DepthExhaustive: {6000, 1200},
}

// Estimator projects operation costs from the active pricing table.
type Estimator struct {
	calc   *pricing.Calculator
	tokens *tokens.Counter
	logger *slog.Logger
}

// NewEstimator creates an estimator backed by calc.
func NewEstimator(calc *pricing.Calculator, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		calc:   calc,
		tokens: tokens.NewCounter(nil),
		logger: logger.With("component", "estimate.estimator"),
	}
}

// EstimateTool estimates a scraping or search tool call.
func (e *Estimator) EstimateTool(p ToolParams) Estimate {
	results, resultsSet := p.EstimatedResults, p.EstimatedResults > 0
	if !resultsSet {
		results = DefaultToolResults
	}
	minutes, minutesSet := p.EstimatedMinutes, p.EstimatedMinutes > 0
	if !minutesSet {
		minutes = DefaultToolMinutes
	}

	res := e.calc.CalculateServiceCost(p.ServiceID, costs.Consumption{Results: results, Minutes: minutes})

	est := newEstimate(res, resultsSet && minutesSet)
	est.Factors = []string{
		"service: " + p.ServiceID,
		factor("results", results, resultsSet),
		factor("minutes", minutes, minutesSet),
	}
	if results > MaxResultsBeforeWarning {
		est.Warnings = append(est.Warnings,
			fmt.Sprintf("Large result set (%d results) - consider narrowing the query", results))
	}
	if minutes > MaxToolMinutesBeforeWarning {
		est.Warnings = append(est.Warnings,
			fmt.Sprintf("Long-running tool execution (%g minutes)", minutes))
	}
	return e.finish(est, "tool", res)
}

// EstimateLLM estimates a completion call.
func (e *Estimator) EstimateLLM(p LLMParams) Estimate {
	in, inSet := p.EstimatedInputTokens, p.EstimatedInputTokens > 0
	counted := !inSet && len(p.Messages) > 0
	switch {
	case counted:
		in = e.tokens.CountMessages(p.Messages, p.Model)
	case !inSet:
		in = DefaultInputTokens
	}
	out, outSet := p.EstimatedOutputTokens, p.EstimatedOutputTokens > 0
	switch {
	case !outSet && counted:
		out = tokens.CompletionTokens(in)
	case !outSet:
		out = DefaultOutputTokens
	}

	res := e.calc.CalculateLLMCost(p.Provider, p.Model, in, out)

	est := newEstimate(res, (inSet || counted) && outSet)
	inFactor := factor("input tokens", in, inSet)
	if counted {
		inFactor = fmt.Sprintf("input tokens: %d (counted from %d messages)", in, len(p.Messages))
	}
	est.Factors = []string{
		fmt.Sprintf("model: %s/%s", p.Provider, p.Model),
		inFactor,
		factor("output tokens", out, outSet),
	}
	if total := in + out; total > MaxTokensBeforeWarning {
		est.Warnings = append(est.Warnings,
			fmt.Sprintf("High token count (%d tokens) - consider chunking the input or using a smaller model", total))
	}
	return e.finish(est, "llm", res)
}

// EstimateOpenAI is EstimateLLM with the provider fixed to openai.
func (e *Estimator) EstimateOpenAI(p LLMParams) Estimate {
	p.Provider = "openai"
	return e.EstimateLLM(p)
}

// EstimateWorkflow estimates workflow executions. Zapier bills every step
// as a task; n8n bills per execution.
func (e *Estimator) EstimateWorkflow(p WorkflowParams) Estimate {
	runs, runsSet := p.Executions, p.Executions > 0
	if !runsSet {
		runs = DefaultWorkflowRuns
	}
	steps, stepsSet := p.StepsPerExecution, p.StepsPerExecution > 0
	if !stepsSet {
		steps = DefaultWorkflowSteps
	}

	billed := runs
	if p.Platform == PlatformZapier {
		billed = runs * steps
	}

	res := e.calc.CalculateServiceCost(string(p.Platform), costs.Consumption{Executions: billed})

	est := newEstimate(res, runsSet && stepsSet)
	est.Factors = []string{
		"platform: " + string(p.Platform),
		factor("executions", runs, runsSet),
		factor("steps per execution", steps, stepsSet),
		fmt.Sprintf("billed units: %d", billed),
	}
	if runs > MaxExecutionsBeforeWarning {
		est.Warnings = append(est.Warnings,
			fmt.Sprintf("High execution volume (%d runs) - consider batching", runs))
	}
	return e.finish(est, "workflow", res)
}

// EstimateResearch estimates a research session: one search call per source
// plus LLM synthesis sized by depth.
func (e *Estimator) EstimateResearch(p ResearchParams) Estimate {
	depth, depthSet := p.Depth, p.Depth != ""
	load, known := researchTokens[depth]
	if !depthSet || !known {
		if depthSet {
			e.logger.Warn("unknown research depth, using default", "depth", depth, "default", DefaultResearchDepth)
		}
		depth, depthSet = DefaultResearchDepth, false
		load = researchTokens[depth]
	}
	sources, sourcesSet := p.Sources, p.Sources > 0
	if !sourcesSet {
		sources = DefaultResearchSources
	}
	provider, model := p.Provider, p.Model
	if model == "" {
		provider, model = DefaultResearchProvider, DefaultResearchModel
	}

	search := e.calc.CalculateServiceCost(researchSearchService, costs.Consumption{Executions: sources})
	synthesis := e.calc.CalculateLLMCost(provider, model, sources*load.input, sources*load.output)

	combined := pricing.Result{
		Cost:      search.Cost + synthesis.Cost,
		Breakdown: search.Breakdown + "; " + synthesis.Breakdown,
		Fallback:  search.Fallback || synthesis.Fallback,
	}

	est := newEstimate(combined, depthSet && sourcesSet)
	est.Factors = []string{
		factor("depth", depth, depthSet),
		factor("sources", sources, sourcesSet),
		fmt.Sprintf("synthesis model: %s/%s", provider, model),
	}
	if depth == DepthExhaustive {
		est.Warnings = append(est.Warnings,
			"Exhaustive research depth selected - expect long runtime and high cost")
	}
	if sources > MaxSourcesBeforeWarning {
		est.Warnings = append(est.Warnings,
			fmt.Sprintf("Large number of sources (%d) - consider deep depth with fewer sources", sources))
	}
	return e.finish(est, "research", combined)
}

// EstimateInfrastructure estimates infrastructure consumption.
func (e *Estimator) EstimateInfrastructure(p InfrastructureParams) Estimate {
	resource, resourceSet := p.Resource, p.Resource != ""
	if !resourceSet {
		resource = DefaultInfraResource
	}

	usage := costs.Consumption{Units: p.Units, Minutes: p.Minutes}
	quantitySet := p.Units > 0 || p.Minutes > 0
	if !quantitySet {
		usage.Units = DefaultInfraUnits
		usage.Minutes = DefaultInfraUnits
	}

	res := e.calc.CalculateServiceCost(resource, usage)

	est := newEstimate(res, resourceSet && quantitySet)
	est.Factors = []string{
		factor("resource", resource, resourceSet),
		factor("units", usage.Units, quantitySet),
		factor("minutes", usage.Minutes, quantitySet),
	}
	return e.finish(est, "infrastructure", res)
}

func newEstimate(res pricing.Result, allSupplied bool) Estimate {
	confidence := ConfidenceMedium
	switch {
	case res.Fallback:
		confidence = ConfidenceLow
	case allSupplied:
		confidence = ConfidenceHigh
	}
	return Estimate{
		EstimatedCost: res.Cost,
		CostTier:      costs.CalculateTier(res.Cost),
		CostBreakdown: res.Breakdown,
		Confidence:    confidence,
	}
}

func (e *Estimator) finish(est Estimate, surface string, res pricing.Result) Estimate {
	if est.EstimatedCost > highCostWarningThreshold {
		est.Warnings = append(est.Warnings, "Estimated cost exceeds $10.00")
	}
	if res.Fallback {
		e.logger.Debug("estimate used default pricing",
			"surface", surface,
			"breakdown", res.Breakdown,
		)
	}
	return est
}

func factor[T any](name string, v T, supplied bool) string {
	if supplied {
		return fmt.Sprintf("%s: %v", name, v)
	}
	return fmt.Sprintf("%s: %v (default)", name, v)
}

// Aggregate sums estimates. The aggregate tier is derived from the total,
// confidence is the lowest member confidence and warnings are deduplicated
// in first-seen order.
func Aggregate(estimates ...Estimate) AggregateEstimate {
	agg := AggregateEstimate{
		Confidence: ConfidenceHigh,
		Estimates:  estimates,
	}
	seen := make(map[string]bool)
	for _, est := range estimates {
		agg.TotalCost += est.EstimatedCost
		if est.Confidence.rank() < agg.Confidence.rank() {
			agg.Confidence = est.Confidence
		}
		for _, w := range est.Warnings {
			if !seen[w] {
				seen[w] = true
				agg.Warnings = append(agg.Warnings, w)
			}
		}
	}
	agg.CostTier = costs.CalculateTier(agg.TotalCost)
	return agg
}
