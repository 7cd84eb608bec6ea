package estimate

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/estimate/tokens"
	"mercator-hq/meter/pkg/pricing"
)

func newTestEstimator() *Estimator {
	return NewEstimator(pricing.NewCalculator(pricing.DefaultTable()), nil)
}

func hasWarning(est Estimate, prefix string) bool {
	for _, w := range est.Warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

func TestEstimateOpenAI_Deterministic(t *testing.T) {
	e := newTestEstimator()
	table := pricing.DefaultTable()
	gpt4 := table.Services["gpt-4"]

	want := (1000.0/1000.0)*gpt4.InputPer1K + (500.0/1000.0)*gpt4.OutputPer1K
	params := LLMParams{Model: "gpt-4", EstimatedInputTokens: 1000, EstimatedOutputTokens: 500}

	first := e.EstimateOpenAI(params)
	for i := 0; i < 10; i++ {
		got := e.EstimateOpenAI(params)
		if got.EstimatedCost != want {
			t.Fatalf("Expected cost %v, got %v", want, got.EstimatedCost)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("Expected identical estimates across calls, got %+v and %+v", first, got)
		}
	}

	if first.Confidence != ConfidenceHigh {
		t.Errorf("Expected high confidence, got %s", first.Confidence)
	}
	if first.CostTier != costs.TierLow {
		t.Errorf("Expected low tier, got %s", first.CostTier)
	}
}

func TestEstimateLLM_Confidence(t *testing.T) {
	e := newTestEstimator()

	tests := []struct {
		name   string
		params LLMParams
		want   Confidence
	}{
		{"both supplied", LLMParams{Provider: "openai", Model: "gpt-4", EstimatedInputTokens: 10, EstimatedOutputTokens: 10}, ConfidenceHigh},
		{"output defaulted", LLMParams{Provider: "openai", Model: "gpt-4", EstimatedInputTokens: 10}, ConfidenceMedium},
		{"both defaulted", LLMParams{Provider: "openai", Model: "gpt-4"}, ConfidenceMedium},
		{"unknown model", LLMParams{Provider: "openai", Model: "mystery", EstimatedInputTokens: 10, EstimatedOutputTokens: 10}, ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EstimateLLM(tt.params).Confidence; got != tt.want {
				t.Errorf("Expected confidence %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEstimateLLM_CountsMessages(t *testing.T) {
	e := newTestEstimator()
	gpt4 := pricing.DefaultTable().Services["gpt-4"]

	params := LLMParams{
		Model: "gpt-4",
		Messages: []tokens.Message{
			{Role: "system", Content: strings.Repeat("a", 400)},
			{Role: "user", Content: strings.Repeat("b", 800)},
		},
	}
	// 100 + 200 content, 2*4 message overhead, 3 conversation overhead
	const wantIn = 311
	const wantOut = 103

	est := e.EstimateOpenAI(params)
	want := (wantIn/1000.0)*gpt4.InputPer1K + (wantOut/1000.0)*gpt4.OutputPer1K
	if math.Abs(est.EstimatedCost-want) > 1e-12 {
		t.Errorf("Expected cost %v, got %v", want, est.EstimatedCost)
	}
	if est.Factors[1] != "input tokens: 311 (counted from 2 messages)" {
		t.Errorf("Expected counted input factor, got %q", est.Factors[1])
	}
	if est.Confidence != ConfidenceMedium {
		t.Errorf("Expected medium confidence without output estimate, got %s", est.Confidence)
	}

	params.EstimatedOutputTokens = 50
	if est := e.EstimateOpenAI(params); est.Confidence != ConfidenceHigh {
		t.Errorf("Expected high confidence with counted input and given output, got %s", est.Confidence)
	}

	params.EstimatedInputTokens = 10
	if est := e.EstimateOpenAI(params); est.Factors[1] != "input tokens: 10" {
		t.Errorf("Expected explicit input tokens to win, got %q", est.Factors[1])
	}
}

func TestEstimateLLM_TokenWarningBoundary(t *testing.T) {
	e := newTestEstimator()

	atLimit := e.EstimateLLM(LLMParams{Provider: "openai", Model: "gpt-3.5-turbo", EstimatedInputTokens: 40000, EstimatedOutputTokens: 10000})
	if hasWarning(atLimit, "High token count") {
		t.Errorf("Expected no warning at exactly 50000 tokens, got %v", atLimit.Warnings)
	}

	overLimit := e.EstimateLLM(LLMParams{Provider: "openai", Model: "gpt-3.5-turbo", EstimatedInputTokens: 40001, EstimatedOutputTokens: 10000})
	want := "High token count (50001 tokens) - consider chunking the input or using a smaller model"
	if len(overLimit.Warnings) != 1 || overLimit.Warnings[0] != want {
		t.Errorf("Expected warning %q, got %v", want, overLimit.Warnings)
	}
}

func TestEstimateResearch_Warnings(t *testing.T) {
	e := newTestEstimator()

	exhaustive := e.EstimateResearch(ResearchParams{Depth: DepthExhaustive, Sources: 5})
	if !hasWarning(exhaustive, "Exhaustive research depth selected") {
		t.Errorf("Expected exhaustive depth warning, got %v", exhaustive.Warnings)
	}

	deep := e.EstimateResearch(ResearchParams{Depth: DepthDeep, Sources: 5})
	if hasWarning(deep, "Exhaustive") {
		t.Errorf("Expected no exhaustive warning for deep depth, got %v", deep.Warnings)
	}

	if got := e.EstimateResearch(ResearchParams{Depth: DepthQuick, Sources: 50}); hasWarning(got, "Large number of sources") {
		t.Errorf("Expected no sources warning at 50, got %v", got.Warnings)
	}
	if got := e.EstimateResearch(ResearchParams{Depth: DepthQuick, Sources: 51}); !hasWarning(got, "Large number of sources (51)") {
		t.Errorf("Expected sources warning at 51, got %v", got.Warnings)
	}
}

func TestEstimateResearch_Cost(t *testing.T) {
	e := newTestEstimator()

	got := e.EstimateResearch(ResearchParams{Depth: DepthQuick, Sources: 2})
	// 2 searches @ 0.05 + gpt-4o synthesis of 1000 input and 200 output tokens.
	want := 2*0.05 + 1.0*0.005 + 0.2*0.015
	if math.Abs(got.EstimatedCost-want) > 1e-9 {
		t.Errorf("Expected cost %v, got %v", want, got.EstimatedCost)
	}
	if got.Confidence != ConfidenceHigh {
		t.Errorf("Expected high confidence, got %s", got.Confidence)
	}

	defaulted := e.EstimateResearch(ResearchParams{})
	if defaulted.Confidence != ConfidenceMedium {
		t.Errorf("Expected medium confidence with defaults, got %s", defaulted.Confidence)
	}
}

func TestEstimateTool(t *testing.T) {
	e := newTestEstimator()

	got := e.EstimateTool(ToolParams{ServiceID: "apify-web-search", EstimatedResults: 100, EstimatedMinutes: 2})
	if math.Abs(got.EstimatedCost-0.5) > 1e-9 {
		t.Errorf("Expected cost 0.5, got %v", got.EstimatedCost)
	}
	if got.Confidence != ConfidenceHigh {
		t.Errorf("Expected high confidence, got %s", got.Confidence)
	}

	if w := e.EstimateTool(ToolParams{ServiceID: "firecrawl", EstimatedResults: 1000, EstimatedMinutes: 1}); hasWarning(w, "Large result set") {
		t.Errorf("Expected no result warning at 1000, got %v", w.Warnings)
	}
	if w := e.EstimateTool(ToolParams{ServiceID: "firecrawl", EstimatedResults: 1001, EstimatedMinutes: 1}); !hasWarning(w, "Large result set (1001 results)") {
		t.Errorf("Expected result warning at 1001, got %v", w.Warnings)
	}

	if w := e.EstimateTool(ToolParams{ServiceID: "firecrawl", EstimatedResults: 1, EstimatedMinutes: 30}); hasWarning(w, "Long-running tool execution") {
		t.Errorf("Expected no duration warning at 30 minutes, got %v", w.Warnings)
	}
	if w := e.EstimateTool(ToolParams{ServiceID: "firecrawl", EstimatedResults: 1, EstimatedMinutes: 31}); !hasWarning(w, "Long-running tool execution (31 minutes)") {
		t.Errorf("Expected duration warning at 31 minutes, got %v", w.Warnings)
	}

	unknown := e.EstimateTool(ToolParams{ServiceID: "mystery"})
	if unknown.Confidence != ConfidenceLow {
		t.Errorf("Expected low confidence for fallback pricing, got %s", unknown.Confidence)
	}
}

func TestEstimateWorkflow(t *testing.T) {
	e := newTestEstimator()

	n8n := e.EstimateWorkflow(WorkflowParams{Platform: PlatformN8N, Executions: 100, StepsPerExecution: 3})
	if math.Abs(n8n.EstimatedCost-0.2) > 1e-9 {
		t.Errorf("Expected n8n cost 0.2, got %v", n8n.EstimatedCost)
	}

	// 40 runs x 5 steps = 200 tasks: 100 free, 100 @ 0.0266.
	zapier := e.EstimateWorkflow(WorkflowParams{Platform: PlatformZapier, Executions: 40, StepsPerExecution: 5})
	if math.Abs(zapier.EstimatedCost-2.66) > 1e-9 {
		t.Errorf("Expected zapier cost 2.66, got %v", zapier.EstimatedCost)
	}

	if w := e.EstimateWorkflow(WorkflowParams{Platform: PlatformN8N, Executions: 1000, StepsPerExecution: 1}); hasWarning(w, "High execution volume") {
		t.Errorf("Expected no execution warning at 1000 runs, got %v", w.Warnings)
	}
	if w := e.EstimateWorkflow(WorkflowParams{Platform: PlatformN8N, Executions: 1001, StepsPerExecution: 1}); !hasWarning(w, "High execution volume (1001 runs)") {
		t.Errorf("Expected execution warning, got %v", w.Warnings)
	}
}

func TestEstimateInfrastructure(t *testing.T) {
	e := newTestEstimator()

	got := e.EstimateInfrastructure(InfrastructureParams{Resource: "storage-gb", Units: 100})
	if math.Abs(got.EstimatedCost-2.3) > 1e-9 {
		t.Errorf("Expected cost 2.3, got %v", got.EstimatedCost)
	}
	if got.Confidence != ConfidenceHigh {
		t.Errorf("Expected high confidence, got %s", got.Confidence)
	}

	def := e.EstimateInfrastructure(InfrastructureParams{})
	if def.Confidence != ConfidenceMedium {
		t.Errorf("Expected medium confidence, got %s", def.Confidence)
	}
}

func TestEstimate_HighCostWarning(t *testing.T) {
	e := newTestEstimator()

	got := e.EstimateLLM(LLMParams{Provider: "anthropic", Model: "claude-3-opus", EstimatedInputTokens: 40000, EstimatedOutputTokens: 10000})
	// 40 * 0.015 + 10 * 0.075 = 1.35, below $10
	if hasWarning(got, "Estimated cost exceeds") {
		t.Errorf("Expected no high-cost warning, got %v", got.Warnings)
	}

	big := e.EstimateTool(ToolParams{ServiceID: "apify-web-search", EstimatedResults: 2001, EstimatedMinutes: 1})
	if !hasWarning(big, "Estimated cost exceeds $10.00") {
		t.Errorf("Expected high-cost warning for $%.2f, got %v", big.EstimatedCost, big.Warnings)
	}
}

func TestEstimate_HighCostWarningBoundary(t *testing.T) {
	table := pricing.DefaultTable()
	table.Services["flat-search"] = pricing.Descriptor{
		Name: "Flat Search", Model: pricing.ModelPerUnit,
		Dimension: pricing.DimensionResults, UnitCost: 0.5,
	}
	e := NewEstimator(pricing.NewCalculator(table), nil)

	atLimit := e.EstimateTool(ToolParams{ServiceID: "flat-search", EstimatedResults: 20, EstimatedMinutes: 1})
	if atLimit.EstimatedCost != 10 {
		t.Fatalf("Expected cost exactly 10, got %v", atLimit.EstimatedCost)
	}
	if hasWarning(atLimit, "Estimated cost exceeds") {
		t.Errorf("Expected no high-cost warning at exactly $10.00, got %v", atLimit.Warnings)
	}

	over := e.EstimateTool(ToolParams{ServiceID: "flat-search", EstimatedResults: 21, EstimatedMinutes: 1})
	if !hasWarning(over, "Estimated cost exceeds $10.00") {
		t.Errorf("Expected high-cost warning for $%.2f, got %v", over.EstimatedCost, over.Warnings)
	}
}

func TestAggregate(t *testing.T) {
	a := Estimate{EstimatedCost: 0.5, Confidence: ConfidenceHigh, Warnings: []string{"w1", "w2"}}
	b := Estimate{EstimatedCost: 0.7, Confidence: ConfidenceMedium, Warnings: []string{"w2", "w3"}}
	c := Estimate{EstimatedCost: 0.1, Confidence: ConfidenceHigh, Warnings: []string{"w1"}}

	agg := Aggregate(a, b, c)

	if math.Abs(agg.TotalCost-1.3) > 1e-9 {
		t.Errorf("Expected total 1.3, got %v", agg.TotalCost)
	}
	if agg.CostTier != costs.TierMedium {
		t.Errorf("Expected medium tier, got %s", agg.CostTier)
	}
	if agg.Confidence != ConfidenceMedium {
		t.Errorf("Expected medium confidence, got %s", agg.Confidence)
	}
	if want := []string{"w1", "w2", "w3"}; !reflect.DeepEqual(agg.Warnings, want) {
		t.Errorf("Expected warnings %v, got %v", want, agg.Warnings)
	}
	if len(agg.Estimates) != 3 {
		t.Errorf("Expected 3 member estimates, got %d", len(agg.Estimates))
	}
}
