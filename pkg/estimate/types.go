package estimate

import (
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/estimate/tokens"
)

// Confidence grades how much of an estimate rests on caller-supplied input.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	}
	return 0
}

// Estimate is a pre-execution cost projection.
type Estimate struct {
	EstimatedCost float64    `json:"estimated_cost"`
	CostTier      costs.Tier `json:"cost_tier"`
	CostBreakdown string     `json:"cost_breakdown"`
	Confidence    Confidence `json:"confidence"`
	Factors       []string   `json:"factors"`
	Warnings      []string   `json:"warnings,omitempty"`
}

// ToolParams describes a scraping or search tool call.
type ToolParams struct {
	ServiceID        string  `json:"service_id"`
	EstimatedResults int64   `json:"estimated_results,omitempty"`
	EstimatedMinutes float64 `json:"estimated_minutes,omitempty"`
}

// LLMParams describes a completion call. When EstimatedInputTokens is zero
// and Messages are given, input tokens are counted from the messages.
type LLMParams struct {
	Provider              string           `json:"provider"`
	Model                 string           `json:"model"`
	EstimatedInputTokens  int64            `json:"estimated_input_tokens,omitempty"`
	EstimatedOutputTokens int64            `json:"estimated_output_tokens,omitempty"`
	Messages              []tokens.Message `json:"messages,omitempty"`
}

// WorkflowPlatform identifies a workflow automation platform.
type WorkflowPlatform string

const (
	PlatformN8N    WorkflowPlatform = "n8n"
	PlatformZapier WorkflowPlatform = "zapier"
)

// WorkflowParams describes a batch of workflow executions.
type WorkflowParams struct {
	Platform          WorkflowPlatform `json:"platform"`
	Executions        int64            `json:"executions,omitempty"`
	StepsPerExecution int64            `json:"steps_per_execution,omitempty"`
}

// ResearchDepth controls how much synthesis a research session performs.
type ResearchDepth string

const (
	DepthQuick      ResearchDepth = "quick"
	DepthStandard   ResearchDepth = "standard"
	DepthDeep       ResearchDepth = "deep"
	DepthExhaustive ResearchDepth = "exhaustive"
)

// ResearchParams describes a deep-research session.
type ResearchParams struct {
	Depth    ResearchDepth `json:"depth,omitempty"`
	Sources  int64         `json:"sources,omitempty"`
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model,omitempty"`
}

// InfrastructureParams describes infrastructure consumption such as compute
// minutes or storage units.
type InfrastructureParams struct {
	Resource string  `json:"resource,omitempty"`
	Units    int64   `json:"units,omitempty"`
	Minutes  float64 `json:"minutes,omitempty"`
}

// AggregateEstimate sums several estimates.
type AggregateEstimate struct {
	TotalCost  float64    `json:"total_cost"`
	CostTier   costs.Tier `json:"cost_tier"`
	Confidence Confidence `json:"confidence"`
	Estimates  []Estimate `json:"estimates"`
	Warnings   []string   `json:"warnings,omitempty"`
}
