package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/meter/pkg/estimate"
	"mercator-hq/meter/pkg/estimate/tokens"
)

var estimateFormat string

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the cost of an operation before running it",
	Long: `Estimate the cost of an operation from the configured pricing table.

Estimates never touch the ledger or budgets.`,
}

var estimateFlags struct {
	provider     string
	model        string
	inputTokens  int64
	outputTokens int64
	prompt       string
	serviceID    string
	results      int64
	minutes      float64
	platform     string
	executions   int64
	steps        int64
	depth        string
	sources      int64
	synthProv    string
	synthModel   string
	resource     string
	units        int64
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	estimateCmd.PersistentFlags().StringVar(&estimateFormat, "format", "text", "output format (text, json)")

	llm := &cobra.Command{
		Use:   "llm",
		Short: "Estimate an LLM completion",
		RunE: runEstimate(func(e *estimate.Estimator) estimate.Estimate {
			p := estimate.LLMParams{
				Provider:              estimateFlags.provider,
				Model:                 estimateFlags.model,
				EstimatedInputTokens:  estimateFlags.inputTokens,
				EstimatedOutputTokens: estimateFlags.outputTokens,
			}
			if estimateFlags.prompt != "" {
				p.Messages = []tokens.Message{{Role: "user", Content: estimateFlags.prompt}}
			}
			return e.EstimateLLM(p)
		}),
	}
	llm.Flags().StringVar(&estimateFlags.provider, "provider", "openai", "LLM provider")
	llm.Flags().StringVar(&estimateFlags.model, "model", "", "model name")
	llm.Flags().Int64Var(&estimateFlags.inputTokens, "input-tokens", 0, "estimated input tokens")
	llm.Flags().Int64Var(&estimateFlags.outputTokens, "output-tokens", 0, "estimated output tokens")
	llm.Flags().StringVar(&estimateFlags.prompt, "prompt", "", "prompt text to count input tokens from")

	tool := &cobra.Command{
		Use:   "tool",
		Short: "Estimate a scraping or search tool run",
		RunE: runEstimate(func(e *estimate.Estimator) estimate.Estimate {
			return e.EstimateTool(estimate.ToolParams{
				ServiceID:        estimateFlags.serviceID,
				EstimatedResults: estimateFlags.results,
				EstimatedMinutes: estimateFlags.minutes,
			})
		}),
	}
	tool.Flags().StringVar(&estimateFlags.serviceID, "service", "", "tool service id (e.g. apify, serpapi)")
	tool.Flags().Int64Var(&estimateFlags.results, "results", 0, "estimated results")
	tool.Flags().Float64Var(&estimateFlags.minutes, "minutes", 0, "estimated run minutes")

	workflow := &cobra.Command{
		Use:   "workflow",
		Short: "Estimate workflow executions",
		RunE: runEstimate(func(e *estimate.Estimator) estimate.Estimate {
			return e.EstimateWorkflow(estimate.WorkflowParams{
				Platform:          estimate.WorkflowPlatform(estimateFlags.platform),
				Executions:        estimateFlags.executions,
				StepsPerExecution: estimateFlags.steps,
			})
		}),
	}
	workflow.Flags().StringVar(&estimateFlags.platform, "platform", string(estimate.PlatformN8N), "workflow platform (n8n, zapier)")
	workflow.Flags().Int64Var(&estimateFlags.executions, "executions", 1, "number of executions")
	workflow.Flags().Int64Var(&estimateFlags.steps, "steps", 0, "steps per execution")

	research := &cobra.Command{
		Use:   "research",
		Short: "Estimate a deep-research session",
		RunE: runEstimate(func(e *estimate.Estimator) estimate.Estimate {
			return e.EstimateResearch(estimate.ResearchParams{
				Depth:    estimate.ResearchDepth(estimateFlags.depth),
				Sources:  estimateFlags.sources,
				Provider: estimateFlags.synthProv,
				Model:    estimateFlags.synthModel,
			})
		}),
	}
	research.Flags().StringVar(&estimateFlags.depth, "depth", string(estimate.DepthStandard), "research depth (quick, standard, deep, exhaustive)")
	research.Flags().Int64Var(&estimateFlags.sources, "sources", 0, "number of sources")
	research.Flags().StringVar(&estimateFlags.synthProv, "provider", "", "synthesis LLM provider")
	research.Flags().StringVar(&estimateFlags.synthModel, "model", "", "synthesis model")

	infra := &cobra.Command{
		Use:     "infra",
		Aliases: []string{"infrastructure"},
		Short:   "Estimate infrastructure consumption",
		RunE: runEstimate(func(e *estimate.Estimator) estimate.Estimate {
			return e.EstimateInfrastructure(estimate.InfrastructureParams{
				Resource: estimateFlags.resource,
				Units:    estimateFlags.units,
				Minutes:  estimateFlags.minutes,
			})
		}),
	}
	infra.Flags().StringVar(&estimateFlags.resource, "resource", "", "resource name (e.g. compute, storage)")
	infra.Flags().Int64Var(&estimateFlags.units, "units", 0, "units consumed")
	infra.Flags().Float64Var(&estimateFlags.minutes, "minutes", 0, "minutes consumed")

	estimateCmd.AddCommand(llm, tool, workflow, research, infra)
}

func runEstimate(fn func(*estimate.Estimator) estimate.Estimate) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		calc, err := loadCalculator(cfg)
		if err != nil {
			return err
		}
		est := fn(estimate.NewEstimator(calc, slog.Default()))
		if estimateFormat == "json" {
			return printResult(cmd, estimateFormat, est)
		}
		return printResult(cmd, estimateFormat, estimateText(est))
	}
}

// estimateText is the human-readable rendering of an estimate.
type estimateText estimate.Estimate

func (e estimateText) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Estimated cost: $%.6f (%s tier, %s confidence)\n", e.EstimatedCost, e.CostTier, e.Confidence)
	fmt.Fprintf(&sb, "Breakdown: %s", e.CostBreakdown)
	for _, f := range e.Factors {
		fmt.Fprintf(&sb, "\n  - %s", f)
	}
	for _, w := range e.Warnings {
		fmt.Fprintf(&sb, "\nWarning: %s", w)
	}
	return sb.String()
}
