// Meter is a cost-metering and budget-enforcement service for agent
// workloads.
//
// It records the cost of every LLM call, scraping run, workflow execution
// and research session into a ledger, enforces budgets with automatic
// actions, fires alerts, and reports spend with optimization advice.
//
// Usage:
//
//	# Start the API server
//	meter serve --config meter.yaml
//
//	# Record a completed operation
//	meter record --category llm-api --service openai --operation gpt-4o --cost 0.42
//
//	# Estimate before running
//	meter estimate llm --provider openai --model gpt-4o --input-tokens 2000
//
//	# Report the last week and export entries
//	meter summary --start 7d
//	meter export --start 30d --entries --format csv -o costs.csv
package main

import "os"

func main() {
	os.Exit(Execute())
}
