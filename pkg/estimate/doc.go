// Package estimate projects the cost of an operation before it runs.
//
// There is one estimation function per cost-bearing surface: tool calls,
// LLM calls, workflow executions, research sessions and infrastructure
// units. Each wraps the pricing calculator and adds a confidence level,
// the factors that went into the number and heuristic warnings.
//
// Confidence is high when the caller supplied every consumption dimension,
// medium when at least one was defaulted and low whenever pricing fell back
// to the default descriptor.
//
// Warnings are threshold rules and are part of the user-facing contract.
// All thresholds are exclusive: 50,000 tokens does not warn, 50,001 does.
package estimate
