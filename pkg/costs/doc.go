// Package costs defines the core record shapes of the cost ledger.
//
// An Entry is an immutable, append-only record of one billed operation:
// a scraping call, an LLM completion, a workflow run, a research session or
// an infrastructure unit. Entries are created once by the recorder from a
// Draft and are never mutated afterwards.
//
// # Tiers
//
// Every entry carries a Tier, a coarse cost-magnitude bucket derived purely
// from its cost:
//
//	free    cost <= 0
//	low     0 < cost <= 1
//	medium  1 < cost <= 10
//	high    10 < cost <= 100
//	premium cost > 100
//
// Tiers are ordered; Tier.Rank can be used to compare them.
package costs
