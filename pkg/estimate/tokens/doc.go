// Package tokens approximates LLM token counts from text.
//
// The counter divides character counts by a per-model characters-per-token
// ratio. Ratios are matched by exact model name first, then by the longest
// configured prefix, so "gpt-4o-mini" uses the "gpt-4" ratio unless it has
// its own entry:
//
//   - gpt-4, gpt-3.5: ~4 characters per token
//   - claude: ~3.5 characters per token
//
// Each message adds formatting overhead, and a conversation adds a fixed
// priming cost. The result is an estimate for pricing, not a tokenizer.
package tokens
