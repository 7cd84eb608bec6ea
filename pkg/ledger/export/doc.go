// Package export renders cost data for download.
//
// A summary export is either the fixed CSV report layout or the indented
// JSON summary object:
//
//	Metric,Value
//	Total Cost (USD),12.5000
//	Total Operations,42
//	Period Start,2026-04-01T00:00:00Z
//	Period End,2026-04-30T23:59:59Z
//
//	Cost by Category
//	llm-api,10.0000
//	...
//
//	Cost by Service
//	openai,10.0000
//	...
//
// Entry exports stream raw ledger entries as CSV rows or a JSON array for
// audit, without holding the result set in memory.
package export
