// Package pricing maps a service identifier and consumption parameters to a
// cost in USD.
//
// Each service is described by a Descriptor declaring one of four pricing
// models:
//
//   - per_call: flat fee per call (executions, default 1 call)
//   - per_token: input and output token rates per 1K tokens
//   - per_unit: a unit rate applied to one consumption dimension
//   - tiered_subscription: a base fee plus graduated tier rates
//
// Services missing from the table are never rejected. They are priced with
// the table's conservative fallback (a fixed fee plus a per-result and a
// per-minute charge) and the Result is flagged so callers can degrade their
// confidence.
//
// # Hot reload
//
// The table is held behind a read-write lock and may be replaced at any time
// with UpdatePricing. A Watcher reloads the table from a YAML file whenever
// it changes on disk:
//
//	calc := pricing.NewCalculator(pricing.DefaultTable())
//	w, _ := pricing.NewWatcher(pricing.WatcherConfig{Path: "pricing.yaml"}, calc, nil)
//	go w.Watch(ctx)
package pricing
