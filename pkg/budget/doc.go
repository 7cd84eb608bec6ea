// Package budget enforces spending caps over a category, service and
// department scope for a calendar or custom period.
//
// # Lifecycle
//
// Every recorded entry is offered to the Enforcer. For each budget whose
// scope matches the entry, spend is incremented atomically in the Store,
// utilization is recomputed from the stored values, and each threshold
// (warning, critical, maximum) that utilization reaches for the first time
// in the period triggers its configured auto-action. Reaching the maximum
// sets the budget to StatusExceeded until the period rolls over.
//
// # Actions
//
// Auto-actions are a closed set: notify, throttle, suspend and block.
// Throttle, suspend and block record a restriction in the Gate, which
// callers consult through Enforcer.Decide before starting new work. Every
// non-empty action is also reported to the Listener. An unrecognized action
// is logged as a configuration warning and otherwise ignored.
//
// # Concurrency
//
// Checks against the same budget are serialized with a per-budget mutex,
// and the Store increments spend as a single operation. Concurrent entries
// never lose each other's increment.
package budget
