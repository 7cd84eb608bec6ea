// Package alert evaluates condition-triggered notification rules against
// recorded costs.
//
// Alert types:
//
//   - threshold: a single entry matches the category and service filters and
//     costs at least cost_threshold_usd.
//   - spike: spend over the trailing time window grew by at least
//     percentage_increase compared with the window before it.
//   - volume: at least min_operations matching entries in the window.
//   - budget: a budget auto-action fired for a matching scope.
//
// Every specified condition must hold; absent conditions match everything.
// An alert that fires is silenced for its cooldown. The cooldown check and
// the update of last_triggered happen under the alert's own mutex and as a
// compare-and-set in the Store, so concurrent entries fire an alert once.
package alert
