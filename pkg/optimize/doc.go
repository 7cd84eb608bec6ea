// Package optimize turns a cost summary into savings recommendations.
//
// The advisor is a pure function of the summary: fixed spend thresholds
// trigger recommendations whose estimated savings are a fixed share of the
// spend they target. Results are sorted by savings, largest first.
package optimize
