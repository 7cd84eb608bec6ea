// Package health provides liveness and readiness probes.
//
// Liveness only reports that the process is up. Readiness runs every
// registered check concurrently with a per-check timeout; the meter service
// registers a ping of the cost ledger and of the budget state store.
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("ledger", health.PingCheck(store))
package health
