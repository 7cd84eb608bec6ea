// Package middleware provides the HTTP middleware chain of the meter API:
// request ids, structured access logging, per-route metrics and panic
// recovery.
//
// The chain is applied outermost first:
//
//	r.Use(middleware.Recovery)
//	r.Use(middleware.RequestID)
//	r.Use(middleware.Logging)
//	r.Use(middleware.Metrics(collector))
package middleware
