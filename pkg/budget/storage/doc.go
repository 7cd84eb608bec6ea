// Package storage provides budget state backends: an in-memory store for
// tests and single-process use, and a SQLite store that survives restarts.
//
// Both backends implement budget.Store and increment spend as one
// operation so concurrent writers never lose an update.
package storage
