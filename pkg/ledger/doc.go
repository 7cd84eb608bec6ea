// Package ledger defines the persistence contract for cost entries.
//
// The ledger is append-only: entries are written once by the recorder and
// never updated. Storage backends live in pkg/ledger/storage (an in-memory
// map for tests and a SQLite database for production); query validation in
// pkg/ledger/query; exporters in pkg/ledger/export; opt-in archival pruning
// in pkg/ledger/retention.
//
// Backends must make Append atomic: a concurrent reader sees either the
// whole entry or none of it.
package ledger
