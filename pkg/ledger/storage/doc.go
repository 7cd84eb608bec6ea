// Package storage provides cost ledger backends.
//
// MemoryStorage keeps entries in a map guarded by a read-write mutex and is
// meant for tests and short-lived processes. SQLiteStorage persists entries
// through github.com/mattn/go-sqlite3 with WAL mode enabled; metadata and
// the initiator are stored as JSON text next to the relational columns.
package storage
