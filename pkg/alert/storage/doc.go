// Package storage provides alert backends. MemoryStore keeps alerts in
// process; SQLiteStore persists definitions and trigger state.
//
// MarkTriggered is a compare-and-swap on last_triggered, so two processes
// sharing a database cannot both fire the same alert inside one cooldown.
package storage
