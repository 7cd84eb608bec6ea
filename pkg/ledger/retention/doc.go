// Package retention prunes old cost entries on a cron schedule.
//
// Cost entries are never deleted in normal operation. Pruning only runs
// when retention is explicitly enabled, and can archive the entries to a
// JSON file before deleting them.
package retention
