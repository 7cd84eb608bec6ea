package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the cost ledger schema.
// Timestamps are stored as Unix nanoseconds so ordering and range filters
// are exact.
const Schema = `
CREATE TABLE IF NOT EXISTS cost_entries (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,

    category TEXT NOT NULL,
    service TEXT NOT NULL,
    operation TEXT NOT NULL,

    cost_usd REAL NOT NULL CHECK (cost_usd >= 0),
    units_consumed INTEGER NOT NULL CHECK (units_consumed >= 0),
    unit_type TEXT NOT NULL,
    cost_per_unit REAL NOT NULL,
    tier TEXT NOT NULL,

    -- Initiator (denormalized for filtering, full object in initiated_by)
    initiator_type TEXT NOT NULL,
    initiator_id TEXT NOT NULL,
    initiated_by TEXT NOT NULL,

    session_id TEXT,
    department_id TEXT,

    -- Free-form metadata as JSON
    metadata TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_entries_timestamp ON cost_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_cost_entries_category ON cost_entries(category);
CREATE INDEX IF NOT EXISTS idx_cost_entries_service ON cost_entries(service);
CREATE INDEX IF NOT EXISTS idx_cost_entries_department ON cost_entries(department_id);
CREATE INDEX IF NOT EXISTS idx_cost_entries_initiator ON cost_entries(initiator_type, initiator_id);
CREATE INDEX IF NOT EXISTS idx_cost_entries_session ON cost_entries(session_id);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertEntrySQL = `
INSERT INTO cost_entries (
    id, timestamp,
    category, service, operation,
    cost_usd, units_consumed, unit_type, cost_per_unit, tier,
    initiator_type, initiator_id, initiated_by,
    session_id, department_id,
    metadata
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `
    id, timestamp,
    category, service, operation,
    cost_usd, units_consumed, unit_type, cost_per_unit, tier,
    initiated_by, session_id, metadata
`
