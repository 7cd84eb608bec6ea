package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/ledger"
)

// SQLiteConfig contains configuration for the SQLite ledger backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/costs.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements ledger.Storage using SQLite.
type SQLiteStorage struct {
	db        *sql.DB
	config    *SQLiteConfig
	insert    *sql.Stmt
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewSQLiteStorage opens the database, enables WAL mode if configured and
// creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "ledger.storage.sqlite")

	// The busy timeout goes in the DSN so every pooled connection gets it.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", config.Path, config.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite ledger initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the schema and prepares the insert statement.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return ledger.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return ledger.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return ledger.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return ledger.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	stmt, err := s.db.Prepare(insertEntrySQL)
	if err != nil {
		return ledger.NewStorageError("sqlite", "prepare", err)
	}
	s.insert = stmt

	return nil
}

// Append inserts an entry in a single statement.
func (s *SQLiteStorage) Append(ctx context.Context, entry *costs.Entry) error {
	if entry == nil || entry.ID == "" {
		return ledger.NewStorageError("sqlite", "append", ledger.ErrInvalidEntry)
	}

	initiator, err := json.Marshal(entry.InitiatedBy)
	if err != nil {
		return ledger.NewStorageError("sqlite", "marshal_initiator", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return ledger.NewStorageError("sqlite", "marshal_metadata", err)
	}

	_, err = s.insert.ExecContext(ctx,
		entry.ID, entry.Timestamp.UnixNano(),
		string(entry.Category), entry.Service, entry.Operation,
		entry.CostUSD, entry.UnitsConsumed, string(entry.UnitType), entry.CostPerUnit, string(entry.Tier),
		string(entry.InitiatedBy.Type), entry.InitiatedBy.ID, string(initiator),
		nullString(entry.SessionID), nullString(entry.Metadata.DepartmentID),
		string(metadata),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ledger.NewStorageError("sqlite", "append", ledger.ErrDuplicateEntry)
		}
		return ledger.NewStorageError("sqlite", "append", err)
	}

	return nil
}

// Get retrieves a single entry by id.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*costs.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM cost_entries WHERE id = ?", id)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, ledger.NewStorageError("sqlite", "get", err)
		}
		return nil, ledger.ErrNotFound
	}

	entry, err := scanEntry(rows)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "scan", err)
	}
	return entry, nil
}

// Query retrieves entries matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *ledger.Query) ([]*costs.Entry, error) {
	sqlQuery, args := s.buildSelect(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	entries := []*costs.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, ledger.NewStorageError("sqlite", "scan", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewStorageError("sqlite", "query", err)
	}

	return entries, nil
}

// QueryStream streams matching entries over a channel.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *ledger.Query) (<-chan *costs.Entry, <-chan error, error) {
	entriesCh := make(chan *costs.Entry, 100)
	errCh := make(chan error, 1)

	sqlQuery, args := s.buildSelect(query)

	go func() {
		defer close(entriesCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- ledger.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				errCh <- ledger.NewStorageError("sqlite", "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case entriesCh <- entry:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- ledger.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return entriesCh, errCh, nil
}

// Stats sums cost and counts matching entries in one statement.
func (s *SQLiteStorage) Stats(ctx context.Context, query *ledger.Query) (ledger.Stats, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT COALESCE(SUM(cost_usd), 0), COUNT(*) FROM cost_entries"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var stats ledger.Stats
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&stats.TotalCostUSD, &stats.Count); err != nil {
		return ledger.Stats{}, ledger.NewStorageError("sqlite", "stats", err)
	}
	return stats, nil
}

// Count returns the number of matching entries.
func (s *SQLiteStorage) Count(ctx context.Context, query *ledger.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM cost_entries"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, ledger.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes matching entries.
func (s *SQLiteStorage) Delete(ctx context.Context, query *ledger.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM cost_entries"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", "delete", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return ledger.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.insert != nil {
			s.insert.Close()
		}
		if err := s.db.Close(); err != nil {
			closeErr = ledger.NewStorageError("sqlite", "close", err)
			return
		}
		s.logger.Info("SQLite ledger closed")
	})
	return closeErr
}

// buildSelect builds the SELECT statement with sort and pagination.
func (s *SQLiteStorage) buildSelect(query *ledger.Query) (string, []any) {
	if query == nil {
		query = &ledger.Query{}
	}
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT " + selectColumns + " FROM cost_entries"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	sortColumn := "timestamp"
	if query.SortBy == ledger.SortByCost {
		sortColumn = "cost_usd"
	}
	sortOrder := "ASC"
	if strings.EqualFold(query.SortOrder, ledger.SortDesc) {
		sortOrder = "DESC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumn, sortOrder, sortOrder)

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
		if query.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	} else if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", query.Offset)
	}

	return sqlQuery, args
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the clause (without "WHERE") and its arguments.
func buildWhereClause(query *ledger.Query) (string, []any) {
	if query == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.EndTime.UnixNano())
	}
	if len(query.Categories) > 0 {
		conditions = append(conditions, "category IN ("+placeholders(len(query.Categories))+")")
		for _, c := range query.Categories {
			args = append(args, string(c))
		}
	}
	if len(query.Services) > 0 {
		conditions = append(conditions, "service IN ("+placeholders(len(query.Services))+")")
		for _, svc := range query.Services {
			args = append(args, svc)
		}
	}
	if query.DepartmentID != "" {
		conditions = append(conditions, "department_id = ?")
		args = append(args, query.DepartmentID)
	}
	if query.InitiatorType != "" {
		conditions = append(conditions, "initiator_type = ?")
		args = append(args, string(query.InitiatorType))
	}
	if query.InitiatorID != "" {
		conditions = append(conditions, "initiator_id = ?")
		args = append(args, query.InitiatorID)
	}
	if query.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, query.SessionID)
	}
	if query.MinCost != nil {
		conditions = append(conditions, "cost_usd >= ?")
		args = append(args, *query.MinCost)
	}
	if query.MaxCost != nil {
		conditions = append(conditions, "cost_usd <= ?")
		args = append(args, *query.MaxCost)
	}

	return strings.Join(conditions, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// scanEntry scans a row selected with selectColumns.
func scanEntry(rows *sql.Rows) (*costs.Entry, error) {
	var (
		entry               costs.Entry
		timestampNs         int64
		category, unitType  string
		tier                string
		initiator, metadata string
		sessionID           sql.NullString
	)

	err := rows.Scan(
		&entry.ID, &timestampNs,
		&category, &entry.Service, &entry.Operation,
		&entry.CostUSD, &entry.UnitsConsumed, &unitType, &entry.CostPerUnit, &tier,
		&initiator, &sessionID, &metadata,
	)
	if err != nil {
		return nil, err
	}

	entry.Timestamp = time.Unix(0, timestampNs).UTC()
	entry.Category = costs.Category(category)
	entry.UnitType = costs.UnitType(unitType)
	entry.Tier = costs.Tier(tier)
	if sessionID.Valid {
		entry.SessionID = sessionID.String
	}

	if err := json.Unmarshal([]byte(initiator), &entry.InitiatedBy); err != nil {
		return nil, fmt.Errorf("decode initiated_by for %s: %w", entry.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", entry.ID, err)
	}

	return &entry, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ ledger.Storage = (*SQLiteStorage)(nil)
