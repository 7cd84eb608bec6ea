package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/meter/pkg/alert"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	cooldown_minutes INTEGER NOT NULL,
	conditions TEXT NOT NULL,
	notifications TEXT NOT NULL,
	last_triggered INTEGER,
	trigger_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at, id);
`

const selectColumns = `id, name, type, severity, enabled, cooldown_minutes, conditions,
	notifications, last_triggered, trigger_count, created_at`

// SQLiteConfig configures the SQLite alert store.
type SQLiteConfig struct {
	// Path is the database file path. It may be shared with the budget store.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore implements alert.Store on SQLite.
type SQLiteStore struct {
	db        *sql.DB
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewSQLiteStore opens or creates the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger := slog.Default().With("component", "alert.storage.sqlite")
	logger.Info("SQLite alert store initialized", "path", cfg.Path)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Create inserts an alert.
func (s *SQLiteStore) Create(ctx context.Context, a *alert.Alert) error {
	conditions, err := json.Marshal(a.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	notifications, err := json.Marshal(a.Notifications)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Name, string(a.Type), string(a.Severity), a.Enabled, a.CooldownMinutes,
		string(conditions), string(notifications), nullTime(a.LastTriggered),
		a.TriggerCount, a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return alert.ErrDuplicateAlert
	}
	return nil
}

// Get returns an alert by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alert.ErrAlertNotFound
	}
	return a, err
}

// List returns every alert ordered by creation time, then id.
func (s *SQLiteStore) List(ctx context.Context) ([]*alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM alerts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkTriggered updates trigger state only if last_triggered still holds
// prev. Zero affected rows means another writer fired first, or the alert
// does not exist.
func (s *SQLiteStore) MarkTriggered(ctx context.Context, id string, prev *time.Time, at time.Time) (bool, error) {
	query := `UPDATE alerts SET last_triggered = ?, trigger_count = trigger_count + 1
		WHERE id = ? AND last_triggered IS NULL`
	args := []any{at.UnixNano(), id}
	if prev != nil {
		query = `UPDATE alerts SET last_triggered = ?, trigger_count = trigger_count + 1
		WHERE id = ? AND last_triggered = ?`
		args = append(args, prev.UnixNano())
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM alerts WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, alert.ErrAlertNotFound
	}
	return false, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (*alert.Alert, error) {
	var a alert.Alert
	var typ, severity, conditions, notifications string
	var last sql.NullInt64
	var created int64
	err := sc.Scan(&a.ID, &a.Name, &typ, &severity, &a.Enabled, &a.CooldownMinutes,
		&conditions, &notifications, &last, &a.TriggerCount, &created)
	if err != nil {
		return nil, err
	}

	a.Type = alert.Type(typ)
	a.Severity = alert.Severity(severity)
	a.CreatedAt = time.Unix(0, created).UTC()
	if last.Valid {
		t := time.Unix(0, last.Int64).UTC()
		a.LastTriggered = &t
	}
	if err := json.Unmarshal([]byte(conditions), &a.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions for alert %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(notifications), &a.Notifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notifications for alert %s: %w", a.ID, err)
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
