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

	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/costs"
)

const schema = `
CREATE TABLE IF NOT EXISTS budgets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	period TEXT NOT NULL,
	period_start INTEGER NOT NULL,
	period_end INTEGER NOT NULL,
	budget_usd REAL NOT NULL,
	spent_usd REAL NOT NULL DEFAULT 0,
	utilization_percent REAL NOT NULL DEFAULT 0,
	categories TEXT NOT NULL,
	services TEXT NOT NULL,
	department_id TEXT NOT NULL DEFAULT '',
	thresholds TEXT NOT NULL,
	auto_actions TEXT NOT NULL,
	status TEXT NOT NULL,
	reached TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_budgets_created ON budgets(created_at, id);
`

const selectColumns = `id, name, period, period_start, period_end, budget_usd, spent_usd,
	utilization_percent, categories, services, department_id, thresholds,
	auto_actions, status, reached, created_at, updated_at`

// SQLiteConfig configures the SQLite budget store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore implements budget.Store on SQLite.
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

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger := slog.Default().With("component", "budget.storage.sqlite")
	logger.Info("SQLite budget store initialized", "path", cfg.Path)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Create inserts a budget.
func (s *SQLiteStore) Create(ctx context.Context, b *budget.Budget) error {
	row, err := encode(b)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		b.ID, b.Name, string(b.Period), b.PeriodStart.UnixNano(), b.PeriodEnd.UnixNano(),
		b.BudgetUSD, b.SpentUSD, b.UtilizationPercent, row.categories, row.services,
		b.DepartmentID, row.thresholds, row.autoActions, string(b.Status), row.reached,
		b.CreatedAt.UnixNano(), b.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return budget.ErrDuplicateBudget
	}
	return nil
}

// Get returns a budget by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*budget.Budget, error) {
	return get(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryRower, id string) (*budget.Budget, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM budgets WHERE id = ?`, id)
	b, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, budget.ErrBudgetNotFound
	}
	return b, err
}

// List returns every budget ordered by creation time, then id.
func (s *SQLiteStore) List(ctx context.Context) ([]*budget.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM budgets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var out []*budget.Budget
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddSpend runs spent_usd = spent_usd + delta, re-reads the row and writes
// back utilization and newly reached levels in one transaction. The first
// UPDATE takes the database write lock, so the reached list read inside the
// transaction cannot go stale before commit, even across processes.
func (s *SQLiteStore) AddSpend(ctx context.Context, id string, delta float64, at time.Time) (*budget.Budget, []budget.Level, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE budgets SET spent_usd = spent_usd + ?, updated_at = ? WHERE id = ?`,
		delta, at.UnixNano(), id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add spend: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil, budget.ErrBudgetNotFound
	}

	b, err := get(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	b.UtilizationPercent = budget.Utilization(b.SpentUSD, b.BudgetUSD)
	crossed := b.MarkCrossed()

	reached, err := json.Marshal(levels(b.Reached))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal reached levels: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE budgets SET utilization_percent = ?, status = ?, reached = ? WHERE id = ?`,
		b.UtilizationPercent, string(b.Status), string(reached), id); err != nil {
		return nil, nil, fmt.Errorf("failed to update utilization: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit spend: %w", err)
	}
	return b, crossed, nil
}

// Reset overwrites the period state of a budget whose stored period still
// starts at prevStart.
func (s *SQLiteStore) Reset(ctx context.Context, b *budget.Budget, prevStart time.Time) (bool, error) {
	reached, err := json.Marshal(levels(b.Reached))
	if err != nil {
		return false, fmt.Errorf("failed to marshal reached levels: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets SET
			period_start = ?, period_end = ?, spent_usd = ?, utilization_percent = ?,
			status = ?, reached = ?, updated_at = ?
		WHERE id = ? AND period_start = ?`,
		b.PeriodStart.UnixNano(), b.PeriodEnd.UnixNano(), b.SpentUSD, b.UtilizationPercent,
		string(b.Status), string(reached), b.UpdatedAt.UnixNano(), b.ID, prevStart.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to reset budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, b.ID); err != nil {
		return false, err
	}
	return false, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

type encoded struct {
	categories  string
	services    string
	thresholds  string
	autoActions string
	reached     string
}

func encode(b *budget.Budget) (encoded, error) {
	var (
		e   encoded
		err error
		raw []byte
	)
	fields := []struct {
		dst *string
		v   any
	}{
		{&e.categories, categoriesOrEmpty(b.Categories)},
		{&e.services, stringsOrEmpty(b.Services)},
		{&e.thresholds, b.Thresholds},
		{&e.autoActions, b.AutoActions},
		{&e.reached, levels(b.Reached)},
	}
	for _, f := range fields {
		if raw, err = json.Marshal(f.v); err != nil {
			return e, fmt.Errorf("failed to marshal budget: %w", err)
		}
		*f.dst = string(raw)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (*budget.Budget, error) {
	var b budget.Budget
	var period, status string
	var start, end, created, updated int64
	var categories, services, thresholds, actions, reached string
	err := sc.Scan(&b.ID, &b.Name, &period, &start, &end, &b.BudgetUSD, &b.SpentUSD,
		&b.UtilizationPercent, &categories, &services, &b.DepartmentID, &thresholds,
		&actions, &status, &reached, &created, &updated)
	if err != nil {
		return nil, err
	}

	b.Period = budget.Period(period)
	b.Status = budget.Status(status)
	b.PeriodStart = time.Unix(0, start).UTC()
	b.PeriodEnd = time.Unix(0, end).UTC()
	b.CreatedAt = time.Unix(0, created).UTC()
	b.UpdatedAt = time.Unix(0, updated).UTC()

	targets := []struct {
		raw string
		dst any
	}{
		{categories, &b.Categories},
		{services, &b.Services},
		{thresholds, &b.Thresholds},
		{actions, &b.AutoActions},
		{reached, &b.Reached},
	}
	for _, t := range targets {
		if err := json.Unmarshal([]byte(t.raw), t.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal budget %s: %w", b.ID, err)
		}
	}
	if len(b.Services) == 0 {
		b.Services = nil
	}
	if len(b.Reached) == 0 {
		b.Reached = nil
	}
	return &b, nil
}

func categoriesOrEmpty(c []costs.Category) []costs.Category {
	if c == nil {
		return []costs.Category{}
	}
	return c
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func levels(l []budget.Level) []budget.Level {
	if l == nil {
		return []budget.Level{}
	}
	return l
}
