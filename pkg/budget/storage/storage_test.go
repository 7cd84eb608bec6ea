package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/costs"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// stores runs fn against every backend.
func stores(t *testing.T, fn func(t *testing.T, s budget.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

func testBudget(id string, created time.Time) *budget.Budget {
	start, end := budget.Bounds(budget.PeriodMonthly, created)
	return &budget.Budget{
		ID:          id,
		Name:        "Budget " + id,
		Period:      budget.PeriodMonthly,
		PeriodStart: start,
		PeriodEnd:   end,
		BudgetUSD:   100,
		Categories:  []costs.Category{costs.CategoryLLMAPI},
		Services:    []string{"openai"},
		Thresholds:  budget.DefaultThresholds(),
		AutoActions: budget.AutoActions{OnMaximum: budget.ActionBlock},
		Status:      budget.StatusActive,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

var created = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func TestStore_CreateGet(t *testing.T) {
	stores(t, func(t *testing.T, s budget.Store) {
		ctx := context.Background()
		b := testBudget("llm", created)

		if err := s.Create(ctx, b); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := s.Create(ctx, b); !errors.Is(err, budget.ErrDuplicateBudget) {
			t.Errorf("Expected ErrDuplicateBudget, got %v", err)
		}

		got, err := s.Get(ctx, "llm")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Name != b.Name || got.BudgetUSD != 100 || got.Status != budget.StatusActive {
			t.Errorf("Unexpected budget: %+v", got)
		}
		if !got.PeriodStart.Equal(b.PeriodStart) || !got.PeriodEnd.Equal(b.PeriodEnd) {
			t.Errorf("Expected period %v-%v, got %v-%v", b.PeriodStart, b.PeriodEnd, got.PeriodStart, got.PeriodEnd)
		}
		if len(got.Categories) != 1 || got.Categories[0] != costs.CategoryLLMAPI {
			t.Errorf("Expected categories [llm-api], got %v", got.Categories)
		}
		if got.AutoActions.OnMaximum != budget.ActionBlock {
			t.Errorf("Expected on_maximum block, got %q", got.AutoActions.OnMaximum)
		}

		if _, err := s.Get(ctx, "missing"); !errors.Is(err, budget.ErrBudgetNotFound) {
			t.Errorf("Expected ErrBudgetNotFound, got %v", err)
		}
	})
}

func TestStore_ListOrder(t *testing.T) {
	stores(t, func(t *testing.T, s budget.Store) {
		ctx := context.Background()
		for _, b := range []*budget.Budget{
			testBudget("c", created.Add(time.Hour)),
			testBudget("b", created),
			testBudget("a", created),
		} {
			if err := s.Create(ctx, b); err != nil {
				t.Fatal(err)
			}
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		var ids []string
		for _, b := range list {
			ids = append(ids, b.ID)
		}
		want := []string{"a", "b", "c"}
		for i := range want {
			if i >= len(ids) || ids[i] != want[i] {
				t.Fatalf("Expected order %v, got %v", want, ids)
			}
		}
	})
}

func TestStore_AddSpendConcurrent(t *testing.T) {
	stores(t, func(t *testing.T, s budget.Store) {
		ctx := context.Background()
		if err := s.Create(ctx, testBudget("llm", created)); err != nil {
			t.Fatal(err)
		}

		const writers = 50
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, err := s.AddSpend(ctx, "llm", 0.5, created); err != nil {
					t.Errorf("AddSpend failed: %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "llm")
		if err != nil {
			t.Fatal(err)
		}
		if got.SpentUSD != 25 {
			t.Errorf("Expected spent 25, got %v", got.SpentUSD)
		}
		if got.UtilizationPercent != 25 {
			t.Errorf("Expected utilization 25, got %v", got.UtilizationPercent)
		}

		if _, _, err := s.AddSpend(ctx, "missing", 1, created); !errors.Is(err, budget.ErrBudgetNotFound) {
			t.Errorf("Expected ErrBudgetNotFound, got %v", err)
		}
	})
}

func TestStore_AddSpendMarksCrossed(t *testing.T) {
	stores(t, func(t *testing.T, s budget.Store) {
		ctx := context.Background()
		if err := s.Create(ctx, testBudget("llm", created)); err != nil {
			t.Fatal(err)
		}

		b, crossed, err := s.AddSpend(ctx, "llm", 85, created)
		if err != nil {
			t.Fatal(err)
		}
		if len(crossed) != 2 || crossed[0] != budget.LevelWarning || crossed[1] != budget.LevelCritical {
			t.Errorf("Expected warning and critical crossed, got %v", crossed)
		}
		if b.Status != budget.StatusActive {
			t.Errorf("Expected active below maximum, got %s", b.Status)
		}

		b, crossed, err = s.AddSpend(ctx, "llm", 20, created)
		if err != nil {
			t.Fatal(err)
		}
		if len(crossed) != 1 || crossed[0] != budget.LevelMaximum {
			t.Errorf("Expected only maximum crossed, got %v", crossed)
		}
		if b.Status != budget.StatusExceeded {
			t.Errorf("Expected exceeded, got %s", b.Status)
		}

		if _, crossed, _ = s.AddSpend(ctx, "llm", 5, created); len(crossed) != 0 {
			t.Errorf("Expected nothing crossed twice, got %v", crossed)
		}

		got, err := s.Get(ctx, "llm")
		if err != nil {
			t.Fatal(err)
		}
		if got.SpentUSD != 110 || len(got.Reached) != 3 || got.Status != budget.StatusExceeded {
			t.Errorf("Expected persisted $110 exceeded with 3 levels, got %v %s %v", got.SpentUSD, got.Status, got.Reached)
		}
	})
}

func TestStore_Reset(t *testing.T) {
	stores(t, func(t *testing.T, s budget.Store) {
		ctx := context.Background()
		b := testBudget("llm", created)
		if err := s.Create(ctx, b); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.AddSpend(ctx, "llm", 120, created); err != nil {
			t.Fatal(err)
		}

		prevStart := b.PeriodStart
		next := created.AddDate(0, 1, 0)
		b.PeriodStart, b.PeriodEnd = budget.Bounds(budget.PeriodMonthly, next)
		b.SpentUSD = 0
		b.UtilizationPercent = 0
		b.Status = budget.StatusActive
		b.Reached = nil
		b.UpdatedAt = next

		ok, err := s.Reset(ctx, b, prevStart)
		if err != nil || !ok {
			t.Fatalf("Expected reset to apply, got %v (%v)", ok, err)
		}
		got, err := s.Get(ctx, "llm")
		if err != nil {
			t.Fatal(err)
		}
		if got.SpentUSD != 0 || len(got.Reached) != 0 || got.Status != budget.StatusActive {
			t.Errorf("Expected cleared budget, got %v %s %v", got.SpentUSD, got.Status, got.Reached)
		}
		if !got.PeriodStart.Equal(b.PeriodStart) {
			t.Errorf("Expected period start %v, got %v", b.PeriodStart, got.PeriodStart)
		}

		// A second writer resetting from the old period is a no-op.
		if _, _, err := s.AddSpend(ctx, "llm", 7, next); err != nil {
			t.Fatal(err)
		}
		ok, err = s.Reset(ctx, b, prevStart)
		if err != nil || ok {
			t.Errorf("Expected stale reset to be skipped, got %v (%v)", ok, err)
		}
		if got, _ := s.Get(ctx, "llm"); got.SpentUSD != 7 {
			t.Errorf("Expected spend kept after stale reset, got %v", got.SpentUSD)
		}

		if _, err := s.Reset(ctx, testBudget("missing", created), prevStart); !errors.Is(err, budget.ErrBudgetNotFound) {
			t.Errorf("Expected ErrBudgetNotFound, got %v", err)
		}
	})
}

// Two stores on one file stand in for the server and a CLI process.
func TestSQLiteStore_SharedFileCrossesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	open := func() *SQLiteStore {
		s, err := NewSQLiteStore(SQLiteConfig{Path: path})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}
	a, b := open(), open()
	if err := a.Create(ctx, testBudget("llm", created)); err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		crossed = map[budget.Level]int{}
		wg      sync.WaitGroup
	)
	for i := range 12 {
		s := a
		if i%2 == 1 {
			s = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, levels, err := s.AddSpend(ctx, "llm", 10, created)
			if err != nil {
				t.Errorf("AddSpend failed: %v", err)
				return
			}
			mu.Lock()
			for _, l := range levels {
				crossed[l]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	got, err := b.Get(ctx, "llm")
	if err != nil {
		t.Fatal(err)
	}
	if got.SpentUSD != 120 {
		t.Errorf("Expected spent 120, got %v", got.SpentUSD)
	}
	if got.Status != budget.StatusExceeded || len(got.Reached) != 3 {
		t.Errorf("Expected exceeded with 3 levels, got %s %v", got.Status, got.Reached)
	}
	for _, l := range budget.Levels() {
		if crossed[l] != 1 {
			t.Errorf("Expected %s reported once, got %d", l, crossed[l])
		}
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, testBudget("llm", created)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.AddSpend(ctx, "llm", 42, created); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "llm")
	if err != nil {
		t.Fatal(err)
	}
	if got.SpentUSD != 42 {
		t.Errorf("Expected spent 42 after reopen, got %v", got.SpentUSD)
	}
}
