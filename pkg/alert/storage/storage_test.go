package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/meter/pkg/alert"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/notify"
)

func newTestSQLiteStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T, fn func(t *testing.T, s alert.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestSQLiteStore(t, filepath.Join(t.TempDir(), "state.db")))
	})
}

var created = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func testAlert(id string, offset time.Duration) *alert.Alert {
	threshold := 5.0
	return &alert.Alert{
		ID:              id,
		Name:            "Alert " + id,
		Type:            alert.TypeSpike,
		Severity:        alert.SeverityCritical,
		Enabled:         true,
		CooldownMinutes: 15,
		Conditions: alert.Conditions{
			Categories:       []costs.Category{costs.CategoryLLMAPI},
			Services:         []string{"openai"},
			CostThresholdUSD: &threshold,
			TimeWindow:       alert.Window(2 * time.Hour),
		},
		Notifications: notify.Targets{
			Email: []string{"ops@example.com"},
			Slack: []string{"https://hooks.slack.com/services/T/B/X"},
		},
		CreatedAt: created.Add(offset),
	}
}

func TestStore_CreateGet(t *testing.T) {
	stores(t, func(t *testing.T, s alert.Store) {
		ctx := context.Background()
		if err := s.Create(ctx, testAlert("spend", 0)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := s.Get(ctx, "spend")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Type != alert.TypeSpike || got.Severity != alert.SeverityCritical || !got.Enabled {
			t.Errorf("unexpected alert: %+v", got)
		}
		if got.Conditions.TimeWindow.Duration() != 2*time.Hour {
			t.Errorf("TimeWindow = %v, want 2h", got.Conditions.TimeWindow.Duration())
		}
		if got.Conditions.CostThresholdUSD == nil || *got.Conditions.CostThresholdUSD != 5 {
			t.Errorf("CostThresholdUSD = %v, want 5", got.Conditions.CostThresholdUSD)
		}
		if len(got.Notifications.Email) != 1 || len(got.Notifications.Slack) != 1 {
			t.Errorf("Notifications = %+v", got.Notifications)
		}
		if got.LastTriggered != nil || got.TriggerCount != 0 {
			t.Errorf("expected fresh trigger state, got %v/%d", got.LastTriggered, got.TriggerCount)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}

		if err := s.Create(ctx, testAlert("spend", 0)); !errors.Is(err, alert.ErrDuplicateAlert) {
			t.Errorf("duplicate Create error = %v, want ErrDuplicateAlert", err)
		}
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, alert.ErrAlertNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrAlertNotFound", err)
		}
	})
}

func TestStore_ListOrder(t *testing.T) {
	stores(t, func(t *testing.T, s alert.Store) {
		ctx := context.Background()
		for _, a := range []*alert.Alert{
			testAlert("c", time.Minute),
			testAlert("b", 0),
			testAlert("a", time.Minute),
		} {
			if err := s.Create(ctx, a); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		var ids []string
		for _, a := range list {
			ids = append(ids, a.ID)
		}
		want := []string{"b", "a", "c"}
		if len(ids) != len(want) {
			t.Fatalf("List ids = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("List ids = %v, want %v", ids, want)
				break
			}
		}
	})
}

func TestStore_MarkTriggered(t *testing.T) {
	stores(t, func(t *testing.T, s alert.Store) {
		ctx := context.Background()
		if err := s.Create(ctx, testAlert("spend", 0)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		first := created.Add(time.Hour)
		won, err := s.MarkTriggered(ctx, "spend", nil, first)
		if err != nil || !won {
			t.Fatalf("first MarkTriggered = %v, %v; want true, nil", won, err)
		}

		// A stale prev loses.
		won, err = s.MarkTriggered(ctx, "spend", nil, first.Add(time.Minute))
		if err != nil || won {
			t.Fatalf("stale MarkTriggered = %v, %v; want false, nil", won, err)
		}

		second := first.Add(30 * time.Minute)
		won, err = s.MarkTriggered(ctx, "spend", &first, second)
		if err != nil || !won {
			t.Fatalf("second MarkTriggered = %v, %v; want true, nil", won, err)
		}

		got, err := s.Get(ctx, "spend")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.TriggerCount != 2 {
			t.Errorf("TriggerCount = %d, want 2", got.TriggerCount)
		}
		if got.LastTriggered == nil || !got.LastTriggered.Equal(second) {
			t.Errorf("LastTriggered = %v, want %v", got.LastTriggered, second)
		}

		if _, err := s.MarkTriggered(ctx, "missing", nil, second); !errors.Is(err, alert.ErrAlertNotFound) {
			t.Errorf("MarkTriggered(missing) error = %v, want ErrAlertNotFound", err)
		}
	})
}

func TestStore_MarkTriggeredConcurrent(t *testing.T) {
	stores(t, func(t *testing.T, s alert.Store) {
		ctx := context.Background()
		if err := s.Create(ctx, testAlert("spend", 0)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				won, err := s.MarkTriggered(ctx, "spend", nil, created.Add(time.Duration(i)*time.Second))
				if err != nil {
					t.Errorf("MarkTriggered failed: %v", err)
					return
				}
				if won {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Errorf("winners = %d, want 1", got)
		}
	})
}

func TestSQLiteStore_SharedAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	if err := s.Create(ctx, testAlert("spend", 0)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	at := created.Add(time.Hour)
	if _, err := s.MarkTriggered(ctx, "spend", nil, at); err != nil {
		t.Fatalf("MarkTriggered failed: %v", err)
	}
	s.Close()

	reopened := newTestSQLiteStore(t, path)
	got, err := reopened.Get(ctx, "spend")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.LastTriggered == nil || !got.LastTriggered.Equal(at) || got.TriggerCount != 1 {
		t.Errorf("trigger state not persisted: %v/%d", got.LastTriggered, got.TriggerCount)
	}
}
