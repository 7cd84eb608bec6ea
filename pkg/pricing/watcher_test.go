package pricing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/meter/pkg/costs"
)

func writePricing(t *testing.T, path, rate string) {
	t.Helper()
	content := []byte(fmtYAML(rate))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write pricing file: %v", err)
	}
}

func fmtYAML(rate string) string {
	return "services:\n  serpapi:\n    model: per_call\n    cost_per_call: " + rate + "\n"
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	writePricing(t, path, "0.25")

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	if got := table.Services["serpapi"].CostPerCall; got != 0.25 {
		t.Errorf("Expected cost_per_call 0.25, got %v", got)
	}
	if table.Default != DefaultFallback() {
		t.Errorf("Expected default fallback to be filled in, got %+v", table.Default)
	}
}

func TestLoadTable_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte("services:\n  x:\n    model: nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTable(path); err == nil {
		t.Error("Expected error for invalid pricing model")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	writePricing(t, path, "0.10")

	calc := NewCalculator(DefaultTable())
	w, err := NewWatcher(WatcherConfig{Path: path, DebounceInterval: 20 * time.Millisecond}, calc, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan error, 8)
	w.onReload = func(err error) { reloaded <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Watch(ctx) }()
	defer func() { _ = w.Stop() }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writePricing(t, path, "0.30")

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for pricing reload")
	}

	got := calc.CalculateServiceCost("serpapi", costs.Consumption{})
	if !almostEqual(got.Cost, 0.30) {
		t.Errorf("Expected reloaded rate 0.30, got %v", got.Cost)
	}
}

func TestWatcher_BadFileKeepsPreviousTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte("services: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}

	calc := NewCalculator(DefaultTable())
	w, err := NewWatcher(WatcherConfig{Path: path}, calc, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Reload(); err == nil {
		t.Fatal("Expected reload error for malformed YAML")
	}
	got := calc.CalculateServiceCost("serpapi", costs.Consumption{})
	if !almostEqual(got.Cost, 0.01) {
		t.Errorf("Expected built-in rate 0.01 to survive, got %v", got.Cost)
	}
}
