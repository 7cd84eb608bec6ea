package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/summary"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `storage:
  backend: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "costs.db") + `
  state_backend: sqlite
  state_path: ` + filepath.Join(dir, "state.db") + `
budgets:
  - id: llm-monthly
    name: LLM monthly
    period: monthly
    budget_usd: 100
    categories: [llm-api]
telemetry:
  logging:
    level: error
`
	path := filepath.Join(dir, "meter.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_RecordSummaryBudget(t *testing.T) {
	cfg := writeConfig(t)

	drafts := filepath.Join(filepath.Dir(cfg), "drafts.jsonl")
	lines := `{"category":"llm-api","service":"openai","operation":"gpt-4o","cost_usd":12.5,"units_consumed":1,"initiated_by":{"type":"agent","id":"a1"}}
{"category":"scraping-tool","service":"apify","operation":"run","cost_usd":2,"units_consumed":1,"initiated_by":{"type":"agent","id":"a1"}}
`
	if err := os.WriteFile(drafts, []byte(lines), 0o600); err != nil {
		t.Fatalf("Failed to write drafts: %v", err)
	}

	out, err := execute(t, "--config", cfg, "record", "--file", drafts, "--format", "json")
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	var entries []costs.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("Failed to decode record output %q: %v", out, err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	out, err = execute(t, "--config", cfg, "summary", "--start", "1d", "--format", "json")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	var sum summary.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("Failed to decode summary %q: %v", out, err)
	}
	if sum.TotalCostUSD != 14.5 {
		t.Errorf("Expected total 14.5, got %v", sum.TotalCostUSD)
	}

	out, err = execute(t, "--config", cfg, "budget", "list", "--format", "json")
	if err != nil {
		t.Fatalf("budget list failed: %v", err)
	}
	var budgets []budget.Budget
	if err := json.Unmarshal([]byte(out), &budgets); err != nil {
		t.Fatalf("Failed to decode budgets %q: %v", out, err)
	}
	if len(budgets) != 1 || budgets[0].SpentUSD != 12.5 {
		t.Errorf("Expected llm budget with 12.5 spent, got %+v", budgets)
	}

	outDir := t.TempDir()
	if _, err := execute(t, "--config", cfg, "export", "--start", "1d", "--entries", "--format", "csv", "-o", outDir); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(outDir, "*.csv"))
	if len(files) != 1 {
		t.Fatalf("Expected one export file, got %v", files)
	}
	data, _ := os.ReadFile(files[0])
	if got := strings.Count(strings.TrimSpace(string(data)), "\n"); got != 2 {
		t.Errorf("Expected header plus 2 rows, got %d newlines", got)
	}
}

func TestCommands_ConfigErrorExitCode(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "budget", "list")
	if err == nil {
		t.Fatal("Expected error for missing config")
	}
	if !strings.Contains(err.Error(), "config error") {
		t.Errorf("Expected config error, got %v", err)
	}
}

func TestReadDrafts_Array(t *testing.T) {
	drafts, err := readDrafts(strings.NewReader(`[{"category":"llm-api"},{"category":"infrastructure"}]`), "-")
	if err != nil {
		t.Fatalf("readDrafts failed: %v", err)
	}
	if len(drafts) != 2 || drafts[1].Category != costs.CategoryInfrastructure {
		t.Errorf("Expected 2 drafts, got %+v", drafts)
	}

	if _, err := readDrafts(strings.NewReader("   "), "-"); err == nil {
		t.Error("Expected error for empty input")
	}
	if _, err := readDrafts(strings.NewReader(`{"category":`), "-"); err == nil {
		t.Error("Expected error for truncated input")
	}
}

func TestRangeFlags_Resolve(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := rangeFlags{start: "7d", end: "now", categories: []string{"llm-api"}, services: []string{"openai"}}

	start, end, filters, err := f.resolve(now)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !start.Equal(now.AddDate(0, 0, -7)) || !end.Equal(now) {
		t.Errorf("Expected [%v, %v], got [%v, %v]", now.AddDate(0, 0, -7), now, start, end)
	}
	if len(filters.Categories) != 1 || filters.Categories[0] != costs.CategoryLLMAPI {
		t.Errorf("Expected llm-api filter, got %v", filters.Categories)
	}

	f.start = "last week"
	if _, _, _, err := f.resolve(now); err == nil {
		t.Error("Expected error for unparseable start")
	}
}

func TestSummaryTable_Rows(t *testing.T) {
	tbl := summaryTable{&summary.Summary{
		TotalCostUSD:    3,
		TotalOperations: 2,
		ByCategory:      map[costs.Category]float64{costs.CategoryLLMAPI: 2, costs.CategoryInfrastructure: 1},
		ByService:       map[string]float64{"openai": 2, "aws": 1},
	}}
	rows := tbl.Rows()
	if len(rows) != 6 {
		t.Fatalf("Expected 6 rows, got %d: %v", len(rows), rows)
	}
	if rows[2][1] != string(costs.CategoryInfrastructure) {
		t.Errorf("Expected categories sorted, got %v", rows[2])
	}
	if rows[0][2] != "3.0000" {
		t.Errorf("Expected total 3.0000, got %s", rows[0][2])
	}
}
