package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meter.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9000"
  read_timeout: "45s"

storage:
  backend: "memory"
  state_backend: "memory"

budgets:
  - name: "monthly llm"
    period: "monthly"
    budget_usd: 500
    categories: ["llm-api"]
    department_id: "research"
    auto_actions:
      on_warning: notify
      on_maximum: block

alerts:
  - name: "expensive call"
    conditions:
      cost_threshold_usd: 5
    cooldown_minutes: 10
    notifications:
      slack: ["https://hooks.slack.com/services/T000/B000/XXX"]

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("Expected listen address 0.0.0.0:9000, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Expected read timeout 45s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}

	if len(cfg.Budgets) != 1 {
		t.Fatalf("Expected 1 budget, got %d", len(cfg.Budgets))
	}
	b := cfg.Budgets[0]
	if b.Thresholds.Warning != 50 || b.Thresholds.Critical != 80 || b.Thresholds.Maximum != 100 {
		t.Errorf("Expected default thresholds, got %+v", b.Thresholds)
	}
	if b.AutoActions.OnMaximum != "block" {
		t.Errorf("Expected on_maximum block, got %q", b.AutoActions.OnMaximum)
	}

	a := cfg.Alerts[0]
	if a.Type != "threshold" || a.Severity != "warning" {
		t.Errorf("Expected alert defaults, got type=%q severity=%q", a.Type, a.Severity)
	}
	if !a.IsEnabled() {
		t.Error("Expected alert to be enabled when omitted")
	}
	if a.Conditions.CostThresholdUSD == nil || *a.Conditions.CostThresholdUSD != 5 {
		t.Errorf("Expected cost threshold 5, got %v", a.Conditions.CostThresholdUSD)
	}

	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.Telemetry.Logging.Level)
	}
	if !cfg.Telemetry.Metrics.IsEnabled() {
		t.Error("Expected metrics enabled by default")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil || !strings.Contains(err.Error(), "failed to read") {
			t.Errorf("Expected read error, got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "server: [unterminated"))
		if err == nil || !strings.Contains(err.Error(), "failed to parse") {
			t.Errorf("Expected parse error, got %v", err)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "storage:\n  backend: postgres\n"))
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Expected ValidationError, got %v", err)
		}
		if verr.Errors[0].Field != "storage.backend" {
			t.Errorf("Expected storage.backend error, got %s", verr.Errors[0].Field)
		}
	})
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:1111"
storage:
  backend: memory
`)

	t.Setenv("METER_SERVER_LISTEN_ADDRESS", "0.0.0.0:2222")
	t.Setenv("METER_STORAGE_BACKEND", "sqlite")
	t.Setenv("METER_STORAGE_SQLITE_PATH", "/tmp/override.db")
	t.Setenv("METER_RETENTION_ENABLED", "true")
	t.Setenv("METER_RETENTION_DAYS", "30")
	t.Setenv("METER_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("METER_SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:2222" {
		t.Errorf("Expected env override for listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/override.db" {
		t.Errorf("Expected storage overrides, got %+v", cfg.Storage)
	}
	if !cfg.Retention.Enabled || cfg.Retention.Days != 30 {
		t.Errorf("Expected retention overrides, got %+v", cfg.Retention)
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		t.Error("Expected metrics disabled by env")
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("Expected unparseable override to be ignored, got %v", cfg.Server.ReadTimeout)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("METER_STORAGE_BACKEND", "memory")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("Expected default listen address, got %q", cfg.Server.ListenAddress)
	}
}
