package config

import (
	"strings"
	"testing"
	"time"
)

func validBudget() BudgetConfig {
	b := BudgetConfig{
		Name:       "llm",
		BudgetUSD:  100,
		Categories: []string{"llm-api"},
	}
	applyBudgetDefaults(&b)
	return b
}

func TestValidate_DefaultConfig(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.ListenAddress = ""
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(verr.Errors))
	}
	if !strings.Contains(verr.Error(), "validation failed with 2 errors") {
		t.Errorf("Expected count in message, got %s", verr.Error())
	}
}

func TestValidate_Budgets(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*BudgetConfig)
		errorField string
	}{
		{"valid", func(*BudgetConfig) {}, ""},
		{"missing name", func(b *BudgetConfig) { b.Name = "" }, "budgets[0].name"},
		{"zero budget", func(b *BudgetConfig) { b.BudgetUSD = 0 }, "budgets[0].budget_usd"},
		{"no categories", func(b *BudgetConfig) { b.Categories = nil }, "budgets[0].categories"},
		{"unknown category", func(b *BudgetConfig) { b.Categories = []string{"crypto"} }, "budgets[0].categories"},
		{"bad period", func(b *BudgetConfig) { b.Period = "hourly" }, "budgets[0].period"},
		{"custom without window", func(b *BudgetConfig) { b.Period = "custom" }, "budgets[0].start"},
		{"custom inverted", func(b *BudgetConfig) {
			b.Period = "custom"
			b.Start = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
			b.End = b.Start.Add(-time.Hour)
		}, "budgets[0].end"},
		{"descending thresholds", func(b *BudgetConfig) { b.Thresholds.Warning = 90 }, "budgets[0].thresholds"},
		{"unknown action", func(b *BudgetConfig) { b.AutoActions.OnCritical = "panic" }, "budgets[0].auto_actions.on_critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBudget()
			tt.mutate(&b)
			errs := validateBudgets([]BudgetConfig{b})

			if tt.errorField == "" {
				if len(errs) != 0 {
					t.Errorf("Expected no errors, got %v", errs)
				}
				return
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.errorField {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error on %s, got %v", tt.errorField, errs)
			}
		})
	}
}

func TestValidate_DuplicateBudgets(t *testing.T) {
	errs := validateBudgets([]BudgetConfig{validBudget(), validBudget()})
	if len(errs) != 1 || errs[0].Field != "budgets[1].id" {
		t.Errorf("Expected duplicate error on budgets[1].id, got %v", errs)
	}
}

func TestValidate_Alerts(t *testing.T) {
	pct := 50.0
	tests := []struct {
		name       string
		alert      AlertConfig
		errorField string
	}{
		{"valid threshold", AlertConfig{Name: "a", Type: "threshold", Severity: "info"}, ""},
		{"valid spike", AlertConfig{Name: "a", Type: "spike", Severity: "info", Conditions: AlertConditionsConfig{PercentageIncrease: &pct}}, ""},
		{"spike without percentage", AlertConfig{Name: "a", Type: "spike", Severity: "info"}, "alerts[0].conditions.percentage_increase"},
		{"volume without min", AlertConfig{Name: "a", Type: "volume", Severity: "info"}, "alerts[0].conditions.min_operations"},
		{"bad severity", AlertConfig{Name: "a", Type: "threshold", Severity: "meh"}, "alerts[0].severity"},
		{"bad slack url", AlertConfig{Name: "a", Type: "threshold", Severity: "info", Notifications: AlertChannelsConfig{Slack: []string{"not a url"}}}, "alerts[0].notifications[0]"},
		{"bad email", AlertConfig{Name: "a", Type: "threshold", Severity: "info", Notifications: AlertChannelsConfig{Email: []string{"nobody"}}}, "alerts[0].notifications.email"},
		{"secret target", AlertConfig{Name: "a", Type: "threshold", Severity: "info", Notifications: AlertChannelsConfig{Slack: []string{"${secret:slack-hook}"}}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validateAlerts([]AlertConfig{tt.alert})
			if tt.errorField == "" {
				if len(errs) != 0 {
					t.Errorf("Expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) == 0 || errs[0].Field != tt.errorField {
				t.Errorf("Expected error on %s, got %v", tt.errorField, errs)
			}
		})
	}
}

func TestValidate_PricingGit(t *testing.T) {
	tests := []struct {
		name       string
		git        PricingGitConfig
		errorField string
	}{
		{"disabled", PricingGitConfig{Auth: GitAuthConfig{Type: "bogus"}}, ""},
		{"public", PricingGitConfig{Repository: "https://example.com/p.git"}, ""},
		{"token missing", PricingGitConfig{Repository: "r", Auth: GitAuthConfig{Type: "token"}}, "pricing.git.auth.token"},
		{"ssh missing key", PricingGitConfig{Repository: "r", Auth: GitAuthConfig{Type: "ssh"}}, "pricing.git.auth.ssh_key_path"},
		{"unknown auth", PricingGitConfig{Repository: "r", Auth: GitAuthConfig{Type: "bogus"}}, "pricing.git.auth.type"},
		{"negative depth", PricingGitConfig{Repository: "r", Depth: -1}, "pricing.git.depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validatePricing(&PricingConfig{Git: tt.git})
			if tt.errorField == "" {
				if len(errs) != 0 {
					t.Errorf("Expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) == 0 || errs[0].Field != tt.errorField {
				t.Errorf("Expected error on %s, got %v", tt.errorField, errs)
			}
		})
	}
}

func TestValidate_Schedules(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"@every 1m", false},
		{"0 3 * * *", false},
		{"@daily", false},
		{"", true},
		{"every minute", true},
	}

	for _, tt := range tests {
		errs := validateSchedule("x", tt.spec)
		if (len(errs) > 0) != tt.wantErr {
			t.Errorf("Schedule %q: expected error=%v, got %v", tt.spec, tt.wantErr, errs)
		}
	}
}

func TestValidate_Telemetry(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.Tracing.Enabled = true
	cfg.Telemetry.Tracing.SampleRatio = 2

	errs := validateTelemetry(&cfg.Telemetry)
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %v", errs)
	}
	if errs[0].Field != "telemetry.tracing.endpoint" || errs[1].Field != "telemetry.tracing.sample_ratio" {
		t.Errorf("Unexpected fields: %v", errs)
	}
}
