package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/meter/pkg/costs"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var (
	validBackends   = map[string]bool{"memory": true, "sqlite": true}
	validPeriods    = map[string]bool{"daily": true, "weekly": true, "monthly": true, "custom": true}
	validActions    = map[string]bool{"": true, "notify": true, "throttle": true, "suspend": true, "block": true}
	validAlertTypes = map[string]bool{"threshold": true, "spike": true, "volume": true, "budget": true}
	validSeverities = map[string]bool{"info": true, "warning": true, "critical": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "text": true}
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateBudgets(cfg.Budgets)...)
	errs = append(errs, validateAlerts(cfg.Alerts)...)
	errs = append(errs, validateSchedule("enforcement.rollover_schedule", cfg.Enforcement.RolloverSchedule)...)
	errs = append(errs, validateNotifications(&cfg.Notifications)...)
	errs = append(errs, validatePricing(&cfg.Pricing)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory or sqlite)", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required for the sqlite backend"})
	}
	if cfg.SQLite.MaxOpenConns < 0 {
		errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must be non-negative"})
	}
	if cfg.SQLite.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "must be non-negative"})
	}
	if !validBackends[cfg.StateBackend] {
		errs = append(errs, FieldError{
			Field:   "storage.state_backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory or sqlite)", cfg.StateBackend),
		})
	}
	if cfg.StateBackend == "sqlite" && cfg.StatePath == "" {
		errs = append(errs, FieldError{Field: "storage.state_path", Message: "path is required for the sqlite state backend"})
	}

	return errs
}

func validateBudgets(budgets []BudgetConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool)

	for i, b := range budgets {
		prefix := fmt.Sprintf("budgets[%d]", i)

		if b.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "name is required"})
		}
		key := b.ID
		if key == "" {
			key = b.Name
		}
		if key != "" && seen[key] {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: fmt.Sprintf("duplicate budget %q", key)})
		}
		seen[key] = true

		if !validPeriods[b.Period] {
			errs = append(errs, FieldError{
				Field:   prefix + ".period",
				Message: fmt.Sprintf("invalid period %q (must be daily, weekly, monthly or custom)", b.Period),
			})
		}
		if b.Period == "custom" {
			if b.Start.IsZero() || b.End.IsZero() {
				errs = append(errs, FieldError{Field: prefix + ".start", Message: "custom periods require start and end"})
			} else if !b.End.After(b.Start) {
				errs = append(errs, FieldError{Field: prefix + ".end", Message: "end must be after start"})
			}
		}
		if b.BudgetUSD <= 0 {
			errs = append(errs, FieldError{Field: prefix + ".budget_usd", Message: "budget must be positive"})
		}
		if len(b.Categories) == 0 {
			errs = append(errs, FieldError{Field: prefix + ".categories", Message: "at least one category is required"})
		}
		errs = append(errs, validateCategories(prefix+".categories", b.Categories)...)

		t := b.Thresholds
		if t.Warning <= 0 || !(t.Warning < t.Critical && t.Critical <= t.Maximum) {
			errs = append(errs, FieldError{
				Field:   prefix + ".thresholds",
				Message: fmt.Sprintf("thresholds must be ascending and positive, got %v/%v/%v", t.Warning, t.Critical, t.Maximum),
			})
		}

		for field, action := range map[string]string{
			"on_warning":  b.AutoActions.OnWarning,
			"on_critical": b.AutoActions.OnCritical,
			"on_maximum":  b.AutoActions.OnMaximum,
		} {
			if !validActions[action] {
				errs = append(errs, FieldError{
					Field:   prefix + ".auto_actions." + field,
					Message: fmt.Sprintf("unknown action %q (must be notify, throttle, suspend or block)", action),
				})
			}
		}
	}

	return errs
}

func validateAlerts(alerts []AlertConfig) []FieldError {
	var errs []FieldError

	for i, a := range alerts {
		prefix := fmt.Sprintf("alerts[%d]", i)

		if a.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "name is required"})
		}
		if !validAlertTypes[a.Type] {
			errs = append(errs, FieldError{Field: prefix + ".type", Message: fmt.Sprintf("invalid alert type %q", a.Type)})
		}
		if !validSeverities[a.Severity] {
			errs = append(errs, FieldError{Field: prefix + ".severity", Message: fmt.Sprintf("invalid severity %q", a.Severity)})
		}
		if a.CooldownMinutes < 0 {
			errs = append(errs, FieldError{Field: prefix + ".cooldown_minutes", Message: "cooldown must be non-negative"})
		}

		c := a.Conditions
		errs = append(errs, validateCategories(prefix+".conditions.categories", c.Categories)...)
		if c.CostThresholdUSD != nil && *c.CostThresholdUSD < 0 {
			errs = append(errs, FieldError{Field: prefix + ".conditions.cost_threshold_usd", Message: "must be non-negative"})
		}
		if c.TimeWindow < 0 {
			errs = append(errs, FieldError{Field: prefix + ".conditions.time_window", Message: "must be non-negative"})
		}
		if a.Type == "spike" && c.PercentageIncrease == nil {
			errs = append(errs, FieldError{Field: prefix + ".conditions.percentage_increase", Message: "spike alerts require percentage_increase"})
		}
		if a.Type == "volume" && c.MinOperations <= 0 {
			errs = append(errs, FieldError{Field: prefix + ".conditions.min_operations", Message: "volume alerts require min_operations"})
		}

		for j, target := range append(append([]string{}, a.Notifications.Slack...), a.Notifications.Webhook...) {
			if isSecretRef(target) {
				continue
			}
			if u, err := url.Parse(target); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s.notifications[%d]", prefix, j),
					Message: fmt.Sprintf("invalid URL %q", target),
				})
			}
		}
		for _, addr := range a.Notifications.Email {
			if !isSecretRef(addr) && !strings.Contains(addr, "@") {
				errs = append(errs, FieldError{Field: prefix + ".notifications.email", Message: fmt.Sprintf("invalid address %q", addr)})
			}
		}
	}

	return errs
}

// isSecretRef reports whether s holds a ${secret:name} reference, which is
// only checked once resolved.
func isSecretRef(s string) bool {
	return strings.Contains(s, "${secret:")
}

func validateCategories(field string, categories []string) []FieldError {
	var errs []FieldError
	for _, c := range categories {
		if !costs.Category(c).Valid() {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("unknown category %q", c)})
		}
	}
	return errs
}

func validateSchedule(field, spec string) []FieldError {
	if spec == "" {
		return []FieldError{{Field: field, Message: "schedule is required"}}
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return []FieldError{{Field: field, Message: fmt.Sprintf("invalid cron schedule %q: %v", spec, err)}}
	}
	return nil
}

func validateNotifications(cfg *NotificationsConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "notifications.timeout", Message: "must be non-negative"})
	}
	if cfg.Email.Host != "" && cfg.Email.From == "" {
		errs = append(errs, FieldError{Field: "notifications.email.from", Message: "from address is required when smtp is configured"})
	}
	if cfg.NATS.URL != "" && !isSecretRef(cfg.NATS.URL) {
		if u, err := url.Parse(cfg.NATS.URL); err != nil || u.Scheme == "" {
			errs = append(errs, FieldError{Field: "notifications.nats.url", Message: fmt.Sprintf("invalid URL %q", cfg.NATS.URL)})
		}
	}

	return errs
}

func validatePricing(cfg *PricingConfig) []FieldError {
	g := &cfg.Git
	if g.Repository == "" {
		return nil
	}
	var errs []FieldError
	if g.PollInterval < 0 {
		errs = append(errs, FieldError{Field: "pricing.git.poll_interval", Message: "must be non-negative"})
	}
	if g.Depth < 0 {
		errs = append(errs, FieldError{Field: "pricing.git.depth", Message: "must be non-negative"})
	}
	switch g.Auth.Type {
	case "", "none":
	case "token":
		if g.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "pricing.git.auth.token", Message: "token auth requires a token"})
		}
	case "ssh":
		if g.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "pricing.git.auth.ssh_key_path", Message: "ssh auth requires a key path"})
		}
	default:
		errs = append(errs, FieldError{Field: "pricing.git.auth.type", Message: fmt.Sprintf("unknown auth type %q", g.Auth.Type)})
	}
	return errs
}

func validateRetention(cfg *RetentionConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError
	if cfg.Days <= 0 {
		errs = append(errs, FieldError{Field: "retention.days", Message: "days must be positive"})
	}
	errs = append(errs, validateSchedule("retention.schedule", cfg.Schedule)...)
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0.0 and 1.0"})
	}

	return errs
}
