package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8090"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = int64(1 << 20)

	// Storage defaults
	DefaultStorageBackend     = "sqlite"
	DefaultSQLitePath         = "data/costs.db"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultStateBackend       = "sqlite"
	DefaultStatePath          = "data/state.db"

	// Pricing defaults
	DefaultPricingDebounce   = 200 * time.Millisecond
	DefaultPricingGitBranch  = "main"
	DefaultPricingGitPath    = "pricing.yaml"
	DefaultPricingGitPoll    = 5 * time.Minute
	DefaultPricingGitTimeout = 30 * time.Second

	// Budget defaults
	DefaultBudgetPeriod      = "monthly"
	DefaultWarningThreshold  = 50.0
	DefaultCriticalThreshold = 80.0
	DefaultMaximumThreshold  = 100.0

	// Alert defaults
	DefaultAlertType       = "threshold"
	DefaultAlertSeverity   = "warning"
	DefaultAlertCooldown   = 60
	DefaultAlertTimeWindow = time.Hour

	// Enforcement defaults
	DefaultRolloverSchedule   = "@every 1m"
	DefaultThrottleRetryAfter = 30 * time.Second

	// Notification defaults
	DefaultNotificationTimeout = 10 * time.Second
	DefaultSMTPPort            = 587
	DefaultNATSSubject         = "meter.events"

	// Secrets defaults
	DefaultSecretEnvPrefix = "METER_SECRET_"
	DefaultSecretCacheTTL  = 5 * time.Minute

	// Retention defaults
	DefaultRetentionDays     = 365
	DefaultRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "meter"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingServiceName = "meter"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ApplyDefaults fills zero-valued fields with their defaults. Fields the
// file set explicitly are left alone.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.MaxIdleConns == 0 {
		cfg.Storage.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.StateBackend == "" {
		cfg.Storage.StateBackend = DefaultStateBackend
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = DefaultStatePath
	}

	if cfg.Pricing.DebounceInterval == 0 {
		cfg.Pricing.DebounceInterval = DefaultPricingDebounce
	}
	if g := &cfg.Pricing.Git; g.Repository != "" {
		if g.Branch == "" {
			g.Branch = DefaultPricingGitBranch
		}
		if g.Path == "" {
			g.Path = DefaultPricingGitPath
		}
		if g.PollInterval == 0 {
			g.PollInterval = DefaultPricingGitPoll
		}
		if g.Timeout == 0 {
			g.Timeout = DefaultPricingGitTimeout
		}
	}

	for i := range cfg.Budgets {
		applyBudgetDefaults(&cfg.Budgets[i])
	}
	for i := range cfg.Alerts {
		applyAlertDefaults(&cfg.Alerts[i])
	}

	if cfg.Enforcement.RolloverSchedule == "" {
		cfg.Enforcement.RolloverSchedule = DefaultRolloverSchedule
	}
	if cfg.Enforcement.ThrottleRetryAfter == 0 {
		cfg.Enforcement.ThrottleRetryAfter = DefaultThrottleRetryAfter
	}

	// Notification defaults
	if cfg.Notifications.Timeout == 0 {
		cfg.Notifications.Timeout = DefaultNotificationTimeout
	}
	if cfg.Notifications.Email.Host != "" && cfg.Notifications.Email.Port == 0 {
		cfg.Notifications.Email.Port = DefaultSMTPPort
	}
	if cfg.Notifications.NATS.Subject == "" {
		cfg.Notifications.NATS.Subject = DefaultNATSSubject
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretCacheTTL
	}

	// Retention defaults
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultRetentionDays
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

func applyBudgetDefaults(b *BudgetConfig) {
	if b.Period == "" {
		b.Period = DefaultBudgetPeriod
	}
	if b.Thresholds.Warning == 0 {
		b.Thresholds.Warning = DefaultWarningThreshold
	}
	if b.Thresholds.Critical == 0 {
		b.Thresholds.Critical = DefaultCriticalThreshold
	}
	if b.Thresholds.Maximum == 0 {
		b.Thresholds.Maximum = DefaultMaximumThreshold
	}
}

func applyAlertDefaults(a *AlertConfig) {
	if a.Type == "" {
		a.Type = DefaultAlertType
	}
	if a.Severity == "" {
		a.Severity = DefaultAlertSeverity
	}
	if a.CooldownMinutes == 0 {
		a.CooldownMinutes = DefaultAlertCooldown
	}
	if (a.Type == "spike" || a.Type == "volume") && a.Conditions.TimeWindow == 0 {
		a.Conditions.TimeWindow = DefaultAlertTimeWindow
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
