package config

import "time"

// Config is the root configuration structure for the meter service.
type Config struct {
	// Server contains HTTP API server configuration.
	Server ServerConfig `yaml:"server"`

	// Storage selects the cost ledger and budget state backends.
	Storage StorageConfig `yaml:"storage"`

	// Pricing points at the pricing table and controls hot reload.
	Pricing PricingConfig `yaml:"pricing"`

	// Budgets are created at startup. Budgets already present in the state
	// store keep their spend.
	Budgets []BudgetConfig `yaml:"budgets"`

	// Alerts are created at startup.
	Alerts []AlertConfig `yaml:"alerts"`

	// Enforcement controls period rollover and gate behavior.
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Notifications configures the delivery channels used by alerts and
	// budget actions.
	Notifications NotificationsConfig `yaml:"notifications"`

	// Secrets resolves ${secret:name} references in notification settings.
	Secrets SecretsConfig `yaml:"secrets"`

	// Retention configures the opt-in ledger pruner.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry contains logging, metrics, tracing and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// StorageConfig selects persistence backends.
type StorageConfig struct {
	// Backend is the cost ledger backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the ledger database.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// StateBackend stores budget and alert state.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	StateBackend string `yaml:"state_backend"`

	// StatePath is the SQLite file for budget and alert state.
	// Default: "data/state.db"
	StatePath string `yaml:"state_path"`
}

// SQLiteConfig contains SQLite ledger configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/costs.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// WALEnabled reports whether WAL mode is on, treating unset as true.
func (c SQLiteConfig) WALEnabled() bool {
	return c.WALMode == nil || *c.WALMode
}

// PricingConfig configures the pricing table.
type PricingConfig struct {
	// File is an optional YAML pricing table. Empty uses the built-in table.
	File string `yaml:"file"`

	// Watch hot-swaps the table when File changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval collapses bursts of file events.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Git syncs the pricing table from a git repository. It takes
	// precedence over File.
	Git PricingGitConfig `yaml:"git"`
}

// PricingGitConfig configures a git-backed pricing table.
type PricingGitConfig struct {
	// Repository is the clone URL or a local path. Empty disables git sync.
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the pricing YAML file relative to the repository root.
	// Default: "pricing.yaml"
	Path string `yaml:"path"`

	// LocalPath is where the repository is cloned.
	// Default: <tmp>/meter-pricing
	LocalPath string `yaml:"local_path"`

	// Depth limits clone history. 0 clones everything.
	Depth int `yaml:"depth"`

	// PollInterval is how often the remote is pulled. 0 disables polling.
	// Default: 5m
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds a single clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig configures git authentication. Type is "none", "token" or
// "ssh". Token accepts a ${secret:name} reference.
type GitAuthConfig struct {
	Type             string `yaml:"type"`
	Token            string `yaml:"token"`
	SSHKeyPath       string `yaml:"ssh_key_path"`
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// BudgetConfig declares one budget.
type BudgetConfig struct {
	// ID is optional. When empty an id is derived from Name.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Period is one of "daily", "weekly", "monthly", "custom".
	Period string `yaml:"period"`

	// Start and End bound a custom period. End is exclusive.
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`

	BudgetUSD    float64  `yaml:"budget_usd"`
	Categories   []string `yaml:"categories"`
	Services     []string `yaml:"services"`
	DepartmentID string   `yaml:"department_id"`

	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	AutoActions AutoActionsConfig `yaml:"auto_actions"`
}

// ThresholdsConfig holds ascending utilization percentages.
type ThresholdsConfig struct {
	// Default: 50
	Warning float64 `yaml:"warning"`
	// Default: 80
	Critical float64 `yaml:"critical"`
	// Default: 100
	Maximum float64 `yaml:"maximum"`
}

// AutoActionsConfig names the action taken at each threshold.
// Options: "notify", "throttle", "suspend", "block", or empty for none.
type AutoActionsConfig struct {
	OnWarning  string `yaml:"on_warning"`
	OnCritical string `yaml:"on_critical"`
	OnMaximum  string `yaml:"on_maximum"`
}

// AlertConfig declares one alert.
type AlertConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Type is one of "threshold", "spike", "volume", "budget".
	// Default: "threshold"
	Type string `yaml:"type"`

	// Severity is one of "info", "warning", "critical".
	// Default: "warning"
	Severity string `yaml:"severity"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	// CooldownMinutes suppresses repeat notifications.
	// Default: 60
	CooldownMinutes int `yaml:"cooldown_minutes"`

	Conditions    AlertConditionsConfig `yaml:"conditions"`
	Notifications AlertChannelsConfig   `yaml:"notifications"`
}

// IsEnabled reports whether the alert is enabled, treating unset as true.
func (a AlertConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// AlertConditionsConfig holds optional alert conditions. Absent fields match
// everything.
type AlertConditionsConfig struct {
	Categories         []string      `yaml:"categories"`
	Services           []string      `yaml:"services"`
	CostThresholdUSD   *float64      `yaml:"cost_threshold_usd"`
	PercentageIncrease *float64      `yaml:"percentage_increase"`
	TimeWindow         time.Duration `yaml:"time_window"`
	MinOperations      int           `yaml:"min_operations"`
}

// AlertChannelsConfig lists notification targets per channel.
type AlertChannelsConfig struct {
	Email   []string `yaml:"email"`
	Slack   []string `yaml:"slack"`
	Webhook []string `yaml:"webhook"`
}

// EnforcementConfig controls budget period handling.
type EnforcementConfig struct {
	// RolloverSchedule is a cron spec for the period rollover sweep.
	// Default: "@every 1m"
	RolloverSchedule string `yaml:"rollover_schedule"`

	// ThrottleRetryAfter is the retry hint returned for throttled scopes.
	// Default: 30s
	ThrottleRetryAfter time.Duration `yaml:"throttle_retry_after"`
}

// NotificationsConfig configures delivery channels.
type NotificationsConfig struct {
	// Timeout bounds a single delivery.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	Email   SMTPConfig    `yaml:"email"`
	Webhook WebhookConfig `yaml:"webhook"`
	NATS    NATSConfig    `yaml:"nats"`
}

// SMTPConfig configures the email channel.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// WebhookConfig configures generic webhook delivery.
type WebhookConfig struct {
	// Headers are added to every webhook request.
	Headers map[string]string `yaml:"headers"`
}

// NATSConfig configures event publishing to NATS.
type NATSConfig struct {
	// URL enables publishing when non-empty.
	URL string `yaml:"url"`

	// Subject is the subject prefix. Alerts publish to "<subject>.alert",
	// budget actions to "<subject>.budget".
	// Default: "meter.events"
	Subject string `yaml:"subject"`
}

// SecretsConfig configures where ${secret:name} references are looked up.
// Files in Dir take precedence over the environment.
type SecretsConfig struct {
	// EnvPrefix namespaces secrets read from the environment. The secret
	// "smtp-password" is read from METER_SECRET_SMTP_PASSWORD.
	// Default: "METER_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, as mounted by Kubernetes.
	Dir string `yaml:"dir"`

	// Watch re-reads files in Dir after they change.
	// Default: false
	Watch bool `yaml:"watch"`

	// CacheTTL bounds how long a resolved value is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RetentionConfig configures ledger pruning. Entries are kept forever
// unless Enabled is set.
type RetentionConfig struct {
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Days is the age after which entries are eligible for pruning.
	// Default: 365
	Days int `yaml:"days"`

	// Schedule is a cron expression.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// ArchivePath, when set, receives a JSON archive of pruned entries.
	ArchivePath string `yaml:"archive_path"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactKeys lists additional attribute keys whose values are masked.
	RedactKeys []string `yaml:"redact_keys"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "meter"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether metrics are on, treating unset as true.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Default: false
	Enabled bool `yaml:"enabled"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name in traces.
	// Default: "meter"
	ServiceName string `yaml:"service_name"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout is the timeout for individual component checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
