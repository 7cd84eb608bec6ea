package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"mercator-hq/meter/pkg/alert"
	alertstorage "mercator-hq/meter/pkg/alert/storage"
	"mercator-hq/meter/pkg/budget"
	budgetstorage "mercator-hq/meter/pkg/budget/storage"
	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/ledger/retention"
	ledgerstorage "mercator-hq/meter/pkg/ledger/storage"
	"mercator-hq/meter/pkg/notify"
	"mercator-hq/meter/pkg/pricing"
	"mercator-hq/meter/pkg/pricing/gitsource"
	"mercator-hq/meter/pkg/secrets"
	"mercator-hq/meter/pkg/telemetry"
)

// Storage backend names accepted in configuration.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// NewFromConfig builds an engine, its stores and its notification channels
// from a validated configuration. Budgets and alerts declared in cfg are
// created unless they already exist in the state store. Readiness checks
// are registered on tel.Health.
func NewFromConfig(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (_ *Engine, err error) {
	var (
		opened []io.Closer
		eng    *Engine
	)
	defer func() {
		if err == nil {
			return
		}
		if eng != nil {
			_ = eng.Close()
			return
		}
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i].Close()
		}
	}()

	logger := tel.Logger

	ledgerStore, err := openLedger(cfg.Storage)
	if err != nil {
		return nil, err
	}
	opened = append(opened, ledgerStore)

	budgetStore, alertStore, err := openState(cfg.Storage)
	if err != nil {
		return nil, err
	}
	opened = append(opened, budgetStore, alertStore)

	res, err := resolveSecrets(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if res.closer != nil {
		opened = append(opened, res.closer)
	}

	table := pricing.DefaultTable()
	if cfg.Pricing.File != "" {
		table, err = pricing.LoadTable(cfg.Pricing.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing table: %w", err)
		}
	}
	calc := pricing.NewCalculator(table)

	var pricingSource PricingSource
	if cfg.Pricing.Git.Repository != "" {
		src, err := gitsource.New(res.pricingGit, calc, logger)
		if err != nil {
			return nil, err
		}
		if table, err = src.Sync(ctx); err != nil {
			return nil, fmt.Errorf("failed to sync pricing table: %w", err)
		}
		pricingSource = src
	}

	dispatcher, closers, err := newDispatcher(res.notifications, tel)
	if err != nil {
		return nil, err
	}
	opened = append(opened, closers...)
	if res.closer != nil {
		closers = append(closers, res.closer)
	}

	opts := Options{
		Ledger:             ledgerStore,
		Budgets:            budgetStore,
		Alerts:             alertStore,
		Calculator:         calc,
		Dispatcher:         dispatcher,
		ThrottleRetryAfter: cfg.Enforcement.ThrottleRetryAfter,
		RolloverSchedule:   cfg.Enforcement.RolloverSchedule,
		PricingSource:      pricingSource,
		Closers:            closers,
		Logger:             logger,
		Tracer:             tel.Tracer,
		Metrics:            tel.Metrics,
	}
	if cfg.Retention.Enabled {
		opts.Retention = &retention.Config{
			Days:        cfg.Retention.Days,
			Schedule:    cfg.Retention.Schedule,
			ArchivePath: cfg.Retention.ArchivePath,
		}
	}
	if cfg.Pricing.File != "" && cfg.Pricing.Watch && pricingSource == nil {
		opts.PricingWatch = &pricing.WatcherConfig{
			Path:             cfg.Pricing.File,
			DebounceInterval: cfg.Pricing.DebounceInterval,
		}
	}

	eng, err = New(opts)
	if err != nil {
		return nil, err
	}

	if err := eng.budgets.LoadConfigured(ctx, cfg.Budgets); err != nil {
		return nil, fmt.Errorf("failed to load configured budgets: %w", err)
	}
	if err := eng.alerts.LoadConfigured(ctx, res.alerts); err != nil {
		return nil, fmt.Errorf("failed to load configured alerts: %w", err)
	}
	if tel.Health != nil {
		eng.RegisterHealthChecks(tel.Health)
	}

	logger.Info("engine configured",
		"ledger_backend", cfg.Storage.Backend,
		"state_backend", cfg.Storage.StateBackend,
		"pricing_services", len(table.Services),
		"budgets", len(cfg.Budgets),
		"alerts", len(cfg.Alerts),
	)
	return eng, nil
}

// resolvedSecrets holds copies of the config sections that may carry
// ${secret:name} references, with the references expanded.
type resolvedSecrets struct {
	notifications config.NotificationsConfig
	alerts        []config.AlertConfig
	pricingGit    config.PricingGitConfig

	// closer stops the secrets directory watcher. It is nil when no
	// directory is configured.
	closer io.Closer
}

// resolveSecrets expands references in notification credentials, alert
// targets and the pricing repository token. cfg is not modified.
func resolveSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*resolvedSecrets, error) {
	resolver, fp, err := secrets.FromConfig(cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets: %w", err)
	}
	res := &resolvedSecrets{
		notifications: cfg.Notifications,
		pricingGit:    cfg.Pricing.Git,
	}
	if fp != nil {
		res.closer = fp
	}
	fail := func(err error) (*resolvedSecrets, error) {
		if res.closer != nil {
			_ = res.closer.Close()
		}
		return nil, err
	}

	res.notifications.Webhook.Headers = maps.Clone(cfg.Notifications.Webhook.Headers)
	if err := resolver.ExpandNotifications(ctx, &res.notifications); err != nil {
		return fail(fmt.Errorf("failed to resolve notification secrets: %w", err))
	}

	res.alerts = make([]config.AlertConfig, len(cfg.Alerts))
	for i, a := range cfg.Alerts {
		a.Notifications.Email = slices.Clone(a.Notifications.Email)
		a.Notifications.Slack = slices.Clone(a.Notifications.Slack)
		a.Notifications.Webhook = slices.Clone(a.Notifications.Webhook)
		for _, list := range [][]string{a.Notifications.Email, a.Notifications.Slack, a.Notifications.Webhook} {
			if err := resolver.ExpandAll(ctx, list); err != nil {
				return fail(fmt.Errorf("alert %s: failed to resolve notification secrets: %w", a.ID, err))
			}
		}
		res.alerts[i] = a
	}

	if res.pricingGit.Auth.Token, err = resolver.Expand(ctx, cfg.Pricing.Git.Auth.Token); err != nil {
		return fail(fmt.Errorf("failed to resolve pricing repository token: %w", err))
	}
	return res, nil
}

func openLedger(cfg config.StorageConfig) (ledger.Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return ledgerstorage.NewMemoryStorage(), nil
	case BackendSQLite, "":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		return ledgerstorage.NewSQLiteStorage(&ledgerstorage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALEnabled(),
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// openState opens the budget and alert stores. With SQLite both share one
// database file in separate tables.
func openState(cfg config.StorageConfig) (budget.Store, alert.Store, error) {
	switch cfg.StateBackend {
	case BackendMemory:
		return budgetstorage.NewMemoryStore(), alertstorage.NewMemoryStore(), nil
	case BackendSQLite, "":
		if err := ensureDir(cfg.StatePath); err != nil {
			return nil, nil, err
		}
		budgets, err := budgetstorage.NewSQLiteStore(budgetstorage.SQLiteConfig{
			Path:        cfg.StatePath,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open budget store: %w", err)
		}
		alerts, err := alertstorage.NewSQLiteStore(alertstorage.SQLiteConfig{
			Path:        cfg.StatePath,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("failed to open alert store: %w", err), budgets.Close())
		}
		return budgets, alerts, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

// newDispatcher builds the channel senders. Email is enabled by an SMTP
// host, NATS by a URL. Slack and webhook need no global settings since
// their targets are URLs. The returned closers own network connections.
func newDispatcher(cfg config.NotificationsConfig, tel *telemetry.Telemetry) (*notify.Dispatcher, []io.Closer, error) {
	client := notify.NewHTTPClient(cfg.Timeout)
	opts := notify.Options{
		Slack:     notify.NewSlackSender(client),
		Webhook:   notify.NewWebhookSender(client, cfg.Webhook.Headers),
		Broadcast: []notify.Sender{notify.NewLogSender(tel.Logger)},
		Timeout:   cfg.Timeout,
		Logger:    tel.Logger,
		Metrics:   tel.Metrics,
	}
	if cfg.Email.Host != "" {
		opts.Email = notify.NewEmailSender(cfg.Email)
	}

	var closers []io.Closer
	if cfg.NATS.URL != "" {
		pub, err := notify.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, nil, err
		}
		opts.Broadcast = append(opts.Broadcast, pub)
		closers = append(closers, pub)
	}
	return notify.NewDispatcher(opts), closers, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %q: %w", dir, err)
	}
	return nil
}
