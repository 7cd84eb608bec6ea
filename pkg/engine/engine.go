package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mercator-hq/meter/pkg/alert"
	alertstorage "mercator-hq/meter/pkg/alert/storage"
	"mercator-hq/meter/pkg/budget"
	budgetstorage "mercator-hq/meter/pkg/budget/storage"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/estimate"
	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/ledger/export"
	"mercator-hq/meter/pkg/ledger/query"
	"mercator-hq/meter/pkg/ledger/retention"
	"mercator-hq/meter/pkg/notify"
	"mercator-hq/meter/pkg/optimize"
	"mercator-hq/meter/pkg/pricing"
	"mercator-hq/meter/pkg/recorder"
	"mercator-hq/meter/pkg/summary"
	"mercator-hq/meter/pkg/telemetry/health"
	"mercator-hq/meter/pkg/telemetry/metrics"
	"mercator-hq/meter/pkg/telemetry/tracing"
)

// DefaultRolloverSchedule is used when Options.RolloverSchedule is empty.
const DefaultRolloverSchedule = "@every 1m"

// Options configures an Engine. Ledger and Calculator are required. Budget
// and alert state default to in-memory stores.
type Options struct {
	Ledger     ledger.Storage
	Budgets    budget.Store
	Alerts     alert.Store
	Calculator *pricing.Calculator

	// Dispatcher delivers alert and budget notifications. When nil, a
	// dispatcher that only logs is used.
	Dispatcher *notify.Dispatcher

	// ThrottleRetryAfter is the retry hint for throttled budget scopes.
	ThrottleRetryAfter time.Duration

	// RolloverSchedule is the cron spec for the budget rollover sweep.
	RolloverSchedule string

	// Retention enables scheduled ledger pruning when non-nil.
	Retention *retention.Config

	// PricingWatch hot-reloads the pricing table when non-nil.
	PricingWatch *pricing.WatcherConfig

	// PricingSource keeps the pricing table in sync with a remote source,
	// run as a background worker when non-nil.
	PricingSource PricingSource

	// MaxFieldLength bounds sanitized metadata strings.
	MaxFieldLength int

	// Closers are closed on Close after the stores.
	Closers []io.Closer

	Logger  *slog.Logger
	Tracer  *tracing.Tracer
	Metrics *metrics.Collector
	Now     func() time.Time
}

// PricingSource is a background pricing updater. Run blocks until ctx is
// done.
type PricingSource interface {
	Run(ctx context.Context) error
}

// Engine is the metering and enforcement facade.
type Engine struct {
	ledger      ledger.Storage
	budgetStore budget.Store
	alertStore  alert.Store
	calc        *pricing.Calculator
	dispatcher  *notify.Dispatcher

	estimator *estimate.Estimator
	recorder  *recorder.Recorder
	budgets   *budget.Enforcer
	alerts    *alert.Engine
	summaries *summary.Aggregator
	advisor   *optimize.Advisor

	sweeper   *budget.Sweeper
	retention *retention.Scheduler
	watcher   *pricing.Watcher
	source    PricingSource
	closers   []io.Closer

	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	stop  context.CancelFunc
	group *errgroup.Group
}

// New constructs an engine from explicit dependencies.
func New(opts Options) (*Engine, error) {
	if opts.Ledger == nil {
		return nil, errors.New("engine: ledger is required")
	}
	if opts.Calculator == nil {
		return nil, errors.New("engine: pricing calculator is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Budgets == nil {
		opts.Budgets = budgetstorage.NewMemoryStore()
	}
	if opts.Alerts == nil {
		opts.Alerts = alertstorage.NewMemoryStore()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = notify.NewDispatcher(notify.Options{
			Broadcast: []notify.Sender{notify.NewLogSender(opts.Logger)},
			Logger:    opts.Logger,
			Metrics:   opts.Metrics,
		})
	}
	if opts.RolloverSchedule == "" {
		opts.RolloverSchedule = DefaultRolloverSchedule
	}

	e := &Engine{
		ledger:      opts.Ledger,
		budgetStore: opts.Budgets,
		alertStore:  opts.Alerts,
		calc:        opts.Calculator,
		dispatcher:  opts.Dispatcher,
		source:      opts.PricingSource,
		closers:     opts.Closers,
		logger:      opts.Logger.With("component", "engine"),
		metrics:     opts.Metrics,
		now:         opts.Now,
	}

	e.alerts = alert.NewEngine(alert.Options{
		Store:      opts.Alerts,
		Ledger:     opts.Ledger,
		Dispatcher: opts.Dispatcher,
		Logger:     opts.Logger,
		Tracer:     opts.Tracer,
		Metrics:    opts.Metrics,
		Now:        opts.Now,
	})

	gate := budget.NewGate(opts.ThrottleRetryAfter)
	e.budgets = budget.NewEnforcer(budget.Options{
		Store:    opts.Budgets,
		Gate:     gate,
		Listener: budget.ListenerFunc(e.onBudgetAction),
		Logger:   opts.Logger,
		Tracer:   opts.Tracer,
		Metrics:  opts.Metrics,
		Now:      opts.Now,
	})

	e.estimator = estimate.NewEstimator(opts.Calculator, opts.Logger)
	e.recorder = recorder.New(recorder.Options{
		Ledger:         opts.Ledger,
		Calculator:     opts.Calculator,
		Budgets:        e.budgets,
		Alerts:         e.alerts,
		MaxFieldLength: opts.MaxFieldLength,
		Logger:         opts.Logger,
		Tracer:         opts.Tracer,
		Metrics:        opts.Metrics,
		Now:            opts.Now,
	})
	e.summaries = summary.NewAggregator(opts.Ledger, opts.Tracer, opts.Logger)
	e.advisor = optimize.NewAdvisor()
	e.sweeper = budget.NewSweeper(e.budgets, opts.RolloverSchedule)

	if opts.Retention != nil {
		e.retention = retention.NewScheduler(retention.NewPruner(opts.Ledger, *opts.Retention, opts.Logger))
	}
	if opts.PricingWatch != nil {
		w, err := pricing.NewWatcher(*opts.PricingWatch, opts.Calculator, opts.Logger)
		if err != nil {
			return nil, err
		}
		e.watcher = w
	}

	return e, nil
}

// onBudgetAction forwards budget events to budget alerts and broadcasts them
// to the event channels.
func (e *Engine) onBudgetAction(ctx context.Context, ev budget.Event) {
	e.alerts.OnBudgetAction(ctx, ev)
	e.dispatcher.Dispatch(ctx, budgetNotification(ev), notify.Targets{})
}

func budgetNotification(ev budget.Event) notify.Notification {
	b := ev.Budget
	severity := string(alert.SeverityWarning)
	if ev.Level != budget.LevelWarning {
		severity = string(alert.SeverityCritical)
	}
	action := string(ev.Action)
	if action == "" {
		action = "none"
	}
	return notify.Notification{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Kind:     notify.KindBudget,
		Title:    fmt.Sprintf("Budget %s reached %s", b.Name, ev.Level),
		Message:  fmt.Sprintf("$%.2f of $%.2f spent (%.1f%%), action %s", b.SpentUSD, b.BudgetUSD, b.UtilizationPercent, action),
		Severity: severity,
		At:       ev.At,
		BudgetID: b.ID,
		Entry:    ev.Entry,
		Fields: map[string]string{
			"level":               string(ev.Level),
			"action":              action,
			"status":              string(b.Status),
			"utilization_percent": strconv.FormatFloat(b.UtilizationPercent, 'f', 1, 64),
		},
	}
}

// Start launches the background workers. They stop when ctx is canceled or
// Close is called.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	if err := e.sweeper.Start(gctx); err != nil {
		cancel()
		return err
	}
	if e.retention != nil {
		if err := e.retention.Start(gctx); err != nil {
			cancel()
			return err
		}
	}
	if e.watcher != nil {
		g.Go(func() error { return e.watcher.Watch(gctx) })
	}
	if e.source != nil {
		g.Go(func() error { return e.source.Run(gctx) })
	}

	e.stop = cancel
	e.group = g
	e.logger.Info("engine started",
		"retention", e.retention != nil,
		"pricing_watch", e.watcher != nil,
		"pricing_sync", e.source != nil,
	)
	return nil
}

// Close stops the workers, waits for in-flight notifications and closes the
// stores. It is safe to call without Start.
func (e *Engine) Close() error {
	var errs []error
	if e.stop != nil {
		e.stop()
		if err := e.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	e.sweeper.Stop()
	if e.retention != nil {
		e.retention.Stop()
	}
	if e.watcher != nil {
		if err := e.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	e.dispatcher.Close()

	for _, c := range []io.Closer{e.alertStore, e.budgetStore, e.ledger} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegisterHealthChecks adds the ledger readiness check.
func (e *Engine) RegisterHealthChecks(c *health.Checker) {
	c.RegisterCheck("ledger", health.PingCheck(e.ledger))
}

// Estimator returns the pre-execution cost estimator.
func (e *Engine) Estimator() *estimate.Estimator { return e.estimator }

// Calculator returns the pricing calculator.
func (e *Engine) Calculator() *pricing.Calculator { return e.calc }

// EstimateTool estimates a single tool invocation.
func (e *Engine) EstimateTool(p estimate.ToolParams) estimate.Estimate {
	return e.estimator.EstimateTool(p)
}

// EstimateLLM estimates an LLM call.
func (e *Engine) EstimateLLM(p estimate.LLMParams) estimate.Estimate {
	return e.estimator.EstimateLLM(p)
}

// EstimateOpenAI estimates an OpenAI call.
func (e *Engine) EstimateOpenAI(p estimate.LLMParams) estimate.Estimate {
	return e.estimator.EstimateOpenAI(p)
}

// EstimateWorkflow estimates a workflow run.
func (e *Engine) EstimateWorkflow(p estimate.WorkflowParams) estimate.Estimate {
	return e.estimator.EstimateWorkflow(p)
}

// EstimateResearch estimates a research job.
func (e *Engine) EstimateResearch(p estimate.ResearchParams) estimate.Estimate {
	return e.estimator.EstimateResearch(p)
}

// EstimateInfrastructure estimates infrastructure usage.
func (e *Engine) EstimateInfrastructure(p estimate.InfrastructureParams) estimate.Estimate {
	return e.estimator.EstimateInfrastructure(p)
}

// RecordCost prices, persists and fans out a completed operation. The error
// is non-nil only when the draft is invalid or persistence fails.
func (e *Engine) RecordCost(ctx context.Context, draft costs.Draft) (*costs.Entry, error) {
	return e.recorder.RecordCost(ctx, draft)
}

// GetEntry returns one ledger entry.
func (e *Engine) GetEntry(ctx context.Context, id string) (*costs.Entry, error) {
	return e.ledger.Get(ctx, id)
}

// ListEntries returns a page of ledger entries. Listing defaults are applied
// before validation.
func (e *Engine) ListEntries(ctx context.Context, q ledger.Query) ([]*costs.Entry, error) {
	query.ApplyDefaults(&q)
	if err := query.Validate(&q); err != nil {
		return nil, err
	}
	return e.ledger.Query(ctx, &q)
}

// CreateBudget validates and stores a new budget.
func (e *Engine) CreateBudget(ctx context.Context, spec budget.Spec) (*budget.Budget, error) {
	return e.budgets.CreateBudget(ctx, spec)
}

// GetBudget returns one budget.
func (e *Engine) GetBudget(ctx context.Context, id string) (*budget.Budget, error) {
	return e.budgets.GetBudget(ctx, id)
}

// ListBudgets returns every budget.
func (e *Engine) ListBudgets(ctx context.Context) ([]*budget.Budget, error) {
	return e.budgets.ListBudgets(ctx)
}

// Decide returns the pre-flight enforcement decision for a planned operation.
func (e *Engine) Decide(draft costs.Draft) budget.Decision {
	return e.budgets.Decide(draft)
}

// CreateAlert validates and stores a new alert.
func (e *Engine) CreateAlert(ctx context.Context, spec alert.Spec) (*alert.Alert, error) {
	return e.alerts.CreateAlert(ctx, spec)
}

// GetAlert returns one alert.
func (e *Engine) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	return e.alerts.GetAlert(ctx, id)
}

// ListAlerts returns every alert.
func (e *Engine) ListAlerts(ctx context.Context) ([]*alert.Alert, error) {
	return e.alerts.ListAlerts(ctx)
}

// GetCostSummary summarizes the inclusive range [start, end].
func (e *Engine) GetCostSummary(ctx context.Context, start, end time.Time, filters summary.Filters) (*summary.Summary, error) {
	return e.summaries.GetCostSummary(ctx, start, end, filters)
}

// GetOptimizationRecommendations summarizes the range and derives
// recommendations from it.
func (e *Engine) GetOptimizationRecommendations(ctx context.Context, start, end time.Time, filters summary.Filters) ([]optimize.Optimization, error) {
	s, err := e.summaries.GetCostSummary(ctx, start, end, filters)
	if err != nil {
		return nil, err
	}
	return e.advisor.Recommend(s), nil
}

// ExportCostData renders the summary for [start, end] as csv or json.
// The format and the range are both checked before the ledger is read.
func (e *Engine) ExportCostData(ctx context.Context, start, end time.Time, format string) (*export.Payload, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	s, err := e.summaries.GetCostSummary(ctx, start, end, summary.Filters{})
	if err != nil {
		return nil, err
	}
	return export.Summary(s, f)
}

// ExportEntries streams every entry in [start, end] matching filters to w
// and returns the number written.
func (e *Engine) ExportEntries(ctx context.Context, start, end time.Time, filters summary.Filters, format string, w io.Writer) (int, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return 0, err
	}
	if err := query.ValidatePeriod(start, end); err != nil {
		return 0, err
	}
	q := filters.Query(start, end)
	q.SortBy = ledger.SortByTimestamp
	q.SortOrder = ledger.SortAsc
	if err := query.Validate(q); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entriesCh, errCh, err := e.ledger.QueryStream(ctx, q)
	if err != nil {
		return 0, err
	}
	n, err := export.Entries(ctx, entriesCh, w, f)
	if err != nil {
		cancel()
		for range entriesCh {
		}
		return n, err
	}
	if err := <-errCh; err != nil {
		return n, err
	}
	e.logger.Debug("entries exported", "format", f, "entries", n)
	return n, nil
}
