package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/notify"
	"mercator-hq/meter/pkg/telemetry/metrics"
	"mercator-hq/meter/pkg/telemetry/tracing"
)

// Suppression reasons recorded in metrics.
const (
	SuppressedCooldown  = "cooldown"
	SuppressedContended = "contended"
)

// Dispatcher delivers notifications without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification, t notify.Targets)
}

// Options configures an Engine. Store is required. Ledger is required for
// spike and volume alerts.
type Options struct {
	Store      Store
	Ledger     ledger.Storage
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Tracer     *tracing.Tracer
	Metrics    *metrics.Collector
	Now        func() time.Time
}

// Engine evaluates alerts.
type Engine struct {
	store      Store
	ledger     ledger.Storage
	dispatcher Dispatcher
	logger     *slog.Logger
	tracer     *tracing.Tracer
	metrics    *metrics.Collector
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an alert engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:      opts.Store,
		ledger:     opts.Ledger,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger.With("component", "alert.engine"),
		tracer:     opts.Tracer,
		metrics:    opts.Metrics,
		now:        opts.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// CreateAlert validates spec and stores a new alert.
func (e *Engine) CreateAlert(ctx context.Context, spec Spec) (*Alert, error) {
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	a := newAlert(spec, e.now().UTC())
	if err := e.store.Create(ctx, a); err != nil {
		return nil, err
	}
	e.logger.Info("alert created",
		"alert_id", a.ID,
		"name", a.Name,
		"type", a.Type,
		"severity", a.Severity,
		"cooldown_minutes", a.CooldownMinutes,
	)
	return a, nil
}

// LoadConfigured creates the configured alerts. Alerts already present in
// the store keep their trigger state.
func (e *Engine) LoadConfigured(ctx context.Context, alerts []config.AlertConfig) error {
	var errs []error
	for _, cfg := range alerts {
		_, err := e.CreateAlert(ctx, SpecFromConfig(cfg))
		if errors.Is(err, ErrDuplicateAlert) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("alert %q: %w", cfg.Name, err))
		}
	}
	return errors.Join(errs...)
}

// GetAlert returns an alert by id.
func (e *Engine) GetAlert(ctx context.Context, id string) (*Alert, error) {
	return e.store.Get(ctx, id)
}

// ListAlerts returns every alert.
func (e *Engine) ListAlerts(ctx context.Context) ([]*Alert, error) {
	return e.store.List(ctx)
}

// trigger is the detail of a condition that held.
type trigger struct {
	title   string
	message string
	fields  map[string]string
}

// CheckAlerts evaluates every enabled entry-driven alert against entry.
func (e *Engine) CheckAlerts(ctx context.Context, entry *costs.Entry) error {
	ctx, span := e.tracer.Start(ctx, "meter.alert.check")
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrEntryID, entry.ID))

	alerts, err := e.store.List(ctx)
	if err != nil {
		tracing.SetError(span, err)
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	var (
		fired int
		errs  []error
	)
	for _, a := range alerts {
		if !a.Enabled || a.Type == TypeBudget {
			continue
		}
		trig, ok, err := e.evaluate(ctx, a, entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", a.ID, err))
			continue
		}
		if !ok {
			continue
		}
		won, err := e.fire(ctx, a, trig, entry, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", a.ID, err))
			continue
		}
		if won {
			fired++
		}
	}
	span.SetAttributes(attribute.Int(tracing.AttrAlertsFired, fired))

	err = errors.Join(errs...)
	tracing.SetStatus(span, err)
	return err
}

// evaluate checks a's conditions. Every type is handled explicitly.
func (e *Engine) evaluate(ctx context.Context, a *Alert, entry *costs.Entry) (trigger, bool, error) {
	if !a.Conditions.matches(entry) {
		return trigger{}, false, nil
	}

	fields := map[string]string{
		"entry_id":  entry.ID,
		"category":  string(entry.Category),
		"service":   entry.Service,
		"operation": entry.Operation,
		"cost_usd":  strconv.FormatFloat(entry.CostUSD, 'f', 4, 64),
		"initiator": entry.InitiatedBy.Key(),
	}

	switch a.Type {
	case TypeThreshold:
		msg := fmt.Sprintf("%s %s cost $%.4f", entry.Service, entry.Operation, entry.CostUSD)
		if t := a.Conditions.CostThresholdUSD; t != nil {
			msg += fmt.Sprintf(" (threshold $%.4f)", *t)
		}
		return trigger{title: a.Name, message: msg, fields: fields}, true, nil

	case TypeSpike:
		return e.evaluateSpike(ctx, a, fields)

	case TypeVolume:
		return e.evaluateVolume(ctx, a, fields)

	default:
		e.logger.Warn("alert has unknown type",
			"category", "config",
			"alert_id", a.ID,
			"type", a.Type,
		)
		return trigger{}, false, nil
	}
}

func (e *Engine) windowQuery(a *Alert, from, to time.Time) *ledger.Query {
	return &ledger.Query{
		StartTime:  &from,
		EndTime:    &to,
		Categories: a.Conditions.Categories,
		Services:   a.Conditions.Services,
	}
}

// evaluateSpike compares spend in [now-w, now] with the preceding window of
// the same length. A window with no prior spend has no baseline.
func (e *Engine) evaluateSpike(ctx context.Context, a *Alert, fields map[string]string) (trigger, bool, error) {
	if e.ledger == nil {
		return trigger{}, false, ErrNoLedger
	}
	w := a.Conditions.TimeWindow.Duration()
	now := e.now().UTC()

	current, err := e.ledger.Stats(ctx, e.windowQuery(a, now.Add(-w), now))
	if err != nil {
		return trigger{}, false, err
	}
	previous, err := e.ledger.Stats(ctx, e.windowQuery(a, now.Add(-2*w), now.Add(-w-time.Nanosecond)))
	if err != nil {
		return trigger{}, false, err
	}
	if previous.TotalCostUSD <= 0 {
		return trigger{}, false, nil
	}

	increase := (current.TotalCostUSD - previous.TotalCostUSD) / previous.TotalCostUSD * 100
	if increase < *a.Conditions.PercentageIncrease {
		return trigger{}, false, nil
	}

	fields["window"] = w.String()
	fields["current_usd"] = strconv.FormatFloat(current.TotalCostUSD, 'f', 4, 64)
	fields["previous_usd"] = strconv.FormatFloat(previous.TotalCostUSD, 'f', 4, 64)
	fields["increase_percent"] = strconv.FormatFloat(increase, 'f', 1, 64)
	return trigger{
		title: a.Name,
		message: fmt.Sprintf("Spend rose %.1f%% over the last %s ($%.4f vs $%.4f)",
			increase, w, current.TotalCostUSD, previous.TotalCostUSD),
		fields: fields,
	}, true, nil
}

// evaluateVolume counts matching entries in [now-w, now].
func (e *Engine) evaluateVolume(ctx context.Context, a *Alert, fields map[string]string) (trigger, bool, error) {
	if e.ledger == nil {
		return trigger{}, false, ErrNoLedger
	}
	w := a.Conditions.TimeWindow.Duration()
	now := e.now().UTC()

	count, err := e.ledger.Count(ctx, e.windowQuery(a, now.Add(-w), now))
	if err != nil {
		return trigger{}, false, err
	}
	if count < a.Conditions.MinOperations {
		return trigger{}, false, nil
	}

	fields["window"] = w.String()
	fields["operations"] = strconv.FormatInt(count, 10)
	return trigger{
		title:   a.Name,
		message: fmt.Sprintf("%d operations in the last %s (minimum %d)", count, w, a.Conditions.MinOperations),
		fields:  fields,
	}, true, nil
}

// fire applies the cooldown gate and dispatches. It reports whether this
// call fired the alert.
func (e *Engine) fire(ctx context.Context, a *Alert, trig trigger, entry *costs.Entry, budgetID string) (bool, error) {
	l := e.lock(a.ID)
	l.Lock()
	defer l.Unlock()

	current, err := e.store.Get(ctx, a.ID)
	if err != nil {
		return false, err
	}

	now := e.now().UTC()
	if current.InCooldown(now) {
		e.metrics.RecordAlertSuppressed(a.ID, SuppressedCooldown)
		e.logger.Debug("alert suppressed by cooldown",
			"alert_id", a.ID,
			"last_triggered", *current.LastTriggered,
			"cooldown_minutes", current.CooldownMinutes,
		)
		return false, nil
	}

	won, err := e.store.MarkTriggered(ctx, a.ID, current.LastTriggered, now)
	if err != nil {
		return false, err
	}
	if !won {
		e.metrics.RecordAlertSuppressed(a.ID, SuppressedContended)
		return false, nil
	}

	e.metrics.RecordAlertFired(a.ID, string(a.Severity))
	e.logger.Warn("alert fired",
		"alert_id", a.ID,
		"name", a.Name,
		"type", a.Type,
		"severity", a.Severity,
		"trigger_count", current.TriggerCount+1,
		"message", trig.message,
	)

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, notify.Notification{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Kind:      notify.KindAlert,
			Title:     trig.title,
			Message:   trig.message,
			Severity:  string(a.Severity),
			At:        now,
			AlertID:   a.ID,
			AlertName: a.Name,
			BudgetID:  budgetID,
			Entry:     entry,
			Fields:    trig.fields,
		}, a.Notifications)
	}
	return true, nil
}

// OnBudgetAction fires enabled budget alerts whose category and service
// conditions overlap the budget's scope.
func (e *Engine) OnBudgetAction(ctx context.Context, ev budget.Event) {
	alerts, err := e.store.List(ctx)
	if err != nil {
		e.logger.Error("failed to list alerts for budget event", "budget_id", ev.Budget.ID, "error", err)
		return
	}

	b := ev.Budget
	for _, a := range alerts {
		if !a.Enabled || a.Type != TypeBudget {
			continue
		}
		if !overlaps(a.Conditions.Categories, b.Categories) || !overlaps(a.Conditions.Services, b.Services) {
			continue
		}

		trig := trigger{
			title: fmt.Sprintf("%s: %s", a.Name, b.Name),
			message: fmt.Sprintf("Budget %q reached its %s threshold: $%.2f of $%.2f (%.1f%%), action %s",
				b.Name, ev.Level, b.SpentUSD, b.BudgetUSD, b.UtilizationPercent, actionName(ev.Action)),
			fields: map[string]string{
				"budget_id":           b.ID,
				"level":               string(ev.Level),
				"action":              actionName(ev.Action),
				"spent_usd":           strconv.FormatFloat(b.SpentUSD, 'f', 4, 64),
				"budget_usd":          strconv.FormatFloat(b.BudgetUSD, 'f', 4, 64),
				"utilization_percent": strconv.FormatFloat(b.UtilizationPercent, 'f', 1, 64),
			},
		}
		if _, err := e.fire(ctx, a, trig, ev.Entry, b.ID); err != nil {
			e.logger.Error("failed to fire budget alert",
				"alert_id", a.ID,
				"budget_id", b.ID,
				"error", err,
			)
		}
	}
}

// overlaps reports whether filter is empty or shares an element with scope.
// An empty scope matches any filter.
func overlaps[T comparable](filter, scope []T) bool {
	if len(filter) == 0 || len(scope) == 0 {
		return true
	}
	for _, f := range filter {
		if slices.Contains(scope, f) {
			return true
		}
	}
	return false
}

func actionName(a budget.Action) string {
	if a == budget.ActionNone {
		return "none"
	}
	return string(a)
}
