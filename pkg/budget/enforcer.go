package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/telemetry/metrics"
	"mercator-hq/meter/pkg/telemetry/tracing"
)

// Event describes one threshold reached by one budget.
type Event struct {
	Budget *Budget      `json:"budget"`
	Level  Level        `json:"level"`
	Action Action       `json:"action"`
	Entry  *costs.Entry `json:"entry,omitempty"`
	At     time.Time    `json:"at"`
}

// Listener is told about every auto-action the enforcer takes.
// Implementations must not block.
type Listener interface {
	OnBudgetAction(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event)

// OnBudgetAction calls f.
func (f ListenerFunc) OnBudgetAction(ctx context.Context, ev Event) { f(ctx, ev) }

// Options configures an Enforcer. Store is required.
type Options struct {
	Store    Store
	Gate     *Gate
	Listener Listener
	Logger   *slog.Logger
	Tracer   *tracing.Tracer
	Metrics  *metrics.Collector
	Now      func() time.Time
}

// Enforcer evaluates entries against budgets and applies auto-actions.
type Enforcer struct {
	store    Store
	gate     *Gate
	listener Listener
	logger   *slog.Logger
	tracer   *tracing.Tracer
	metrics  *metrics.Collector
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEnforcer creates an enforcer.
func NewEnforcer(opts Options) *Enforcer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Gate == nil {
		opts.Gate = NewGate(0)
		opts.Gate.now = opts.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}
	return &Enforcer{
		store:    opts.Store,
		gate:     opts.Gate,
		listener: opts.Listener,
		logger:   opts.Logger.With("component", "budget.enforcer"),
		tracer:   opts.Tracer,
		metrics:  opts.Metrics,
		now:      opts.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Gate returns the enforcer's restriction gate.
func (e *Enforcer) Gate() *Gate {
	return e.gate
}

// lock returns the mutex serializing checks on one budget.
func (e *Enforcer) lock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// CreateBudget validates spec and stores a new active budget.
func (e *Enforcer) CreateBudget(ctx context.Context, spec Spec) (*Budget, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	b := newBudget(spec, e.now().UTC())
	for _, level := range Levels() {
		if a := b.AutoActions.For(level); !a.Known() {
			e.logger.Warn("budget has unknown auto-action",
				"category", "config",
				"budget_id", b.ID,
				"level", level,
				"action", a,
			)
		}
	}

	if err := e.store.Create(ctx, b); err != nil {
		return nil, err
	}
	e.metrics.SetBudgetUtilization(b.ID, 0)

	e.logger.Info("budget created",
		"budget_id", b.ID,
		"name", b.Name,
		"period", b.Period,
		"budget_usd", b.BudgetUSD,
	)
	return b.Clone(), nil
}

// LoadConfigured creates the configured budgets and restores gate
// restrictions from the store. Budgets already present keep their
// persisted state.
func (e *Enforcer) LoadConfigured(ctx context.Context, budgets []config.BudgetConfig) error {
	var errs []error
	for _, cfg := range budgets {
		_, err := e.CreateBudget(ctx, SpecFromConfig(cfg))
		if errors.Is(err, ErrDuplicateBudget) {
			e.logger.Debug("configured budget already stored", "name", cfg.Name)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("budget %q: %w", cfg.Name, err))
		}
	}
	if err := e.RestoreRestrictions(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GetBudget returns a budget by id.
func (e *Enforcer) GetBudget(ctx context.Context, id string) (*Budget, error) {
	return e.store.Get(ctx, id)
}

// ListBudgets returns every budget.
func (e *Enforcer) ListBudgets(ctx context.Context) ([]*Budget, error) {
	return e.store.List(ctx)
}

// Decide returns the pre-flight verdict for an operation described by d.
func (e *Enforcer) Decide(d costs.Draft) Decision {
	return e.gate.Decide(d)
}

// CheckBudgets applies entry to every matching budget. Each budget is
// updated independently and errors from all of them are joined.
func (e *Enforcer) CheckBudgets(ctx context.Context, entry *costs.Entry) error {
	ctx, span := e.tracer.Start(ctx, "meter.budget.check")
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrEntryID, entry.ID))

	budgets, err := e.store.List(ctx)
	if err != nil {
		tracing.SetError(span, err)
		return fmt.Errorf("failed to list budgets: %w", err)
	}

	var (
		matched int
		errs    []error
	)
	for _, b := range budgets {
		if !b.Applies(entry) {
			continue
		}
		matched++
		if err := e.check(ctx, span, b.ID, entry); err != nil {
			errs = append(errs, fmt.Errorf("budget %s: %w", b.ID, err))
		}
	}
	span.SetAttributes(attribute.Int(tracing.AttrBudgetsMatched, matched))

	err = errors.Join(errs...)
	tracing.SetStatus(span, err)
	return err
}

func (e *Enforcer) check(ctx context.Context, span trace.Span, id string, entry *costs.Entry) error {
	l := e.lock(id)
	l.Lock()
	defer l.Unlock()

	b, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if b.Due(entry.Timestamp) {
		if err := e.rollover(ctx, b, entry.Timestamp); err != nil {
			return err
		}
	}
	if b.Period != PeriodCustom && entry.Timestamp.Before(b.PeriodStart) {
		e.logger.Debug("entry predates current budget period",
			"budget_id", id,
			"entry_id", entry.ID,
			"period_start", b.PeriodStart,
		)
		return nil
	}

	updated, crossed, err := e.store.AddSpend(ctx, id, entry.CostUSD, e.now().UTC())
	if err != nil {
		return err
	}
	e.metrics.SetBudgetUtilization(id, updated.UtilizationPercent)
	if len(crossed) == 0 {
		return nil
	}

	events := make([]Event, 0, len(crossed))
	for _, level := range crossed {
		events = append(events, Event{Level: level, Action: updated.AutoActions.For(level), Entry: entry})
	}

	at := e.now().UTC()
	for _, ev := range events {
		ev.Budget = updated.Clone()
		ev.At = at
		span.AddEvent("budget.threshold", trace.WithAttributes(
			attribute.String(tracing.AttrBudgetID, id),
			attribute.String(tracing.AttrAction, string(ev.Action)),
			attribute.Float64(tracing.AttrUtilization, updated.UtilizationPercent),
		))
		e.dispatch(ctx, ev)
	}
	return nil
}

// dispatch runs the handler for ev.Action. Every action is handled
// explicitly; anything else is a configuration problem.
func (e *Enforcer) dispatch(ctx context.Context, ev Event) {
	b := ev.Budget
	switch ev.Action {
	case ActionNone:
		e.logger.Info("budget threshold reached",
			"budget_id", b.ID,
			"level", ev.Level,
			"utilization_percent", b.UtilizationPercent,
		)
		return
	case ActionNotify:
	case ActionThrottle, ActionSuspend, ActionBlock:
		v, _ := verdictFor(ev.Action)
		e.gate.Restrict(restrictionFor(b, v, ev.Level))
	default:
		e.logger.Warn("unknown budget auto-action ignored",
			"category", "config",
			"budget_id", b.ID,
			"level", ev.Level,
			"action", ev.Action,
		)
		e.metrics.RecordUnknownAction(b.ID)
		return
	}

	e.metrics.RecordBudgetAction(b.ID, string(ev.Action), string(ev.Level))
	e.logger.Warn("budget auto-action applied",
		"budget_id", b.ID,
		"level", ev.Level,
		"action", ev.Action,
		"spent_usd", b.SpentUSD,
		"utilization_percent", b.UtilizationPercent,
	)
	if e.listener != nil {
		e.listener.OnBudgetAction(ctx, ev)
	}
}

// rollover resets b into the period containing t. Caller holds b's lock.
func (e *Enforcer) rollover(ctx context.Context, b *Budget, t time.Time) error {
	prevStart, prevEnd := b.PeriodStart, b.PeriodEnd
	b.resetFor(t)
	ok, err := e.store.Reset(ctx, b, prevStart)
	if err != nil {
		return fmt.Errorf("failed to roll over budget: %w", err)
	}
	if !ok {
		cur, err := e.store.Get(ctx, b.ID)
		if err != nil {
			return err
		}
		*b = *cur
		e.logger.Debug("budget period already rolled over", "budget_id", b.ID, "period_start", b.PeriodStart)
		e.restore(b, t)
		return nil
	}
	e.gate.Clear(b.ID)
	e.metrics.SetBudgetUtilization(b.ID, 0)

	e.logger.Info("budget period rolled over",
		"budget_id", b.ID,
		"previous_period_end", prevEnd,
		"period_start", b.PeriodStart,
		"period_end", b.PeriodEnd,
	)
	return nil
}

// RestoreRestrictions rebuilds the gate from stored budgets so throttles,
// suspensions and blocks survive a restart and pick up thresholds reached
// by other processes sharing the store. Nothing is re-notified.
func (e *Enforcer) RestoreRestrictions(ctx context.Context) error {
	budgets, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list budgets: %w", err)
	}

	now := e.now().UTC()
	var errs []error
	for _, candidate := range budgets {
		if err := e.restoreByID(ctx, candidate.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("budget %s: %w", candidate.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Enforcer) restoreByID(ctx context.Context, id string, now time.Time) error {
	l := e.lock(id)
	l.Lock()
	defer l.Unlock()

	b, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrBudgetNotFound) {
		e.gate.Clear(id)
		return nil
	}
	if err != nil {
		return err
	}
	e.restore(b, now)
	return nil
}

// restore sets b's gate entry to the most severe restriction among its
// reached levels. Caller holds b's lock.
func (e *Enforcer) restore(b *Budget, now time.Time) {
	if b.Due(now) {
		e.gate.Clear(b.ID)
		return
	}
	var strongest *Restriction
	for _, level := range b.Reached {
		v, ok := verdictFor(b.AutoActions.For(level))
		if !ok {
			continue
		}
		if strongest == nil || v.severity() > strongest.Verdict.severity() {
			r := restrictionFor(b, v, level)
			strongest = &r
		}
	}
	e.gate.Replace(b.ID, strongest)
	e.metrics.SetBudgetUtilization(b.ID, b.UtilizationPercent)
}

// Rollover resets every calendar budget whose period has ended and returns
// how many were reset.
func (e *Enforcer) Rollover(ctx context.Context) (int, error) {
	budgets, err := e.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := e.now().UTC()
	var (
		rolled int
		errs   []error
	)
	for _, candidate := range budgets {
		if !candidate.Due(now) {
			continue
		}
		ok, err := e.rolloverIfDue(ctx, candidate.ID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			rolled++
		}
	}
	return rolled, errors.Join(errs...)
}

func (e *Enforcer) rolloverIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	l := e.lock(id)
	l.Lock()
	defer l.Unlock()

	b, err := e.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !b.Due(now) {
		return false, nil
	}
	return true, e.rollover(ctx, b, now)
}
