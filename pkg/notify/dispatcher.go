package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mercator-hq/meter/pkg/telemetry/metrics"
)

// Delivery results recorded in metrics.
const (
	ResultSent         = "sent"
	ResultFailed       = "failed"
	ResultUnconfigured = "unconfigured"
	ResultDropped      = "dropped"
)

// maxParallel bounds concurrent deliveries for one notification.
const maxParallel = 8

// Options configures a Dispatcher. Nil senders disable their channel.
type Options struct {
	Email     Sender
	Slack     Sender
	Webhook   Sender
	Broadcast []Sender

	// Timeout bounds each delivery. Default: 10s
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Dispatcher routes notifications to senders.
type Dispatcher struct {
	email     Sender
	slack     Sender
	webhook   Sender
	broadcast []Sender
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Collector

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		email:     opts.Email,
		slack:     opts.Slack,
		webhook:   opts.Webhook,
		broadcast: opts.Broadcast,
		timeout:   opts.Timeout,
		logger:    opts.Logger.With("component", "notify.dispatcher"),
		metrics:   opts.Metrics,
	}
}

type delivery struct {
	sender  Sender
	channel Channel
	target  string
}

// plan expands targets into deliveries, one per destination, plus one per
// broadcast sender.
func (d *Dispatcher) plan(t Targets) []delivery {
	var plan []delivery
	add := func(s Sender, ch Channel, targets []string) {
		if len(targets) == 0 {
			return
		}
		if s == nil {
			d.logger.Warn("notification channel not configured",
				"category", "config",
				"channel", ch,
				"targets", len(targets),
			)
			d.metrics.RecordNotification(string(ch), ResultUnconfigured)
			return
		}
		for _, target := range targets {
			plan = append(plan, delivery{sender: s, channel: ch, target: target})
		}
	}

	add(d.email, ChannelEmail, t.Email)
	add(d.slack, ChannelSlack, t.Slack)
	add(d.webhook, ChannelWebhook, t.Webhook)
	for _, s := range d.broadcast {
		plan = append(plan, delivery{sender: s, channel: s.Channel()})
	}
	return plan
}

// Dispatch delivers n in the background and returns immediately. The
// delivery is detached from ctx cancellation. After Close the notification
// is logged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, t Targets) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("notification dropped after dispatcher close",
			"notification_id", n.ID,
			"kind", n.Kind,
		)
		d.metrics.RecordNotification("dispatch", ResultDropped)
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer d.inflight.Done()
		_ = d.Deliver(ctx, n, t)
	}()
}

// Deliver sends n to every destination and waits. Every failure is logged
// and the failures are returned joined.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification, t Targets) error {
	plan := d.plan(t)
	if len(plan) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for _, del := range plan {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := del.sender.Send(sendCtx, n, del.target); err != nil {
				d.logger.Error("notification delivery failed",
					"notification_id", n.ID,
					"kind", n.Kind,
					"channel", del.channel,
					"error", err,
				)
				d.metrics.RecordNotification(string(del.channel), ResultFailed)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", del.channel, err))
				mu.Unlock()
				return nil
			}
			d.metrics.RecordNotification(string(del.channel), ResultSent)
			d.logger.Debug("notification delivered",
				"notification_id", n.ID,
				"channel", del.channel,
			)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Wait blocks until background deliveries finish. Dispatch keeps working
// afterwards.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close stops accepting background deliveries and waits for the ones in
// flight. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.inflight.Wait()
}
