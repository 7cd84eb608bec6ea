package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically rolls over budgets that receive no entries and
// re-syncs gate restrictions with the store.
type Sweeper struct {
	enforcer *Enforcer
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper running on a cron schedule such as "@every 1m".
func NewSweeper(enforcer *Enforcer, schedule string) *Sweeper {
	return &Sweeper{
		enforcer: enforcer,
		schedule: schedule,
		cron:     cron.New(),
		logger:   enforcer.logger.With("component", "budget.sweeper"),
	}
}

// Start schedules the sweep and stops it when ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid rollover schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("budget rollover sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.enforcer.Rollover(ctx)
	if err != nil {
		s.logger.Error("budget rollover sweep failed", "error", err)
	}
	if n > 0 {
		s.logger.Info("budget rollover sweep completed", "rolled_over", n)
	}
	if err := s.enforcer.RestoreRestrictions(ctx); err != nil {
		s.logger.Error("budget restriction restore failed", "error", err)
	}
}

// Stop halts the sweeper and waits for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("budget rollover sweeper stopped")
}
