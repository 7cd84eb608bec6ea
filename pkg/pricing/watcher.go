package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures a pricing file watcher.
type WatcherConfig struct {
	// Path is the pricing YAML file to watch.
	Path string

	// DebounceInterval is the quiet period after a change before the file is
	// reloaded (default: 200ms).
	DebounceInterval time.Duration
}

// Watcher reloads a pricing table from disk into a Calculator whenever the
// file changes. It watches the parent directory so editors that replace the
// file by rename are still observed.
type Watcher struct {
	config   WatcherConfig
	calc     *Calculator
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce *debouncer

	// onReload is called after every reload attempt; tests use it.
	onReload func(error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher that feeds calc.
func NewWatcher(cfg WatcherConfig, calc *Calculator, logger *slog.Logger) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("pricing watcher: path is required")
	}
	if calc == nil {
		return nil, errors.New("pricing watcher: calculator is required")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		config:   cfg,
		calc:     calc,
		watcher:  fw,
		logger:   logger.With("component", "pricing.watcher"),
		debounce: newDebouncer(cfg.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Reload loads the file immediately and swaps it into the calculator.
// A table that fails to parse or validate leaves the active table untouched.
func (w *Watcher) Reload() error {
	table, err := LoadTable(w.config.Path)
	if err != nil {
		return err
	}
	w.calc.UpdatePricing(table)
	w.logger.Info("pricing table reloaded",
		"path", w.config.Path,
		"services", len(table.Services),
	)
	return nil
}

// Watch blocks until ctx is cancelled or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("pricing watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	dir := filepath.Dir(w.config.Path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("pricing watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	target := filepath.Clean(w.config.Path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod || filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// The replacement will arrive as a Create.
				continue
			}

			w.debounce.trigger(func() {
				err := w.Reload()
				if err != nil {
					w.logger.Error("pricing reload failed, keeping previous table",
						"path", w.config.Path,
						"error", err,
					)
				}
				if w.onReload != nil {
					w.onReload(err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("pricing watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	w.debounce.stop()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// debouncer collects rapid events and runs the latest callback once a quiet
// period has passed.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, callback)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
