package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider reads secrets from one file per secret in a directory.
// Values are trimmed of surrounding whitespace.
type FileProvider struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	values  map[string]string
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	// onChange is called after a change invalidated the values.
	onChange func()
}

// OnChange registers fn to run after the watcher invalidated the values.
func (p *FileProvider) OnChange(fn func()) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// NewFileProvider opens dir. With watch set, writes, creates, renames and
// removes in dir invalidate cached values; Kubernetes rotates mounted
// secrets by swapping a symlink, which shows up as create and remove.
func NewFileProvider(dir string, watch bool, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path %s is not a directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secrets directory: %w", err)
	}

	p := &FileProvider{
		dir:    abs,
		logger: logger.With("component", "secrets.file"),
		values: make(map[string]string),
		done:   make(chan struct{}),
	}
	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets watcher: %w", err)
		}
		if err := w.Add(abs); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch secrets directory: %w", err)
		}
		p.watcher = w
		p.wg.Add(1)
		go p.watch()
	}
	return p, nil
}

// Lookup implements Provider.
func (p *FileProvider) Lookup(ctx context.Context, name string) (string, error) {
	p.mu.RLock()
	v, ok := p.values[name]
	p.mu.RUnlock()
	if ok {
		return v, nil
	}

	path, err := p.path(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no file for %q", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat secret %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %q is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("secret %q has insecure permissions %o (group or other access)", name, perm)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to p.dir
	if err != nil {
		return "", fmt.Errorf("failed to read secret %q: %w", name, err)
	}
	v = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.values[name] = v
	p.mu.Unlock()
	return v, nil
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "file" }

// Invalidate drops every cached value.
func (p *FileProvider) Invalidate() {
	p.mu.Lock()
	p.values = make(map[string]string)
	p.mu.Unlock()
}

// Close stops the watcher.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.done)
	err := p.watcher.Close()
	p.wg.Wait()
	return err
}

// path maps a secret name to a file inside p.dir.
func (p *FileProvider) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.dir, name)
	if filepath.Dir(path) != p.dir {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	return path, nil
}

func (p *FileProvider) watch() {
	defer p.wg.Done()
	const mask = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&mask == 0 {
				continue
			}
			p.logger.Debug("secrets changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			p.mu.Lock()
			p.values = make(map[string]string)
			fn := p.onChange
			p.mu.Unlock()
			if fn != nil {
				fn()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secrets watcher error", "error", err)
		}
	}
}
