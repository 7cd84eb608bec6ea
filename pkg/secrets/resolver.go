package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"mercator-hq/meter/pkg/config"
)

// refPattern matches ${secret:name}.
var refPattern = regexp.MustCompile(`\$\{secret:([A-Za-z0-9._-]+)\}`)

// Resolver looks secrets up across providers and expands references.
type Resolver struct {
	providers []Provider
	cache     *cache
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l.With("component", "secrets.resolver") }
}

// WithClock sets the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.cache.now = now }
}

// NewResolver creates a resolver over providers, asked in order.
func NewResolver(ttl time.Duration, providers []Provider, opts ...Option) *Resolver {
	r := &Resolver{
		providers: providers,
		cache:     newCache(ttl, time.Now),
		logger:    slog.Default().With("component", "secrets.resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig builds a resolver from cfg. When cfg.Dir is set the file
// provider is consulted before the environment; the returned provider must
// then be closed by the caller. It is nil otherwise.
func FromConfig(cfg config.SecretsConfig, logger *slog.Logger) (*Resolver, *FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		providers []Provider
		fp        *FileProvider
	)
	if cfg.Dir != "" {
		var err error
		fp, err = NewFileProvider(cfg.Dir, cfg.Watch, logger)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, NewEnvProvider(cfg.EnvPrefix))

	r := NewResolver(cfg.CacheTTL, providers, WithLogger(logger))
	if fp != nil {
		fp.OnChange(r.cache.clear)
	}
	return r, fp, nil
}

// Get returns the value of name from the first provider that has it.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if v, ok := r.cache.get(name); ok {
		return v, nil
	}
	for _, p := range r.providers {
		v, err := p.Lookup(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("provider %s: %w", p.Name(), err)
		}
		r.logger.Debug("secret resolved", "name", name, "provider", p.Name())
		r.cache.put(name, v)
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Expand replaces every ${secret:name} in s. Strings without references
// are returned unchanged.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	if !strings.Contains(s, "${secret:") {
		return s, nil
	}
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		v, err := r.Get(ctx, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ref
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// ExpandNotifications expands references in the credential and target
// fields of the notification config in place.
func (r *Resolver) ExpandNotifications(ctx context.Context, n *config.NotificationsConfig) error {
	fields := []*string{
		&n.Email.Username,
		&n.Email.Password,
		&n.NATS.URL,
	}
	for _, f := range fields {
		v, err := r.Expand(ctx, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	for k, v := range n.Webhook.Headers {
		ev, err := r.Expand(ctx, v)
		if err != nil {
			return fmt.Errorf("webhook header %s: %w", k, err)
		}
		n.Webhook.Headers[k] = ev
	}
	return nil
}

// ExpandAll expands each element of list in place.
func (r *Resolver) ExpandAll(ctx context.Context, list []string) error {
	for i, s := range list {
		v, err := r.Expand(ctx, s)
		if err != nil {
			return err
		}
		list[i] = v
	}
	return nil
}
