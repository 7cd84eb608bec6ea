package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/meter/pkg/config"
)

type mapProvider map[string]string

func (m mapProvider) Lookup(_ context.Context, name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (m mapProvider) Name() string { return "map" }

func TestEnvProvider(t *testing.T) {
	p := NewEnvProvider("METER_SECRET_")
	p.getenv = func(k string) (string, bool) {
		if k == "METER_SECRET_SMTP_PASSWORD" {
			return "hunter2", true
		}
		if k == "METER_SECRET_EMPTY" {
			return "", true
		}
		return "", false
	}

	v, err := p.Lookup(context.Background(), "smtp-password")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if v != "hunter2" {
		t.Errorf("Expected hunter2, got %q", v)
	}
	if _, err := p.Lookup(context.Background(), "empty"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty variable, got %v", err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "token"), []byte("abc123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "loose"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(dir, false, nil)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	defer p.Close()

	v, err := p.Lookup(context.Background(), "token")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if v != "abc123" {
		t.Errorf("Expected trimmed value abc123, got %q", v)
	}

	if _, err := p.Lookup(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := p.Lookup(context.Background(), "loose"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected permission error, got %v", err)
	}
	for _, name := range []string{"../token", "..", "a/b", ""} {
		if _, err := p.Lookup(context.Background(), name); err == nil {
			t.Errorf("Expected error for name %q", name)
		}
	}
}

func TestFileProvider_NotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileProvider(f, false, nil); err == nil {
		t.Error("Expected error for non-directory path")
	}
}

func TestFileProvider_Invalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewFileProvider(dir, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if v, _ := p.Lookup(ctx, "token"); v != "old" {
		t.Fatalf("Expected old, got %q", v)
	}
	if err := os.WriteFile(path, []byte("new"), 0o600); err != nil {
		t.Fatal(err)
	}
	if v, _ := p.Lookup(ctx, "token"); v != "old" {
		t.Errorf("Expected cached old before invalidate, got %q", v)
	}
	p.Invalidate()
	if v, _ := p.Lookup(ctx, "token"); v != "new" {
		t.Errorf("Expected new after invalidate, got %q", v)
	}
}

func TestResolver_ProviderOrder(t *testing.T) {
	r := NewResolver(0, []Provider{
		mapProvider{"a": "first"},
		mapProvider{"a": "second", "b": "fallback"},
	})
	ctx := context.Background()

	if v, _ := r.Get(ctx, "a"); v != "first" {
		t.Errorf("Expected first, got %q", v)
	}
	if v, _ := r.Get(ctx, "b"); v != "fallback" {
		t.Errorf("Expected fallback, got %q", v)
	}
	if _, err := r.Get(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolver_CacheTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := mapProvider{"k": "v1"}
	r := NewResolver(time.Minute, []Provider{m}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if v, _ := r.Get(ctx, "k"); v != "v1" {
		t.Fatalf("Expected v1, got %q", v)
	}
	m["k"] = "v2"
	if v, _ := r.Get(ctx, "k"); v != "v1" {
		t.Errorf("Expected cached v1, got %q", v)
	}
	now = now.Add(time.Minute)
	if v, _ := r.Get(ctx, "k"); v != "v2" {
		t.Errorf("Expected v2 after expiry, got %q", v)
	}
}

func TestResolver_Expand(t *testing.T) {
	r := NewResolver(0, []Provider{mapProvider{"user": "bob", "pass": "pw"}})
	ctx := context.Background()

	got, err := r.Expand(ctx, "https://${secret:user}:${secret:pass}@host")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if got != "https://bob:pw@host" {
		t.Errorf("Expected https://bob:pw@host, got %q", got)
	}

	if got, _ := r.Expand(ctx, "plain"); got != "plain" {
		t.Errorf("Expected plain unchanged, got %q", got)
	}
	if _, err := r.Expand(ctx, "${secret:nope}"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolver_ExpandNotifications(t *testing.T) {
	r := NewResolver(0, []Provider{mapProvider{"smtp": "pw", "hook": "Bearer t"}})
	n := config.NotificationsConfig{
		Email:   config.SMTPConfig{Username: "meter", Password: "${secret:smtp}"},
		Webhook: config.WebhookConfig{Headers: map[string]string{"Authorization": "${secret:hook}"}},
	}
	if err := r.ExpandNotifications(context.Background(), &n); err != nil {
		t.Fatalf("ExpandNotifications failed: %v", err)
	}
	if n.Email.Password != "pw" {
		t.Errorf("Expected password pw, got %q", n.Email.Password)
	}
	if n.Email.Username != "meter" {
		t.Errorf("Expected username unchanged, got %q", n.Email.Username)
	}
	if n.Webhook.Headers["Authorization"] != "Bearer t" {
		t.Errorf("Expected header Bearer t, got %q", n.Webhook.Headers["Authorization"])
	}

	targets := []string{"${secret:hook}", "ops@example.com"}
	if err := r.ExpandAll(context.Background(), targets); err != nil {
		t.Fatal(err)
	}
	if targets[0] != "Bearer t" || targets[1] != "ops@example.com" {
		t.Errorf("Unexpected targets: %v", targets)
	}
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "k"), []byte("file"), 0o400); err != nil {
		t.Fatal(err)
	}
	t.Setenv("METER_SECRET_K", "env")
	t.Setenv("METER_SECRET_ONLY_ENV", "env-only")

	r, fp, err := FromConfig(config.SecretsConfig{EnvPrefix: "METER_SECRET_", Dir: dir, Watch: true}, nil)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if fp == nil {
		t.Fatal("Expected file provider")
	}
	defer fp.Close()

	ctx := context.Background()
	if v, _ := r.Get(ctx, "k"); v != "file" {
		t.Errorf("Expected file to win, got %q", v)
	}
	if v, _ := r.Get(ctx, "only-env"); v != "env-only" {
		t.Errorf("Expected env-only, got %q", v)
	}
}

func TestFileProvider_WatchInvalidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewFileProvider(dir, true, nil)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	defer p.Close()

	changed := make(chan struct{}, 16)
	p.OnChange(func() { changed <- struct{}{} })

	ctx := context.Background()
	if v, _ := p.Lookup(ctx, "token"); v != "old" {
		t.Fatalf("Expected old, got %q", v)
	}
	if err := os.WriteFile(path, []byte("new"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected change notification")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		v, err := p.Lookup(ctx, "token")
		if err == nil && v == "new" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected new after change, got %q (%v)", v, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
