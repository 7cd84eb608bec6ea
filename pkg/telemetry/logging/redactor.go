package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "[REDACTED]"

// DefaultRedactKeys are attribute keys whose values are always masked.
var DefaultRedactKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"webhook_url",
	"smtp_password",
}

// Webhook URLs carry their credential in the path.
var webhookURL = regexp.MustCompile(`https://hooks\.slack\.com/[^\s"]+`)

// Redactor masks sensitive attributes by key and scrubs Slack webhook URLs
// from any string value.
type Redactor struct {
	keys map[string]bool
}

// NewRedactor creates a redactor for DefaultRedactKeys plus extra.
func NewRedactor(extra []string) *Redactor {
	r := &Redactor{keys: make(map[string]bool)}
	for _, k := range DefaultRedactKeys {
		r.keys[k] = true
	}
	for _, k := range extra {
		r.keys[strings.ToLower(k)] = true
	}
	return r
}

// IsSensitive reports whether values under key are masked.
func (r *Redactor) IsSensitive(key string) bool {
	return r.keys[strings.ToLower(key)]
}

// RedactString scrubs webhook URLs from s.
func (r *Redactor) RedactString(s string) string {
	return webhookURL.ReplaceAllString(s, "https://hooks.slack.com/"+Redacted)
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if r.IsSensitive(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if v := a.Value.String(); strings.Contains(v, "hooks.slack.com") {
			return slog.String(a.Key, r.RedactString(v))
		}
	}
	return a
}
