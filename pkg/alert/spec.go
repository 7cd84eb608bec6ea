package alert

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/meter/pkg/budget"
	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/notify"
)

// Defaults applied by CreateAlert.
const (
	DefaultCooldownMinutes = 60
	DefaultTimeWindow      = time.Hour
)

// Spec is the caller-supplied definition of a new alert.
type Spec struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name"`
	Type     Type     `json:"type,omitempty"`
	Severity Severity `json:"severity,omitempty"`

	// Enabled defaults to true.
	Enabled *bool `json:"enabled,omitempty"`

	// CooldownMinutes defaults to 60. Zero disables the cooldown.
	CooldownMinutes *int `json:"cooldown_minutes,omitempty"`

	Conditions    Conditions     `json:"conditions"`
	Notifications notify.Targets `json:"notifications"`
}

// applyDefaults fills unset optional fields.
func (s *Spec) applyDefaults() {
	if s.Type == "" {
		s.Type = TypeThreshold
	}
	if s.Severity == "" {
		s.Severity = SeverityWarning
	}
	if s.Type.Windowed() && s.Conditions.TimeWindow == 0 {
		s.Conditions.TimeWindow = Window(DefaultTimeWindow)
	}
}

// Validate checks the spec after defaults.
func (s *Spec) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(s.Name) == "" {
		add("name is required")
	}
	if !s.Type.Valid() {
		add("type must be one of threshold, spike, volume, budget (got %q)", s.Type)
	}
	if !s.Severity.Valid() {
		add("severity must be one of info, warning, critical (got %q)", s.Severity)
	}
	if s.CooldownMinutes != nil && *s.CooldownMinutes < 0 {
		add("cooldown_minutes cannot be negative")
	}

	c := s.Conditions
	for _, cat := range c.Categories {
		if !cat.Valid() {
			add("unknown category %q", cat)
		}
	}
	if c.CostThresholdUSD != nil && *c.CostThresholdUSD < 0 {
		add("cost_threshold_usd cannot be negative")
	}
	if c.TimeWindow < 0 {
		add("time_window cannot be negative")
	}
	switch s.Type {
	case TypeSpike:
		if c.PercentageIncrease == nil || *c.PercentageIncrease <= 0 {
			add("spike alerts require a positive percentage_increase")
		}
	case TypeVolume:
		if c.MinOperations <= 0 {
			add("volume alerts require a positive min_operations")
		}
	}

	for _, addr := range s.Notifications.Email {
		if _, err := mail.ParseAddress(addr); err != nil {
			add("invalid email address %q", addr)
		}
	}
	for _, raw := range append(append([]string(nil), s.Notifications.Slack...), s.Notifications.Webhook...) {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("invalid notification URL")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func newAlert(s Spec, now time.Time) *Alert {
	a := &Alert{
		ID:              s.ID,
		Name:            s.Name,
		Type:            s.Type,
		Severity:        s.Severity,
		Enabled:         s.Enabled == nil || *s.Enabled,
		CooldownMinutes: DefaultCooldownMinutes,
		Conditions:      s.Conditions,
		Notifications:   s.Notifications,
		CreatedAt:       now,
	}
	if s.CooldownMinutes != nil {
		a.CooldownMinutes = *s.CooldownMinutes
	}
	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	return a.Clone()
}

// SpecFromConfig converts a configured alert. Defaults are expected to have
// been applied already.
func SpecFromConfig(cfg config.AlertConfig) Spec {
	enabled := cfg.IsEnabled()
	cooldown := cfg.CooldownMinutes
	s := Spec{
		ID:              cfg.ID,
		Name:            cfg.Name,
		Type:            Type(cfg.Type),
		Severity:        Severity(cfg.Severity),
		Enabled:         &enabled,
		CooldownMinutes: &cooldown,
		Conditions: Conditions{
			Services:           cfg.Conditions.Services,
			CostThresholdUSD:   cfg.Conditions.CostThresholdUSD,
			PercentageIncrease: cfg.Conditions.PercentageIncrease,
			TimeWindow:         Window(cfg.Conditions.TimeWindow),
			MinOperations:      int64(cfg.Conditions.MinOperations),
		},
		Notifications: notify.Targets{
			Email:   cfg.Notifications.Email,
			Slack:   cfg.Notifications.Slack,
			Webhook: cfg.Notifications.Webhook,
		},
	}
	for _, c := range cfg.Conditions.Categories {
		s.Conditions.Categories = append(s.Conditions.Categories, costs.Category(c))
	}
	if s.ID == "" {
		s.ID = budget.Slug(cfg.Name)
	}
	return s
}
