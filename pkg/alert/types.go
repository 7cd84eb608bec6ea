package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/notify"
)

// Type selects how an alert is evaluated.
type Type string

const (
	TypeThreshold Type = "threshold"
	TypeSpike     Type = "spike"
	TypeVolume    Type = "volume"
	TypeBudget    Type = "budget"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeThreshold, TypeSpike, TypeVolume, TypeBudget:
		return true
	}
	return false
}

// Windowed reports whether the type reads the ledger over a time window.
func (t Type) Windowed() bool {
	return t == TypeSpike || t == TypeVolume
}

// Severity is carried on every notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// Window is a duration encoded in JSON as a Go duration string ("1h").
type Window time.Duration

// Duration returns w as a time.Duration.
func (w Window) Duration() time.Duration { return time.Duration(w) }

// MarshalJSON implements json.Marshaler.
func (w Window) MarshalJSON() ([]byte, error) {
	if w == 0 {
		return json.Marshal("")
	}
	return json.Marshal(time.Duration(w).String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (w *Window) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*w = 0
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid time window %q: %w", s, err)
		}
		*w = Window(d)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("time window must be a duration string or seconds")
	}
	*w = Window(time.Duration(secs * float64(time.Second)))
	return nil
}

// Conditions are optional filters. A nil or empty field matches everything.
type Conditions struct {
	Categories         []costs.Category `json:"categories,omitempty"`
	Services           []string         `json:"services,omitempty"`
	CostThresholdUSD   *float64         `json:"cost_threshold_usd,omitempty"`
	PercentageIncrease *float64         `json:"percentage_increase,omitempty"`
	TimeWindow         Window           `json:"time_window,omitempty"`
	MinOperations      int64            `json:"min_operations,omitempty"`
}

// matches reports whether the entry satisfies the category, service and
// cost conditions.
func (c Conditions) matches(e *costs.Entry) bool {
	if len(c.Categories) > 0 && !slices.Contains(c.Categories, e.Category) {
		return false
	}
	if len(c.Services) > 0 && !slices.Contains(c.Services, e.Service) {
		return false
	}
	if c.CostThresholdUSD != nil && e.CostUSD < *c.CostThresholdUSD {
		return false
	}
	return true
}

// Alert is a notification rule and its trigger state.
type Alert struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            Type           `json:"type"`
	Severity        Severity       `json:"severity"`
	Enabled         bool           `json:"enabled"`
	CooldownMinutes int            `json:"cooldown_minutes"`
	Conditions      Conditions     `json:"conditions"`
	Notifications   notify.Targets `json:"notifications"`

	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	TriggerCount  int64      `json:"trigger_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Cooldown returns the silence period after a firing.
func (a *Alert) Cooldown() time.Duration {
	return time.Duration(a.CooldownMinutes) * time.Minute
}

// InCooldown reports whether the alert fired less than Cooldown ago. At
// exactly the cooldown boundary the alert may fire again.
func (a *Alert) InCooldown(now time.Time) bool {
	return a.LastTriggered != nil && now.Sub(*a.LastTriggered) < a.Cooldown()
}

// Clone returns a deep copy.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.Conditions.Categories = slices.Clone(a.Conditions.Categories)
	c.Conditions.Services = slices.Clone(a.Conditions.Services)
	if a.Conditions.CostThresholdUSD != nil {
		v := *a.Conditions.CostThresholdUSD
		c.Conditions.CostThresholdUSD = &v
	}
	if a.Conditions.PercentageIncrease != nil {
		v := *a.Conditions.PercentageIncrease
		c.Conditions.PercentageIncrease = &v
	}
	c.Notifications = notify.Targets{
		Email:   slices.Clone(a.Notifications.Email),
		Slack:   slices.Clone(a.Notifications.Slack),
		Webhook: slices.Clone(a.Notifications.Webhook),
	}
	if a.LastTriggered != nil {
		t := *a.LastTriggered
		c.LastTriggered = &t
	}
	return &c
}

// Store persists alerts. Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new alert, or returns ErrDuplicateAlert.
	Create(ctx context.Context, a *Alert) error

	// Get returns an alert by id, or ErrAlertNotFound.
	Get(ctx context.Context, id string) (*Alert, error)

	// List returns every alert ordered by creation time, then id.
	List(ctx context.Context) ([]*Alert, error)

	// MarkTriggered sets last_triggered to at and increments trigger_count,
	// but only while last_triggered still equals prev (nil meaning never
	// triggered). It reports whether this caller won the update.
	MarkTriggered(ctx context.Context, id string, prev *time.Time, at time.Time) (bool, error)

	// Close releases resources held by the store.
	Close() error
}
