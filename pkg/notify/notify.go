package notify

import (
	"context"
	"time"

	"mercator-hq/meter/pkg/costs"
)

// Kind is the source of a notification.
type Kind string

const (
	KindAlert  Kind = "alert"
	KindBudget Kind = "budget"
)

// Channel identifies a delivery mechanism.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSlack   Channel = "slack"
	ChannelWebhook Channel = "webhook"
	ChannelNATS    Channel = "nats"
	ChannelLog     Channel = "log"
)

// Notification is the payload handed to every sender.
type Notification struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
	At       time.Time `json:"at"`

	AlertID   string `json:"alert_id,omitempty"`
	AlertName string `json:"alert_name,omitempty"`
	BudgetID  string `json:"budget_id,omitempty"`

	// Entry is the cost entry that triggered the notification, if any.
	Entry *costs.Entry `json:"entry,omitempty"`

	// Fields carries extra key/value detail for rendering.
	Fields map[string]string `json:"fields,omitempty"`
}

// Targets lists per-channel destinations for one notification.
type Targets struct {
	Email   []string `json:"email,omitempty"`
	Slack   []string `json:"slack,omitempty"`
	Webhook []string `json:"webhook,omitempty"`
}

// Empty reports whether no destination is set.
func (t Targets) Empty() bool {
	return len(t.Email) == 0 && len(t.Slack) == 0 && len(t.Webhook) == 0
}

// Sender delivers a notification to one target. Broadcast senders ignore
// target.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, n Notification, target string) error
}
