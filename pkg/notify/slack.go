package notify

import (
	"context"
	"fmt"
	"net/http"
	"slices"
)

// SlackSender posts to Slack incoming-webhook URLs.
type SlackSender struct {
	client *http.Client
}

// NewSlackSender creates a Slack sender.
func NewSlackSender(client *http.Client) *SlackSender {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &SlackSender{client: client}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

// Channel returns ChannelSlack.
func (s *SlackSender) Channel() Channel { return ChannelSlack }

// Send posts n to the webhook URL target.
func (s *SlackSender) Send(ctx context.Context, n Notification, target string) error {
	return postJSON(ctx, s.client, target, nil, slackPayload(n))
}

func slackPayload(n Notification) slackMessage {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]slackField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slackField{Title: k, Value: n.Fields[k], Short: true})
	}

	return slackMessage{
		Text: fmt.Sprintf("*%s*\n%s", n.Title, n.Message),
		Attachments: []slackAttachment{{
			Color:  severityColor(n.Severity),
			Fields: fields,
			Footer: fmt.Sprintf("meter %s", n.Kind),
			Ts:     n.At.Unix(),
		}},
	}
}

func severityColor(severity string) string {
	switch severity {
	case "critical":
		return "danger"
	case "warning":
		return "warning"
	default:
		return "good"
	}
}
