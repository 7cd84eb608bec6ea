package notify

import (
	"context"
	"net/http"
)

// WebhookSender POSTs the notification as JSON to each target URL.
type WebhookSender struct {
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender creates a webhook sender. headers are added to every
// request.
func NewWebhookSender(client *http.Client, headers map[string]string) *WebhookSender {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &WebhookSender{client: client, headers: headers}
}

// Channel returns ChannelWebhook.
func (s *WebhookSender) Channel() Channel { return ChannelWebhook }

// Send posts n to target.
func (s *WebhookSender) Send(ctx context.Context, n Notification, target string) error {
	return postJSON(ctx, s.client, target, s.headers, n)
}
