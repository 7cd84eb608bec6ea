// Package notify delivers alert and budget notifications.
//
// A Dispatcher fans a Notification out to per-target senders (email,
// Slack, generic webhook) and to broadcast senders that receive every
// notification (NATS, log). Delivery is fire-and-forget: failures are
// logged and counted, never retried and never returned to the code that
// raised the notification.
package notify
