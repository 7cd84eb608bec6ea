package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// publisher is the subset of *nats.Conn used for publishing.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher broadcasts every notification to "<subject>.<kind>".
type NATSPublisher struct {
	conn    publisher
	nc      *nats.Conn
	subject string
}

// ConnectNATS connects to url and returns a publisher for subject.
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("meter"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	slog.Info("nats connected", "url", url, "subject", subject)
	return &NATSPublisher{conn: nc, nc: nc, subject: subject}, nil
}

// Channel returns ChannelNATS.
func (p *NATSPublisher) Channel() Channel { return ChannelNATS }

// Send publishes n as JSON. target is ignored.
func (p *NATSPublisher) Send(ctx context.Context, n Notification, target string) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	subject := p.subject + "." + string(n.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
