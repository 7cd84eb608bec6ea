package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"slices"
	"strconv"
	"strings"

	"mercator-hq/meter/pkg/config"
)

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	addr     string
	auth     smtp.Auth
	from     string
	sendMail sendMailFunc
}

// NewEmailSender creates an email sender from SMTP settings. Plain auth is
// used when a username is configured.
func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	s := &EmailSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:     cfg.From,
		sendMail: smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

// Channel returns ChannelEmail.
func (s *EmailSender) Channel() Channel { return ChannelEmail }

// Send mails n to the address target. net/smtp has no context support, so
// ctx is only checked before sending.
func (s *EmailSender) Send(ctx context.Context, n Notification, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := s.message(n, target)
	if err := s.sendMail(s.addr, s.auth, s.from, []string{target}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *EmailSender) message(n Notification, to string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", strings.ToUpper(n.Severity), n.Title)
	fmt.Fprintf(&b, "Date: %s\r\n", n.At.Format("Mon, 02 Jan 2006 15:04:05 -0700"))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(n.Message)
	b.WriteString("\r\n")

	if len(n.Fields) > 0 {
		keys := make([]string, 0, len(n.Fields))
		for k := range n.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("\r\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\r\n", k, n.Fields[k])
		}
	}
	return []byte(b.String())
}
