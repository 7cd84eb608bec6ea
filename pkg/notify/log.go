package notify

import (
	"context"
	"log/slog"
)

// LogSender writes every notification to the structured log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "notify.log")}
}

// Channel returns ChannelLog.
func (s *LogSender) Channel() Channel { return ChannelLog }

// Send logs n at a level matching its severity.
func (s *LogSender) Send(ctx context.Context, n Notification, target string) error {
	level := slog.LevelInfo
	switch n.Severity {
	case "critical":
		level = slog.LevelError
	case "warning":
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, n.Title,
		"notification_id", n.ID,
		"kind", n.Kind,
		"alert_id", n.AlertID,
		"budget_id", n.BudgetID,
		"message", n.Message,
	)
	return nil
}
