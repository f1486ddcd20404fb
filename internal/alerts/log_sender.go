package alerts

import (
	"context"
	"log/slog"
)

// LogSender writes each notification to the structured log. It is the
// default channel when nothing else is configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log.With("component", "alert_log_sender")}
}

func (s *LogSender) Send(ctx context.Context, n AlertNotification) error {
	attrs := []any{
		"alert_id", n.AlertID,
		"obligation_id", n.ObligationID,
		"alert_type", n.Type,
		"severity", n.Severity,
		"event", n.Outcome,
		"title", n.Title,
	}
	if n.Delta != "" {
		attrs = append(attrs, "delta", n.Delta)
	}
	if n.Deadline != nil {
		attrs = append(attrs, "deadline", n.Deadline.UTC(), "window_days", n.WindowDays)
	}
	s.log.WarnContext(ctx, "alert raised", attrs...)
	return nil
}
