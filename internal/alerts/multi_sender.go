package alerts

import (
	"context"
	"fmt"
	"strings"
)

// MultiSender fans a notification out to every configured sender.
// One failing sender does not stop the others.
type MultiSender struct {
	senders []AlertSender
}

// NewMultiSender drops nil senders so callers can pass optional ones unconditionally.
func NewMultiSender(senders ...AlertSender) *MultiSender {
	filtered := make([]AlertSender, 0, len(senders))
	for _, sender := range senders {
		if sender == nil {
			continue
		}
		filtered = append(filtered, sender)
	}
	return &MultiSender{senders: filtered}
}

// Len returns the number of senders.
func (m *MultiSender) Len() int { return len(m.senders) }

func (m *MultiSender) Send(ctx context.Context, notification AlertNotification) error {
	var errs []string
	for _, sender := range m.senders {
		if err := sender.Send(ctx, notification); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification delivery failed for alert %s: %s", notification.AlertID, strings.Join(errs, "; "))
	}
	return nil
}
