package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// AlertNotification is a raised alert flattened for delivery.
type AlertNotification struct {
	AlertID      string
	ObligationID string
	ContractID   string
	Type         models.AlertType
	Severity     models.Severity
	Status       models.AlertStatus
	Title        string
	Message      string
	// Outcome is created for new alerts and escalated for deadline alerts
	// that moved to a narrower window.
	Outcome     models.RaiseOutcome
	Metric      string
	Observed    *float64
	Threshold   *float64
	Delta       string
	WindowDays  int
	Deadline    *time.Time
	TriggeredAt time.Time
	URL         string
}

// AlertSender abstracts the delivery mechanism for alert notifications.
type AlertSender interface {
	Send(ctx context.Context, notification AlertNotification) error
}

// NewNotification builds the delivery payload for a raise result.
func NewNotification(res *models.RaiseResult, externalURL string) AlertNotification {
	a := res.Alert
	n := AlertNotification{
		AlertID:      a.ID,
		ObligationID: a.ObligationID,
		ContractID:   a.ContractID,
		Type:         a.Type,
		Severity:     a.Severity,
		Status:       a.Status,
		Title:        a.Title,
		Message:      a.Message,
		Outcome:      res.Outcome,
		WindowDays:   a.WindowDays,
		Deadline:     a.Deadline,
		TriggeredAt:  a.TriggeredAt,
	}
	if a.Evidence != nil && a.Evidence.Verdict != nil {
		v := a.Evidence.Verdict
		n.Metric = v.Metric
		n.Observed = v.Observed
		n.Threshold = v.Threshold
		n.Delta = v.Delta
	}
	if base := strings.TrimSuffix(strings.TrimSpace(externalURL), "/"); base != "" {
		n.URL = fmt.Sprintf("%s/api/v1/alerts/%s", base, a.ID)
	}
	return n
}
