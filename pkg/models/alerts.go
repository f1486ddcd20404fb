package models

import (
	"errors"
	"time"
)

// AlertType identifies the condition an alert was raised for.
type AlertType string

const (
	AlertTypeDeadlineUpcoming AlertType = "deadline_upcoming"
	AlertTypeSLABreach        AlertType = "sla_breach"
	AlertTypeFinancialTrigger AlertType = "financial_trigger"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeDeadlineUpcoming, AlertTypeSLABreach, AlertTypeFinancialTrigger:
		return true
	}
	return false
}

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of s. Unknown severities rank zero.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// MaxSeverity returns the higher ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Unresolved reports whether the alert still counts against the one-live-alert rule.
func (s AlertStatus) Unresolved() bool {
	return s == AlertStatusOpen || s == AlertStatusAcknowledged
}

// ErrInvalidTransition is returned when a requested alert state change is not allowed.
var ErrInvalidTransition = errors.New("invalid alert state transition")

// NextStatus validates moving an alert from one status to another.
// It returns the status to persist and whether anything changes.
func NextStatus(from, to AlertStatus) (AlertStatus, bool, error) {
	switch to {
	case AlertStatusAcknowledged:
		switch from {
		case AlertStatusOpen:
			return to, true, nil
		case AlertStatusAcknowledged:
			return from, false, nil
		}
	case AlertStatusResolved:
		switch from {
		case AlertStatusOpen, AlertStatusAcknowledged:
			return to, true, nil
		case AlertStatusResolved:
			return from, false, nil
		}
	}
	return from, false, ErrInvalidTransition
}

// Alert is a durable, user-actionable record of a detected breach or upcoming deadline.
type Alert struct {
	ID             string      `json:"id"`
	ObligationID   string      `json:"obligation_id"`
	ContractID     string      `json:"contract_id"`
	Type           AlertType   `json:"alert_type"`
	Severity       Severity    `json:"severity"`
	Title          string      `json:"title"`
	Message        string      `json:"message"`
	Status         AlertStatus `json:"status"`
	TriggeredAt    time.Time   `json:"triggered_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy     string      `json:"resolved_by,omitempty"`
	ResolutionNote string      `json:"resolution_note,omitempty"`
	Evidence       *Evidence   `json:"evidence,omitempty"`
	WindowDays     int         `json:"window_days,omitempty"`
	Deadline       *time.Time  `json:"deadline,omitempty"`
	RefreshedAt    *time.Time  `json:"refreshed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

var alertTypeWeight = map[AlertType]float64{
	AlertTypeSLABreach:        1.5,
	AlertTypeFinancialTrigger: 1.3,
	AlertTypeDeadlineUpcoming: 1.0,
}

// PriorityScore orders alerts for triage. Higher severity, older age and
// breach types rank first. Resolved alerts score zero.
func (a *Alert) PriorityScore(now time.Time) float64 {
	if a.Status == AlertStatusResolved {
		return 0
	}
	score := float64(a.Severity.Rank()) * 25
	ageHours := now.Sub(a.TriggeredAt).Hours()
	switch {
	case ageHours > 72:
		score += 20
	case ageHours > 24:
		score += 10
	}
	if a.Status == AlertStatusOpen {
		score += 5
	}
	weight, ok := alertTypeWeight[a.Type]
	if !ok {
		weight = 1.0
	}
	return score * weight
}

// AlertFilter narrows alert listings. Zero values are ignored.
type AlertFilter struct {
	Status       AlertStatus
	Severity     Severity
	Type         AlertType
	ObligationID string
	ContractID   string
	From         *time.Time
	To           *time.Time
	SortPriority bool
	Limit        int
	Offset       int
}

// DefaultAlertListLimit caps alert listings when the caller does not.
const DefaultAlertListLimit = 100

// AlertDraft is what the engine asks the store to raise or refresh.
type AlertDraft struct {
	ObligationID string
	ContractID   string
	Type         AlertType
	Severity     Severity
	Title        string
	Message      string
	Evidence     *Evidence
	WindowDays   int
	Deadline     *time.Time
}

// RaiseOutcome tells the caller what an atomic raise actually did.
type RaiseOutcome string

const (
	RaiseCreated    RaiseOutcome = "created"
	RaiseRefreshed  RaiseOutcome = "refreshed"
	RaiseEscalated  RaiseOutcome = "escalated"
	RaiseSuppressed RaiseOutcome = "suppressed"
)

// RaiseResult pairs the affected alert with what happened to it.
type RaiseResult struct {
	Alert   *Alert
	Outcome RaiseOutcome
}

// AcknowledgeAlertRequest carries the actor acknowledging an alert.
type AcknowledgeAlertRequest struct {
	By string `json:"by"`
}

// ResolveAlertRequest allows callers to provide context when resolving an alert.
type ResolveAlertRequest struct {
	By   string `json:"by"`
	Note string `json:"note"`
}
