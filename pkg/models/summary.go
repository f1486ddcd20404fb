package models

import "time"

// PassKind distinguishes reconciliation passes from deadline scans.
type PassKind string

const (
	PassReconcile PassKind = "reconcile"
	PassDeadline  PassKind = "deadline"
)

// ErrorCategory classifies a per-obligation failure without leaking backend detail.
type ErrorCategory string

const (
	ErrorCategoryRoute      ErrorCategory = "route"
	ErrorCategoryEvaluate   ErrorCategory = "evaluate"
	ErrorCategoryStoreWrite ErrorCategory = "store_write"
	ErrorCategoryCancelled  ErrorCategory = "cancelled"
	ErrorCategoryInternal   ErrorCategory = "internal"
)

// PassError is one obligation's failure inside a pass.
type PassError struct {
	ObligationID string        `json:"obligation_id"`
	Category     ErrorCategory `json:"category"`
}

// PassSummary is the outcome of one monitoring pass.
type PassSummary struct {
	Kind          PassKind    `json:"kind"`
	Checked       int         `json:"checked"`
	Skipped       int         `json:"skipped"`
	Alerted       int         `json:"alerted"`
	Errored       int         `json:"errored"`
	Compliant     int         `json:"compliant"`
	Breached      int         `json:"breached"`
	Indeterminate int         `json:"indeterminate"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
	Errors        []PassError `json:"errors,omitempty"`
}

// CheckOutcome is what happened to a single obligation within a pass.
type CheckOutcome string

const (
	CheckOutcomeCompliant     CheckOutcome = "compliant"
	CheckOutcomeBreached      CheckOutcome = "breached"
	CheckOutcomeIndeterminate CheckOutcome = "indeterminate"
	CheckOutcomeSkipped       CheckOutcome = "skipped"
	CheckOutcomeAlerted       CheckOutcome = "alerted"
	CheckOutcomeErrored       CheckOutcome = "errored"
)

// CheckResult reports a single obligation check.
type CheckResult struct {
	ObligationID string        `json:"obligation_id"`
	Outcome      CheckOutcome  `json:"outcome"`
	Alert        *Alert        `json:"alert,omitempty"`
	AlertOutcome RaiseOutcome  `json:"alert_outcome,omitempty"`
	Verdict      *Verdict      `json:"verdict,omitempty"`
	Category     ErrorCategory `json:"error_category,omitempty"`
}

// ComplianceSummary aggregates compliance across obligations.
type ComplianceSummary struct {
	Party               string                   `json:"party,omitempty"`
	TotalObligations    int                      `json:"total_obligations"`
	Compliant           int                      `json:"compliant"`
	NonCompliant        int                      `json:"non_compliant"`
	Unknown             int                      `json:"unknown"`
	ComplianceRate      float64                  `json:"compliance_rate"`
	ByType              map[ObligationType]int   `json:"by_type"`
	ByStatus            map[ComplianceStatus]int `json:"by_compliance_status"`
	RiskDistribution    map[RiskLevel]int        `json:"risk_distribution"`
	TotalBreaches       int                      `json:"total_breaches"`
	ObligationsBreached int                      `json:"obligations_with_breaches"`
	LastBreachAt        *time.Time               `json:"last_breach_at,omitempty"`
}

// MonitoringStatus describes the engine and the data it watches.
type MonitoringStatus struct {
	Running            bool              `json:"running"`
	ReconcileSchedule  string            `json:"reconcile_schedule"`
	DeadlineSchedule   string            `json:"deadline_schedule"`
	ActiveObligations  int               `json:"active_obligations"`
	DueObligations     int               `json:"due_obligations"`
	OverdueObligations int               `json:"overdue_obligations"`
	OpenAlerts         int               `json:"open_alerts"`
	AcknowledgedAlerts int               `json:"acknowledged_alerts"`
	AlertsBySeverity   map[Severity]int  `json:"unresolved_alerts_by_severity"`
	LastReconcile      *PassSummary      `json:"last_reconcile,omitempty"`
	LastDeadline       *PassSummary      `json:"last_deadline,omitempty"`
	Backends           map[string]string `json:"backends,omitempty"`
}
