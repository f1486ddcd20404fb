package models

import "time"

// Outcome is the tagged result of one compliance evaluation.
type Outcome string

const (
	OutcomeCompliant     Outcome = "compliant"
	OutcomeBreached      Outcome = "breached"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// Method records which evaluation path produced a verdict.
type Method string

const (
	MethodThreshold  Method = "threshold"
	MethodExpression Method = "expression"
	MethodJudgment   Method = "judgment"
	MethodNone       Method = "none"
)

// Verdict is the evaluator's judgment for a single obligation check.
type Verdict struct {
	Outcome    Outcome  `json:"outcome"`
	Method     Method   `json:"method"`
	Rationale  string   `json:"rationale"`
	Metric     string   `json:"metric,omitempty"`
	Observed   *float64 `json:"observed,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	OveragePct *float64 `json:"overage_pct,omitempty"`
	Delta      string   `json:"delta,omitempty"`
	Severity   Severity `json:"severity,omitempty"`
}

// Breached reports whether the verdict is a breach.
func (v Verdict) Breached() bool { return v.Outcome == OutcomeBreached }

// Evidence is the persisted snapshot behind a compliance decision or alert.
type Evidence struct {
	Fact    *LiveFact `json:"fact,omitempty"`
	Verdict *Verdict  `json:"verdict,omitempty"`
	Note    string    `json:"note,omitempty"`
}

// CheckRecord is the full result of one obligation check, applied to the
// store in a single transaction.
type CheckRecord struct {
	ObligationID string
	Verdict      Verdict
	Fact         *LiveFact
	CheckedAt    time.Time
	NextCheckAt  time.Time
	// NextDeadline is set when a recurring obligation's deadline rolls forward.
	NextDeadline *time.Time
	// Alert is raised or refreshed alongside the obligation update. Nil when
	// the verdict does not call for one.
	Alert *AlertDraft
}
