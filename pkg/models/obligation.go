package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObligationType classifies the kind of contractual rule being tracked.
type ObligationType string

const (
	ObligationTypePayment          ObligationType = "payment"
	ObligationTypeSLA              ObligationType = "sla"
	ObligationTypeReportSubmission ObligationType = "report_submission"
	ObligationTypeCapThreshold     ObligationType = "cap_threshold"
	ObligationTypeRenewal          ObligationType = "renewal"
	ObligationTypeOther            ObligationType = "other"
)

// Frequency describes how often an obligation recurs.
type Frequency string

const (
	FrequencyOneTime   Frequency = "one_time"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

// ObligationStatus is the business lifecycle of an obligation. It is independent of compliance.
type ObligationStatus string

const (
	ObligationStatusActive    ObligationStatus = "active"
	ObligationStatusCompleted ObligationStatus = "completed"
	ObligationStatusBreached  ObligationStatus = "breached"
	ObligationStatusPending   ObligationStatus = "pending"
	ObligationStatusArchived  ObligationStatus = "archived"
)

// RiskLevel is the inherent risk assigned to an obligation at extraction or review time.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// ComplianceStatus is the outcome of the most recent conclusive check.
type ComplianceStatus string

const (
	ComplianceStatusCompliant    ComplianceStatus = "compliant"
	ComplianceStatusNonCompliant ComplianceStatus = "non_compliant"
	ComplianceStatusUnknown      ComplianceStatus = "unknown"
)

// Money is an amount in an explicit ISO-4217 currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// IsZero reports whether no amount was recorded.
func (m *Money) IsZero() bool {
	return m == nil || (m.Amount.IsZero() && m.Currency == "")
}

// Obligation is a machine-checkable rule derived from a contract clause.
type Obligation struct {
	ID                 string           `json:"id"`
	ContractID         string           `json:"contract_id"`
	Reference          string           `json:"reference"`
	Party              string           `json:"party"`
	PartyRef           string           `json:"party_ref,omitempty"`
	Type               ObligationType   `json:"obligation_type"`
	Description        string           `json:"description,omitempty"`
	Deadline           *time.Time       `json:"deadline,omitempty"`
	Frequency          Frequency        `json:"frequency"`
	Condition          string           `json:"condition,omitempty"`
	Metric             string           `json:"metric,omitempty"`
	Penalty            *Money           `json:"penalty,omitempty"`
	Rebate             *Money           `json:"rebate,omitempty"`
	Status             ObligationStatus `json:"status"`
	RiskLevel          RiskLevel        `json:"risk_level"`
	ComplianceStatus   ComplianceStatus `json:"compliance_status"`
	LastCheckedAt      *time.Time       `json:"last_checked_at,omitempty"`
	NextCheckAt        *time.Time       `json:"next_check_at,omitempty"`
	BreachCount        int              `json:"breach_count"`
	LastBreachAt       *time.Time       `json:"last_breach_at,omitempty"`
	ComplianceEvidence *Evidence        `json:"compliance_evidence,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsRecurring reports whether the obligation repeats on a schedule.
func (o *Obligation) IsRecurring() bool {
	switch o.Frequency {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual:
		return true
	default:
		return false
	}
}

// DaysUntilDeadline returns whole days remaining until the deadline, or false when there is none.
// Negative values mean the deadline has passed.
func (o *Obligation) DaysUntilDeadline(now time.Time) (int, bool) {
	if o.Deadline == nil {
		return 0, false
	}
	return int(o.Deadline.Sub(now).Hours() / 24), true
}

// IsOverdue reports whether an active obligation's deadline has passed.
func (o *Obligation) IsOverdue(now time.Time) bool {
	return o.Deadline != nil && o.Status == ObligationStatusActive && now.After(*o.Deadline)
}

// Advance returns t moved forward by one period of the given frequency.
// One-time frequencies return t unchanged.
func (f Frequency) Advance(t time.Time) time.Time {
	switch f {
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	case FrequencyQuarterly:
		return t.AddDate(0, 3, 0)
	case FrequencyAnnual:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}

// Rewind returns t moved back by one period of the given frequency.
func (f Frequency) Rewind(t time.Time) time.Time {
	switch f {
	case FrequencyMonthly:
		return t.AddDate(0, -1, 0)
	case FrequencyQuarterly:
		return t.AddDate(0, -3, 0)
	case FrequencyAnnual:
		return t.AddDate(-1, 0, 0)
	default:
		return t
	}
}

var riskMultipliers = map[RiskLevel]float64{
	RiskLevelLow:      0.5,
	RiskLevelMedium:   1.0,
	RiskLevelHigh:     1.5,
	RiskLevelCritical: 2.0,
}

var (
	penaltyLarge  = decimal.NewFromInt(1_000_000)
	penaltyMedium = decimal.NewFromInt(100_000)
)

// RiskScore combines deadline proximity, breach history and penalty size into a 0-100 score.
func (o *Obligation) RiskScore(now time.Time) float64 {
	score := 0.0
	if days, ok := o.DaysUntilDeadline(now); ok {
		switch {
		case days < 0:
			score += 50
		case days <= 7:
			score += 30
		case days <= 30:
			score += 15
		}
	}
	score += float64(o.BreachCount) * 10
	if !o.Penalty.IsZero() {
		switch {
		case o.Penalty.Amount.GreaterThan(penaltyLarge):
			score += 20
		case o.Penalty.Amount.GreaterThan(penaltyMedium):
			score += 10
		}
	}
	mult, ok := riskMultipliers[o.RiskLevel]
	if !ok {
		mult = 1.0
	}
	score *= mult
	if score > 100 {
		return 100
	}
	return score
}

// ObligationFilter narrows obligation listings. Zero values are ignored.
type ObligationFilter struct {
	Status           ObligationStatus
	Type             ObligationType
	Party            string
	RiskLevel        RiskLevel
	ComplianceStatus ComplianceStatus
	ContractID       string
	DueBefore        *time.Time
	Limit            int
	Offset           int
}

// CreateObligationRequest is the payload accepted from the upstream extraction process.
type CreateObligationRequest struct {
	ContractID  string           `json:"contract_id"`
	Reference   string           `json:"reference"`
	Party       string           `json:"party"`
	PartyRef    string           `json:"party_ref"`
	Type        ObligationType   `json:"obligation_type"`
	Description string           `json:"description"`
	Deadline    *time.Time       `json:"deadline"`
	Frequency   Frequency        `json:"frequency"`
	Condition   string           `json:"condition"`
	Metric      string           `json:"metric"`
	Penalty     *Money           `json:"penalty"`
	Rebate      *Money           `json:"rebate"`
	Status      ObligationStatus `json:"status"`
	RiskLevel   RiskLevel        `json:"risk_level"`
}

// UpdateObligationRequest carries descriptive fields editable by manual review.
// Compliance fields are deliberately absent.
type UpdateObligationRequest struct {
	Party       *string           `json:"party"`
	PartyRef    *string           `json:"party_ref"`
	Type        *ObligationType   `json:"obligation_type"`
	Description *string           `json:"description"`
	Deadline    *time.Time        `json:"deadline"`
	Frequency   *Frequency        `json:"frequency"`
	Condition   *string           `json:"condition"`
	Metric      *string           `json:"metric"`
	Penalty     *Money            `json:"penalty"`
	Rebate      *Money            `json:"rebate"`
	Status      *ObligationStatus `json:"status"`
	RiskLevel   *RiskLevel        `json:"risk_level"`
}

// ObligationView decorates an obligation with derived read-only fields.
type ObligationView struct {
	*Obligation
	RiskScore float64 `json:"risk_score"`
	Overdue   bool    `json:"overdue"`
}

// NewObligationView builds the API representation of an obligation.
func NewObligationView(o *Obligation, now time.Time) ObligationView {
	return ObligationView{Obligation: o, RiskScore: o.RiskScore(now), Overdue: o.IsOverdue(now)}
}
