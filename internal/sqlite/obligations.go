package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-karan/pactwatch/pkg/models"
)

const (
	obligationColumns = `id,
    contract_id,
    reference,
    party,
    party_ref,
    obligation_type,
    description,
    deadline,
    frequency,
    condition,
    metric,
    penalty_amount,
    penalty_currency,
    rebate_amount,
    rebate_currency,
    status,
    risk_level,
    compliance_status,
    last_checked_at,
    next_check_at,
    breach_count,
    last_breach_at,
    compliance_evidence,
    created_at,
    updated_at`

	selectObligationBase = `SELECT ` + obligationColumns + `
FROM obligations`

	insertObligationQuery = `INSERT INTO obligations (` + obligationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateObligationDescriptiveQuery = `UPDATE obligations
SET party = ?,
    party_ref = ?,
    obligation_type = ?,
    description = ?,
    deadline = ?,
    frequency = ?,
    condition = ?,
    metric = ?,
    penalty_amount = ?,
    penalty_currency = ?,
    rebate_amount = ?,
    rebate_currency = ?,
    status = ?,
    risk_level = ?,
    updated_at = ?
WHERE id = ?`

	listDueObligationsQuery = selectObligationBase + `
WHERE status = 'active'
  AND (next_check_at IS NULL OR next_check_at <= ?)
ORDER BY next_check_at IS NOT NULL, next_check_at, id`

	listActiveObligationsQuery = selectObligationBase + `
WHERE status = 'active'
ORDER BY id`

	listDeadlineCandidatesQuery = selectObligationBase + `
WHERE status = 'active'
  AND deadline IS NOT NULL
  AND deadline > ?
  AND deadline <= ?
ORDER BY deadline, id`

	applyCompliantQuery = `UPDATE obligations
SET compliance_status = 'compliant',
    compliance_evidence = ?,
    last_checked_at = ?,
    next_check_at = ?,
    deadline = COALESCE(?, deadline),
    updated_at = ?
WHERE id = ?`

	applyBreachQuery = `UPDATE obligations
SET compliance_status = 'non_compliant',
    breach_count = breach_count + 1,
    last_breach_at = ?,
    compliance_evidence = ?,
    last_checked_at = ?,
    next_check_at = ?,
    deadline = COALESCE(?, deadline),
    updated_at = ?
WHERE id = ?`

	applyIndeterminateQuery = `UPDATE obligations
SET last_checked_at = ?,
    next_check_at = ?,
    deadline = COALESCE(?, deadline),
    updated_at = ?
WHERE id = ?`

	countObligationsByStatusQuery = `SELECT status, COUNT(*) FROM obligations GROUP BY status`
)

// CreateObligation stores a new obligation. Compliance fields start from their zero state.
func (db *DB) CreateObligation(ctx context.Context, o *models.Obligation) error {
	if o == nil {
		return fmt.Errorf("obligation payload is required")
	}
	now := db.now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.ComplianceStatus == "" {
		o.ComplianceStatus = models.ComplianceStatusUnknown
	}

	evidence, err := marshalEvidence(o.ComplianceEvidence)
	if err != nil {
		return err
	}
	penaltyAmount, penaltyCurrency := moneyColumns(o.Penalty)
	rebateAmount, rebateCurrency := moneyColumns(o.Rebate)

	_, err = db.writeDB.ExecContext(ctx, insertObligationQuery,
		o.ID,
		o.ContractID,
		o.Reference,
		o.Party,
		nullableString(o.PartyRef),
		string(o.Type),
		nullableString(o.Description),
		nullableTime(o.Deadline),
		string(o.Frequency),
		nullableString(o.Condition),
		nullableString(o.Metric),
		penaltyAmount,
		penaltyCurrency,
		rebateAmount,
		rebateCurrency,
		string(o.Status),
		string(o.RiskLevel),
		string(o.ComplianceStatus),
		nullableTime(o.LastCheckedAt),
		nullableTime(o.NextCheckAt),
		o.BreachCount,
		nullableTime(o.LastBreachAt),
		evidence,
		formatTime(o.CreatedAt),
		formatTime(o.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("obligation reference %q: %w", o.Reference, ErrDuplicate)
		}
		return writeErr("insert obligation", err)
	}
	return nil
}

// UpdateObligation persists the descriptive fields of an obligation.
// Compliance bookkeeping is never touched here.
func (db *DB) UpdateObligation(ctx context.Context, o *models.Obligation) error {
	if o == nil {
		return fmt.Errorf("obligation payload is required")
	}
	o.UpdatedAt = db.now().UTC()
	penaltyAmount, penaltyCurrency := moneyColumns(o.Penalty)
	rebateAmount, rebateCurrency := moneyColumns(o.Rebate)

	res, err := db.writeDB.ExecContext(ctx, updateObligationDescriptiveQuery,
		o.Party,
		nullableString(o.PartyRef),
		string(o.Type),
		nullableString(o.Description),
		nullableTime(o.Deadline),
		string(o.Frequency),
		nullableString(o.Condition),
		nullableString(o.Metric),
		penaltyAmount,
		penaltyCurrency,
		rebateAmount,
		rebateCurrency,
		string(o.Status),
		string(o.RiskLevel),
		formatTime(o.UpdatedAt),
		o.ID,
	)
	if err != nil {
		return writeErr("update obligation", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetObligation retrieves an obligation by its identifier.
func (db *DB) GetObligation(ctx context.Context, id string) (*models.Obligation, error) {
	row := db.readDB.QueryRowContext(ctx, selectObligationBase+" WHERE id = ?", id)
	o, err := scanObligation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// ListObligations returns obligations matching the filter, ordered by deadline then id.
func (db *DB) ListObligations(ctx context.Context, f models.ObligationFilter) ([]*models.Obligation, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Type != "" {
		add("obligation_type = ?", string(f.Type))
	}
	if f.Party != "" {
		add("party = ?", f.Party)
	}
	if f.RiskLevel != "" {
		add("risk_level = ?", string(f.RiskLevel))
	}
	if f.ComplianceStatus != "" {
		add("compliance_status = ?", string(f.ComplianceStatus))
	}
	if f.ContractID != "" {
		add("contract_id = ?", f.ContractID)
	}
	if f.DueBefore != nil {
		add("deadline IS NOT NULL AND deadline <= ?", formatTime(*f.DueBefore))
	}

	query := selectObligationBase
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY deadline IS NULL, deadline, id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	return db.queryObligations(ctx, query, args...)
}

// ListDueObligations returns active obligations whose next check is unset or due at now.
func (db *DB) ListDueObligations(ctx context.Context, now time.Time) ([]*models.Obligation, error) {
	return db.queryObligations(ctx, listDueObligationsQuery, formatTime(now))
}

// ListActiveObligations returns every active obligation regardless of schedule.
func (db *DB) ListActiveObligations(ctx context.Context) ([]*models.Obligation, error) {
	return db.queryObligations(ctx, listActiveObligationsQuery)
}

// ListDeadlineCandidates returns active obligations whose deadline lies in (now, now+horizon].
func (db *DB) ListDeadlineCandidates(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Obligation, error) {
	return db.queryObligations(ctx, listDeadlineCandidatesQuery, formatTime(now), formatTime(now.Add(horizon)))
}

// CountObligationsByStatus returns obligation counts keyed by lifecycle status.
func (db *DB) CountObligationsByStatus(ctx context.Context) (map[models.ObligationStatus]int, error) {
	rows, err := db.readDB.QueryContext(ctx, countObligationsByStatusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count obligations: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ObligationStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan obligation count: %w", err)
		}
		counts[models.ObligationStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating obligation counts: %w", err)
	}
	return counts, nil
}

// ApplyCheck records one check outcome and, when requested, raises or refreshes
// the breach alert, all in a single transaction. Either everything is committed
// or nothing is.
func (db *DB) ApplyCheck(ctx context.Context, rec models.CheckRecord) (*models.RaiseResult, error) {
	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, writeErr("begin check transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var evidence any
	if rec.Verdict.Outcome != models.OutcomeIndeterminate {
		evidence, err = marshalEvidence(&models.Evidence{Fact: rec.Fact, Verdict: &rec.Verdict})
		if err != nil {
			return nil, err
		}
	}

	now := formatTime(db.now())
	checked := formatTime(rec.CheckedAt)
	next := formatTime(rec.NextCheckAt)
	deadline := nullableTime(rec.NextDeadline)

	var res sql.Result
	switch rec.Verdict.Outcome {
	case models.OutcomeCompliant:
		res, err = tx.ExecContext(ctx, applyCompliantQuery, evidence, checked, next, deadline, now, rec.ObligationID)
	case models.OutcomeBreached:
		res, err = tx.ExecContext(ctx, applyBreachQuery, checked, evidence, checked, next, deadline, now, rec.ObligationID)
	case models.OutcomeIndeterminate:
		res, err = tx.ExecContext(ctx, applyIndeterminateQuery, checked, next, deadline, now, rec.ObligationID)
	default:
		return nil, fmt.Errorf("unknown verdict outcome %q", rec.Verdict.Outcome)
	}
	if err != nil {
		return nil, writeErr("apply check", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, ErrNotFound
	}

	var raised *models.RaiseResult
	if rec.Alert != nil {
		raised, err = db.raiseBreachAlertTx(ctx, tx, rec.Alert, rec.CheckedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, writeErr("commit check", err)
	}
	return raised, nil
}

func (db *DB) queryObligations(ctx context.Context, query string, args ...any) ([]*models.Obligation, error) {
	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	defer rows.Close()

	var obligations []*models.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating obligations: %w", err)
	}
	return obligations, nil
}

func scanObligation(s scanner) (*models.Obligation, error) {
	var (
		o               models.Obligation
		partyRef        sql.NullString
		obligationType  string
		description     sql.NullString
		deadline        sql.NullString
		frequency       string
		condition       sql.NullString
		metric          sql.NullString
		penaltyAmount   sql.NullString
		penaltyCurrency sql.NullString
		rebateAmount    sql.NullString
		rebateCurrency  sql.NullString
		status          string
		riskLevel       string
		compliance      string
		lastCheckedAt   sql.NullString
		nextCheckAt     sql.NullString
		lastBreachAt    sql.NullString
		evidence        sql.NullString
		createdAt       string
		updatedAt       string
	)
	if err := s.Scan(&o.ID, &o.ContractID, &o.Reference, &o.Party, &partyRef, &obligationType, &description,
		&deadline, &frequency, &condition, &metric, &penaltyAmount, &penaltyCurrency, &rebateAmount, &rebateCurrency,
		&status, &riskLevel, &compliance, &lastCheckedAt, &nextCheckAt, &o.BreachCount, &lastBreachAt, &evidence,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan obligation: %w", err)
	}

	o.PartyRef = partyRef.String
	o.Type = models.ObligationType(obligationType)
	o.Description = description.String
	o.Frequency = models.Frequency(frequency)
	o.Condition = condition.String
	o.Metric = metric.String
	o.Status = models.ObligationStatus(status)
	o.RiskLevel = models.RiskLevel(riskLevel)
	o.ComplianceStatus = models.ComplianceStatus(compliance)

	var err error
	if o.Deadline, err = parseNullTime(deadline); err != nil {
		return nil, err
	}
	if o.LastCheckedAt, err = parseNullTime(lastCheckedAt); err != nil {
		return nil, err
	}
	if o.NextCheckAt, err = parseNullTime(nextCheckAt); err != nil {
		return nil, err
	}
	if o.LastBreachAt, err = parseNullTime(lastBreachAt); err != nil {
		return nil, err
	}
	if o.Penalty, err = scanMoney(penaltyAmount, penaltyCurrency); err != nil {
		return nil, err
	}
	if o.Rebate, err = scanMoney(rebateAmount, rebateCurrency); err != nil {
		return nil, err
	}
	if o.ComplianceEvidence, err = unmarshalEvidence(evidence); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
