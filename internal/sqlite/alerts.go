package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mr-karan/pactwatch/pkg/models"
)

const (
	alertColumns = `id,
    obligation_id,
    contract_id,
    alert_type,
    severity,
    title,
    message,
    status,
    triggered_at,
    acknowledged_at,
    acknowledged_by,
    resolved_at,
    resolved_by,
    resolution_note,
    evidence,
    window_days,
    deadline,
    refreshed_at,
    created_at,
    updated_at`

	selectAlertBase = `SELECT ` + alertColumns + `
FROM alerts`

	insertAlertQuery = `INSERT INTO alerts (
    id,
    obligation_id,
    contract_id,
    alert_type,
    severity,
    title,
    message,
    status,
    triggered_at,
    evidence,
    window_days,
    deadline,
    created_at,
    updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, 'open', ?, ?, ?, ?, ?, ?)`

	getUnresolvedAlertQuery = selectAlertBase + `
WHERE obligation_id = ? AND alert_type = ? AND status IN ('open', 'acknowledged')
LIMIT 1`

	deadlineAlertExistsQuery = `SELECT COUNT(*) FROM alerts
WHERE obligation_id = ?
  AND alert_type = 'deadline_upcoming'
  AND window_days = ?
  AND deadline = ?`

	refreshAlertQuery = `UPDATE alerts
SET severity = ?,
    title = ?,
    message = ?,
    evidence = ?,
    window_days = ?,
    deadline = ?,
    refreshed_at = ?,
    updated_at = ?
WHERE id = ?`

	acknowledgeAlertQuery = `UPDATE alerts
SET status = 'acknowledged',
    acknowledged_at = ?,
    acknowledged_by = ?,
    updated_at = ?
WHERE id = ? AND status = 'open'`

	resolveAlertQuery = `UPDATE alerts
SET status = 'resolved',
    resolved_at = ?,
    resolved_by = ?,
    resolution_note = ?,
    updated_at = ?
WHERE id = ? AND status IN ('open', 'acknowledged')`

	countUnresolvedAlertsQuery = `SELECT status, severity, COUNT(*) FROM alerts
WHERE status IN ('open', 'acknowledged')
GROUP BY status, severity`
)

// GetAlert retrieves an alert by its identifier.
func (db *DB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := db.readDB.QueryRowContext(ctx, selectAlertBase+" WHERE id = ?", id)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return alert, nil
}

// GetUnresolvedAlert returns the open or acknowledged alert for (obligation, type), if any.
func (db *DB) GetUnresolvedAlert(ctx context.Context, obligationID string, alertType models.AlertType) (*models.Alert, error) {
	row := db.readDB.QueryRowContext(ctx, getUnresolvedAlertQuery, obligationID, string(alertType))
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (db *DB) ListAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error) {
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
	if f.Severity != "" {
		add("severity = ?", string(f.Severity))
	}
	if f.Type != "" {
		add("alert_type = ?", string(f.Type))
	}
	if f.ObligationID != "" {
		add("obligation_id = ?", f.ObligationID)
	}
	if f.ContractID != "" {
		add("contract_id = ?", f.ContractID)
	}
	if f.From != nil {
		add("triggered_at >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		add("triggered_at <= ?", formatTime(*f.To))
	}

	query := selectAlertBase
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY triggered_at DESC, id"
	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultAlertListLimit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// CountUnresolvedAlerts returns unresolved alert counts by status and by severity.
func (db *DB) CountUnresolvedAlerts(ctx context.Context) (map[models.AlertStatus]int, map[models.Severity]int, error) {
	rows, err := db.readDB.QueryContext(ctx, countUnresolvedAlertsQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[models.AlertStatus]int)
	bySeverity := make(map[models.Severity]int)
	for rows.Next() {
		var (
			status, severity string
			n                int
		)
		if err := rows.Scan(&status, &severity, &n); err != nil {
			return nil, nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		byStatus[models.AlertStatus(status)] += n
		bySeverity[models.Severity(severity)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating alert counts: %w", err)
	}
	return byStatus, bySeverity, nil
}

// TransitionAlert moves an alert to the target status inside a write transaction.
// It returns the stored alert and whether anything changed. Illegal moves return
// models.ErrInvalidTransition and leave the row untouched.
func (db *DB) TransitionAlert(ctx context.Context, id string, to models.AlertStatus, by, note string) (*models.Alert, bool, error) {
	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, writeErr("begin alert transition", err)
	}
	defer func() { _ = tx.Rollback() }()

	alert, err := scanAlert(tx.QueryRowContext(ctx, selectAlertBase+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}

	next, changed, err := models.NextStatus(alert.Status, to)
	if err != nil {
		return alert, false, fmt.Errorf("alert %s is %s: %w", id, alert.Status, err)
	}
	if !changed {
		return alert, false, nil
	}

	now := db.now().UTC()
	switch next {
	case models.AlertStatusAcknowledged:
		_, err = tx.ExecContext(ctx, acknowledgeAlertQuery, formatTime(now), nullableString(by), formatTime(now), id)
		alert.AcknowledgedAt = &now
		alert.AcknowledgedBy = by
	case models.AlertStatusResolved:
		_, err = tx.ExecContext(ctx, resolveAlertQuery, formatTime(now), nullableString(by), nullableString(note), formatTime(now), id)
		alert.ResolvedAt = &now
		alert.ResolvedBy = by
		alert.ResolutionNote = note
	}
	if err != nil {
		return nil, false, writeErr("transition alert", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, writeErr("commit alert transition", err)
	}
	alert.Status = next
	alert.UpdatedAt = now
	return alert, true, nil
}

// RaiseDeadlineAlert raises a deadline_upcoming alert for one lead window.
//
// An alert that was ever raised for the same obligation, window and deadline
// suppresses the raise. An unresolved alert from a wider window (or an earlier
// deadline of a recurring obligation) is updated in place. Otherwise a new
// alert is inserted.
func (db *DB) RaiseDeadlineAlert(ctx context.Context, d *models.AlertDraft) (*models.RaiseResult, error) {
	if d == nil || d.Deadline == nil || d.WindowDays <= 0 {
		return nil, fmt.Errorf("deadline alert requires a deadline and window")
	}
	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, writeErr("begin deadline alert", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seen int
	if err := tx.QueryRowContext(ctx, deadlineAlertExistsQuery, d.ObligationID, d.WindowDays, formatTime(*d.Deadline)).Scan(&seen); err != nil {
		return nil, fmt.Errorf("failed to check deadline alert history: %w", err)
	}
	if seen > 0 {
		return &models.RaiseResult{Outcome: models.RaiseSuppressed}, nil
	}

	now := db.now().UTC()
	existing, err := scanAlert(tx.QueryRowContext(ctx, getUnresolvedAlertQuery, d.ObligationID, string(models.AlertTypeDeadlineUpcoming)))
	var result *models.RaiseResult
	switch {
	case err == nil:
		sameDeadline := existing.Deadline != nil && existing.Deadline.Equal(*d.Deadline)
		if sameDeadline && existing.WindowDays > 0 && existing.WindowDays <= d.WindowDays {
			return &models.RaiseResult{Alert: existing, Outcome: models.RaiseSuppressed}, nil
		}
		outcome := models.RaiseRefreshed
		if sameDeadline {
			outcome = models.RaiseEscalated
		}
		if err := refreshAlertTx(ctx, tx, existing, d, now, false); err != nil {
			return nil, err
		}
		result = &models.RaiseResult{Alert: existing, Outcome: outcome}
	case errors.Is(err, sql.ErrNoRows):
		alert, err := insertAlertTx(ctx, tx, d, now)
		if err != nil {
			return nil, err
		}
		result = &models.RaiseResult{Alert: alert, Outcome: models.RaiseCreated}
	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, writeErr("commit deadline alert", err)
	}
	return result, nil
}

// raiseBreachAlertTx creates the breach alert or refreshes the unresolved one.
// Severity only ever escalates on refresh.
func (db *DB) raiseBreachAlertTx(ctx context.Context, tx *sql.Tx, d *models.AlertDraft, at time.Time) (*models.RaiseResult, error) {
	existing, err := scanAlert(tx.QueryRowContext(ctx, getUnresolvedAlertQuery, d.ObligationID, string(d.Type)))
	switch {
	case err == nil:
		if err := refreshAlertTx(ctx, tx, existing, d, at, true); err != nil {
			return nil, err
		}
		return &models.RaiseResult{Alert: existing, Outcome: models.RaiseRefreshed}, nil
	case errors.Is(err, sql.ErrNoRows):
		alert, err := insertAlertTx(ctx, tx, d, at)
		if err != nil {
			return nil, err
		}
		return &models.RaiseResult{Alert: alert, Outcome: models.RaiseCreated}, nil
	default:
		return nil, err
	}
}

func insertAlertTx(ctx context.Context, tx *sql.Tx, d *models.AlertDraft, at time.Time) (*models.Alert, error) {
	evidence, err := marshalEvidence(d.Evidence)
	if err != nil {
		return nil, err
	}
	at = at.UTC()
	alert := &models.Alert{
		ID:           uuid.NewString(),
		ObligationID: d.ObligationID,
		ContractID:   d.ContractID,
		Type:         d.Type,
		Severity:     d.Severity,
		Title:        d.Title,
		Message:      d.Message,
		Status:       models.AlertStatusOpen,
		TriggeredAt:  at,
		Evidence:     d.Evidence,
		WindowDays:   d.WindowDays,
		Deadline:     d.Deadline,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	_, err = tx.ExecContext(ctx, insertAlertQuery,
		alert.ID,
		alert.ObligationID,
		alert.ContractID,
		string(alert.Type),
		string(alert.Severity),
		alert.Title,
		alert.Message,
		formatTime(at),
		evidence,
		nullableInt(alert.WindowDays),
		nullableTime(alert.Deadline),
		formatTime(at),
		formatTime(at),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, writeErr("insert alert", fmt.Errorf("unresolved %s alert already exists: %w", d.Type, ErrDuplicate))
		}
		return nil, writeErr("insert alert", err)
	}
	return alert, nil
}

func refreshAlertTx(ctx context.Context, tx *sql.Tx, existing *models.Alert, d *models.AlertDraft, at time.Time, keepHigherSeverity bool) error {
	evidence, err := marshalEvidence(d.Evidence)
	if err != nil {
		return err
	}
	at = at.UTC()
	severity := d.Severity
	if keepHigherSeverity {
		severity = models.MaxSeverity(existing.Severity, d.Severity)
	}
	if _, err := tx.ExecContext(ctx, refreshAlertQuery,
		string(severity),
		d.Title,
		d.Message,
		evidence,
		nullableInt(d.WindowDays),
		nullableTime(d.Deadline),
		formatTime(at),
		formatTime(at),
		existing.ID,
	); err != nil {
		return writeErr("refresh alert", err)
	}
	existing.Severity = severity
	existing.Title = d.Title
	existing.Message = d.Message
	existing.Evidence = d.Evidence
	existing.WindowDays = d.WindowDays
	existing.Deadline = d.Deadline
	existing.RefreshedAt = &at
	existing.UpdatedAt = at
	return nil
}

func scanAlert(s scanner) (*models.Alert, error) {
	var (
		a              models.Alert
		alertType      string
		severity       string
		status         string
		triggeredAt    string
		acknowledgedAt sql.NullString
		acknowledgedBy sql.NullString
		resolvedAt     sql.NullString
		resolvedBy     sql.NullString
		resolutionNote sql.NullString
		evidence       sql.NullString
		windowDays     sql.NullInt64
		deadline       sql.NullString
		refreshedAt    sql.NullString
		createdAt      string
		updatedAt      string
	)
	if err := s.Scan(&a.ID, &a.ObligationID, &a.ContractID, &alertType, &severity, &a.Title, &a.Message, &status,
		&triggeredAt, &acknowledgedAt, &acknowledgedBy, &resolvedAt, &resolvedBy, &resolutionNote, &evidence,
		&windowDays, &deadline, &refreshedAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	a.Type = models.AlertType(alertType)
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.AcknowledgedBy = acknowledgedBy.String
	a.ResolvedBy = resolvedBy.String
	a.ResolutionNote = resolutionNote.String
	a.WindowDays = int(windowDays.Int64)

	var err error
	if a.TriggeredAt, err = parseTime(triggeredAt); err != nil {
		return nil, err
	}
	if a.AcknowledgedAt, err = parseNullTime(acknowledgedAt); err != nil {
		return nil, err
	}
	if a.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	if a.Deadline, err = parseNullTime(deadline); err != nil {
		return nil, err
	}
	if a.RefreshedAt, err = parseNullTime(refreshedAt); err != nil {
		return nil, err
	}
	if a.Evidence, err = unmarshalEvidence(evidence); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
