package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// RunDeadlinePass raises deadline_upcoming alerts for active obligations whose
// deadline falls inside a lead window. Each (obligation, window, deadline) is
// alerted at most once; moving into a narrower window escalates the open alert.
func (e *Engine) RunDeadlinePass(ctx context.Context) (*models.PassSummary, error) {
	if len(e.windows) == 0 {
		now := e.now().UTC()
		return &models.PassSummary{Kind: models.PassDeadline, StartedAt: now, FinishedAt: now}, nil
	}
	now := e.now()
	horizon := time.Duration(e.windows[len(e.windows)-1]) * 24 * time.Hour
	obs, err := e.store.ListDeadlineCandidates(ctx, now, horizon)
	if err != nil {
		return nil, fmt.Errorf("select deadline candidates: %w", err)
	}

	start := time.Now()
	summary := e.runPass(ctx, models.PassDeadline, obs, e.checkDeadline)
	metrics.GetOrCreateHistogram(`pactwatch_pass_duration_seconds{kind="deadline"}`).UpdateDuration(start)

	e.mu.Lock()
	e.lastDeadline = summary
	e.mu.Unlock()

	e.log.Info("deadline pass finished",
		"candidates", len(obs),
		"alerted", summary.Alerted,
		"skipped", summary.Skipped,
		"errored", summary.Errored)
	return summary, nil
}

// leadWindow returns the narrowest configured window that contains the deadline.
func (e *Engine) leadWindow(remaining time.Duration) (int, bool) {
	if remaining < 0 {
		return 0, false
	}
	for _, w := range e.windows {
		if remaining <= time.Duration(w)*24*time.Hour {
			return w, true
		}
	}
	return 0, false
}

// deadlineSeverity: due today is critical, within three days high, else medium.
func deadlineSeverity(days int) models.Severity {
	switch {
	case days <= 0:
		return models.SeverityCritical
	case days <= 3:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

func (e *Engine) checkDeadline(ctx context.Context, ob *models.Obligation) models.CheckResult {
	unlock, ok := e.lock(ob.ID)
	if !ok {
		return models.CheckResult{ObligationID: ob.ID, Outcome: models.CheckOutcomeSkipped}
	}
	defer unlock()

	if ob.Deadline == nil {
		return models.CheckResult{ObligationID: ob.ID, Outcome: models.CheckOutcomeSkipped}
	}
	now := e.now().UTC()
	remaining := ob.Deadline.Sub(now)
	window, ok := e.leadWindow(remaining)
	if !ok {
		return models.CheckResult{ObligationID: ob.ID, Outcome: models.CheckOutcomeSkipped}
	}
	days := int(remaining.Hours() / 24)

	res, err := e.alerts.RaiseDeadline(ctx, deadlineDraft(ob, window, days))
	if err != nil {
		if ctx.Err() != nil {
			return errored(ob.ID, models.ErrorCategoryCancelled)
		}
		e.log.Error("failed to raise deadline alert", "obligation_id", ob.ID, "error", err)
		return errored(ob.ID, models.ErrorCategoryStoreWrite)
	}

	out := models.CheckResult{ObligationID: ob.ID, Alert: res.Alert, AlertOutcome: res.Outcome}
	if res.Outcome == models.RaiseSuppressed {
		out.Outcome = models.CheckOutcomeSkipped
		return out
	}
	out.Outcome = models.CheckOutcomeAlerted
	e.log.Info("deadline alert raised", "obligation_id", ob.ID, "window_days", window, "days_left", days, "outcome", res.Outcome)
	return out
}

func deadlineDraft(ob *models.Obligation, window, days int) *models.AlertDraft {
	label := strings.ReplaceAll(string(ob.Type), "_", " ")
	severity := deadlineSeverity(days)

	var title string
	switch severity {
	case models.SeverityCritical:
		title = fmt.Sprintf("URGENT: %s due today", label)
	case models.SeverityHigh:
		title = fmt.Sprintf("HIGH PRIORITY: %s due in %d days", label, days)
	default:
		title = fmt.Sprintf("REMINDER: %s due in %d days", label, days)
	}

	var msg strings.Builder
	if ob.Description != "" {
		fmt.Fprintf(&msg, "%s\n\n", ob.Description)
	}
	fmt.Fprintf(&msg, "Party: %s\nDeadline: %s\nDays remaining: %d\nLead window: %d days",
		ob.Party, ob.Deadline.UTC().Format(time.DateOnly), days, window)
	if !ob.Penalty.IsZero() {
		fmt.Fprintf(&msg, "\nPenalty: %s %s", ob.Penalty.Amount.String(), ob.Penalty.Currency)
	}

	deadline := ob.Deadline.UTC()
	return &models.AlertDraft{
		ObligationID: ob.ID,
		ContractID:   ob.ContractID,
		Type:         models.AlertTypeDeadlineUpcoming,
		Severity:     severity,
		Title:        title,
		Message:      msg.String(),
		Evidence:     &models.Evidence{Note: fmt.Sprintf("deadline %s within %d-day window", deadline.Format(time.RFC3339), window)},
		WindowDays:   window,
		Deadline:     &deadline,
	}
}
