package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/sqlite"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// EngineState is the slice of the monitoring engine the status report reads.
type EngineState interface {
	Running() bool
	Schedules() (reconcile, deadline string)
	LastSummaries() (reconcile, deadline *models.PassSummary)
}

// ComplianceSummary aggregates compliance over active obligations. party, when
// set, matches case-insensitively anywhere in the party name.
func ComplianceSummary(ctx context.Context, db *sqlite.DB, party string) (*models.ComplianceSummary, error) {
	list, err := db.ListObligations(ctx, models.ObligationFilter{Status: models.ObligationStatusActive})
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}

	party = strings.TrimSpace(party)
	needle := strings.ToLower(party)
	s := &models.ComplianceSummary{
		Party:            party,
		ByType:           make(map[models.ObligationType]int),
		ByStatus:         make(map[models.ComplianceStatus]int),
		RiskDistribution: make(map[models.RiskLevel]int),
	}
	for _, o := range list {
		if needle != "" && !strings.Contains(strings.ToLower(o.Party), needle) {
			continue
		}
		s.TotalObligations++
		s.ByType[o.Type]++
		s.ByStatus[o.ComplianceStatus]++
		s.RiskDistribution[o.RiskLevel]++
		switch o.ComplianceStatus {
		case models.ComplianceStatusCompliant:
			s.Compliant++
		case models.ComplianceStatusNonCompliant:
			s.NonCompliant++
		default:
			s.Unknown++
		}
		s.TotalBreaches += o.BreachCount
		if o.BreachCount > 0 {
			s.ObligationsBreached++
		}
		if o.LastBreachAt != nil && (s.LastBreachAt == nil || o.LastBreachAt.After(*s.LastBreachAt)) {
			s.LastBreachAt = o.LastBreachAt
		}
	}
	if s.TotalObligations > 0 {
		s.ComplianceRate = math.Round(float64(s.Compliant)/float64(s.TotalObligations)*10000) / 100
	}
	return s, nil
}

// MonitoringStatus reports the engine state with obligation and alert counts.
// health may be nil when no gateway registry is wired.
func MonitoringStatus(ctx context.Context, db *sqlite.DB, engine EngineState, health map[string]gateway.Health, now time.Time) (*models.MonitoringStatus, error) {
	byStatus, err := db.CountObligationsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	due, err := db.ListDueObligations(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due obligations: %w", err)
	}
	overdue, err := db.ListObligations(ctx, models.ObligationFilter{Status: models.ObligationStatusActive, DueBefore: &now})
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue obligations: %w", err)
	}
	alertsByStatus, alertsBySeverity, err := db.CountUnresolvedAlerts(ctx)
	if err != nil {
		return nil, err
	}

	st := &models.MonitoringStatus{
		ActiveObligations:  byStatus[models.ObligationStatusActive],
		DueObligations:     len(due),
		OpenAlerts:         alertsByStatus[models.AlertStatusOpen],
		AcknowledgedAlerts: alertsByStatus[models.AlertStatusAcknowledged],
		AlertsBySeverity:   alertsBySeverity,
	}
	for _, o := range overdue {
		if o.IsOverdue(now) {
			st.OverdueObligations++
		}
	}
	if engine != nil {
		st.Running = engine.Running()
		st.ReconcileSchedule, st.DeadlineSchedule = engine.Schedules()
		st.LastReconcile, st.LastDeadline = engine.LastSummaries()
	}
	if len(health) > 0 {
		st.Backends = make(map[string]string, len(health))
		for name, h := range health {
			if h.Healthy {
				st.Backends[name] = "healthy"
			} else {
				st.Backends[name] = "unhealthy"
			}
		}
	}
	return st, nil
}
