package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

type fakeEngine struct {
	last *models.PassSummary
}

func (f fakeEngine) Running() bool { return true }

func (f fakeEngine) Schedules() (string, string) { return "@every 1h", "0 6 * * *" }

func (f fakeEngine) LastSummaries() (*models.PassSummary, *models.PassSummary) {
	return f.last, nil
}

func TestComplianceSummary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, party := range []string{"Client 1", "Client 1", "Globex"} {
		req := validRequest(string(rune('A' + i)))
		req.Party = party
		_, err := CreateObligation(ctx, db, testLog, req)
		require.NoError(t, err)
	}
	archived := validRequest("archived")
	archived.Status = models.ObligationStatusArchived
	_, err := CreateObligation(ctx, db, testLog, archived)
	require.NoError(t, err)

	all, err := db.ListObligations(ctx, models.ObligationFilter{Party: "Client 1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	_, err = db.ApplyCheck(ctx, models.CheckRecord{
		ObligationID: all[0].ID,
		Verdict:      models.Verdict{Outcome: models.OutcomeCompliant, Method: models.MethodThreshold},
		CheckedAt:    time.Now().UTC(),
		NextCheckAt:  time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	s, err := ComplianceSummary(ctx, db, "")
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalObligations)
	assert.Equal(t, 1, s.Compliant)
	assert.Equal(t, 2, s.Unknown)
	assert.Equal(t, 33.33, s.ComplianceRate)
	assert.Equal(t, 3, s.ByType[models.ObligationTypeCapThreshold])
	assert.Equal(t, 3, s.RiskDistribution[models.RiskLevelMedium])

	s, err = ComplianceSummary(ctx, db, "client")
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalObligations)
	assert.Equal(t, 50.0, s.ComplianceRate)

	s, err = ComplianceSummary(ctx, db, "nobody")
	require.NoError(t, err)
	assert.Zero(t, s.TotalObligations)
	assert.Zero(t, s.ComplianceRate)
}

func TestMonitoringStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	overdue := validRequest("overdue")
	overdue.Deadline = &past
	_, err := CreateObligation(ctx, db, testLog, overdue)
	require.NoError(t, err)
	_, err = CreateObligation(ctx, db, testLog, validRequest("fresh"))
	require.NoError(t, err)

	last := &models.PassSummary{Kind: models.PassReconcile, Checked: 2}
	health := map[string]gateway.Health{
		"warehouse": {Backend: "warehouse", Healthy: true},
		"crm":       {Backend: "crm", Healthy: false, Error: "timeout"},
	}
	st, err := MonitoringStatus(ctx, db, fakeEngine{last: last}, health, now)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.ActiveObligations)
	assert.Equal(t, 2, st.DueObligations)
	assert.Equal(t, 1, st.OverdueObligations)
	assert.Zero(t, st.OpenAlerts)
	assert.Equal(t, "@every 1h", st.ReconcileSchedule)
	assert.Same(t, last, st.LastReconcile)
	assert.Equal(t, map[string]string{"warehouse": "healthy", "crm": "unhealthy"}, st.Backends)

	st, err = MonitoringStatus(ctx, db, nil, nil, now)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Nil(t, st.Backends)
}
