package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

func TestOperationFor(t *testing.T) {
	tests := []struct {
		name string
		ob   models.Obligation
		want models.Operation
		ok   bool
	}{
		{
			name: "discount keyword",
			ob:   models.Obligation{Type: models.ObligationTypeCapThreshold, Condition: "Maximum discount 10%"},
			want: models.OperationDiscountData,
			ok:   true,
		},
		{
			name: "rebate keyword",
			ob:   models.Obligation{Type: models.ObligationTypeOther, Condition: "Rebate applies above 1,000,000 annual spend"},
			want: models.OperationCustomerVolume,
			ok:   true,
		},
		{
			name: "refund keyword",
			ob:   models.Obligation{Type: models.ObligationTypeSLA, Condition: "no more than 5 refunds per month"},
			want: models.OperationTransactionActivity,
			ok:   true,
		},
		{
			name: "explicit metric beats keywords",
			ob:   models.Obligation{Type: models.ObligationTypeOther, Condition: "discount volume", Metric: gateway.MetricRefundCount},
			want: models.OperationTransactionActivity,
			ok:   true,
		},
		{
			name: "shared metric on payment prefers volume",
			ob:   models.Obligation{Type: models.ObligationTypePayment, Metric: gateway.MetricTransactionCount},
			want: models.OperationCustomerVolume,
			ok:   true,
		},
		{
			name: "shared metric elsewhere prefers activity",
			ob:   models.Obligation{Type: models.ObligationTypeSLA, Metric: gateway.MetricTransactionCount},
			want: models.OperationTransactionActivity,
			ok:   true,
		},
		{
			name: "unknown metric falls through to type",
			ob:   models.Obligation{Type: models.ObligationTypeRenewal, Metric: "headcount"},
			want: models.OperationTransactionActivity,
			ok:   true,
		},
		{
			name: "cap with nothing to go on",
			ob:   models.Obligation{Type: models.ObligationTypeCapThreshold, Condition: "must not exceed 5"},
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := operationFor(&tt.ob)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveParty(t *testing.T) {
	tests := []struct {
		party, ref, want string
	}{
		{"Client 1", "", "CUST-001"},
		{"ACME Corp (customer-42)", "", "CUST-042"},
		{"cust_1234", "", "CUST-1234"},
		{"Client 1", "ACME-77", "ACME-77"},
		{"  Globex Inc ", "", "Globex Inc"},
		{"Clientele Partners", "", "Clientele Partners"},
	}
	for _, tt := range tests {
		got := ResolveParty(&models.Obligation{Party: tt.party, PartyRef: tt.ref})
		assert.Equal(t, tt.want, got, tt.party)
	}
}

func TestWindowFor(t *testing.T) {
	now := time.Date(2026, 3, 15, 13, 45, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	w := windowFor(&models.Obligation{Frequency: models.FrequencyOneTime}, models.OperationDiscountData, now)
	assert.Equal(t, tomorrow, w.End)
	assert.Equal(t, tomorrow.AddDate(0, 0, -30), w.Start)

	w = windowFor(&models.Obligation{Frequency: models.FrequencyOneTime}, models.OperationCustomerVolume, now)
	assert.Equal(t, tomorrow.AddDate(0, 0, -90), w.Start)

	w = windowFor(&models.Obligation{Frequency: models.FrequencyQuarterly}, models.OperationCustomerVolume, now)
	assert.Equal(t, time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, tomorrow, w.End)
}

func TestPlanFor(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	plan, ok := planFor(&models.Obligation{
		Type:      models.ObligationTypePayment,
		Party:     "Client 7",
		Condition: "spend of at least 50,000",
		Frequency: models.FrequencyOneTime,
	}, now)
	assert.True(t, ok)
	assert.Equal(t, models.OperationCustomerVolume, plan.Operation)
	assert.Equal(t, "CUST-007", plan.Query.Party)
	assert.Equal(t, models.AlertTypeFinancialTrigger, plan.AlertType)

	plan, ok = planFor(&models.Obligation{Type: models.ObligationTypeSLA, Party: "Client 7", Condition: "refunds below 3"}, now)
	assert.True(t, ok)
	assert.Equal(t, models.AlertTypeSLABreach, plan.AlertType)

	_, ok = planFor(&models.Obligation{Type: models.ObligationTypeSLA, Party: "  "}, now)
	assert.False(t, ok)
}

func TestNextDeadline(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	past := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 3)

	got := nextDeadline(&models.Obligation{Frequency: models.FrequencyMonthly, Deadline: &past}, now)
	if assert.NotNil(t, got) {
		assert.Equal(t, time.Date(2026, 5, 28, 0, 0, 0, 0, time.UTC), *got)
	}
	assert.Nil(t, nextDeadline(&models.Obligation{Frequency: models.FrequencyMonthly, Deadline: &future}, now))
	assert.Nil(t, nextDeadline(&models.Obligation{Frequency: models.FrequencyOneTime, Deadline: &past}, now))
	assert.Nil(t, nextDeadline(&models.Obligation{Frequency: models.FrequencyAnnual}, now))
}

func TestBreachDraft(t *testing.T) {
	overage := 50.0
	ob := &models.Obligation{
		ID:         "ob-1",
		ContractID: "CTR-1",
		Reference:  "MSA 4.2",
		Party:      "Client 1",
		Type:       models.ObligationTypeCapThreshold,
		Condition:  "Maximum discount 10%",
	}
	plan := Plan{
		Operation: models.OperationDiscountData,
		Query: gateway.Query{Party: "CUST-001", Window: models.Window{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		}},
		AlertType: models.AlertTypeSLABreach,
	}
	v := models.Verdict{
		Outcome:    models.OutcomeBreached,
		Rationale:  "max_discount_percentage found 15%, cap is 10%",
		OveragePct: &overage,
	}
	d := breachDraft(ob, plan, v, nil)
	assert.Equal(t, "Cap breached: MSA 4.2", d.Title)
	assert.Equal(t, models.SeverityMedium, d.Severity)
	assert.Equal(t, models.AlertTypeSLABreach, d.Type)
	assert.Contains(t, d.Message, "found 15%, cap is 10%")
	assert.Contains(t, d.Message, "2026-01-01 to 2026-01-31")
	assert.Contains(t, d.Message, "CUST-001")
	assert.Equal(t, 50.0, *d.Evidence.Verdict.OveragePct)
}

func TestDeadlineDraft(t *testing.T) {
	deadline := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	ob := &models.Obligation{
		ID:       "ob-1",
		Party:    "Client 1",
		Type:     models.ObligationTypeReportSubmission,
		Deadline: &deadline,
	}

	d := deadlineDraft(ob, 7, 0)
	assert.Equal(t, "URGENT: report submission due today", d.Title)
	assert.Equal(t, models.SeverityCritical, d.Severity)

	d = deadlineDraft(ob, 7, 2)
	assert.Equal(t, "HIGH PRIORITY: report submission due in 2 days", d.Title)

	d = deadlineDraft(ob, 30, 20)
	assert.Equal(t, "REMINDER: report submission due in 20 days", d.Title)
	assert.Equal(t, 30, d.WindowDays)
	assert.Equal(t, models.AlertTypeDeadlineUpcoming, d.Type)
	assert.Contains(t, d.Message, "Deadline: 2026-06-30")
}
