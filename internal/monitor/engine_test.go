package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/pactwatch/internal/alerts"
	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/evaluator"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/gateway/fixture"
	"github.com/mr-karan/pactwatch/internal/sqlite"
	"github.com/mr-karan/pactwatch/pkg/models"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	engine  *Engine
	db      *sqlite.DB
	data    *fixture.Backend
	alerts  *alerts.Manager
	sent    *countingSender
	started time.Time
}

type countingSender struct {
	mu sync.Mutex
	n  int
}

func (c *countingSender) Send(context.Context, alerts.AlertNotification) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlite.New(sqlite.Options{
		Logger: testLog,
		Config: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "monitor.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	data := fixture.New("fixture")
	registry := gateway.NewRegistry(testLog, time.Second)
	registry.Register(data)

	eval, err := evaluator.New(evaluator.Options{Logger: testLog})
	require.NoError(t, err)

	sender := &countingSender{}
	mgr := alerts.NewManager(alerts.Options{Store: db, Sender: sender, Logger: testLog})

	engine, err := New(Options{
		Store:     db,
		Gateway:   registry,
		Evaluator: eval,
		Alerts:    mgr,
		Config: config.MonitoringConfig{
			Workers:       4,
			CheckInterval: 24 * time.Hour,
			LeadWindows:   []int{30, 7},
		},
		Logger: testLog,
	})
	require.NoError(t, err)
	return &harness{engine: engine, db: db, data: data, alerts: mgr, sent: sender, started: time.Now()}
}

func (h *harness) obligation(t *testing.T, mutate func(*models.Obligation)) *models.Obligation {
	t.Helper()
	o := &models.Obligation{
		ID:         uuid.NewString(),
		ContractID: "CTR-100",
		Reference:  uuid.NewString(),
		Party:      "Client 1",
		Type:       models.ObligationTypeCapThreshold,
		Frequency:  models.FrequencyOneTime,
		Condition:  "Maximum discount not to exceed 10% of list price",
		Status:     models.ObligationStatusActive,
		RiskLevel:  models.RiskLevelMedium,
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, h.db.CreateObligation(context.Background(), o))
	return o
}

func (h *harness) discount(party string, maxPct float64) {
	h.data.Set(party, models.OperationDiscountData, map[string]any{
		gateway.MetricMaxDiscountPct:         maxPct,
		gateway.MetricAvgDiscountPct:         maxPct / 2,
		gateway.MetricDiscountedTransactions: 40,
	})
}

func (h *harness) unresolved(t *testing.T, obligationID string) []*models.Alert {
	t.Helper()
	var out []*models.Alert
	for _, status := range []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged} {
		list, err := h.db.ListAlerts(context.Background(), models.AlertFilter{ObligationID: obligationID, Status: status})
		require.NoError(t, err)
		out = append(out, list...)
	}
	return out
}

func TestDiscountCapBreachScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, nil)
	h.discount("CUST-001", 15)

	summary, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Breached)
	assert.Equal(t, 1, summary.Alerted)
	assert.Zero(t, summary.Errored)

	open := h.unresolved(t, ob.ID)
	require.Len(t, open, 1)
	first := open[0]
	assert.Equal(t, models.AlertTypeSLABreach, first.Type)
	assert.Equal(t, models.SeverityCritical, first.Severity)
	require.NotNil(t, first.Evidence)
	require.NotNil(t, first.Evidence.Verdict)
	assert.InDelta(t, 50.0, *first.Evidence.Verdict.OveragePct, 1e-9)

	stored, err := h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceStatusNonCompliant, stored.ComplianceStatus)
	assert.Equal(t, 1, stored.BreachCount)
	assert.Equal(t, models.ObligationStatusActive, stored.Status)
	require.NotNil(t, stored.NextCheckAt)
	assert.True(t, stored.NextCheckAt.After(h.started.Add(23*time.Hour)))

	// Same reading next pass: no second alert, breach count still grows.
	summary, err = h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Breached)
	assert.Zero(t, summary.Alerted)

	open = h.unresolved(t, ob.ID)
	require.Len(t, open, 1)
	assert.Equal(t, first.ID, open[0].ID)
	assert.NotNil(t, open[0].RefreshedAt)

	stored, err = h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.BreachCount)

	h.alerts.Wait()
	assert.Equal(t, 1, h.sent.count())
}

func TestCompliantReadingNeverResolvesAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, nil)

	h.discount("CUST-001", 12)
	_, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)

	h.discount("CUST-001", 4)
	summary, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Compliant)

	open := h.unresolved(t, ob.ID)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertStatusOpen, open[0].Status)

	stored, err := h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceStatusCompliant, stored.ComplianceStatus)
	assert.Equal(t, 1, stored.BreachCount)
}

func TestDataUnavailableLeavesObligationUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, nil)
	h.data.Fail("CUST-001", models.OperationDiscountData, errors.New("connection refused"))

	summary, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Checked)
	assert.Zero(t, summary.Errored)

	stored, err := h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceStatusUnknown, stored.ComplianceStatus)
	assert.Nil(t, stored.LastCheckedAt)
	assert.Nil(t, stored.NextCheckAt)
	assert.Nil(t, stored.ComplianceEvidence)
	assert.Empty(t, h.unresolved(t, ob.ID))
}

func TestDataUnavailableKeepsPriorCompliance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, nil)

	h.discount("CUST-001", 20)
	_, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)
	before, err := h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)

	h.data.Fail("CUST-001", models.OperationDiscountData, errors.New("timeout"))
	_, err = h.engine.CheckAll(ctx)
	require.NoError(t, err)

	after, err := h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ComplianceStatus, after.ComplianceStatus)
	assert.Equal(t, before.BreachCount, after.BreachCount)
	assert.True(t, before.LastCheckedAt.Equal(*after.LastCheckedAt))
	assert.Len(t, h.unresolved(t, ob.ID), 1)
}

func TestIndeterminateAdvancesScheduleOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, func(o *models.Obligation) {
		o.Type = models.ObligationTypeSLA
		o.Condition = "Supplier shall keep purchasing activity at a reasonable level"
	})
	h.data.Set("CUST-001", models.OperationTransactionActivity, map[string]any{
		gateway.MetricTransactionCount: 0,
		gateway.MetricRefundCount:      0,
	})

	summary, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indeterminate)
	assert.Zero(t, summary.Alerted)

	stored, err := h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceStatusUnknown, stored.ComplianceStatus)
	assert.NotNil(t, stored.LastCheckedAt)
	assert.NotNil(t, stored.NextCheckAt)
	assert.Zero(t, stored.BreachCount)
	assert.Empty(t, h.unresolved(t, ob.ID))
}

func TestScheduledPassSelectsOnlyDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.obligation(t, nil)
	h.discount("CUST-001", 5)

	summary, err := h.engine.RunScheduledPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)

	summary, err = h.engine.RunScheduledPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Checked, "next_check_at is a day out")

	summary, err = h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked, "on-demand trigger ignores next_check_at")
}

type flakyRecorder struct {
	AlertRecorder
	failID string
}

func (f flakyRecorder) RecordCheck(ctx context.Context, rec models.CheckRecord) (*models.RaiseResult, error) {
	if rec.ObligationID == f.failID {
		return nil, sqlite.ErrStoreWrite
	}
	return f.AlertRecorder.RecordCheck(ctx, rec)
}

func TestFailuresAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	healthy := h.obligation(t, nil)
	broken := h.obligation(t, func(o *models.Obligation) { o.Party = "Client 2" })
	unreachable := h.obligation(t, func(o *models.Obligation) { o.Party = "Client 3" })
	unroutable := h.obligation(t, func(o *models.Obligation) {
		o.Party = "Client 4"
		o.Condition = "must not exceed 5"
	})
	h.engine.alerts = flakyRecorder{AlertRecorder: h.alerts, failID: broken.ID}

	h.discount("CUST-001", 12)
	h.discount("CUST-002", 12)
	h.data.Fail("CUST-003", models.OperationDiscountData, errors.New("down"))

	summary, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Breached)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Errored)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, models.PassError{ObligationID: broken.ID, Category: models.ErrorCategoryStoreWrite}, summary.Errors[0])

	assert.Len(t, h.unresolved(t, healthy.ID), 1)
	assert.Empty(t, h.unresolved(t, broken.ID))
	assert.Empty(t, h.unresolved(t, unreachable.ID))
	assert.Empty(t, h.unresolved(t, unroutable.ID))

	stored, err := h.db.GetObligation(ctx, broken.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.BreachCount)
	assert.Nil(t, stored.LastCheckedAt)
}

func TestConcurrentPassesRaiseOneAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, nil)
	h.discount("CUST-001", 40)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.CheckAll(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.unresolved(t, ob.ID), 1)
	all, err := h.db.ListAlerts(ctx, models.AlertFilter{ObligationID: ob.ID})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentEnginesRaiseOneAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, nil)
	h.discount("CUST-001", 40)

	// A second engine over the same store has its own locks, so only the
	// store's atomic raise keeps alerts unique.
	other, err := New(Options{
		Store:     h.db,
		Gateway:   h.data,
		Evaluator: h.engine.evaluator,
		Alerts:    h.alerts,
		Config:    h.engine.cfg,
		Logger:    testLog,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := h.engine
			if i%2 == 1 {
				e = other
			}
			_, _ = e.CheckAll(ctx)
		}()
	}
	wg.Wait()
	assert.Len(t, h.unresolved(t, ob.ID), 1)
}

func TestCancelledPassWritesNothing(t *testing.T) {
	h := newHarness(t)
	ob := h.obligation(t, nil)
	h.discount("CUST-001", 15)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := h.engine.reconcile(ctx, []*models.Obligation{ob})
	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, models.ErrorCategoryCancelled, summary.Errors[0].Category)

	stored, err := h.db.GetObligation(context.Background(), ob.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastCheckedAt)
	assert.Empty(t, h.unresolved(t, ob.ID))
}

func TestRecurringObligationAdvances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	past := time.Now().UTC().AddDate(0, 0, -3).Truncate(time.Second)
	ob := h.obligation(t, func(o *models.Obligation) {
		o.Type = models.ObligationTypePayment
		o.Frequency = models.FrequencyMonthly
		o.Deadline = &past
		o.Condition = "at least 10 transactions per month"
	})
	h.data.Set("CUST-001", models.OperationTransactionActivity, map[string]any{
		gateway.MetricTransactionCount: 25,
		gateway.MetricRefundCount:      1,
	})

	summary, err := h.engine.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Compliant)

	stored, err := h.db.GetObligation(ctx, ob.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Deadline)
	assert.True(t, stored.Deadline.Equal(past.AddDate(0, 1, 0)))
	require.NotNil(t, stored.NextCheckAt)
	assert.True(t, stored.NextCheckAt.After(time.Now().AddDate(0, 0, 27)))
}

func TestPaymentBreachRaisesFinancialTrigger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ob := h.obligation(t, func(o *models.Obligation) {
		o.Type = models.ObligationTypePayment
		o.Condition = "spend of at least 50,000 per quarter"
		o.Metric = gateway.MetricTotalAmount
		o.RiskLevel = models.RiskLevelCritical
	})
	h.data.Set("CUST-001", models.OperationCustomerVolume, map[string]any{
		gateway.MetricTransactionCount: 4,
		gateway.MetricTotalAmount:      45000,
	})

	res, err := h.engine.CheckObligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckOutcomeBreached, res.Outcome)
	require.NotNil(t, res.Alert)
	assert.Equal(t, models.AlertTypeFinancialTrigger, res.Alert.Type)
	assert.Equal(t, models.SeverityHigh, res.Alert.Severity, "10% shortfall floored by critical risk")
	assert.Equal(t, models.RaiseCreated, res.AlertOutcome)
}

func TestCheckObligationErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	archived := h.obligation(t, func(o *models.Obligation) { o.Status = models.ObligationStatusArchived })

	_, err := h.engine.CheckObligation(ctx, archived.ID)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = h.engine.CheckObligation(ctx, "missing")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestDeadlinePass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sixDays := now.Add(6*24*time.Hour + time.Hour)
	fresh := h.obligation(t, func(o *models.Obligation) {
		o.Type = models.ObligationTypeReportSubmission
		o.Deadline = &sixDays
	})
	twentyDays := now.Add(20 * 24 * time.Hour)
	later := h.obligation(t, func(o *models.Obligation) {
		o.Party = "Client 2"
		o.Deadline = &twentyDays
	})
	farAway := now.Add(90 * 24 * time.Hour)
	h.obligation(t, func(o *models.Obligation) {
		o.Party = "Client 3"
		o.Deadline = &farAway
	})

	summary, err := h.engine.RunDeadlinePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Alerted)

	alertsFor := func(id string) []*models.Alert {
		list, err := h.db.ListAlerts(ctx, models.AlertFilter{ObligationID: id, Type: models.AlertTypeDeadlineUpcoming})
		require.NoError(t, err)
		return list
	}
	freshAlerts := alertsFor(fresh.ID)
	require.Len(t, freshAlerts, 1)
	assert.Equal(t, 7, freshAlerts[0].WindowDays)
	assert.Equal(t, models.SeverityMedium, freshAlerts[0].Severity)

	laterAlerts := alertsFor(later.ID)
	require.Len(t, laterAlerts, 1)
	assert.Equal(t, 30, laterAlerts[0].WindowDays)

	// Nothing changed: every window already alerted.
	summary, err = h.engine.RunDeadlinePass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Alerted)
	assert.Equal(t, 2, summary.Skipped)

	// Fifteen days later the 20-day obligation enters the 7-day window and
	// its open alert escalates in place.
	h.engine.now = func() time.Time { return now.Add(15 * 24 * time.Hour) }
	summary, err = h.engine.RunDeadlinePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerted)

	laterAlerts = alertsFor(later.ID)
	require.Len(t, laterAlerts, 1)
	assert.Equal(t, 7, laterAlerts[0].WindowDays)
	assert.Equal(t, models.SeverityMedium, laterAlerts[0].Severity)
}

func TestDeadlineSeverityAndWindow(t *testing.T) {
	e := &Engine{windows: []int{7, 30}}
	tests := []struct {
		remaining time.Duration
		window    int
		ok        bool
		severity  models.Severity
	}{
		{2 * time.Hour, 7, true, models.SeverityCritical},
		{50 * time.Hour, 7, true, models.SeverityHigh},
		{6 * 24 * time.Hour, 7, true, models.SeverityMedium},
		{7*24*time.Hour + time.Minute, 30, true, models.SeverityMedium},
		{31 * 24 * time.Hour, 0, false, ""},
		{-time.Hour, 0, false, ""},
	}
	for _, tt := range tests {
		w, ok := e.leadWindow(tt.remaining)
		assert.Equal(t, tt.ok, ok, tt.remaining)
		assert.Equal(t, tt.window, w, tt.remaining)
		if ok {
			assert.Equal(t, tt.severity, deadlineSeverity(int(tt.remaining.Hours()/24)), tt.remaining)
		}
	}
}
