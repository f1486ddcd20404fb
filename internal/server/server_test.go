package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/pactwatch/internal/alerts"
	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/evaluator"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/gateway/fixture"
	"github.com/mr-karan/pactwatch/internal/monitor"
	"github.com/mr-karan/pactwatch/internal/sqlite"
	"github.com/mr-karan/pactwatch/pkg/models"
)

type testEnv struct {
	srv  *Server
	data *fixture.Backend
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "server.db")

	db, err := sqlite.New(sqlite.Options{Logger: log, Config: cfg.SQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	data := fixture.New("fixture")
	registry := gateway.NewRegistry(log, time.Second)
	registry.Register(data)

	eval, err := evaluator.New(evaluator.Options{Logger: log})
	require.NoError(t, err)
	mgr := alerts.NewManager(alerts.Options{Store: db, Logger: log})
	engine, err := monitor.New(monitor.Options{
		Store:     db,
		Gateway:   registry,
		Evaluator: eval,
		Alerts:    mgr,
		Config:    cfg.Monitoring,
		Logger:    log,
	})
	require.NoError(t, err)

	srv := New(ServerOptions{
		Config:  cfg,
		SQLite:  db,
		Engine:  engine,
		Alerts:  mgr,
		Gateway: registry,
		Logger:  log,
		Version: "test",
	})
	return &testEnv{srv: srv, data: data}
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func createObligation(t *testing.T, e *testEnv, ref string) models.Obligation {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/v1/obligations", map[string]any{
		"contract_id":     "CTR-9",
		"reference":       ref,
		"party":           "Client 1",
		"obligation_type": "cap_threshold",
		"condition":       "Maximum discount not to exceed 10% of list price",
		"risk_level":      "high",
		"penalty":         map[string]any{"amount": "50000", "currency": "EUR"},
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	return decode[models.Obligation](t, env.Data)
}

func TestObligationLifecycleOverHTTP(t *testing.T) {
	e := newTestServer(t)
	ob := createObligation(t, e, "REF-1")
	assert.Equal(t, models.ComplianceStatusUnknown, ob.ComplianceStatus)
	assert.Equal(t, "EUR", ob.Penalty.Currency)

	status, env := e.do(t, http.MethodPost, "/api/v1/obligations", map[string]any{"contract_id": "CTR-9"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(models.ValidationErrorType), env.ErrorType)

	status, _ = e.do(t, http.MethodPost, "/api/v1/obligations", map[string]any{
		"contract_id": "CTR-9", "reference": "REF-1", "party": "Client 1", "obligation_type": "sla",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, env = e.do(t, http.MethodPatch, "/api/v1/obligations/"+ob.ID, map[string]any{"description": "reviewed"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "reviewed", decode[models.Obligation](t, env.Data).Description)

	status, env = e.do(t, http.MethodGet, "/api/v1/obligations?risk_level=high", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.ObligationView](t, env.Data), 1)

	status, _ = e.do(t, http.MethodGet, "/api/v1/obligations?due_before=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, "/api/v1/obligations/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodPost, "/api/v1/obligations/"+ob.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = e.do(t, http.MethodPost, "/api/v1/obligations/"+ob.ID+"/check", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(models.ConflictErrorType), env.ErrorType)
}

func TestBreachToResolutionOverHTTP(t *testing.T) {
	e := newTestServer(t)
	ob := createObligation(t, e, "REF-1")
	e.data.Set("CUST-001", models.OperationDiscountData, map[string]any{
		gateway.MetricMaxDiscountPct:         15,
		gateway.MetricAvgDiscountPct:         7,
		gateway.MetricDiscountedTransactions: 10,
	})

	status, env := e.do(t, http.MethodPost, "/api/v1/monitoring/check-all", nil)
	require.Equal(t, http.StatusOK, status)
	summary := decode[models.PassSummary](t, env.Data)
	assert.Equal(t, 1, summary.Breached)
	assert.Equal(t, 1, summary.Alerted)

	status, env = e.do(t, http.MethodGet, "/api/v1/alerts?status=open&sort=priority", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[[]models.Alert](t, env.Data)
	require.Len(t, list, 1)
	alert := list[0]
	assert.Equal(t, ob.ID, alert.ObligationID)
	assert.Equal(t, models.SeverityCritical, alert.Severity)

	status, _ = e.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = e.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", map[string]any{"by": "ops"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.AlertStatusAcknowledged, decode[models.Alert](t, env.Data).Status)

	status, env = e.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", map[string]any{"by": "ops", "note": "credit issued"})
	require.Equal(t, http.StatusOK, status)
	resolved := decode[models.Alert](t, env.Data)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	assert.Equal(t, "credit issued", resolved.ResolutionNote)

	status, _ = e.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", map[string]any{"by": "ops"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = e.do(t, http.MethodGet, "/api/v1/alerts/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodGet, "/api/v1/alerts?severity=apocalyptic", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = e.do(t, http.MethodGet, "/api/v1/monitoring/compliance-summary?party=client", nil)
	require.Equal(t, http.StatusOK, status)
	cs := decode[models.ComplianceSummary](t, env.Data)
	assert.Equal(t, 1, cs.NonCompliant)
	assert.Equal(t, 1, cs.TotalBreaches)

	status, env = e.do(t, http.MethodGet, "/api/v1/monitoring/status", nil)
	require.Equal(t, http.StatusOK, status)
	st := decode[models.MonitoringStatus](t, env.Data)
	assert.Equal(t, 1, st.ActiveObligations)
	assert.Zero(t, st.OpenAlerts)
	require.NotNil(t, st.LastReconcile)
	assert.Equal(t, 1, st.LastReconcile.Breached)
}

func TestUnavailableDataIsNotAnError(t *testing.T) {
	e := newTestServer(t)
	ob := createObligation(t, e, "REF-1")

	status, env := e.do(t, http.MethodPost, "/api/v1/obligations/"+ob.ID+"/check", nil)
	require.Equal(t, http.StatusOK, status)
	res := decode[models.CheckResult](t, env.Data)
	assert.Equal(t, models.CheckOutcomeSkipped, res.Outcome)
}

func TestDeadlineCheckEndpoint(t *testing.T) {
	e := newTestServer(t)
	deadline := time.Now().UTC().Add(3 * 24 * time.Hour).Format(time.RFC3339)
	status, _ := e.do(t, http.MethodPost, "/api/v1/obligations", map[string]any{
		"contract_id": "CTR-9", "reference": "REF-D", "party": "Globex", "obligation_type": "report_submission",
		"deadline": deadline,
	})
	require.Equal(t, http.StatusCreated, status)

	status, env := e.do(t, http.MethodPost, "/api/v1/monitoring/deadline-check", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[models.PassSummary](t, env.Data).Alerted)

	status, env = e.do(t, http.MethodGet, "/api/v1/alerts?type=deadline_upcoming", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[[]models.Alert](t, env.Data)
	require.Len(t, list, 1)
	assert.Equal(t, 7, list[0].WindowDays)
}

func TestSettingsEndpoints(t *testing.T) {
	e := newTestServer(t)

	status, _ := e.do(t, http.MethodPut, "/api/v1/admin/settings/monitoring.workers", UpdateSettingRequest{
		Value: "0", ValueType: "number", Category: "monitoring",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPut, "/api/v1/admin/settings/monitoring.reconcile_schedule", UpdateSettingRequest{
		Value: "every day", ValueType: "string", Category: "monitoring",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPut, "/api/v1/admin/settings/monitoring.workers", UpdateSettingRequest{
		Value: "8", ValueType: "number", Category: "monitoring",
	})
	require.Equal(t, http.StatusOK, status)

	status, env := e.do(t, http.MethodGet, "/api/v1/admin/settings/monitoring.workers", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "8", decode[map[string]string](t, env.Data)["value"])

	status, _ = e.do(t, http.MethodDelete, "/api/v1/admin/settings/monitoring.workers", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodGet, "/api/v1/admin/settings/monitoring.workers", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthMetaAndMetrics(t *testing.T) {
	e := newTestServer(t)

	status, env := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Status)

	status, env = e.do(t, http.MethodGet, "/api/v1/meta", nil)
	require.Equal(t, http.StatusOK, status)
	meta := decode[MetaResponse](t, env.Data)
	assert.Equal(t, "test", meta.Version)
	assert.Equal(t, []int{30, 7}, meta.LeadWindows)

	e.do(t, http.MethodPost, "/api/v1/monitoring/check-all", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := e.srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "pactwatch_pass_duration_seconds")

	status, env = e.do(t, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(models.NotFoundErrorType), env.ErrorType)
}
