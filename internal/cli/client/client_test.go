package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr-karan/pactwatch/internal/cli/config"
	"github.com/mr-karan/pactwatch/pkg/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(&config.Config{
		Server: config.ServerConfig{URL: srv.URL + "/", Token: "test-token", Timeout: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{Status: "success", Data: data})
}

func TestNew(t *testing.T) {
	if _, err := New(&config.Config{}); err == nil {
		t.Error("New() with empty URL expected error")
	}

	c, err := New(&config.Config{Server: config.ServerConfig{URL: "https://example.com/"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.baseURL != "https://example.com" {
		t.Errorf("New() baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestClient_Do_AuthHeader(t *testing.T) {
	var receivedAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		writeData(w, nil)
	})

	resp, err := c.Do(context.Background(), RequestOptions{Method: http.MethodGet, Path: "/test"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if receivedAuth != "Bearer test-token" {
		t.Errorf("Do() Authorization header = %q, want %q", receivedAuth, "Bearer test-token")
	}
}

func TestClient_DoJSON_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.APIResponse{
			Status:    "error",
			Message:   "invalid alert status transition",
			ErrorType: models.ConflictErrorType,
		})
	})

	_, err := c.AcknowledgeAlert(context.Background(), "a1", "ops")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("AcknowledgeAlert() error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("APIError.StatusCode = %d, want %d", apiErr.StatusCode, http.StatusConflict)
	}
	if apiErr.ErrorType != string(models.ConflictErrorType) {
		t.Errorf("APIError.ErrorType = %q", apiErr.ErrorType)
	}
}

func TestClient_DoJSON_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.Status(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Status() error type = %T, want *APIError", err)
	}
	if apiErr.Message != "bad gateway" {
		t.Errorf("APIError.Message = %q, want %q", apiErr.Message, "bad gateway")
	}
}

func TestClient_CheckAll(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/monitoring/check-all" {
			t.Errorf("CheckAll() request = %s %s", r.Method, r.URL.Path)
		}
		writeData(w, models.PassSummary{Kind: models.PassReconcile, Checked: 3, Breached: 1, Alerted: 1})
	})

	summary, err := c.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if summary.Checked != 3 || summary.Breached != 1 {
		t.Errorf("CheckAll() summary = %+v", summary)
	}
}

func TestClient_ListAlerts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "open" || q.Get("sort") != "priority" || q.Get("limit") != "5" {
			t.Errorf("ListAlerts() query = %s", r.URL.RawQuery)
		}
		if q.Has("severity") {
			t.Error("ListAlerts() sent empty severity filter")
		}
		writeData(w, []models.Alert{
			{ID: "a1", Severity: models.SeverityCritical, Status: models.AlertStatusOpen},
			{ID: "a2", Severity: models.SeverityLow, Status: models.AlertStatusOpen},
		})
	})

	alerts, err := c.ListAlerts(context.Background(), AlertQuery{Status: "open", Sort: "priority", Limit: 5})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(alerts) != 2 || alerts[0].ID != "a1" {
		t.Errorf("ListAlerts() = %+v", alerts)
	}
}

func TestClient_ResolveAlert(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/alerts/a1/resolve" {
			t.Errorf("ResolveAlert() path = %q", r.URL.Path)
		}
		var req models.ResolveAlertRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.By != "ops" || req.Note != "credited" {
			t.Errorf("ResolveAlert() body = %+v", req)
		}
		writeData(w, models.Alert{ID: "a1", Status: models.AlertStatusResolved, ResolvedBy: req.By})
	})

	alert, err := c.ResolveAlert(context.Background(), "a1", "ops", "credited")
	if err != nil {
		t.Fatalf("ResolveAlert() error = %v", err)
	}
	if alert.Status != models.AlertStatusResolved || alert.ResolvedBy != "ops" {
		t.Errorf("ResolveAlert() = %+v", alert)
	}
}

func TestClient_ListObligations(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("party") != "Client 1" || q.Get("due_before") != "2026-03-01T00:00:00Z" {
			t.Errorf("ListObligations() query = %s", r.URL.RawQuery)
		}
		writeData(w, []models.ObligationView{
			{Obligation: &models.Obligation{ID: "o1", Party: "Client 1"}, RiskScore: 40},
		})
	})

	views, err := c.ListObligations(context.Background(), ObligationQuery{Party: "Client 1", DueBefore: &due})
	if err != nil {
		t.Fatalf("ListObligations() error = %v", err)
	}
	if len(views) != 1 || views[0].ID != "o1" || views[0].RiskScore != 40 {
		t.Errorf("ListObligations() = %+v", views)
	}
}
