// Package client provides the HTTP client for the pactwatch API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr-karan/pactwatch/internal/cli/config"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// Client talks to a running pactwatch server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client.
func New(cfg *config.Config) (*Client, error) {
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.Server.URL, "/"),
		token:   cfg.Server.Token,
		httpClient: &http.Client{
			Timeout: cfg.Server.Timeout,
		},
	}, nil
}

// RequestOptions describes one API call.
type RequestOptions struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// APIError represents an error envelope returned by the server.
type APIError struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	ErrorType  string `json:"error_type,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
	}
	return e.Message
}

// envelope mirrors models.APIResponse with a typed payload.
type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

// Do performs an HTTP request against the API.
func (c *Client) Do(ctx context.Context, opts RequestOptions) (*http.Response, error) {
	reqURL, err := url.Parse(c.baseURL + opts.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if opts.Query != nil {
		reqURL.RawQuery = opts.Query.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pactwatch-cli/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// DoJSON performs a request and decodes the JSON response.
func (c *Client) DoJSON(ctx context.Context, opts RequestOptions, result any) error {
	resp, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			return &APIError{
				Status:     "error",
				Message:    strings.TrimSpace(string(respBody)),
				StatusCode: resp.StatusCode,
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func call[T any](ctx context.Context, c *Client, opts RequestOptions) (T, error) {
	var resp envelope[T]
	err := c.DoJSON(ctx, opts, &resp)
	return resp.Data, err
}

// --- API Methods ---

// CheckAll triggers a reconciliation pass over every active obligation.
func (c *Client) CheckAll(ctx context.Context) (*models.PassSummary, error) {
	return call[*models.PassSummary](ctx, c, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/monitoring/check-all",
	})
}

// DeadlineCheck triggers the deadline pass.
func (c *Client) DeadlineCheck(ctx context.Context) (*models.PassSummary, error) {
	return call[*models.PassSummary](ctx, c, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/monitoring/deadline-check",
	})
}

// Status returns the monitoring status.
func (c *Client) Status(ctx context.Context) (*models.MonitoringStatus, error) {
	return call[*models.MonitoringStatus](ctx, c, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/monitoring/status",
	})
}

// ComplianceSummary aggregates compliance, optionally for one party.
func (c *Client) ComplianceSummary(ctx context.Context, party string) (*models.ComplianceSummary, error) {
	q := url.Values{}
	if party != "" {
		q.Set("party", party)
	}
	return call[*models.ComplianceSummary](ctx, c, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/monitoring/compliance-summary",
		Query:  q,
	})
}

// AlertQuery narrows an alert listing.
type AlertQuery struct {
	Status       string
	Severity     string
	Type         string
	ObligationID string
	Sort         string
	Limit        int
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("status", q.Status)
	set("severity", q.Severity)
	set("type", q.Type)
	set("obligation_id", q.ObligationID)
	set("sort", q.Sort)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// ListAlerts returns alerts matching q.
func (c *Client) ListAlerts(ctx context.Context, q AlertQuery) ([]models.Alert, error) {
	return call[[]models.Alert](ctx, c, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/alerts",
		Query:  q.values(),
	})
}

// GetAlert returns one alert.
func (c *Client) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return call[*models.Alert](ctx, c, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/alerts/" + url.PathEscape(id),
	})
}

// AcknowledgeAlert marks an alert as seen.
func (c *Client) AcknowledgeAlert(ctx context.Context, id, by string) (*models.Alert, error) {
	return call[*models.Alert](ctx, c, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/alerts/" + url.PathEscape(id) + "/acknowledge",
		Body:   models.AcknowledgeAlertRequest{By: by},
	})
}

// ResolveAlert closes an alert with an optional note.
func (c *Client) ResolveAlert(ctx context.Context, id, by, note string) (*models.Alert, error) {
	return call[*models.Alert](ctx, c, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/alerts/" + url.PathEscape(id) + "/resolve",
		Body:   models.ResolveAlertRequest{By: by, Note: note},
	})
}

// ObligationQuery narrows an obligation listing.
type ObligationQuery struct {
	Status     string
	Type       string
	Party      string
	RiskLevel  string
	ContractID string
	DueBefore  *time.Time
	Limit      int
}

func (q ObligationQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("status", q.Status)
	set("type", q.Type)
	set("party", q.Party)
	set("risk_level", q.RiskLevel)
	set("contract_id", q.ContractID)
	if q.DueBefore != nil {
		v.Set("due_before", q.DueBefore.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// ListObligations returns obligations matching q.
func (c *Client) ListObligations(ctx context.Context, q ObligationQuery) ([]models.ObligationView, error) {
	return call[[]models.ObligationView](ctx, c, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/obligations",
		Query:  q.values(),
	})
}

// CheckObligation runs one on-demand check.
func (c *Client) CheckObligation(ctx context.Context, id string) (*models.CheckResult, error) {
	return call[*models.CheckResult](ctx, c, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/obligations/" + url.PathEscape(id) + "/check",
	})
}
