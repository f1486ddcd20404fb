package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type WebhookSenderOptions struct {
	URLs          []string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// WebhookSender POSTs a JSON document per alert to each configured URL.
type WebhookSender struct {
	urls   []string
	client *http.Client
	logger *slog.Logger
}

type webhookPayload struct {
	AlertID      string     `json:"alert_id"`
	ObligationID string     `json:"obligation_id"`
	ContractID   string     `json:"contract_id"`
	AlertType    string     `json:"alert_type"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
	Event        string     `json:"event"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Metric       string     `json:"metric,omitempty"`
	Observed     *float64   `json:"observed,omitempty"`
	Threshold    *float64   `json:"threshold,omitempty"`
	Delta        string     `json:"delta,omitempty"`
	WindowDays   int        `json:"window_days,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	TriggeredAt  time.Time  `json:"triggered_at"`
	URL          string     `json:"url,omitempty"`
}

func NewWebhookSender(opts WebhookSenderOptions) *WebhookSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify}, // #nosec G402
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	urls := make([]string, 0, len(opts.URLs))
	for _, u := range opts.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return &WebhookSender{
		urls:   urls,
		client: &http.Client{Timeout: timeout, Transport: transport},
		logger: logger.With("component", "alert_webhook_sender"),
	}
}

func (s *WebhookSender) Send(ctx context.Context, notification AlertNotification) error {
	if len(s.urls) == 0 {
		return nil
	}
	payload := webhookPayload{
		AlertID:      notification.AlertID,
		ObligationID: notification.ObligationID,
		ContractID:   notification.ContractID,
		AlertType:    string(notification.Type),
		Severity:     string(notification.Severity),
		Status:       string(notification.Status),
		Event:        string(notification.Outcome),
		Title:        notification.Title,
		Message:      notification.Message,
		Metric:       notification.Metric,
		Observed:     notification.Observed,
		Threshold:    notification.Threshold,
		Delta:        notification.Delta,
		WindowDays:   notification.WindowDays,
		Deadline:     notification.Deadline,
		TriggeredAt:  notification.TriggeredAt,
		URL:          notification.URL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var errs []string
	for _, url := range s.urls {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", url, err))
			continue
		}
		request.Header.Set("Content-Type", "application/json")
		response, err := s.client.Do(request)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", url, err))
			continue
		}
		responseBody, readErr := io.ReadAll(io.LimitReader(response.Body, 8<<10))
		_ = response.Body.Close()
		if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
			if readErr != nil {
				errs = append(errs, fmt.Sprintf("%s: status %d (body read error: %v)", url, response.StatusCode, readErr))
				continue
			}
			trimmed := strings.TrimSpace(string(responseBody))
			if trimmed == "" {
				trimmed = response.Status
			}
			errs = append(errs, fmt.Sprintf("%s: status %d (%s)", url, response.StatusCode, trimmed))
			continue
		}
		s.logger.Debug("webhook delivered", "alert_id", notification.AlertID, "url", url)
	}
	if len(errs) > 0 {
		return fmt.Errorf("webhook delivery failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
