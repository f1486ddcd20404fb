package app

import (
	"fmt"
	"log/slog"

	"github.com/mr-karan/pactwatch/internal/alerts"
	"github.com/mr-karan/pactwatch/internal/config"
)

// newSender fans notifications out to every configured channel.
func newSender(cfg config.NotificationsConfig, log *slog.Logger) (*alerts.MultiSender, error) {
	var senders []alerts.AlertSender
	if cfg.LogEnabled {
		senders = append(senders, alerts.NewLogSender(log))
	}
	if len(cfg.WebhookURLs) > 0 {
		senders = append(senders, alerts.NewWebhookSender(alerts.WebhookSenderOptions{
			URLs:          cfg.WebhookURLs,
			Timeout:       cfg.Timeout,
			SkipTLSVerify: cfg.SkipTLSVerify,
			Logger:        log,
		}))
	}
	if cfg.AlertmanagerURL != "" {
		client, err := alerts.NewAlertmanagerClient(alerts.ClientOptions{
			BaseURL:       cfg.AlertmanagerURL,
			Timeout:       cfg.Timeout,
			SkipTLSVerify: cfg.SkipTLSVerify,
			Logger:        log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure alertmanager: %w", err)
		}
		senders = append(senders, alerts.NewAlertmanagerSender(client))
	}

	multi := alerts.NewMultiSender(senders...)
	log.Info("alert notifications configured", "channels", multi.Len())
	return multi, nil
}
