package app

import (
	"context"
	"fmt"
	"strconv"
)

type seedSetting struct {
	value       string
	valueType   string
	category    string
	description string
}

// seedSystemSettings copies the overridable knobs from the config file into the
// settings table on first boot. After that the table wins; see config.LoadRuntimeConfig.
func (a *App) seedSystemSettings(ctx context.Context) error {
	settings, err := a.SQLite.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to check existing settings: %w", err)
	}
	if len(settings) > 0 {
		a.Logger.Info("system settings already exist, skipping seeding from config")
		return nil
	}

	a.Logger.Info("seeding system settings from config (first boot)")
	cfg := a.Config
	seeds := map[string]seedSetting{
		"monitoring.enabled": {
			value:       strconv.FormatBool(cfg.Monitoring.Enabled),
			valueType:   "boolean",
			category:    "monitoring",
			description: "Run scheduled reconciliation and deadline passes",
		},
		"monitoring.reconcile_schedule": {
			value:       cfg.Monitoring.ReconcileSchedule,
			valueType:   "string",
			category:    "monitoring",
			description: "Cron schedule for the reconciliation pass",
		},
		"monitoring.deadline_schedule": {
			value:       cfg.Monitoring.DeadlineSchedule,
			valueType:   "string",
			category:    "monitoring",
			description: "Cron schedule for the deadline pass (empty disables it)",
		},
		"monitoring.check_interval": {
			value:       cfg.Monitoring.CheckInterval.String(),
			valueType:   "duration",
			category:    "monitoring",
			description: "Delay before a checked obligation is due again",
		},
		"monitoring.workers": {
			value:       strconv.Itoa(cfg.Monitoring.Workers),
			valueType:   "number",
			category:    "monitoring",
			description: "Obligations checked concurrently within a pass",
		},
		"monitoring.judge_timeout": {
			value:       cfg.Monitoring.JudgeTimeout.String(),
			valueType:   "duration",
			category:    "monitoring",
			description: "Upper bound on a single judgment call",
		},
		"gateway.fetch_timeout": {
			value:       cfg.Gateway.FetchTimeout.String(),
			valueType:   "duration",
			category:    "gateway",
			description: "Upper bound on a single live-data fetch",
		},
		"redis.cache_ttl": {
			value:       cfg.Redis.CacheTTL.String(),
			valueType:   "duration",
			category:    "redis",
			description: "How long fetched live data is reused",
		},
		"ai.enabled": {
			value:       strconv.FormatBool(cfg.AI.Enabled),
			valueType:   "boolean",
			category:    "ai",
			description: "Use the judgment service for free-text conditions",
		},
		"ai.model": {
			value:       cfg.AI.Model,
			valueType:   "string",
			category:    "ai",
			description: "Model used by the judgment service",
		},
		"ai.max_tokens": {
			value:       strconv.Itoa(cfg.AI.MaxTokens),
			valueType:   "number",
			category:    "ai",
			description: "Maximum tokens in a judgment response",
		},
		"ai.temperature": {
			value:       strconv.FormatFloat(float64(cfg.AI.Temperature), 'f', 2, 32),
			valueType:   "number",
			category:    "ai",
			description: "Sampling temperature for judgments (0.0-1.0)",
		},
		"notifications.timeout": {
			value:       cfg.Notifications.Timeout.String(),
			valueType:   "duration",
			category:    "notifications",
			description: "Upper bound on a single notification delivery",
		},
	}

	for key, s := range seeds {
		if err := a.SQLite.UpsertSetting(ctx, key, s.value, s.valueType, s.category, s.description, false); err != nil {
			a.Logger.Warn("failed to seed setting", "key", key, "error", err)
			continue
		}
		a.Logger.Debug("seeded setting", "key", key, "value", s.value)
	}

	a.Logger.Info("system settings seeded from config successfully")
	return nil
}
