package config

import (
	"context"
	"log/slog"
	"time"
)

// SettingsStore defines the interface for retrieving settings from the database.
type SettingsStore interface {
	GetSettingWithDefault(ctx context.Context, key, defaultValue string) string
	GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool
	GetIntSetting(ctx context.Context, key string, defaultValue int) int
	GetFloat64Setting(ctx context.Context, key string, defaultValue float64) float64
	GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration
}

// LoadRuntimeConfig layers database settings over the static configuration.
// Only operational knobs are overridable; backends and listeners are not.
func LoadRuntimeConfig(ctx context.Context, staticConfig *Config, store SettingsStore, log *slog.Logger) *Config {
	cfg := *staticConfig
	cfg.Monitoring.LeadWindows = append([]int(nil), staticConfig.Monitoring.LeadWindows...)

	if store == nil {
		log.Debug("no settings store provided, using static configuration only")
		return &cfg
	}

	cfg.Monitoring.Enabled = store.GetBoolSetting(ctx, "monitoring.enabled", cfg.Monitoring.Enabled)
	cfg.Monitoring.ReconcileSchedule = store.GetSettingWithDefault(ctx, "monitoring.reconcile_schedule", cfg.Monitoring.ReconcileSchedule)
	cfg.Monitoring.DeadlineSchedule = store.GetSettingWithDefault(ctx, "monitoring.deadline_schedule", cfg.Monitoring.DeadlineSchedule)
	cfg.Monitoring.CheckInterval = store.GetDurationSetting(ctx, "monitoring.check_interval", cfg.Monitoring.CheckInterval)
	cfg.Monitoring.JudgeTimeout = store.GetDurationSetting(ctx, "monitoring.judge_timeout", cfg.Monitoring.JudgeTimeout)
	if workers := store.GetIntSetting(ctx, "monitoring.workers", cfg.Monitoring.Workers); workers > 0 {
		cfg.Monitoring.Workers = workers
	}

	cfg.Gateway.FetchTimeout = store.GetDurationSetting(ctx, "gateway.fetch_timeout", cfg.Gateway.FetchTimeout)
	cfg.Redis.CacheTTL = store.GetDurationSetting(ctx, "redis.cache_ttl", cfg.Redis.CacheTTL)

	cfg.AI.Enabled = store.GetBoolSetting(ctx, "ai.enabled", cfg.AI.Enabled)
	cfg.AI.Model = store.GetSettingWithDefault(ctx, "ai.model", cfg.AI.Model)
	cfg.AI.MaxTokens = store.GetIntSetting(ctx, "ai.max_tokens", cfg.AI.MaxTokens)
	cfg.AI.Temperature = float32(store.GetFloat64Setting(ctx, "ai.temperature", float64(cfg.AI.Temperature)))

	cfg.Notifications.Timeout = store.GetDurationSetting(ctx, "notifications.timeout", cfg.Notifications.Timeout)

	log.Debug("runtime configuration loaded (static config + database settings)")
	return &cfg
}
