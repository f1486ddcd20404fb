// Package config loads pactwatch configuration from TOML files and PACTWATCH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PACTWATCH_"

// Config is the complete server configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	SQLite        SQLiteConfig        `koanf:"sqlite"`
	Logging       LoggingConfig       `koanf:"logging"`
	Monitoring    MonitoringConfig    `koanf:"monitoring"`
	Gateway       GatewayConfig       `koanf:"gateway"`
	Redis         RedisConfig         `koanf:"redis"`
	AI            AIConfig            `koanf:"ai"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address      string        `koanf:"address"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// SQLiteConfig points at the obligation and alert store.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// LeaseConfig enables a Redis lease so only one replica runs a pass at a time.
type LeaseConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
}

// MonitoringConfig drives the reconciliation and deadline passes.
type MonitoringConfig struct {
	Enabled           bool          `koanf:"enabled"`
	ReconcileSchedule string        `koanf:"reconcile_schedule"`
	DeadlineSchedule  string        `koanf:"deadline_schedule"`
	CheckInterval     time.Duration `koanf:"check_interval"`
	Workers           int           `koanf:"workers"`
	LeadWindows       []int         `koanf:"lead_windows"`
	JudgeTimeout      time.Duration `koanf:"judge_timeout"`
	PassTimeout       time.Duration `koanf:"pass_timeout"`
	Lease             LeaseConfig   `koanf:"lease"`
}

// BackendConfig describes one live-data backend.
type BackendConfig struct {
	Name string `koanf:"name"`
	// Kind is one of postgres, mysql, clickhouse, mcp, fixture.
	Kind         string   `koanf:"kind"`
	DSN          string   `koanf:"dsn"`
	Table        string   `koanf:"table"`
	Hosts        []string `koanf:"hosts"`
	Database     string   `koanf:"database"`
	Username     string   `koanf:"username"`
	Password     string   `koanf:"password"`
	Endpoint     string   `koanf:"endpoint"`
	RateLimit    float64  `koanf:"rate_limit"`
	Burst        int      `koanf:"burst"`
	FixturePath  string   `koanf:"fixture_path"`
	MaxOpenConns int      `koanf:"max_open_conns"`
}

// Backend kinds.
const (
	BackendPostgres   = "postgres"
	BackendMySQL      = "mysql"
	BackendClickHouse = "clickhouse"
	BackendMCP        = "mcp"
	BackendFixture    = "fixture"
)

// GatewayConfig maps data domains to backends.
type GatewayConfig struct {
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	// Routes maps a data domain (discounts, volumes, transactions) to a backend name.
	Routes   map[string]string `koanf:"routes"`
	Backends []BackendConfig   `koanf:"backends"`
}

// RedisConfig configures the fact cache and the pass lease.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	CacheEnabled bool          `koanf:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// AIConfig configures the optional judgment service.
type AIConfig struct {
	Enabled     bool          `koanf:"enabled"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	MaxTokens   int           `koanf:"max_tokens"`
	Temperature float32       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

// NotificationsConfig configures delivery of newly raised alerts.
type NotificationsConfig struct {
	WebhookURLs     []string      `koanf:"webhook_urls"`
	AlertmanagerURL string        `koanf:"alertmanager_url"`
	Timeout         time.Duration `koanf:"timeout"`
	SkipTLSVerify   bool          `koanf:"skip_tls_verify"`
	LogEnabled      bool          `koanf:"log_enabled"`
	// ExternalURL is used to build links back to the alert in notifications.
	ExternalURL string `koanf:"external_url"`
}

// Default returns the configuration used when no file or env overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "127.0.0.1",
			Port:         8125,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		SQLite:  SQLiteConfig{Path: "pactwatch.db"},
		Logging: LoggingConfig{Level: "info"},
		Monitoring: MonitoringConfig{
			Enabled:           true,
			ReconcileSchedule: "@every 15m",
			DeadlineSchedule:  "@every 1h",
			CheckInterval:     24 * time.Hour,
			Workers:           4,
			LeadWindows:       []int{30, 7},
			JudgeTimeout:      20 * time.Second,
			PassTimeout:       10 * time.Minute,
			Lease:             LeaseConfig{TTL: 15 * time.Minute},
		},
		Gateway: GatewayConfig{
			FetchTimeout: 10 * time.Second,
			Routes:       map[string]string{},
		},
		Redis: RedisConfig{
			Addr:     "127.0.0.1:6379",
			CacheTTL: 5 * time.Minute,
		},
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   512,
			Temperature: 0.1,
			Timeout:     20 * time.Second,
		},
		Notifications: NotificationsConfig{
			Timeout:    5 * time.Second,
			LogEnabled: true,
		},
	}
}

// Load reads defaults, then the TOML file at path (when it exists), then PACTWATCH_ env vars.
// Nested keys use a double underscore: PACTWATCH_MONITORING__WORKERS=8.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envToKey converts PACTWATCH_MONITORING__LEAD_WINDOWS to monitoring.lead_windows.
func envToKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	var errs []string
	if c.SQLite.Path == "" {
		errs = append(errs, "sqlite.path is required")
	}
	if c.Monitoring.Workers <= 0 {
		errs = append(errs, "monitoring.workers must be positive")
	}
	if c.Monitoring.CheckInterval <= 0 {
		errs = append(errs, "monitoring.check_interval must be positive")
	}
	for _, w := range c.Monitoring.LeadWindows {
		if w <= 0 {
			errs = append(errs, fmt.Sprintf("monitoring.lead_windows contains non-positive window %d", w))
		}
	}

	names := make(map[string]bool, len(c.Gateway.Backends))
	for i, b := range c.Gateway.Backends {
		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("gateway.backends[%d].name is required", i))
			continue
		}
		if names[b.Name] {
			errs = append(errs, fmt.Sprintf("gateway backend %q defined twice", b.Name))
		}
		names[b.Name] = true
		switch b.Kind {
		case BackendPostgres, BackendMySQL, BackendClickHouse, BackendMCP, BackendFixture:
		default:
			errs = append(errs, fmt.Sprintf("gateway backend %q has unknown kind %q", b.Name, b.Kind))
		}
	}
	domains := make([]string, 0, len(c.Gateway.Routes))
	for domain := range c.Gateway.Routes {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		if backend := c.Gateway.Routes[domain]; !names[backend] {
			errs = append(errs, fmt.Sprintf("gateway route %q points at undefined backend %q", domain, backend))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ListenAddr returns host:port for the HTTP server.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}
