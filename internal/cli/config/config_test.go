package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.URL != "http://localhost:8125" {
		t.Errorf("Default() Server.URL = %q, want %q", cfg.Server.URL, "http://localhost:8125")
	}
	if cfg.Server.Timeout != 2*time.Minute {
		t.Errorf("Default() Server.Timeout = %v, want %v", cfg.Server.Timeout, 2*time.Minute)
	}
	if cfg.Defaults.Limit != 50 {
		t.Errorf("Default() Defaults.Limit = %d, want 50", cfg.Defaults.Limit)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("Default() Output.Format = %q, want %q", cfg.Output.Format, "table")
	}
}

func TestEnvToKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SERVER_URL", "server.url"},
		{"SERVER_TOKEN", "server.token"},
		{"DEFAULTS_ACTOR", "defaults.actor"},
		{"OUTPUT_FORMAT", "output.format"},
		{"OUTPUT", "output"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envToKey(tt.input); got != tt.expected {
				t.Errorf("envToKey(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-config")
	if dir := ConfigDir(); dir != "/tmp/test-config/pactwatch" {
		t.Errorf("ConfigDir() with XDG = %q, want %q", dir, "/tmp/test-config/pactwatch")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load(LoadOptions{ConfigPath: "/nonexistent/path/config.toml"})
	if err != nil {
		t.Fatalf("Load() with nonexistent file should not error, got %v", err)
	}
	if cfg.Server.URL != "http://localhost:8125" {
		t.Errorf("Load() fallback Server.URL = %q, want default", cfg.Server.URL)
	}
}

func TestLoad_WithEnvVars(t *testing.T) {
	t.Setenv("PACTWATCH_CLI_SERVER_URL", "https://test.example.com")
	t.Setenv("PACTWATCH_CLI_SERVER_TOKEN", "test-token-123")
	t.Setenv("PACTWATCH_CLI_DEFAULTS_ACTOR", "ops")

	cfg, err := Load(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "https://test.example.com" {
		t.Errorf("Load() Server.URL from env = %q, want %q", cfg.Server.URL, "https://test.example.com")
	}
	if cfg.Server.Token != "test-token-123" {
		t.Errorf("Load() Server.Token from env = %q, want %q", cfg.Server.Token, "test-token-123")
	}
	if cfg.Defaults.Actor != "ops" {
		t.Errorf("Load() Defaults.Actor from env = %q, want %q", cfg.Defaults.Actor, "ops")
	}
}

func TestLoad_FileAndProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
url = "https://file.example.com"
timeout = "10s"

[output]
format = "json"

[profiles.staging.server]
url = "https://staging.example.com"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "https://file.example.com" {
		t.Errorf("Load() Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.Timeout != 10*time.Second {
		t.Errorf("Load() Server.Timeout = %v, want 10s", cfg.Server.Timeout)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Load() Output.Format = %q, want json", cfg.Output.Format)
	}

	cfg, err = Load(LoadOptions{ConfigPath: path, Profile: "staging"})
	if err != nil {
		t.Fatalf("Load() with profile error = %v", err)
	}
	if cfg.Server.URL != "https://staging.example.com" {
		t.Errorf("Load() profile Server.URL = %q", cfg.Server.URL)
	}

	if _, err := Load(LoadOptions{ConfigPath: path, Profile: "missing"}); err == nil {
		t.Error("Load() with unknown profile should error")
	}
}
