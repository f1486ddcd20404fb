// Package config provides configuration for the pactwatch command-line client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PACTWATCH_CLI_"

// Config represents the CLI configuration
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Defaults DefaultsConfig `koanf:"defaults"`
	Output   OutputConfig   `koanf:"output"`
}

// ServerConfig holds server connection settings
type ServerConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultsConfig holds defaults applied to commands
type DefaultsConfig struct {
	Actor string `koanf:"actor"` // recorded as acknowledged_by / resolved_by
	Limit int    `koanf:"limit"`
}

// OutputConfig holds output formatting settings
type OutputConfig struct {
	Format string `koanf:"format"` // table, json
	Color  string `koanf:"color"`  // auto, always, never
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	ConfigPath string
	Profile    string
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8125",
			Timeout: 2 * time.Minute,
		},
		Defaults: DefaultsConfig{
			Actor: os.Getenv("USER"),
			Limit: 50,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  "auto",
		},
	}
}

// Load reads the config file, if any, then PACTWATCH_CLI_* variables, then
// the named profile on top.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(configDir(), "config.toml")
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// PACTWATCH_CLI_SERVER_URL -> server.url
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return envToKey(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.Profile != "" {
		profileKey := "profiles." + opts.Profile
		if !k.Exists(profileKey) {
			return nil, fmt.Errorf("profile %q not found in %s", opts.Profile, configPath)
		}
		if err := k.Unmarshal(profileKey, cfg); err != nil {
			return nil, fmt.Errorf("failed to load profile %s: %w", opts.Profile, err)
		}
	}

	return cfg, nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pactwatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pactwatch"
	}
	return filepath.Join(home, ".config", "pactwatch")
}

// ConfigDir returns the configuration directory
func ConfigDir() string {
	return configDir()
}

// envToKey maps the first underscore to a dot: SERVER_URL -> server.url.
func envToKey(s string) string {
	section, rest, ok := strings.Cut(strings.ToLower(s), "_")
	if !ok {
		return section
	}
	return section + "." + rest
}
