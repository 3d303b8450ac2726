// Package config loads warden's YAML configuration from the home
// directory, applying defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/warden/internal/store"
)

// AssistantConfig controls how the coding assistant is launched.
type AssistantConfig struct {
	// Command is the assistant binary, on PATH or absolute.
	Command string `yaml:"command"`

	// SkipPermissions launches the assistant in unattended mode and
	// drives its permission prompt automatically.
	SkipPermissions bool `yaml:"skip_permissions"`

	// AcceptPrompt is the pane substring probed for when waiting for
	// the permission prompt; the probe loop is bounded by
	// AcceptAttempts retries of AcceptIntervalMS each.
	AcceptPrompt     string `yaml:"accept_prompt"`
	AcceptAttempts   int    `yaml:"accept_attempts"`
	AcceptIntervalMS int    `yaml:"accept_interval_ms"`
}

// ContainerConfig caps the sandbox container agents run in.
type ContainerConfig struct {
	Image     string  `yaml:"image"`
	MemoryMB  int64   `yaml:"memory_mb"`
	CPUs      float64 `yaml:"cpus"`
	PidsLimit int64   `yaml:"pids_limit"`

	// Network is "none" for a fully offline sandbox or "bridge" when
	// the assistant needs API egress.
	Network string `yaml:"network"`

	// APIKeyEnv names the single secret injected into the container.
	APIKeyEnv string `yaml:"api_key_env"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	// AgentsDir is where per-agent working directories (clones) live.
	AgentsDir string `yaml:"agents_dir"`

	// Backend is the default backend kind for new agents: "session"
	// or "container".
	Backend string `yaml:"backend"`

	LogLevel string `yaml:"log_level"`

	Assistant AssistantConfig `yaml:"assistant"`
	Container ContainerConfig `yaml:"container"`
}

// HomeDir resolves the warden home directory, honoring WARDEN_HOME.
func HomeDir() string {
	if override := os.Getenv("WARDEN_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".warden")
}

// DBPath is the record store location inside the home directory.
func (c Config) DBPath() string {
	return filepath.Join(c.HomeDir, "warden.db")
}

// DefaultBackend returns the configured backend kind.
func (c Config) DefaultBackend() store.BackendKind {
	return store.BackendKind(c.Backend)
}

// Load reads config.yaml from the home directory (creating the
// directory if needed), then applies environment overrides and
// defaults. A missing config file is not an error.
func Load() (Config, error) {
	cfg := Config{HomeDir: HomeDir()}

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create warden home: %w", err)
	}

	configPath := filepath.Join(cfg.HomeDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("WARDEN_AGENTS_DIR"); dir != "" {
		cfg.AgentsDir = dir
	}
	if backend := os.Getenv("WARDEN_BACKEND"); backend != "" {
		cfg.Backend = backend
	}
}

func normalize(cfg *Config) {
	if cfg.AgentsDir == "" {
		cfg.AgentsDir = ".agents"
	}
	if abs, err := filepath.Abs(cfg.AgentsDir); err == nil {
		cfg.AgentsDir = abs
	}
	cfg.Backend = strings.TrimSpace(strings.ToLower(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = string(store.BackendContainer)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Assistant.Command == "" {
		cfg.Assistant.Command = "claude"
	}
	if cfg.Assistant.AcceptPrompt == "" {
		cfg.Assistant.AcceptPrompt = "Yes, proceed"
	}
	if cfg.Assistant.AcceptAttempts <= 0 {
		cfg.Assistant.AcceptAttempts = 8
	}
	if cfg.Assistant.AcceptIntervalMS <= 0 {
		cfg.Assistant.AcceptIntervalMS = 500
	}
	if cfg.Container.Image == "" {
		cfg.Container.Image = "warden-agent:latest"
	}
	if cfg.Container.MemoryMB <= 0 {
		cfg.Container.MemoryMB = 2048
	}
	if cfg.Container.CPUs <= 0 {
		cfg.Container.CPUs = 2
	}
	if cfg.Container.PidsLimit <= 0 {
		cfg.Container.PidsLimit = 100
	}
	if cfg.Container.Network == "" {
		cfg.Container.Network = "bridge"
	}
	if cfg.Container.APIKeyEnv == "" {
		cfg.Container.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
}

func validate(cfg *Config) error {
	if !store.BackendKind(cfg.Backend).Valid() {
		return fmt.Errorf("config: unknown backend %q (want session or container)", cfg.Backend)
	}
	switch cfg.Container.Network {
	case "none", "bridge", "host":
	default:
		return fmt.Errorf("config: unknown container network %q", cfg.Container.Network)
	}
	return nil
}
