// Package config loads claudish's small on-disk JSON config file and layers
// the environment variables spec.md §6 enumerates on top of it. Env vars
// always win: Get() re-reads them on every call, matching the registry's own
// "environment variables are re-read each lookup" rule.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

const (
	DefaultPort           = 6970
	DefaultHost           = "127.0.0.1"
	DefaultConfigFilename = "config.json"
	DefaultReasoningPolicy = "as_text"
)

// Provider is a persisted local-provider entry: a remembered base URL
// and/or API key for one of the named local backends (ollama, lmstudio,
// vllm, mlx), written by `claudish config init`, listed by `config show`
// and counted by `status`. Request routing does not read these entries:
// internal/providers.Registry takes base URLs and keys from env vars only.
type Provider struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

// Config is the shape of ~/.claudish/config.json.
type Config struct {
	Host            string     `json:"host,omitempty"`
	Port            int        `json:"port,omitempty"`
	APIKey          string     `json:"api_key,omitempty"`
	ReasoningPolicy string     `json:"reasoning_policy,omitempty"`
	DefaultModel    string     `json:"default_model,omitempty"`
	Providers       []Provider `json:"providers,omitempty"`
}

// Manager loads, caches, and saves Config, applying defaults and environment
// overrides the way the teacher's config.Manager does.
type Manager struct {
	configPath  string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		configPath: filepath.Join(baseDir, DefaultConfigFilename),
	}
}

func (m *Manager) Load() (*Config, error) {
	cfg := &Config{}

	if data, err := os.ReadFile(m.configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	m.configValue.Store(cfg)
	return cfg, nil
}

// Get returns the cached config, re-applying environment overrides so that
// a changed env var is observed without a restart. Falls back to Load if
// nothing has been loaded yet, and to bare defaults if even that fails.
func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		cfg := *v.(*Config)
		applyEnv(&cfg)
		return &cfg
	}

	cfg, err := m.Load()
	if err != nil {
		cfg = &Config{}
		applyDefaults(cfg)
		applyEnv(cfg)
	}
	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	stored := *cfg
	m.configValue.Store(&stored)
	return nil
}

func (m *Manager) GetPath() string {
	return m.configPath
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.ReasoningPolicy == "" {
		cfg.ReasoningPolicy = DefaultReasoningPolicy
	}
}

// applyEnv layers spec.md §6's environment variables over the file-loaded
// config. Only CLAUDISH_* vars touch the host/port/policy/debug knobs
// themselves; provider credentials and base URLs are resolved directly by
// internal/providers.Registry at dispatch time and are not duplicated here.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CLAUDISH_REASONING_POLICY"); v != "" {
		cfg.ReasoningPolicy = v
	}
	if v := os.Getenv("CLAUDISH_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("CLAUDISH_PORT"); v != "" {
		if p, err := parsePort(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("CLAUDISH_API_KEY"); v != "" {
		cfg.APIKey = v
	}
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

// Debug reports whether CLAUDISH_DEBUG requests trace-level logging.
func Debug() bool {
	v := os.Getenv("CLAUDISH_DEBUG")
	return v != "" && v != "0" && v != "false"
}
