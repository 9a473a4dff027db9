package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// defaultModels is the allow-list served by /v1/models when the config
// file does not override it.
var defaultModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
}

type Config struct {
	DataDir           string   `json:"data_dir"`
	LogLevel          string   `json:"log_level"`
	Listen            string   `json:"listen"`
	APIKey            string   `json:"api_key"`
	MaxConcurrent     int      `json:"max_concurrent"`
	SessionTTLSeconds int      `json:"session_ttl_seconds"`
	SweepSchedule     string   `json:"sweep_schedule"`
	Models            []string `json:"models"`
	Agent             struct {
		Bin            string   `json:"bin"`
		Args           []string `json:"args"`
		APIKey         string   `json:"api_key"`
		WorkDir        string   `json:"work_dir"`
		MaxTurns       int      `json:"max_turns"`
		TimeoutSeconds int      `json:"timeout_seconds"`
	} `json:"agent"`
}

// SessionTTL returns the session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// AgentTimeout returns the per-invocation runtime deadline.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:           filepath.Join(os.Getenv("HOME"), ".agentgate"),
		LogLevel:          "info",
		Listen:            ":8000",
		MaxConcurrent:     10,
		SessionTTLSeconds: 3600,
		SweepSchedule:     "@every 1m",
		Models:            defaultModels,
	}
	cfg.Agent.Bin = "claude"
	cfg.Agent.MaxTurns = 10
	cfg.Agent.TimeoutSeconds = 600

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if key := os.Getenv("AGENTGATE_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if listen := os.Getenv("AGENTGATE_LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Agent.APIKey = key
	}
	if bin := os.Getenv("AGENTGATE_AGENT_BIN"); bin != "" {
		cfg.Agent.Bin = bin
	}

	return cfg, nil
}

// Save marshals the config with indentation and writes it atomically,
// creating the parent directory when needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
