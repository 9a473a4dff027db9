package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

// clearEnv keeps ambient credentials from leaking into Load's overrides.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AGENTGATE_API_KEY", "")
	t.Setenv("AGENTGATE_LISTEN", "")
	t.Setenv("AGENTGATE_AGENT_BIN", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	original := &Config{
		DataDir:           "/tmp/test-data",
		LogLevel:          "debug",
		Listen:            ":9000",
		APIKey:            "srv-key-1234",
		MaxConcurrent:     4,
		SessionTTLSeconds: 1800,
		SweepSchedule:     "@every 5m",
		Models:            []string{"claude-3-5-haiku-20241022"},
	}
	original.Agent.Bin = "claude"
	original.Agent.APIKey = "sk-test-round-trip"
	original.Agent.MaxTurns = 5
	original.Agent.TimeoutSeconds = 120

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("LogLevel mismatch: %v != %v", loaded.LogLevel, original.LogLevel)
	}
	if loaded.Listen != original.Listen {
		t.Errorf("Listen mismatch: %v != %v", loaded.Listen, original.Listen)
	}
	if loaded.APIKey != original.APIKey {
		t.Errorf("APIKey mismatch: %v != %v", loaded.APIKey, original.APIKey)
	}
	if loaded.SessionTTLSeconds != original.SessionTTLSeconds {
		t.Errorf("SessionTTLSeconds mismatch: %v != %v", loaded.SessionTTLSeconds, original.SessionTTLSeconds)
	}
	if loaded.Agent.APIKey != original.Agent.APIKey {
		t.Errorf("Agent.APIKey mismatch: %v != %v", loaded.Agent.APIKey, original.Agent.APIKey)
	}
	if len(loaded.Models) != 1 || loaded.Models[0] != original.Models[0] {
		t.Errorf("Models mismatch: %v != %v", loaded.Models, original.Models)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level=info, got %v", cfg.LogLevel)
	}
	if cfg.SessionTTLSeconds != 3600 {
		t.Errorf("expected default TTL of one hour, got %d", cfg.SessionTTLSeconds)
	}
	if len(cfg.Models) == 0 {
		t.Error("expected a default model allow-list")
	}

	// Defaults were written to disk on first load
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist after first Load: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTGATE_API_KEY", "env-srv-key")
	t.Setenv("ANTHROPIC_API_KEY", "env-agent-key")
	t.Setenv("AGENTGATE_LISTEN", ":7070")
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "env-srv-key" {
		t.Errorf("expected env api key, got %v", cfg.APIKey)
	}
	if cfg.Agent.APIKey != "env-agent-key" {
		t.Errorf("expected env agent key, got %v", cfg.Agent.APIKey)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("expected env listen address, got %v", cfg.Listen)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify no temp file left behind
	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestToMap(t *testing.T) {
	cfg := &Config{
		DataDir:       "/tmp/test",
		LogLevel:      "debug",
		MaxConcurrent: 8,
	}
	cfg.Agent.Bin = "claude"

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}

	if m["data_dir"] != "/tmp/test" {
		t.Errorf("expected data_dir=/tmp/test, got %v", m["data_dir"])
	}
	if m["log_level"] != "debug" {
		t.Errorf("expected log_level=debug, got %v", m["log_level"])
	}
	// JSON numbers are float64
	if m["max_concurrent"] != float64(8) {
		t.Errorf("expected max_concurrent=8, got %v", m["max_concurrent"])
	}
	agent, ok := m["agent"].(map[string]any)
	if !ok {
		t.Fatalf("expected agent to be map, got %T", m["agent"])
	}
	if agent["bin"] != "claude" {
		t.Errorf("expected agent.bin=claude, got %v", agent["bin"])
	}
}

func TestListValues_WithMask(t *testing.T) {
	cfg := &Config{LogLevel: "info", APIKey: "srv-key-7890"}
	cfg.Agent.APIKey = "sk-secret-key-1234"

	flat, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}

	if flat["api_key"] != "***7890" {
		t.Errorf("expected masked api_key=***7890, got %v", flat["api_key"])
	}
	if flat["agent.api_key"] != "***1234" {
		t.Errorf("expected masked agent.api_key=***1234, got %v", flat["agent.api_key"])
	}
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestListValues_NoMask(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.Agent.APIKey = "sk-secret-key-1234"

	flat, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["agent.api_key"] != "sk-secret-key-1234" {
		t.Errorf("expected unmasked agent.api_key, got %v", flat["agent.api_key"])
	}
}

func TestGetValue_ExistingKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "debug", MaxConcurrent: 8}
	cfg.Agent.Bin = "claude"
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	v, err = GetValue(path, "agent.bin")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "claude" {
		t.Errorf("expected agent.bin=claude, got %v", v)
	}

	v, err = GetValue(path, "max_concurrent")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	// JSON numbers are float64
	if v != float64(8) {
		t.Errorf("expected max_concurrent=8, got %v (%T)", v, v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	expected := "unknown config key: nonexistent.key"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestSetValue_String(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	cfg.Agent.Bin = "claude"
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug after set, got %v", v)
	}

	// Other values are preserved
	v, err = GetValue(path, "agent.bin")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "claude" {
		t.Errorf("expected agent.bin=claude (preserved), got %v", v)
	}
}

func TestSetValue_Numeric(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := &Config{MaxConcurrent: 2}
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "max_concurrent", "16"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "max_concurrent")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != float64(16) {
		t.Errorf("expected max_concurrent=16, got %v (%T)", v, v)
	}
}

func TestSetValue_Boolean(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "some_flag", "true"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "some_flag")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != true {
		t.Errorf("expected some_flag=true, got %v (%T)", v, v)
	}
}

func TestSetValue_NewNestedKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "custom.setting", "value"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "custom.setting")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "value" {
		t.Errorf("expected custom.setting=value, got %v", v)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	err := SetValue(path, "log_level", "debug")
	if err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config.json")

	cfg := &Config{LogLevel: "warn"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}
