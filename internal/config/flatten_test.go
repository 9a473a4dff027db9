package config

import (
	"testing"
)

func TestFlatten_Simple(t *testing.T) {
	m := map[string]any{
		"a": "hello",
		"b": 42.0,
	}
	got := Flatten(m)
	if got["a"] != "hello" {
		t.Errorf("expected a=hello, got %v", got["a"])
	}
	if got["b"] != 42.0 {
		t.Errorf("expected b=42, got %v", got["b"])
	}
	if len(got) != 2 {
		t.Errorf("expected 2 keys, got %d", len(got))
	}
}

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"agent": map[string]any{
			"bin":     "claude",
			"api_key": "sk-test123",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["agent.bin"] != "claude" {
		t.Errorf("expected agent.bin=claude, got %v", got["agent.bin"])
	}
	if got["agent.api_key"] != "sk-test123" {
		t.Errorf("expected agent.api_key=sk-test123, got %v", got["agent.api_key"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}
	got := Flatten(m)
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestFlatten_EmptyMap(t *testing.T) {
	got := Flatten(map[string]any{})
	if len(got) != 0 {
		t.Errorf("expected 0 keys, got %d", len(got))
	}
}

func TestUnflatten_Nested(t *testing.T) {
	flat := map[string]any{
		"agent.bin":     "claude",
		"agent.api_key": "sk-test123",
		"log_level":     "info",
	}
	got := Unflatten(flat)
	agent, ok := got["agent"].(map[string]any)
	if !ok {
		t.Fatalf("expected agent to be map, got %T", got["agent"])
	}
	if agent["bin"] != "claude" {
		t.Errorf("expected agent.bin=claude, got %v", agent["bin"])
	}
	if agent["api_key"] != "sk-test123" {
		t.Errorf("expected agent.api_key=sk-test123, got %v", agent["api_key"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.agentgate",
		"log_level": "debug",
		"agent": map[string]any{
			"bin":     "claude",
			"api_key": "sk-test123456",
		},
	}

	flat := Flatten(original)
	restored := Unflatten(flat)

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}
	if restored["log_level"] != original["log_level"] {
		t.Errorf("log_level mismatch: %v != %v", restored["log_level"], original["log_level"])
	}

	agent := restored["agent"].(map[string]any)
	origAgent := original["agent"].(map[string]any)
	if agent["bin"] != origAgent["bin"] {
		t.Errorf("agent.bin mismatch: %v != %v", agent["bin"], origAgent["bin"])
	}
	if agent["api_key"] != origAgent["api_key"] {
		t.Errorf("agent.api_key mismatch: %v != %v", agent["api_key"], origAgent["api_key"])
	}
}

func TestMaskSecrets_AllSecrets(t *testing.T) {
	flat := map[string]any{
		"api_key":       "srv-key-7890",
		"agent.api_key": "sk-test123456",
		"agent.bin":     "claude",
		"log_level":     "info",
	}
	got := MaskSecrets(flat)

	if got["agent.bin"] != "claude" {
		t.Errorf("expected agent.bin=claude, got %v", got["agent.bin"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}

	if got["api_key"] != "***7890" {
		t.Errorf("expected api_key=***7890, got %v", got["api_key"])
	}
	if got["agent.api_key"] != "***3456" {
		t.Errorf("expected agent.api_key=***3456, got %v", got["agent.api_key"])
	}
}

func TestMaskSecrets_EmptySecret(t *testing.T) {
	flat := map[string]any{
		"agent.api_key": "",
	}
	got := MaskSecrets(flat)
	if got["agent.api_key"] != "" {
		t.Errorf("expected empty string to remain empty, got %v", got["agent.api_key"])
	}
}

func TestMaskSecrets_ShortSecret(t *testing.T) {
	flat := map[string]any{
		"agent.api_key": "ab",
	}
	got := MaskSecrets(flat)
	if got["agent.api_key"] != "***ab" {
		t.Errorf("expected ***ab for short secret, got %v", got["agent.api_key"])
	}
}

func TestFlatten_MixedTypes(t *testing.T) {
	m := map[string]any{
		"str":  "hello",
		"num":  42.0,
		"bool": true,
		"nested": map[string]any{
			"val": "inside",
		},
	}
	got := Flatten(m)
	if got["str"] != "hello" {
		t.Errorf("expected str=hello, got %v", got["str"])
	}
	if got["num"] != 42.0 {
		t.Errorf("expected num=42, got %v", got["num"])
	}
	if got["bool"] != true {
		t.Errorf("expected bool=true, got %v", got["bool"])
	}
	if got["nested.val"] != "inside" {
		t.Errorf("expected nested.val=inside, got %v", got["nested.val"])
	}
}
