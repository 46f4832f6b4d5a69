package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8070" || cfg.ProgressSubject != "bankflow.progress" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.LLMProvider != "" {
		t.Fatal("cleanup adapter must default to disabled")
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bankflow.yaml")
	data := []byte("listen_addr: \":9000\"\nredis_url: \"redis://redis.internal:6379\"\nllm_provider: ollama\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_URL", "redis://override:6380")
	t.Setenv("BANKFLOW_DECISION_TIMEOUT_SECONDS", "45")

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("file value lost: %s", cfg.ListenAddr)
	}
	if cfg.RedisURL != "redis://override:6380" {
		t.Fatalf("env must win over file: %s", cfg.RedisURL)
	}
	if cfg.LLMProvider != "ollama" || cfg.DecisionTimeoutSeconds != 45 {
		t.Fatalf("overrides: %+v", cfg)
	}
}

func TestRedisAddr(t *testing.T) {
	cfg := &ServerConfig{RedisURL: "redis://10.0.0.5:6379/0"}
	if got := cfg.RedisAddr(); got != "10.0.0.5:6379" {
		t.Fatalf("addr: %s", got)
	}
	cfg.RedisURL = "10.0.0.5:6379"
	if got := cfg.RedisAddr(); got != "10.0.0.5:6379" {
		t.Fatalf("schemeless addr: %s", got)
	}
}
