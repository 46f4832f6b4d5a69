// Package config loads server configuration from an optional YAML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// ServerConfig holds everything the server binary needs to start.
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	RedisURL        string `yaml:"redis_url"`
	NatsURL         string `yaml:"nats_url"`
	ProgressSubject string `yaml:"progress_subject"`
	ImportURL       string `yaml:"import_url"`

	Headless       bool   `yaml:"headless"`
	BrowserChannel string `yaml:"browser_channel"`

	LLMProvider string `yaml:"llm_provider"`
	LLMURL      string `yaml:"llm_url"`
	LLMModel    string `yaml:"llm_model"`
	LLMAPIKey   string `yaml:"llm_api_key"`

	DecisionTimeoutSeconds int `yaml:"decision_timeout_seconds"`
	SettleTimeoutSeconds   int `yaml:"settle_timeout_seconds"`
}

// LoadServerConfig loads configuration from file (if present) and environment.
func LoadServerConfig(configPath string) (*ServerConfig, error) {
	config := &ServerConfig{
		ListenAddr:             ":8070",
		RedisURL:               "redis://localhost:6379",
		NatsURL:                "nats://localhost:4222",
		ProgressSubject:        "bankflow.progress",
		Headless:               false,
		LLMProvider:            "",
		LLMURL:                 "http://localhost:11434",
		LLMModel:               "llama3.1",
		DecisionTimeoutSeconds: 120,
		SettleTimeoutSeconds:   10,
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if addr := os.Getenv("BANKFLOW_LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NatsURL = natsURL
	}
	if subject := os.Getenv("BANKFLOW_PROGRESS_SUBJECT"); subject != "" {
		config.ProgressSubject = subject
	}
	if importURL := os.Getenv("BANKFLOW_IMPORT_URL"); importURL != "" {
		config.ImportURL = importURL
	}
	if headless := os.Getenv("BANKFLOW_HEADLESS"); strings.TrimSpace(headless) != "" {
		config.Headless = strings.ToLower(headless) == "true"
	}
	if channel := os.Getenv("BANKFLOW_BROWSER_CHANNEL"); channel != "" {
		config.BrowserChannel = channel
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLMProvider = provider
	}
	if llmURL := os.Getenv("LLM_URL"); llmURL != "" {
		config.LLMURL = llmURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLMModel = model
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		config.LLMAPIKey = key
	}
	if v := strings.TrimSpace(os.Getenv("BANKFLOW_DECISION_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.DecisionTimeoutSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BANKFLOW_SETTLE_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.SettleTimeoutSeconds = n
		}
	}

	// Normalize Redis host to IPv4 if localhost to avoid ::1 resolution issues
	if strings.Contains(config.RedisURL, "localhost") {
		config.RedisURL = strings.ReplaceAll(config.RedisURL, "localhost", "127.0.0.1")
	}

	return config, nil
}

// RedisAddr strips an optional redis:// scheme down to host:port for the
// go-redis client.
func (c *ServerConfig) RedisAddr() string {
	addr := strings.TrimPrefix(c.RedisURL, "redis://")
	if i := strings.Index(addr, "/"); i >= 0 {
		addr = addr[:i]
	}
	return addr
}
