package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingListenAddr = errors.New("LISTEN_ADDR must not be empty")
	ErrInvalidTimeout    = errors.New("timeouts must be positive")
)

const (
	EnvAPIKey           = "OPENROUTER_API_KEY"
	EnvWebhookURL       = "ALERT_WEBHOOK_URL"
	EnvLegacyWebhookURL = "N8N_WEBHOOK_URL"
)

// Config - статические настройки процесса, читаются один раз при старте.
// Ключ и вебхук живут отдельно в Snapshot, их можно перечитать на лету.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Alert    AlertConfig
	Log      LogConfig
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type UpstreamConfig struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type AlertConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
}

type LogConfig struct {
	Level string
	Dir   string
}

func Load(src Source) (*Config, error) {
	values, err := src.Read()
	if err != nil {
		return nil, fmt.Errorf("read config source: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            values.getOrDefault("LISTEN_ADDR", ":8000"),
			ReadTimeout:     values.getSecondsOrDefault("READ_TIMEOUT_SEC", 10),
			WriteTimeout:    values.getSecondsOrDefault("WRITE_TIMEOUT_SEC", 90),
			ShutdownTimeout: values.getSecondsOrDefault("SHUTDOWN_TIMEOUT_SEC", 15),
		},
		Upstream: UpstreamConfig{
			BaseURL:   values.getOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:     values.getOrDefault("OPENROUTER_MODEL", "openai/gpt-4o"),
			MaxTokens: values.getIntOrDefault("MAX_TOKENS", 1000),
			Timeout:   values.getSecondsOrDefault("UPSTREAM_TIMEOUT_SEC", 60),
		},
		Alert: AlertConfig{
			Timeout:       values.getSecondsOrDefault("ALERT_TIMEOUT_SEC", 10),
			MaxConcurrent: values.getIntOrDefault("ALERT_MAX_CONCURRENT", 16),
		},
		Log: LogConfig{
			Level: values.getOrDefault("LOG_LEVEL", "info"),
			Dir:   values.get("LOG_DIR"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return ErrMissingListenAddr
	}
	if c.Server.ShutdownTimeout <= 0 || c.Upstream.Timeout <= 0 || c.Alert.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}
