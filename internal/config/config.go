// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	AllowedOrigin string
	WhitelistPath string
	DBPath        string

	HistoryLimit int

	RateLimitMax    int
	RateLimitWindow time.Duration

	LockoutThreshold int
	LockoutDuration  time.Duration

	WebhookLogsURL  string
	WebhookChatURL  string
	NotifyQueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", "*"),
		WhitelistPath:    getEnv("WHITELIST_PATH", "./data/whitelist.txt"),
		DBPath:           getEnv("DB_PATH", "./data/gatechat.db"),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 50),
		RateLimitMax:     getEnvInt("RATE_LIMIT_MAX", 5),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 10*time.Second),
		LockoutThreshold: getEnvInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  getEnvDuration("LOCKOUT_DURATION", 5*time.Minute),
		WebhookLogsURL:   getEnv("WEBHOOK_LOGS_URL", ""),
		WebhookChatURL:   getEnv("WEBHOOK_CHAT_URL", ""),
		NotifyQueueSize:  getEnvInt("NOTIFY_QUEUE_SIZE", 256),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.WhitelistPath == "" {
		return fmt.Errorf("WHITELIST_PATH cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be > 0")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.LockoutThreshold <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be > 0")
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be > 0")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.AllowedOrigin == "*" ||
		strings.Contains(c.AllowedOrigin, "localhost") ||
		strings.Contains(c.AllowedOrigin, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
