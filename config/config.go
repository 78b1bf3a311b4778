/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. Defaults below
  2. .env in the working directory, if present
  3. Process environment
  4. Command-line flags (cmd/server)

KEYS:
  PORT, DB_PATH, JWT_SECRET, LOG_LEVEL, LOG_FORMAT, CORS_ORIGINS,
  RATE_LIMIT, VENDOR_WEBHOOK_URL, REDIS_URL, NOTIFY_INTERVAL_SECONDS,
  NOTIFY_MAX_ATTEMPTS, SEED_DEMO
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBPath      string
	JWTSecret   string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string

	// RateLimit is a limiter rate such as "60-M" (60 requests per minute).
	RateLimit string

	VendorWebhookURL string
	RedisURL         string

	NotifyInterval    time.Duration
	NotifyMaxAttempts int

	SeedDemo bool
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "./data/allocations.db"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		RateLimit:         getEnv("RATE_LIMIT", "60-M"),
		VendorWebhookURL:  os.Getenv("VENDOR_WEBHOOK_URL"),
		RedisURL:          getEnv("REDIS_URL", os.Getenv("REDIS_ADDRESS")),
		NotifyInterval:    time.Duration(getEnvInt("NOTIFY_INTERVAL_SECONDS", 30)) * time.Second,
		NotifyMaxAttempts: getEnvInt("NOTIFY_MAX_ATTEMPTS", 10),
		SeedDemo:          getEnvBool("SEED_DEMO", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.NotifyInterval <= 0 {
		return fmt.Errorf("NOTIFY_INTERVAL_SECONDS must be positive")
	}
	if c.NotifyMaxAttempts <= 0 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
