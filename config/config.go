package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/code-payments/flipchat-billing/billing"
)

// Config holds process configuration for binaries built around the gateway.
type Config struct {
	LogLevel    zapcore.Level
	PackageName string

	// Gateway
	SubscriberBuffer int
	NotifyTimeout    time.Duration

	// DemoCatalog seeds the in-memory backend, see ParseCatalog.
	DemoCatalog string
}

// Load reads configuration from the environment, after loading a .env file
// if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	defaults := billing.DefaultConfig()

	level, err := zapcore.ParseLevel(getEnv("BILLING_LOG_LEVEL", "info"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid BILLING_LOG_LEVEL")
	}

	buffer, err := getEnvInt("BILLING_SUBSCRIBER_BUFFER", defaults.SubscriberBuffer)
	if err != nil {
		return nil, err
	}
	if buffer < 0 {
		return nil, errors.Errorf("BILLING_SUBSCRIBER_BUFFER must not be negative, got %d", buffer)
	}

	timeout, err := getEnvDuration("BILLING_NOTIFY_TIMEOUT", defaults.NotifyTimeout)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, errors.Errorf("BILLING_NOTIFY_TIMEOUT must be positive, got %s", timeout)
	}

	return &Config{
		LogLevel:         level,
		PackageName:      getEnv("BILLING_PACKAGE_NAME", "xyz.flipchat.app"),
		SubscriberBuffer: buffer,
		NotifyTimeout:    timeout,
		DemoCatalog:      getEnv("BILLING_DEMO_CATALOG", "inapp:gold_pack:4990000:USD,subs:premium_monthly:9990000:USD"),
	}, nil
}

// Gateway returns the gateway settings.
func (c *Config) Gateway() billing.Config {
	return billing.Config{
		SubscriberBuffer: c.SubscriberBuffer,
		NotifyTimeout:    c.NotifyTimeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return parsed, nil
}
