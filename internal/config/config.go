package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nfrund/herald/internal/pubsub"
	"github.com/robfig/cron/v3"
)

// Broker drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Port      string
	APIPrefix string

	BrokerDriver string
	RedisURL     string

	// IdleThreshold is how long a dynamic topic may go unused before
	// cleanup considers it. Read from TOPIC_CLEANUP_INTERVAL in hours.
	IdleThreshold          time.Duration
	SweepInterval          time.Duration
	CleanupSchedule        string
	SubscriberQueryTimeout time.Duration
	CronEnabled            bool

	// PublishRate is the per-client publish limit in requests per second.
	PublishRate float64

	LogFormat string
	LogLevel  string

	Tracing pubsub.TracingConfig
}

// Load reads a .env file if one exists and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "1002"),
		APIPrefix:       getEnv("API_PREFIX", "/api/v1"),
		BrokerDriver:    strings.ToLower(getEnv("BROKER_DRIVER", DriverRedis)),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		CleanupSchedule: getEnv("TOPIC_CLEANUP_SCHEDULE", "0 3 * * *"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Tracing:         pubsub.DefaultTracingConfig(),
	}

	hours, err := getFloat("TOPIC_CLEANUP_INTERVAL", 24)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		return nil, fmt.Errorf("TOPIC_CLEANUP_INTERVAL must be positive, got %v", hours)
	}
	cfg.IdleThreshold = time.Duration(hours * float64(time.Hour))

	if cfg.SweepInterval, err = getDuration("TOPIC_SWEEP_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SubscriberQueryTimeout, err = getDuration("SUBSCRIBER_QUERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CronEnabled, err = getBool("CRON_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.PublishRate, err = getFloat("PUBLISH_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.Tracing.Enabled, err = getBool("PUBSUB_TRACING_ENABLED", cfg.Tracing.Enabled); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = getEnv("PUBSUB_TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.ZipkinURL = getEnv("PUBSUB_TRACING_ZIPKIN_URL", cfg.Tracing.ZipkinURL)
	if cfg.Tracing.SampleRatio, err = getFloat("PUBSUB_TRACING_SAMPLE_RATIO", cfg.Tracing.SampleRatio); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be checked while parsing.
func (c *Config) Validate() error {
	switch c.BrokerDriver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("BROKER_DRIVER must be %q or %q, got %q", DriverRedis, DriverMemory, c.BrokerDriver)
	}
	if c.BrokerDriver == DriverRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis broker")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a number, got %q", c.Port)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with '/', got %q", c.APIPrefix)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("TOPIC_SWEEP_INTERVAL must be positive")
	}
	if c.SubscriberQueryTimeout <= 0 {
		return fmt.Errorf("SUBSCRIBER_QUERY_TIMEOUT must be positive")
	}
	if c.PublishRate <= 0 {
		return fmt.Errorf("PUBLISH_RATE_LIMIT must be positive")
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("PUBSUB_TRACING_*: %w", err)
	}
	if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
		return fmt.Errorf("TOPIC_CLEANUP_SCHEDULE %q: %w", c.CleanupSchedule, err)
	}
	return nil
}

// Addr is the listen address of the admin server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
