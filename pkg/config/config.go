// Package config handles configuration loading from environment variables and
// an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	monitorredis "github.com/redash-ops/queue-monitor/internal/redis"
	"github.com/redash-ops/queue-monitor/pkg/types"
)

// Environment variable names
const (
	EnvRedisURL      = "REDASH_REDIS_URL"
	EnvStatsdHost    = "REDASH_STATSD_HOST"
	EnvStatsdPort    = "REDASH_STATSD_PORT"
	EnvStatsdPrefix  = "REDASH_STATSD_PREFIX"
	EnvQueueDriver   = "REDASH_MONITOR_QUEUE_DRIVER"
	EnvQueueRedisURL = "REDASH_MONITOR_QUEUE_REDIS_URL"
	EnvInterval      = "REDASH_MONITOR_INTERVAL"
	EnvSelfStats     = "REDASH_MONITOR_SELF_STATS"
	EnvMetricsAddr   = "REDASH_MONITOR_METRICS_ADDR"
	EnvLogLevel      = "REDASH_MONITOR_LOG_LEVEL"
	EnvLogFormat     = "REDASH_MONITOR_LOG_FORMAT"
)

// DefaultInterval is the pause between two sampling cycles
const DefaultInterval = 5 * time.Second

// maxIntervalSeconds is the largest whole-second interval a time.Duration holds
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// Config holds all configuration for the monitor
type Config struct {
	// Redis holding the queue registry and the lock keys
	RedisURL string

	// Queue system
	QueueDriver   types.QueueDriver
	QueueRedisURL string // Defaults to RedisURL

	// StatsD daemon
	StatsdHost string
	StatsdPort int
	Namespace  string // Prefix of every metric name

	// Monitor behavior
	Interval    time.Duration
	SelfStats   bool   // Also emit the monitor's own CPU and RSS
	MetricsAddr string // Prometheus/health listener, empty disables

	// Logging
	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RedisURL:    "redis://localhost:6379/0",
		QueueDriver: types.DriverRQ,
		StatsdHost:  "127.0.0.1",
		StatsdPort:  8125,
		Namespace:   "redash",
		Interval:    DefaultInterval,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load creates a Config from the environment. Values in a .env file in the
// working directory are used for variables not already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := DefaultConfig()

	if v := k.String(EnvRedisURL); v != "" {
		cfg.RedisURL = v
	}
	if v := k.String(EnvStatsdHost); v != "" {
		cfg.StatsdHost = v
	}
	if v := k.String(EnvStatsdPort); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, &ConfigError{Field: "StatsdPort", Message: fmt.Sprintf("invalid %s %q", EnvStatsdPort, v)}
		}
		cfg.StatsdPort = port
	}
	// An explicitly empty prefix is allowed and yields unprefixed names
	if k.Exists(EnvStatsdPrefix) {
		cfg.Namespace = strings.TrimSpace(k.String(EnvStatsdPrefix))
	}

	if v := k.String(EnvQueueDriver); v != "" {
		cfg.QueueDriver = types.QueueDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	cfg.QueueRedisURL = k.String(EnvQueueRedisURL)

	if v := k.String(EnvInterval); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return nil, &ConfigError{Field: "Interval", Message: err.Error()}
		}
		cfg.Interval = d
	}

	if v := k.String(EnvSelfStats); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, &ConfigError{Field: "SelfStats", Message: fmt.Sprintf("invalid %s %q", EnvSelfStats, v)}
		}
		cfg.SelfStats = b
	}

	cfg.MetricsAddr = strings.TrimSpace(k.String(EnvMetricsAddr))

	if v := k.String(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := k.String(EnvLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}

	return cfg, nil
}

// parseInterval accepts a Go duration ("5s", "1m") or a bare number of seconds
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		if seconds > maxIntervalSeconds || seconds < -maxIntervalSeconds {
			return 0, fmt.Errorf("%s %q is too large (max %d seconds)", EnvInterval, s, maxIntervalSeconds)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", EnvInterval, s)
	}
	return d, nil
}

// QueueURL returns the Redis URL of the queue system
func (c *Config) QueueURL() string {
	if c.QueueRedisURL != "" {
		return c.QueueRedisURL
	}
	return c.RedisURL
}

// SlogLevel maps LogLevel to a slog.Level
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := monitorredis.ParseRedisURL(c.RedisURL); err != nil {
		return &ConfigError{Field: "RedisURL", Message: err.Error()}
	}
	if c.QueueRedisURL != "" {
		if _, err := monitorredis.ParseRedisURL(c.QueueRedisURL); err != nil {
			return &ConfigError{Field: "QueueRedisURL", Message: err.Error()}
		}
	}
	if !c.QueueDriver.Valid() {
		return &ConfigError{Field: "QueueDriver", Message: fmt.Sprintf("unsupported queue driver %q (use rq or asynq)", c.QueueDriver)}
	}
	if c.StatsdHost == "" {
		return &ConfigError{Field: "StatsdHost", Message: "statsd host is required"}
	}
	if c.StatsdPort <= 0 || c.StatsdPort > 65535 {
		return &ConfigError{Field: "StatsdPort", Message: fmt.Sprintf("port %d out of range", c.StatsdPort)}
	}
	if c.Interval <= 0 {
		return &ConfigError{Field: "Interval", Message: "interval must be positive"}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return &ConfigError{Field: "LogFormat", Message: fmt.Sprintf("unsupported log format %q", c.LogFormat)}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
