package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	API           APIConfig
	Poll          PollConfig
	Review        ReviewConfig
	Output        OutputConfig
	Log           LogConfig
	Observability ObservabilityConfig
}

type APIConfig struct {
	BaseURL            string
	RequestTimeout     time.Duration
	RateLimitPerSecond int
	RateLimitBurst     int
}

type PollConfig struct {
	Interval time.Duration
}

type ReviewConfig struct {
	// Strict turns an unreadable result artifact into a failure instead of
	// showing placeholder rows.
	Strict bool
}

type OutputConfig struct {
	Dir string
}

type LogConfig struct {
	Level string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsAddr    string
}

// Load reads configuration from environment variables, after merging any .env
// file found in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:            getEnv("KONTOEXPORT_API_BASE", "http://localhost:8000"),
			RequestTimeout:     getEnvAsDuration("KONTOEXPORT_REQUEST_TIMEOUT", 30*time.Second),
			RateLimitPerSecond: getEnvAsInt("KONTOEXPORT_RATE_LIMIT_PER_SECOND", 5),
			RateLimitBurst:     getEnvAsInt("KONTOEXPORT_RATE_LIMIT_BURST", 10),
		},
		Poll: PollConfig{
			Interval: getEnvAsDuration("KONTOEXPORT_POLL_INTERVAL", 2*time.Second),
		},
		Review: ReviewConfig{
			Strict: getEnvAsBool("KONTOEXPORT_REVIEW_STRICT", false),
		},
		Output: OutputConfig{
			Dir: getEnv("KONTOEXPORT_OUTPUT_DIR", "."),
		},
		Log: LogConfig{
			Level: getEnv("KONTOEXPORT_LOG_LEVEL", "info"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),
			MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late inside the client.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid KONTOEXPORT_API_BASE: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("KONTOEXPORT_API_BASE must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.RequestTimeout <= 0 {
		return errors.New("KONTOEXPORT_REQUEST_TIMEOUT must be positive")
	}
	if c.Poll.Interval <= 0 {
		return errors.New("KONTOEXPORT_POLL_INTERVAL must be positive")
	}
	if c.API.RateLimitPerSecond <= 0 {
		return errors.New("KONTOEXPORT_RATE_LIMIT_PER_SECOND must be positive")
	}
	if c.API.RateLimitBurst <= 0 {
		c.API.RateLimitBurst = 1
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
