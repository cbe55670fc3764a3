// Package config loads process settings from the environment and the
// feed/tuning table from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newsdigest/internal/scheduler"
)

type Config struct {
	// Telegram settings
	TelegramToken string

	// Sources and tuning table
	SourcesConfigPath string

	// Store settings
	StoreDriver string // sqlite | postgres | file
	StoreDSN    string

	// Schedule
	DigestTimes []string // HH:MM
	Timezone    string

	// Fetch settings
	FetchTimeout     time.Duration
	FetchConcurrency int
	FeedCacheTTL     time.Duration
	DomainRate       time.Duration // min spacing between requests to one host

	// Gemini settings
	GeminiAPIKey string
	GeminiModel  string

	// App settings
	Debug     bool
	LogFormat string

	// Monitoring
	EnableHTTPMonitoring bool
	MonitoringPort       string
}

func Load() (*Config, error) {
	cfg := &Config{
		SourcesConfigPath:    getEnvOrDefault("SOURCES_CONFIG_PATH", "configs/sources.yaml"),
		StoreDriver:          strings.ToLower(getEnvOrDefault("STORE_DRIVER", "sqlite")),
		StoreDSN:             os.Getenv("STORE_DSN"),
		Timezone:             getEnvOrDefault("TIMEZONE", "UTC"),
		FetchTimeout:         getEnvDurationOrDefault("FETCH_TIMEOUT", 15*time.Second),
		FetchConcurrency:     getEnvIntOrDefault("FETCH_CONCURRENCY", 6),
		FeedCacheTTL:         getEnvDurationOrDefault("FEED_CACHE_TTL", 5*time.Minute),
		DomainRate:           getEnvDurationOrDefault("DOMAIN_RATE", 500*time.Millisecond),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "console"),
		EnableHTTPMonitoring: getEnvBoolOrDefault("ENABLE_HTTP_MONITORING", false),
		MonitoringPort:       getEnvOrDefault("MONITORING_PORT", "8080"),
	}

	// Load from environment
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.Debug = getEnvBoolOrDefault("DEBUG", false)
	cfg.DigestTimes = splitList(getEnvOrDefault("DIGEST_TIMES", "08:00,18:00"))

	return cfg, cfg.Validate()
}

// Validate checks everything except the Telegram token, which only the bot
// command needs.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite", "postgres", "file":
	default:
		return fmt.Errorf("STORE_DRIVER must be 'sqlite', 'postgres' or 'file', got %q", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && c.StoreDSN == "" {
		return fmt.Errorf("STORE_DSN is required for the postgres store")
	}
	for _, t := range c.DigestTimes {
		if _, _, err := scheduler.ParseTime(t); err != nil {
			return fmt.Errorf("DIGEST_TIMES: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	return nil
}

// RequireTelegram reports a missing token.
func (c *Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("30s") or plain seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
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
