package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// APIBaseURL is the analytics backend. Empty enables the built-in
	// mock gateway so the dashboard runs without a backend.
	APIBaseURL string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Backend request policy.
	RequestTimeout time.Duration

	// Response cache.
	CacheTTL time.Duration
	CacheDir string // empty means in-memory only

	// Optional dataset refresh event export.
	KafkaBrokers     []string
	KafkaEventsTopic string
	KafkaEnabled     bool
}

// Load reads configuration from the environment, applying defaults where
// unset. A local .env file is merged in first when present.
func Load() (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	eventsTopic := os.Getenv("KAFKA_EVENTS_TOPIC")
	kafkaEnabled := len(brokers) > 0 && eventsTopic != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		APIBaseURL:       strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		RequestTimeout:   requestTimeout,
		CacheTTL:         cacheTTL,
		CacheDir:         os.Getenv("CACHE_DIR"),
		KafkaBrokers:     brokers,
		KafkaEventsTopic: eventsTopic,
		KafkaEnabled:     kafkaEnabled,
	}

	if cfg.KafkaEnabled && (len(cfg.KafkaBrokers) == 0 || cfg.KafkaEventsTopic == "") {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS or KAFKA_EVENTS_TOPIC is not set")
	}

	return cfg, nil
}

// MockMode reports whether the built-in mock gateway should serve data.
func (c *Config) MockMode() bool {
	return c.APIBaseURL == ""
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
