package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePocketBase = "pocketbase"
	StorePostgres   = "postgres"
	StoreMemory     = "memory"
)

type Config struct {
	Environment string
	ServiceName string

	// Storage
	StoreDriver  string
	PostgresDSN  string
	StoreTimeout time.Duration

	// Redis configuration
	RedisURL       string
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	BuyRateLimit   int
	BuyRateWindow  time.Duration

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string
	KafkaBuffer  int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServiceName: getEnv("SERVICE_NAME", "ticket-resale"),

		StoreDriver:  getEnv("STORE_DRIVER", StorePocketBase),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),
		StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", "5s"),

		RedisURL:       getEnv("REDIS_URL", ""),
		CacheTTL:       getEnvAsDuration("CACHE_TTL", "5m"),
		IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", "24h"),
		BuyRateLimit:   getEnvAsInt("BUY_RATE_LIMIT", 10),
		BuyRateWindow:  getEnvAsDuration("BUY_RATE_WINDOW", "1m"),

		KafkaBrokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "marketplace.listings"),
		KafkaBuffer:  getEnvAsInt("KAFKA_BUFFER", 1024),

		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StorePocketBase, StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	return nil
}

// PubNubEnabled reports whether both publish and subscribe keys are set.
func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
