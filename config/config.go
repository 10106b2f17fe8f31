package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"ticket-checkout/internal/gateway"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string

	// Order storage: pocketbase, redis or memory
	OrderStore string
	Currency   string

	// Redis configuration
	RedisURL string

	// Payment gateway
	Gateway           gateway.ClientConfig
	ReturnURLTemplate string
	WebhookSecret     string

	// Mounts POST /api/test/simulate-webhook, which can mark any order paid.
	EnableWebhookSimulator bool

	// Status polling
	PollMaxAttempts int
	PollInterval    time.Duration
	PollBaseURL     string

	// Rate limiting on order creation
	OrderRateLimit  int
	OrderRateWindow time.Duration

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads settings from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "production"),

		OrderStore: getEnv("ORDER_STORE", "pocketbase"),
		Currency:   getEnv("ORDER_CURRENCY", "INR"),

		RedisURL: getEnv("REDIS_URL", ""),

		Gateway: gateway.ClientConfig{
			BaseURL:       getEnv("GATEWAY_BASE_URL", "https://sandbox.cashfree.com/pg"),
			ClientID:      getEnv("GATEWAY_CLIENT_ID", ""),
			ClientSecret:  getEnv("GATEWAY_CLIENT_SECRET", ""),
			APIVersion:    getEnv("GATEWAY_API_VERSION", "2023-08-01"),
			Timeout:       getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),
			RatePerSecond: getEnvAsFloat("GATEWAY_RPS", 0),
		},
		ReturnURLTemplate: getEnv("GATEWAY_RETURN_URL", "http://localhost:3000/payment/status?order_id={order_id}"),
		WebhookSecret:     getEnv("GATEWAY_WEBHOOK_SECRET", getEnv("GATEWAY_CLIENT_SECRET", "")),

		EnableWebhookSimulator: getEnvAsBool("ENABLE_WEBHOOK_SIMULATOR", false),

		PollMaxAttempts: getEnvAsInt("POLL_MAX_ATTEMPTS", 10),
		PollInterval:    getEnvAsDuration("POLL_INTERVAL", "3s"),
		PollBaseURL:     getEnv("POLL_BASE_URL", "http://127.0.0.1:8090"),

		OrderRateLimit:  getEnvAsInt("ORDER_RATE_LIMIT", 30),
		OrderRateWindow: getEnvAsDuration("ORDER_RATE_WINDOW", "1m"),

		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),

		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
