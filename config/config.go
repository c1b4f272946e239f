package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage configuration
	StoreDriver   string
	MongoURI      string
	MongoDatabase string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string
	PubNubChannel      string

	// Payment configuration
	PaymentProvider      string
	StripeSecretKey      string
	StripeWebhookSecret  string
	SandboxWebhookSecret string
	PaymentCurrency      string
	ClientURL            string
	CheckoutSessionTTL   time.Duration
	WebhookDedupeTTL     time.Duration

	// Identity configuration
	JWTSecret string
	JWTIssuer string

	// Rate limiting
	BookingRateLimit int
	RateLimitWindow  time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

const (
	DriverPocketBase = "pocketbase"
	DriverMongo      = "mongo"
	DriverMemory     = "memory"

	ProviderStripe  = "stripe"
	ProviderSandbox = "sandbox"
)

// LoadConfig reads the environment, after an optional .env file.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverPocketBase)),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "ticket_marketplace"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-marketplace"),
		PubNubChannel:      getEnv("PUBNUB_CHANNEL", "booking-events"),

		// Payments
		PaymentProvider:      strings.ToLower(getEnv("PAYMENT_PROVIDER", ProviderSandbox)),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		SandboxWebhookSecret: getEnv("SANDBOX_WEBHOOK_SECRET", "whsec_sandbox"),
		PaymentCurrency:      strings.ToLower(getEnv("PAYMENT_CURRENCY", "bdt")),
		ClientURL:            strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:5173"), "/"),
		CheckoutSessionTTL:   getEnvAsDuration("CHECKOUT_SESSION_TTL", "30m"),
		WebhookDedupeTTL:     getEnvAsDuration("WEBHOOK_DEDUPE_TTL", "24h"),

		// Identity
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		// Rate limiting
		BookingRateLimit: getEnvAsInt("BOOKING_RATE_LIMIT", 10),
		RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate reports every setting that would stop the server from
// working.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverPocketBase, DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.PaymentProvider {
	case ProviderStripe:
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required for the stripe provider"))
		}
		if c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required for the stripe provider"))
		}
	case ProviderSandbox:
		if !c.IsDevelopment() {
			errs = append(errs, errors.New("the sandbox payment provider is only available in development"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.BookingRateLimit < 1 {
		errs = append(errs, errors.New("BOOKING_RATE_LIMIT must be positive"))
	}

	return errors.Join(errs...)
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
