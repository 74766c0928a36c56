package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverMemory   = "memory"

	EventBusSNS   = "sns"
	EventBusKafka = "kafka"
	EventBusNone  = "none"

	// Stripe accepts Checkout Session expiry between 30 minutes and 24 hours
	// after the session is created. The expiry is computed before the gateway
	// call, so keep a margin inside both bounds.
	linkTTLMargin = 5 * time.Minute
	minLinkTTL    = 30*time.Minute + linkTTLMargin
	maxLinkTTL    = 24*time.Hour - linkTTLMargin
)

type Config struct {
	Port     string
	Env      string
	DBDriver string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	GatewayTimeout      time.Duration
	PaymentLinkTTL      time.Duration
	PaymentSuccessURL   string
	PaymentCancelURL    string

	RedisURL       string
	InvoiceLockTTL time.Duration

	EventBus           string
	BillingSNSTopicARN string
	KafkaBrokers       []string
	KafkaTopic         string

	RequestTimeout     time.Duration
	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int

	AWSUseSecrets       bool
	CloudWatchEnabled   bool
	CloudWatchLogGroup  string
	CloudWatchNamespace string
}

// SecretSource is satisfied by *aws.SecretsClient.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads .env (if present) and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "5000"),
		Env:      getEnv("APP_ENV", "development"),
		DBDriver: getEnv("DB_DRIVER", DBDriverPostgres),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		StripeSecretKey:     os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       os.Getenv("STRIPE_API_BASE_URL"),
		GatewayTimeout:      getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		PaymentLinkTTL:      clampLinkTTL(getEnvDuration("PAYMENT_LINK_TTL", 23*time.Hour)),
		PaymentSuccessURL:   getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/payments/success"),
		PaymentCancelURL:    getEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/payments/cancelled"),

		RedisURL:       os.Getenv("REDIS_URL"),
		InvoiceLockTTL: getEnvDuration("INVOICE_LOCK_TTL", 30*time.Second),

		EventBus:           strings.ToLower(getEnv("EVENT_BUS", EventBusNone)),
		BillingSNSTopicARN: os.Getenv("BILLING_SNS_TOPIC_ARN"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "billing.payment-events"),

		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 50),

		AWSUseSecrets:       os.Getenv("AWS_USE_SECRETS") == "true",
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/billing/billing-service"),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "Billing"),
	}
	return cfg, nil
}

// ApplySecrets overrides database credentials and gateway secrets from
// Secrets Manager. Missing secrets leave the environment values in place.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) {
	if m, err := src.GetSecretMap(ctx, "billing/DB_CREDENTIALS"); err == nil {
		override(&c.PostgresUser, m["POSTGRES_USER"])
		override(&c.PostgresPassword, m["POSTGRES_PASSWORD"])
		override(&c.PostgresDB, m["POSTGRES_DB"])
		override(&c.PostgresHost, m["POSTGRES_HOST"])
		override(&c.PostgresPort, m["POSTGRES_PORT"])
	}
	if m, err := src.GetSecretMap(ctx, "billing/STRIPE"); err == nil {
		override(&c.StripeSecretKey, m["STRIPE_API_KEY"])
		override(&c.StripeWebhookSecret, m["STRIPE_WEBHOOK_SECRET"])
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_API_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}

	switch c.DBDriver {
	case DBDriverMemory:
	case DBDriverPostgres:
		if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" {
			errs = append(errs, errors.New("database config incomplete: POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	switch c.EventBus {
	case EventBusNone:
	case EventBusSNS:
		if c.BillingSNSTopicARN == "" {
			errs = append(errs, errors.New("BILLING_SNS_TOPIC_ARN is required when EVENT_BUS=sns"))
		}
	case EventBusKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when EVENT_BUS=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENT_BUS %q", c.EventBus))
	}

	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func clampLinkTTL(d time.Duration) time.Duration {
	switch {
	case d < minLinkTTL:
		return minLinkTTL
	case d > maxLinkTTL:
		return maxLinkTTL
	}
	return d
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
