package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBRunMigrations   bool

	Stripe  StripeConfig
	Webhook WebhookConfig

	PricingConfigPath string
}

// StripeConfig configures the payment provider integration.
type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	WebhookTolerance  time.Duration
	APIBaseURL        string
	MaxNetworkRetries int64
	RequestTimeout    time.Duration
}

// WebhookConfig configures inbound webhook handling.
type WebhookConfig struct {
	MaxBodyBytes int64
	// ProcessingTimeout bounds one delivery; zero disables the deadline.
	ProcessingTimeout time.Duration
	InflightGuard     InflightGuardConfig
}

// InflightGuardConfig configures the optional redis guard that serializes
// concurrent deliveries of the same event.
type InflightGuardConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "scorebench"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
		Stripe: StripeConfig{
			SecretKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:     strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			WebhookTolerance:  getenvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			APIBaseURL:        strings.TrimSpace(getenv("STRIPE_API_BASE_URL", "")),
			MaxNetworkRetries: int64(getenvInt("STRIPE_MAX_NETWORK_RETRIES", 2)),
			RequestTimeout:    getenvDuration("STRIPE_REQUEST_TIMEOUT", 20*time.Second),
		},
		Webhook: WebhookConfig{
			MaxBodyBytes:      int64(getenvInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
			ProcessingTimeout: getenvDuration("WEBHOOK_PROCESSING_TIMEOUT", 15*time.Second),
			InflightGuard: InflightGuardConfig{
				Enabled:       getenvBool("WEBHOOK_INFLIGHT_GUARD_ENABLED", false),
				RedisAddr:     strings.TrimSpace(getenv("WEBHOOK_INFLIGHT_REDIS_ADDR", "localhost:6379")),
				RedisPassword: strings.TrimSpace(getenv("WEBHOOK_INFLIGHT_REDIS_PASSWORD", "")),
				RedisDB:       getenvInt("WEBHOOK_INFLIGHT_REDIS_DB", 0),
				TTL:           getenvDuration("WEBHOOK_INFLIGHT_TTL", 30*time.Second),
			},
		},
		PricingConfigPath: strings.TrimSpace(getenv("PRICING_CONFIG_PATH", "")),
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
