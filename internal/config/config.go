package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NewRelic  NewRelicConfig
	Log       LogConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	Webhook   WebhookConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// GatewayConfig holds mobile-money gateway credentials.
type GatewayConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// WebhookConfig holds the shared secret gateway callbacks are signed with.
type WebhookConfig struct {
	Secret string
}

// PaymentConfig holds payment flow settings.
type PaymentConfig struct {
	Currency      string
	AmountEpsilon int64 // minor units
	SweepInterval time.Duration
	StuckAfter    time.Duration
	SweepBatch    int
}

// RateLimitConfig holds per-policy overrides and the store choice.
type RateLimitConfig struct {
	UseRedis      bool
	PaymentMax    int64
	PaymentWindow time.Duration
	WebhookMax    int64
	WebhookWindow time.Duration
}

// IsDevelopment reports whether raw error details may be returned to clients.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 20*time.Second),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:5173",
			}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "seatpay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "seatpay"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "INFO"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Gateway: GatewayConfig{
			BaseURL:      getEnv("GATEWAY_BASE_URL", "https://sandbox.gateway.example"),
			ClientID:     getEnv("GATEWAY_CLIENT_ID", ""),
			ClientSecret: getEnv("GATEWAY_CLIENT_SECRET", ""),
			Timeout:      getDurationEnv("GATEWAY_TIMEOUT", 8*time.Second),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		},
		Payment: PaymentConfig{
			Currency:      getEnv("PAYMENT_CURRENCY", "TZS"),
			AmountEpsilon: getInt64Env("PAYMENT_AMOUNT_EPSILON", 0),
			SweepInterval: getDurationEnv("PAYMENT_SWEEP_INTERVAL", time.Minute),
			StuckAfter:    getDurationEnv("PAYMENT_STUCK_AFTER", 10*time.Minute),
			SweepBatch:    getIntEnv("PAYMENT_SWEEP_BATCH", 50),
		},
		RateLimit: RateLimitConfig{
			UseRedis:      getBoolEnv("RATE_LIMIT_REDIS", true),
			PaymentMax:    getInt64Env("RATE_LIMIT_PAYMENT_MAX", 10),
			PaymentWindow: getDurationEnv("RATE_LIMIT_PAYMENT_WINDOW", time.Minute),
			WebhookMax:    getInt64Env("RATE_LIMIT_WEBHOOK_MAX", 60),
			WebhookWindow: getDurationEnv("RATE_LIMIT_WEBHOOK_WINDOW", time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
