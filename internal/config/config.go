package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once at startup
// and passed explicitly to each component; nothing reads the environment
// after Load returns.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Token     TokenConfig
	Lockout   LockoutConfig
	OTP       OTPConfig
	Reset     ResetConfig
	RateLimit RateLimitConfig
	Gateway   GatewayConfig
	SentryDSN string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds the redis connection used by the login throttle.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TokenConfig holds bearer token signing configuration
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// LockoutConfig holds brute-force guard configuration
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// OTPConfig holds one-time-password configuration
type OTPConfig struct {
	CodeLength int
	TTL        time.Duration
}

// ResetConfig holds password-reset token configuration
type ResetConfig struct {
	TokenTTL time.Duration
}

// RateLimitConfig holds the per-IP login throttle configuration
type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

// GatewayConfig holds the edge gateway configuration
type GatewayConfig struct {
	Host             string
	Port             string
	AuthServiceURL   string
	BoardServiceURL  string
	ValidatorTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "taskora_auth"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Token: TokenConfig{
			Secret:   getEnv("TOKEN_SECRET", ""),
			Issuer:   getEnv("TOKEN_ISSUER", "taskora-auth"),
			Audience: getEnv("TOKEN_AUDIENCE", "taskora"),
			TTL:      getDurationEnv("TOKEN_TTL_MINUTES", 60*time.Minute),
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: getIntEnv("LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
			LockoutDuration:   getDurationEnv("LOCKOUT_DURATION_MINUTES", 30*time.Minute),
		},
		OTP: OTPConfig{
			CodeLength: getIntEnv("OTP_CODE_LENGTH", 6),
			TTL:        getDurationEnv("OTP_TTL_MINUTES", 5*time.Minute),
		},
		Reset: ResetConfig{
			TokenTTL: getDurationEnv("RESET_TOKEN_TTL_MINUTES", 24*60*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("RATE_LIMIT_ENABLED", true),
			MaxRequests: getIntEnv("RATE_LIMIT_MAX_REQUESTS", 20),
			Window:      getDurationEnv("RATE_LIMIT_WINDOW_MINUTES", 1*time.Minute),
		},
		Gateway: GatewayConfig{
			Host:             getEnv("GATEWAY_HOST", "0.0.0.0"),
			Port:             getEnv("GATEWAY_PORT", "8000"),
			AuthServiceURL:   getEnv("AUTH_SERVICE_URL", "http://localhost:8080"),
			BoardServiceURL:  getEnv("BOARD_SERVICE_URL", "http://localhost:8081"),
			ValidatorTimeout: getSecondsEnv("VALIDATOR_TIMEOUT_SECONDS", 5*time.Second),
		},
		SentryDSN: getEnv("SENTRY_DSN", ""),
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration in minutes from environment variable or default
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

// getSecondsEnv returns duration in seconds from environment variable or default
func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
