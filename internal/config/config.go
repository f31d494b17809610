package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Service Ports
	HTTPPort    int    `env:"HTTP_PORT" default:"8080"`
	WorkerPort  int    `env:"WORKER_PORT" default:"8090"` // outbox-worker health + metrics
	BindAddress string `env:"BIND_ADDRESS" default:"0.0.0.0"`

	// Database
	DatabaseURL    string `env:"DATABASE_URL" required:"true"`
	MigrationsPath string `env:"MIGRATIONS_PATH" default:"file://database/migrations"`

	// Authentication (tokens are issued by the hosted auth service, we only verify them)
	JWTSecret string `env:"JWT_SECRET" required:"true"`

	// Redis Cache
	RedisURL      string `env:"REDIS_URL" default:"redis://redis:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" default:"3600"`

	// Web Push
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" default:"mailto:support@example.com"`
	PushTTL         int    `env:"PUSH_TTL" default:"86400"`

	// Transactional email API
	EmailAPIURL     string  `env:"EMAIL_API_URL" default:"https://api.resend.com/emails"`
	EmailAPIKey     string  `env:"EMAIL_API_KEY"`
	EmailFrom       string  `env:"EMAIL_FROM" default:"Notifications <notifications@example.com>"`
	EmailRatePerSec float64 `env:"EMAIL_RATE_PER_SEC" default:"5"`
	AppBaseURL      string  `env:"APP_BASE_URL" default:"http://localhost:3000"`
	AppName         string  `env:"APP_NAME" default:"HomeServices"`

	// Dispatch
	QuietHoursDefaultTZ string `env:"QUIET_HOURS_DEFAULT_TZ" default:"America/New_York"`

	// Retry worker
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" default:"5"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" default:"30s"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY" default:"30m"`
	RetryBatchSize   int           `env:"RETRY_BATCH_SIZE" default:"100"`
	RetryWorkers     int           `env:"RETRY_WORKERS" default:"4"`
	RetryLease       time.Duration `env:"RETRY_LEASE" default:"5m"`
	RetrySchedule    string        `env:"RETRY_SCHEDULE" default:"@every 1m"`

	// Conversations
	TypingTTL time.Duration `env:"TYPING_TTL" default:"10s"`

	// Monitoring
	PrometheusEnabled bool `env:"PROMETHEUS_ENABLED" default:"false"`

	// Development
	LogLevel    string   `env:"LOG_LEVEL" default:"debug"`
	LogFormat   string   `env:"LOG_FORMAT" default:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" default:"http://localhost:3000"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, system env vars still apply
	if err := godotenv.Load(".env"); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// Ports
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8080); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.WorkerPort, "WORKER_PORT", 8090); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.BindAddress, "BIND_ADDRESS", "0.0.0.0"); err != nil {
		return nil, err
	}

	// Database
	if err := loadEnvStringRequired(&config.DatabaseURL, "DATABASE_URL"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.MigrationsPath, "MIGRATIONS_PATH", "file://database/migrations"); err != nil {
		return nil, err
	}

	// Authentication
	if err := loadEnvStringRequired(&config.JWTSecret, "JWT_SECRET"); err != nil {
		return nil, err
	}

	// Redis
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", "redis://redis:6379"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.CacheTTL, "CACHE_TTL", 3600); err != nil {
		return nil, err
	}

	// Web Push
	if err := loadEnvString(&config.VAPIDPublicKey, "VAPID_PUBLIC_KEY", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.VAPIDPrivateKey, "VAPID_PRIVATE_KEY", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.VAPIDSubject, "VAPID_SUBJECT", "mailto:support@example.com"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.PushTTL, "PUSH_TTL", 86400); err != nil {
		return nil, err
	}

	// Email
	if err := loadEnvString(&config.EmailAPIURL, "EMAIL_API_URL", "https://api.resend.com/emails"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.EmailAPIKey, "EMAIL_API_KEY", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.EmailFrom, "EMAIL_FROM", "Notifications <notifications@example.com>"); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.EmailRatePerSec, "EMAIL_RATE_PER_SEC", 5); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.AppBaseURL, "APP_BASE_URL", "http://localhost:3000"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.AppName, "APP_NAME", "HomeServices"); err != nil {
		return nil, err
	}

	// Dispatch
	if err := loadEnvString(&config.QuietHoursDefaultTZ, "QUIET_HOURS_DEFAULT_TZ", "America/New_York"); err != nil {
		return nil, err
	}

	// Retry worker
	if err := loadEnvInt(&config.RetryMaxAttempts, "RETRY_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.RetryBaseDelay, "RETRY_BASE_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.RetryMaxDelay, "RETRY_MAX_DELAY", 30*time.Minute); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.RetryBatchSize, "RETRY_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.RetryWorkers, "RETRY_WORKERS", 4); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.RetryLease, "RETRY_LEASE", 5*time.Minute); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RetrySchedule, "RETRY_SCHEDULE", "@every 1m"); err != nil {
		return nil, err
	}

	// Conversations
	if err := loadEnvDuration(&config.TypingTTL, "TYPING_TTL", 10*time.Second); err != nil {
		return nil, err
	}

	// Monitoring
	if err := loadEnvBool(&config.PrometheusEnabled, "PROMETHEUS_ENABLED", false); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "debug"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}
	if err := loadEnvStringSlice(&config.CORSOrigins, "CORS_ORIGINS", []string{"http://localhost:3000"}); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvStringRequired(target *string, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return fmt.Errorf("required environment variable %s is not set", key)
	}
	*target = value
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvStringSlice(target *[]string, key string, defaultValue []string) error {
	if value := os.Getenv(key); value != "" {
		*target = strings.Split(value, ",")
		for i, v := range *target {
			(*target)[i] = strings.TrimSpace(v)
		}
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}
	if c.WorkerPort < 1 || c.WorkerPort > 65535 {
		errors = append(errors, "WORKER_PORT must be between 1 and 65535")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	// HS256 shared secret
	if len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT_SECRET should be at least 32 characters long")
	}

	if _, err := time.LoadLocation(c.QuietHoursDefaultTZ); err != nil {
		errors = append(errors, fmt.Sprintf("QUIET_HOURS_DEFAULT_TZ is not a valid time zone: %v", err))
	}

	if c.RetryMaxAttempts < 1 {
		errors = append(errors, "RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		errors = append(errors, "RETRY_BASE_DELAY must be positive and not exceed RETRY_MAX_DELAY")
	}
	if c.RetryBatchSize < 1 || c.RetryWorkers < 1 {
		errors = append(errors, "RETRY_BATCH_SIZE and RETRY_WORKERS must be at least 1")
	}
	if c.TypingTTL <= 0 {
		errors = append(errors, "TYPING_TTL must be positive")
	}
	if c.EmailRatePerSec <= 0 {
		errors = append(errors, "EMAIL_RATE_PER_SEC must be positive")
	}

	// both halves of the VAPID pair or neither
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errors = append(errors, "VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	if c.IsProduction() && c.EmailAPIKey == "" {
		errors = append(errors, "EMAIL_API_KEY is required in production")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// PushEnabled reports whether a VAPID key pair is configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
