// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	S3        S3Config
	Search    SearchConfig
	LLM       LLMConfig
	Credits   CreditsConfig
	JobRunner JobRunnerConfig
	Mail      MailConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// S3Config holds S3 storage configuration, used for job result export
// artifacts.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// SearchConfig configures the rate-limited search client (component A).
type SearchConfig struct {
	APIKey   string
	Endpoint string
	QPS      int
	NumDef   int
	Timeout  time.Duration
}

// LLMConfig configures the chat-completion client (component B).
type LLMConfig struct {
	APIKey                string
	BaseURL               string
	Model                 string
	Temperature           float64
	Concurrency           int
	MaxRetries            int
	RetryBaseSeconds      float64
	UseJSONResponseFormat bool
	Timeout               time.Duration
	InputCostPerM         float64
	OutputCostPerM        float64
	OpenRouterSiteURL     string
	OpenRouterAppName     string
}

// CreditsConfig configures credit-ledger policy constants.
type CreditsConfig struct {
	SerperCostPer1k   float64
	TopupExpiryDays   int
	CreditsPerCompany int
}

// JobRunnerConfig configures the per-job row pipeline scheduler.
type JobRunnerConfig struct {
	Concurrency          int
	MaxPeopleDefault     int
	ScraperCacheMaxItems int
	ScraperCacheTTLS     int
}

// MailConfig configures job-completion transactional email.
type MailConfig struct {
	APIKey    string
	FromEmail string
	Enabled   bool
}

// TelemetryConfig configures error-tracking.
type TelemetryConfig struct {
	SentryDSN string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "dmengine"),
			Password:        getEnv("DB_PASSWORD", "dmengine"),
			DBName:          getEnv("DB_NAME", "dmengine"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "eu-central"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		Search: SearchConfig{
			APIKey:   getEnv("SERPER_API_KEY", ""),
			Endpoint: getEnv("SERPER_ENDPOINT", "https://google.serper.dev/search"),
			QPS:      getEnvAsInt("SERPER_QPS", 50),
			NumDef:   getEnvAsInt("SERPER_NUM", 10),
			Timeout:  getEnvAsDuration("SERPER_TIMEOUT", 20*time.Second),
		},
		LLM: LLMConfig{
			APIKey:                getEnv("LLM_API_KEY", ""),
			BaseURL:               getEnv("LLM_BASE_URL", ""),
			Model:                 getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature:           getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			Concurrency:           getEnvAsInt("LLM_CONCURRENCY", 50),
			MaxRetries:            getEnvAsInt("LLM_MAX_RETRIES", 4),
			RetryBaseSeconds:      getEnvAsFloat("LLM_RETRY_BASE_S", 0.7),
			UseJSONResponseFormat: getEnvAsBool("LLM_USE_JSON_RESPONSE_FORMAT", true),
			Timeout:               getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			InputCostPerM:         getEnvAsFloat("LLM_INPUT_COST_PER_M", 0.15),
			OutputCostPerM:        getEnvAsFloat("LLM_OUTPUT_COST_PER_M", 0.60),
			OpenRouterSiteURL:     getEnv("OPENROUTER_SITE_URL", ""),
			OpenRouterAppName:     getEnv("OPENROUTER_APP_NAME", ""),
		},
		Credits: CreditsConfig{
			SerperCostPer1k:   getEnvAsFloat("SERPER_COST_PER_1K", 1.0),
			TopupExpiryDays:   getEnvAsInt("CREDITS_TOPUP_EXPIRY_DAYS", 90),
			CreditsPerCompany: getEnvAsInt("CREDITS_PER_COMPANY", 1),
		},
		JobRunner: JobRunnerConfig{
			Concurrency:          clamp(getEnvAsInt("JOB_CONCURRENCY", 25), 1, 500),
			MaxPeopleDefault:     clamp(getEnvAsInt("MAX_PEOPLE_PER_COMPANY", 25), 1, 100),
			ScraperCacheMaxItems: getEnvAsInt("SCRAPER_CACHE_MAX_ITEMS", 5000),
			ScraperCacheTTLS:     getEnvAsInt("SCRAPER_CACHE_TTL_S", 86400),
		},
		Mail: MailConfig{
			APIKey:    getEnv("RESEND_API_KEY", ""),
			FromEmail: getEnv("MAIL_FROM_EMAIL", "jobs@dmengine.dev"),
			Enabled:   getEnv("RESEND_API_KEY", "") != "",
		},
		Telemetry: TelemetryConfig{
			SentryDSN: getEnv("SENTRY_DSN", ""),
		},
	}

	if cfg.JWT.AccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.JWT.RefreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	return cfg, nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
