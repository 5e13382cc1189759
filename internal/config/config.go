// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aetflow/aet-backend/internal/conflict"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Policy      PolicyConfig
	WebSocket   WebSocketConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	I18n        I18nConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

// JWTConfig holds the shared secret of the external identity provider.
type JWTConfig struct {
	SecretKey      string
	Issuer         string
	AccessTokenTTL int // in hours
}

// RedisConfig configures the candidate cache. An empty URL disables it.
type RedisConfig struct {
	URL string
	TTL time.Duration
}

type PolicyConfig struct {
	RenewalWindowDays int
	Strategy          string
	MaxConcurrency    int
}

type WebSocketConfig struct {
	AllowedOrigins []string
	BufferSize     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	GeneralPerSecond    float64
	GeneralBurst        int
	ValidationPerSecond float64
	ValidationBurst     int
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "aet"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", defaultJWTSecret),
			Issuer:         getEnv("JWT_ISSUER", "aet-identity"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
			TTL: getEnvAsDuration("REDIS_CANDIDATE_TTL", 5*time.Minute),
		},
		Policy: PolicyConfig{
			RenewalWindowDays: getEnvAsInt("RENEWAL_WINDOW_DAYS", conflict.DefaultRenewalWindowDays),
			Strategy:          getEnv("VALIDATION_STRATEGY", string(conflict.StrategyPlate)),
			MaxConcurrency:    getEnvAsInt("VALIDATION_MAX_CONCURRENCY", 1),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: getEnvAsSlice("WS_ALLOWED_ORIGINS", []string{"*"}),
			BufferSize:     getEnvAsInt("WS_EVENT_BUFFER", 64),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		RateLimit: RateLimitConfig{
			GeneralPerSecond:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
			GeneralBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
			ValidationPerSecond: getEnvAsFloat("VALIDATION_RATE_LIMIT_RPS", 2),
			ValidationBurst:     getEnvAsInt("VALIDATION_RATE_LIMIT_BURST", 10),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "pt_BR"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == defaultJWTSecret && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if _, err := c.Policy.Policy(); err != nil {
		return err
	}

	if c.Policy.MaxConcurrency < 1 {
		return fmt.Errorf("VALIDATION_MAX_CONCURRENCY must be at least 1, got %d", c.Policy.MaxConcurrency)
	}

	return nil
}

// Policy builds the validation policy used when a request names none.
func (p PolicyConfig) Policy() (conflict.Policy, error) {
	strategy, err := conflict.ParseStrategy(p.Strategy)
	if err != nil {
		return conflict.Policy{}, err
	}
	policy := conflict.Policy{Strategy: strategy, ThresholdDays: p.RenewalWindowDays}
	return policy, policy.Validate()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
