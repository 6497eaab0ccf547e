package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string
	DBUrl                string
	JWTSecret            string
	AppEnv               string
	RedisURL             string
	UserCacheTTL         time.Duration
	WSAuthTimeout        time.Duration
	TypingTTL            time.Duration
	WSSendBuffer         int
	MessageRatePerSecond float64
	MessageRateBurst     int
	ShutdownTimeout      time.Duration
	CORSAllowOrigins     string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DBUrl:                getEnv("DB_URL", ""),
		JWTSecret:            jwtSecret,
		AppEnv:               normalizeEnv(getEnv("APP_ENV", "production")),
		RedisURL:             getEnv("REDIS_URL", ""),
		UserCacheTTL:         getEnvDuration("USER_CACHE_TTL", 5*time.Minute),
		WSAuthTimeout:        getEnvDuration("WS_AUTH_TIMEOUT", 10*time.Second),
		TypingTTL:            getEnvDuration("TYPING_TTL", 8*time.Second),
		WSSendBuffer:         getEnvInt("WS_SEND_BUFFER", 32),
		MessageRatePerSecond: getEnvFloat("MESSAGE_RATE_PER_SECOND", 10),
		MessageRateBurst:     getEnvInt("MESSAGE_RATE_BURST", 20),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSAllowOrigins:     getEnv("CORS_ALLOW_ORIGINS", "*"),
	}
	if cfg.WSSendBuffer <= 0 {
		return nil, fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if cfg.MessageRatePerSecond <= 0 || cfg.MessageRateBurst <= 0 {
		return nil, fmt.Errorf("MESSAGE_RATE_PER_SECOND and MESSAGE_RATE_BURST must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("8s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
