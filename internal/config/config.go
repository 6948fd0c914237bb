package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	StoreDriver            string
	DatabaseURL            string
	SupabaseURL            string
	SupabaseServiceRoleKey string

	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AIMaxTokens   int
	AITemperature float64
	AITimeout     time.Duration

	BusinessPhone  string
	HistoryLimit   int
	ReconnectDelay time.Duration
	SessionDBPath  string
	SendRate       float64
	SendBurst      int

	RedisAddr     string
	RedisPassword string
	DedupeTTL     time.Duration

	OperatorUsername     string
	OperatorPasswordHash string
	JWTSecret            string
}

// Load reads .env (if present) and the environment. Missing required options
// are reported together.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "3000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		StoreDriver:            strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", DriverPostgres))),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		AIAPIKey:      getEnv("AI_API_KEY", getEnv("LOVABLE_API_KEY", "")),
		AIBaseURL:     getEnv("AI_BASE_URL", "https://ai-gateway.lovable.dev/v1"),
		AIModel:       getEnv("AI_MODEL", "google/gemini-2.5-flash"),
		AIMaxTokens:   getEnvAsInt("AI_MAX_TOKENS", 500),
		AITemperature: getEnvAsFloat("AI_TEMPERATURE", 0.5),
		AITimeout:     getEnvAsDuration("AI_TIMEOUT", 30*time.Second),

		BusinessPhone:  strings.TrimSpace(getEnv("BUSINESS_PHONE", "")),
		HistoryLimit:   clamp(getEnvAsInt("HISTORY_LIMIT", 10), 1, 50),
		ReconnectDelay: getEnvAsDuration("RECONNECT_DELAY", 5*time.Second),
		SessionDBPath:  getEnv("SESSION_DB_PATH", "auth_info/session.db"),
		SendRate:       getEnvAsFloat("SEND_RATE", 1),
		SendBurst:      getEnvAsInt("SEND_BURST", 3),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		DedupeTTL:     getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),

		OperatorUsername:     getEnv("OPERATOR_USERNAME", ""),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case DriverSupabase:
		if c.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.SupabaseServiceRoleKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AIAPIKey == "" {
		missing = append(missing, "AI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be positive")
	}
	return nil
}

// OperatorAuthEnabled reports whether the pairing endpoint is protected.
func (c *Config) OperatorAuthEnabled() bool {
	return c.OperatorUsername != "" && c.OperatorPasswordHash != "" && c.JWTSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
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
