package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all environment-driven settings for the whisper match service.
// Values are read once at startup; cmd/server loads .env via godotenv first.
type Config struct {
	Port        string
	Environment string

	LogLevel string
	LogFile  string

	// JWTSecret verifies bearer tokens issued by the main platform
	JWTSecret []byte

	// SessionTTL is the fixed duration of a match session before auto-expiry
	SessionTTL time.Duration

	// WaitTimeout cancels a waiting entry that found no partner in time.
	// Zero means wait indefinitely.
	WaitTimeout time.Duration

	// MessageCap bounds the per-session transcript kept in the store.
	// Zero means uncapped.
	MessageCap int

	// SweepInterval is how often the background sweeper runs
	SweepInterval time.Duration

	// TerminalRetention is how long terminal sessions stay queryable
	// before they are archived and evicted
	TerminalRetention time.Duration

	// Redis backs the shared session store for multi-instance deployments.
	// Empty host selects the in-memory store.
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// DatabaseURL enables the gorm-backed terminal session archive.
	// Empty disables archiving.
	DatabaseURL string

	// JoinRateLimit is joins per minute allowed per user
	JoinRateLimit int
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8788"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           getEnv("LOG_FILE", "whispermatch.log"),
		JWTSecret:         []byte(os.Getenv("JWT_SECRET")),
		SessionTTL:        getEnvDuration("MATCH_SESSION_TTL", 5*time.Minute),
		WaitTimeout:       getEnvDuration("MATCH_WAIT_TIMEOUT", 0),
		MessageCap:        getEnvInt("MATCH_MESSAGE_CAP", 500),
		SweepInterval:     getEnvDuration("MATCH_SWEEP_INTERVAL", time.Minute),
		TerminalRetention: getEnvDuration("MATCH_TERMINAL_RETENTION", 10*time.Minute),
		RedisHost:         os.Getenv("REDIS_HOST"),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JoinRateLimit:     getEnvInt("MATCH_JOIN_RATE_LIMIT", 30),
	}

	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("MATCH_SESSION_TTL must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are treated as seconds, matching the client-facing
	// sessionTTLSeconds / waitTimeoutSeconds knobs
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
