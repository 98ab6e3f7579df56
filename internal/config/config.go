package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage. DATABASE_URL selects PostgreSQL; otherwise SQLite at DBPath.
	DBPath      string
	DatabaseURL string

	// Presence. REDIS_URL selects the Redis backend; otherwise a JSON
	// file next to the database.
	RedisURL     string
	PresenceFile string

	PresenceTimeout time.Duration
	PollInterval    time.Duration

	// Cleanup policy knobs.
	CleanupMinLength int
	CleanupMaxAge    time.Duration
	CleanupSchedule  string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DBPath:           getEnv("DB_PATH", "./data/messages.db"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		PresenceFile:     getEnv("PRESENCE_FILE", "./data/presence.json"),
		PresenceTimeout:  getDuration("PRESENCE_TIMEOUT", 120*time.Second),
		PollInterval:     getDuration("POLL_INTERVAL", 2*time.Second),
		CleanupMinLength: getInt("CLEANUP_MIN_LENGTH", 20),
		CleanupMaxAge:    getDuration("CLEANUP_MAX_AGE", time.Hour),
		CleanupSchedule:  getEnv("CLEANUP_SCHEDULE", "@every 10m"),
	}

	// In production, require an explicit database URL
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
