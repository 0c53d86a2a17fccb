package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Web server
	Port string

	// Auth
	JWTSecret string

	// Database
	DatabasePath string

	// Governance
	ConsensusThresholdPct float64
	PollExpiry            time.Duration

	// Order sessions
	SessionTTL time.Duration
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvDefault("PORT", "8080"),
		JWTSecret:    getEnvDefault("JWT_SECRET", "poolfund-secret-key"),
		DatabasePath: getEnvDefault("DATABASE_PATH", "poolfund.db"),
		PollExpiry:   24 * time.Hour,
		SessionTTL:   5 * time.Minute,
	}

	threshold, err := getEnvFloat("CONSENSUS_THRESHOLD_PCT", 51.0)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 || threshold > 100 {
		return nil, fmt.Errorf("CONSENSUS_THRESHOLD_PCT must be in (0, 100], got %v", threshold)
	}
	cfg.ConsensusThresholdPct = threshold

	if v := os.Getenv("POLL_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_EXPIRY: %w", err)
		}
		cfg.PollExpiry = d
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
