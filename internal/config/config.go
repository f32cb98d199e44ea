// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases, always absolute
	Port     int
	DevMode  bool
	LogLevel string

	// FeedURL is the websocket address of the upstream change feed.
	// Empty disables the feed consumer (events arrive via HTTP only).
	FeedURL string

	// ReallocationThreshold is the utilization band half-width: a vault with
	// overall utilization inside [1-t, 1+t] needs no reallocation.
	ReallocationThreshold float64

	// LookbackDays bounds how much return history is loaded per asset.
	LookbackDays int

	// Timeouts for external capabilities. A deadline hit is treated as a
	// hard failure of that call, never retried inside the engine.
	SolverTimeout    time.Duration
	LiquidityTimeout time.Duration
	FetchTimeout     time.Duration

	// NotifyQueueSize is the buffer of the background notification queue.
	NotifyQueueSize int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VAULTD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("VAULTD_PORT", 8001),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		FeedURL:               getEnv("VAULTD_FEED_URL", ""),
		ReallocationThreshold: getEnvAsFloat("REALLOCATION_THRESHOLD", 0.05),
		LookbackDays:          getEnvAsInt("RETURNS_LOOKBACK_DAYS", 30),
		SolverTimeout:         getEnvAsDuration("SOLVER_TIMEOUT", 30*time.Second),
		LiquidityTimeout:      getEnvAsDuration("LIQUIDITY_TIMEOUT", 10*time.Second),
		FetchTimeout:          getEnvAsDuration("FETCH_TIMEOUT", 15*time.Second),
		NotifyQueueSize:       getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ReallocationThreshold <= 0 || c.ReallocationThreshold >= 1 {
		return fmt.Errorf("reallocation threshold %.4f outside (0,1)", c.ReallocationThreshold)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("returns lookback must be at least 1 day, got %d", c.LookbackDays)
	}
	return nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
