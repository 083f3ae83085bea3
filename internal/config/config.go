package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// Cycle system
	CycleDurationDays int     // canonical cycle length, 30 or 90
	StartingCash      float64 // paper capital per account

	// Paper broker
	SlippageBps int   // applied to market fills
	BrokerSeed  int64 // RNG seed for simulated quotes (0 = time-based)

	// Market data (Alpaca-style endpoint)
	MarketDataURL    string
	MarketDataKey    string
	MarketDataSecret string

	// Signal sources
	OpenInsiderURL string
	CongressURL    string
	EdgarURL       string
	EdgarUserAgent string

	// Backups (disabled when bucket is empty)
	BackupBucket string
	BackupPrefix string
	AWSRegion    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8000),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/trader.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		CycleDurationDays: getEnvAsInt("CYCLE_DURATION_DAYS", 90),
		StartingCash:      getEnvAsFloat("STARTING_CASH", 100000),

		SlippageBps: getEnvAsInt("SLIPPAGE_BPS", 5),
		BrokerSeed:  int64(getEnvAsInt("BROKER_SEED", 0)),

		MarketDataURL:    getEnv("MARKET_DATA_URL", "https://data.alpaca.markets"),
		MarketDataKey:    getEnv("MARKET_DATA_KEY", ""),
		MarketDataSecret: getEnv("MARKET_DATA_SECRET", ""),

		OpenInsiderURL: getEnv("OPENINSIDER_URL", "http://openinsider.com"),
		CongressURL:    getEnv("CONGRESS_URL", "https://house-stock-watcher-data.s3-us-west-2.amazonaws.com"),
		EdgarURL:       getEnv("EDGAR_URL", "https://www.sec.gov"),
		EdgarUserAgent: getEnv("EDGAR_USER_AGENT", ""),

		BackupBucket: getEnv("BACKUP_S3_BUCKET", ""),
		BackupPrefix: getEnv("BACKUP_S3_PREFIX", "trader-backups"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	// Only two supported cycle lengths; everything downstream assumes one of them
	if c.CycleDurationDays != 30 && c.CycleDurationDays != 90 {
		return fmt.Errorf("CYCLE_DURATION_DAYS must be 30 or 90, got %d", c.CycleDurationDays)
	}

	if c.StartingCash <= 0 {
		return fmt.Errorf("STARTING_CASH must be positive, got %f", c.StartingCash)
	}

	if c.SlippageBps < 0 {
		return fmt.Errorf("SLIPPAGE_BPS must be non-negative, got %d", c.SlippageBps)
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
