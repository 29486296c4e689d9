package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every recognized knob is an explicit field; nothing reads the
// environment outside of Load.
type Config struct {
	Env string // development, staging, production

	// Data directory for the local time-series store
	DataDir string

	// Gateway (vendor market-data API)
	Gateway GatewayConfig

	// Store / incremental update
	Store StoreConfig

	// Quality validation thresholds
	Quality QualityConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// GatewayConfig holds vendor API configuration.
type GatewayConfig struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// StoreConfig holds time-series store configuration.
type StoreConfig struct {
	// LookbackDays is the default fetch window for instruments with
	// no watermark yet.
	LookbackDays int

	// Workers bounds parallelism of the incremental-update batch.
	Workers int
}

// QualityConfig holds validator thresholds.
type QualityConfig struct {
	// DailyGapDays flags an inter-bar gap in a daily series when the
	// calendar-day distance exceeds this value.
	DailyGapDays int

	// IntradayGap flags an inter-bar gap in a tick series.
	IntradayGap time.Duration

	// PriceIQRMultiplier is the classic 1.5x fence for price columns.
	PriceIQRMultiplier float64

	// VolumeIQRMultiplier is the upper fence multiplier for volume.
	VolumeIQRMultiplier float64
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env:     getEnv("ENV", "development"),
		DataDir: getEnv("DATA_DIR", "./data"),

		Gateway: GatewayConfig{
			BaseURL:   getEnv("GATEWAY_BASE_URL", "http://localhost:9380"),
			Token:     getEnv("GATEWAY_TOKEN", ""),
			Timeout:   getEnvAsDuration("GATEWAY_TIMEOUT", "30s"),
			RateLimit: getEnvAsFloat("GATEWAY_RATE_LIMIT", 10),
			Burst:     getEnvAsInt("GATEWAY_BURST", 5),
		},

		Store: StoreConfig{
			LookbackDays: getEnvAsInt("STORE_LOOKBACK_DAYS", 365),
			Workers:      getEnvAsInt("STORE_WORKERS", 4),
		},

		Quality: QualityConfig{
			DailyGapDays:        getEnvAsInt("QUALITY_DAILY_GAP_DAYS", 3),
			IntradayGap:         getEnvAsDuration("QUALITY_INTRADAY_GAP", "1h"),
			PriceIQRMultiplier:  getEnvAsFloat("QUALITY_PRICE_IQR_MULT", 1.5),
			VolumeIQRMultiplier: getEnvAsFloat("QUALITY_VOLUME_IQR_MULT", 3.0),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Store.Workers < 1 {
		return fmt.Errorf("STORE_WORKERS must be >= 1")
	}
	if c.Store.LookbackDays < 1 {
		return fmt.Errorf("STORE_LOOKBACK_DAYS must be >= 1")
	}
	if c.Quality.DailyGapDays < 1 {
		return fmt.Errorf("QUALITY_DAILY_GAP_DAYS must be >= 1")
	}
	if c.Quality.PriceIQRMultiplier <= 0 || c.Quality.VolumeIQRMultiplier <= 0 {
		return fmt.Errorf("IQR multipliers must be positive")
	}
	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
