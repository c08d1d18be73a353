package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Ebay     EbayConfig
	Cache    CacheConfig
	Scan     ScanConfig
	Fees     FeesConfig
	NearMiss NearMissConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// AppConfig holds process-level configuration
type AppConfig struct {
	Env        string // development or production
	ReportDir  string
	InputLimit int
}

// EbayConfig holds eBay API configuration
type EbayConfig struct {
	Env              string // SBX or PRD
	ClientID         string
	ClientSecret     string
	MarketplaceID    string
	MaxCallsPerRun   int
	MinDelaySec      float64
	ProbeMinDelaySec float64
	ResultLimit      int
}

// CacheConfig holds comps-cache configuration
type CacheConfig struct {
	Backend string // file or redis
	File    string
}

// ScanConfig holds deal-scan pipeline configuration
type ScanConfig struct {
	Mode                string
	MinBuyPrice         float64
	LowConfidenceCeil   float64
	MinCompCount        int
	CategoryDenylist    []string
	StopBatchOnThrottle bool
}

// FeesConfig holds the resale fee model
type FeesConfig struct {
	MarketplaceFeePct float64
	PaymentFeePct     float64
	FlatShipping      float64
}

// NearMissConfig holds near-miss classification margins
type NearMissConfig struct {
	ProfitMargin    float64
	ROIMargin       float64
	CompCountMargin int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Load loads configuration from a .env file (when present) and environment variables
func Load() (*Config, error) {
	// Missing .env is fine; system env vars still apply.
	_ = godotenv.Load()

	return &Config{
		App: AppConfig{
			Env:        getEnv("APP_ENV", "development"),
			ReportDir:  getEnv("REPORT_DIR", "data/reports"),
			InputLimit: getEnvAsInt("INPUT_LIMIT", 10),
		},
		Ebay: EbayConfig{
			Env:              NormalizeEbayEnv(getEnv("EBAY_ENV", "SBX")),
			ClientID:         getEnv("EBAY_CLIENT_ID", ""),
			ClientSecret:     getEnv("EBAY_CLIENT_SECRET", ""),
			MarketplaceID:    getEnv("EBAY_MARKETPLACE_ID", "EBAY_US"),
			MaxCallsPerRun:   getEnvAsInt("EBAY_MAX_CALLS", 8),
			MinDelaySec:      getEnvAsFloat("EBAY_MIN_DELAY_SEC", 10.0),
			ProbeMinDelaySec: getEnvAsFloat("EBAY_PROBE_MIN_DELAY_SEC", 15.0),
			ResultLimit:      getEnvAsInt("EBAY_RESULT_LIMIT", 20),
		},
		Cache: CacheConfig{
			Backend: getEnv("CACHE_BACKEND", "file"),
			File:    getEnv("CACHE_FILE", "cache/ebay_cache.json"),
		},
		Scan: ScanConfig{
			Mode:                getEnv("SCAN_MODE", "highticket"),
			MinBuyPrice:         getEnvAsFloat("SCAN_MIN_BUY_PRICE", 20.0),
			LowConfidenceCeil:   getEnvAsFloat("SCAN_LOW_CONFIDENCE_CEIL", 30.0),
			MinCompCount:        getEnvAsInt("SCAN_MIN_COMP_COUNT", 5),
			CategoryDenylist:    getEnvAsSlice("SCAN_CATEGORY_DENYLIST", defaultDenylist),
			StopBatchOnThrottle: getEnvAsBool("SCAN_STOP_ON_THROTTLE", true),
		},
		Fees: FeesConfig{
			MarketplaceFeePct: getEnvAsFloat("FEE_MARKETPLACE_PCT", 0.1325),
			PaymentFeePct:     getEnvAsFloat("FEE_PAYMENT_PCT", 0.03),
			FlatShipping:      getEnvAsFloat("FEE_FLAT_SHIPPING", 10.0),
		},
		NearMiss: NearMissConfig{
			ProfitMargin:    getEnvAsFloat("NEARMISS_PROFIT_MARGIN", 5.0),
			ROIMargin:       getEnvAsFloat("NEARMISS_ROI_MARGIN", 0.05),
			CompCountMargin: getEnvAsInt("NEARMISS_COMP_MARGIN", 2),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "arbcheck"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}, nil
}

var defaultDenylist = []string{
	"baby", "kids", "toddler", "infant", "socks", "clothing", "shirt", "bodysuit", "underwear",
}

// NormalizeEbayEnv maps the EBAY_ENV variable to "SBX" or "PRD".
// Accepts SBX, SANDBOX, PRD, PROD, PRODUCTION (case-insensitive); anything else is SBX.
func NormalizeEbayEnv(env string) string {
	switch strings.ToUpper(strings.TrimSpace(env)) {
	case "PRD", "PROD", "PRODUCTION":
		return "PRD"
	default:
		return "SBX"
	}
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

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

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
