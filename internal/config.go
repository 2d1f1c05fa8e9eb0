package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/notify"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
	LedgerRedis    = "redis"
)

// Catalog sources.
const (
	CatalogBuiltin = "builtin"
	CatalogLocal   = "local"
	CatalogR2      = "r2"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// DevMode lets sessions simulate other tiers. It is re-read on SIGHUP.
	DevMode bool

	// Public URL of the pricing page (linked from quota emails)
	UpgradeURL string

	// Usage ledger
	LedgerBackend  string // "memory", "postgres", "sqlite" or "redis"
	LedgerTimeout  time.Duration
	DatabaseUrl    string
	SQLitePath     string
	RedisURL       string
	RedisKeyPrefix string

	// Tier catalog
	CatalogSource string // "builtin", "local" or "r2"
	CatalogKey    string // object key of the catalog document

	// Local Storage (development)
	LocalStoragePath string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Accounts seeds the in-memory account directory:
	// "id:tier:email[:name],..."
	Accounts string

	// Quota notifications
	WarningThresholds map[domain.ResourceKind]int64
	NotifyWorkers     int
	NotifyQueueSize   int
	NotifyMaxAttempts int

	// SMTP Configuration. Email alerts are disabled when host is empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Sessions
	SessionTTL time.Duration

	// Consume rate limit per account
	ConsumeRateLimit  int
	ConsumeRateWindow time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended).
	// The password may be a bcrypt hash.
	MetricsUsername string
	MetricsPassword string
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		DevMode:  getEnvBool("DEV_MODE", false),

		UpgradeURL: getEnv("UPGRADE_URL", "http://localhost:8080/pricing"),

		// Ledger defaults to memory for development
		LedgerBackend:  getEnv("LEDGER_BACKEND", LedgerMemory),
		LedgerTimeout:  getEnvDuration("LEDGER_TIMEOUT", 2*time.Second),
		DatabaseUrl:    getEnv("DATABASE_URL", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/pixeldraft.db"),
		RedisURL:       getEnv("REDIS_URL", ""),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "pixeldraft"),

		CatalogSource:    getEnv("CATALOG_SOURCE", CatalogBuiltin),
		CatalogKey:       getEnv("CATALOG_KEY", "catalogs/current.yaml"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),

		Accounts: getEnv("ACCOUNTS", ""),

		NotifyWorkers:     getEnvInt("NOTIFY_WORKERS", 2),
		NotifyQueueSize:   getEnvInt("NOTIFY_QUEUE_SIZE", 256),
		NotifyMaxAttempts: getEnvInt("NOTIFY_MAX_ATTEMPTS", 3),

		// SMTP defaults for Mailhog (development)
		SMTPHost:     getEnv("NOTIFY_SMTP_HOST", ""),
		SMTPPort:     getEnvInt("NOTIFY_SMTP_PORT", 1025),
		SMTPUsername: getEnv("NOTIFY_SMTP_USERNAME", ""),
		SMTPPassword: getEnv("NOTIFY_SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("NOTIFY_SMTP_FROM", notify.DefaultFromEmail),
		SMTPFromName: getEnv("NOTIFY_SMTP_FROM_NAME", notify.DefaultFromName),

		SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),

		ConsumeRateLimit:  getEnvInt("CONSUME_RATE_LIMIT", 120),
		ConsumeRateWindow: getEnvDuration("CONSUME_RATE_WINDOW", time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	thresholds, err := notify.ParseThresholds(getEnv("WARNING_THRESHOLDS", ""))
	if err != nil {
		return nil, fmt.Errorf("WARNING_THRESHOLDS: %w", err)
	}
	cfg.WarningThresholds = thresholds

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	// Validate ledger configuration
	switch c.LedgerBackend {
	case LedgerMemory:
	case LedgerPostgres:
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when LEDGER_BACKEND is 'postgres'")
		}
	case LedgerSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when LEDGER_BACKEND is 'sqlite'")
		}
	case LedgerRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LEDGER_BACKEND is 'redis'")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of 'memory', 'postgres', 'sqlite' or 'redis', got: %s", c.LedgerBackend)
	}
	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive, got: %s", c.LedgerTimeout)
	}

	// Validate catalog source configuration
	switch c.CatalogSource {
	case CatalogBuiltin, CatalogLocal:
	case CatalogR2:
		if c.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when CATALOG_SOURCE is 'r2'")
		}
		if c.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when CATALOG_SOURCE is 'r2'")
		}
		if c.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when CATALOG_SOURCE is 'r2'")
		}
		if c.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when CATALOG_SOURCE is 'r2'")
		}
	default:
		return fmt.Errorf("CATALOG_SOURCE must be one of 'builtin', 'local' or 'r2', got: %s", c.CatalogSource)
	}

	if c.DevMode && c.Env == "production" {
		return fmt.Errorf("DEV_MODE must not be enabled in production")
	}
	if c.ConsumeRateLimit < 1 {
		return fmt.Errorf("CONSUME_RATE_LIMIT must be at least 1, got: %d", c.ConsumeRateLimit)
	}
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("SESSION_TTL must be at least 1m, got: %s", c.SessionTTL)
	}
	return nil
}

// ReloadDevMode re-reads DEV_MODE from the environment and .env file.
func ReloadDevMode(fallback bool) bool {
	_ = godotenv.Overload()
	return getEnvBool("DEV_MODE", fallback)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
