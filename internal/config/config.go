package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from the environment.
type Config struct {
	AppEnv   string
	LogLevel string

	BotToken string
	OwnerID  int64

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	RetryMax       int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	MinDeposit  int64
	MaxDeposit  int64
	MinTransfer int64
	MaxTransfer int64
	FeePercent  float64

	JournalPath string
	BackupDir   string
	BackupKeep  int
	AuditDBPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	HTTPListenAddr   string
	MetricsNamespace string

	WizardTTL           time.Duration
	SweepInterval       time.Duration
	HealthCheckInterval time.Duration
}

// Load reads configuration from environment variables and validates
// required fields. A missing required value is the only unrecoverable
// startup failure in the system.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BotToken: strings.TrimSpace(os.Getenv("BOT_TOKEN")),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://atlantich2h.com"),
		ProviderAPIKey:  strings.TrimSpace(os.Getenv("PROVIDER_API_KEY")),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 15*time.Second),

		RetryMax:       getInt("RETRY_MAX", 3),
		RetryBaseDelay: getDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:  getDuration("RETRY_MAX_DELAY", 8*time.Second),

		MinDeposit:  getInt64("MIN_DEPOSIT", 10000),
		MaxDeposit:  getInt64("MAX_DEPOSIT", 10000000),
		MinTransfer: getInt64("MIN_TRANSFER", 10000),
		MaxTransfer: getInt64("MAX_TRANSFER", 25000000),
		FeePercent:  getFloat("FEE_PERCENT", 0.7),

		JournalPath: getEnv("JOURNAL_PATH", "data/journal.json"),
		BackupDir:   getEnv("BACKUP_DIR", "data/backups"),
		BackupKeep:  getInt("BACKUP_KEEP", 7),
		AuditDBPath: getEnv("AUDIT_DB_PATH", "data/audit.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		RedisTLS:      getBool("REDIS_TLS", false),

		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "bot_payout"),

		WizardTTL:           getDuration("WIZARD_TTL", 30*time.Minute),
		SweepInterval:       getDuration("SWEEP_INTERVAL", 5*time.Minute),
		HealthCheckInterval: getDuration("HEALTHCHECK_INTERVAL", 10*time.Minute),
	}

	ownerRaw := strings.TrimSpace(os.Getenv("OWNER_ID"))
	if ownerRaw != "" {
		owner, err := strconv.ParseInt(ownerRaw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse OWNER_ID: %w", err)
		}
		cfg.OwnerID = owner
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if cfg.OwnerID == 0 {
		missing = append(missing, "OWNER_ID")
	}
	if cfg.ProviderAPIKey == "" {
		missing = append(missing, "PROVIDER_API_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if cfg.MinDeposit <= 0 || cfg.MaxDeposit < cfg.MinDeposit {
		return nil, fmt.Errorf("invalid deposit bounds: min=%d max=%d", cfg.MinDeposit, cfg.MaxDeposit)
	}
	if cfg.MinTransfer <= 0 || cfg.MaxTransfer < cfg.MinTransfer {
		return nil, fmt.Errorf("invalid transfer bounds: min=%d max=%d", cfg.MinTransfer, cfg.MaxTransfer)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
