package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"solidify/internal/shared/passhash"
)

const (
	StorageSQLite = "sqlite"
	StorageBadger = "badger"
	StorageMemory = "memory"

	devJWTSecret = "dev-secret-change"
)

type Config struct {
	HTTPAddr           string        `yaml:"httpAddr"`
	Storage            string        `yaml:"storage"`
	DatabaseDSN        string        `yaml:"databaseDSN"`
	BadgerDir          string        `yaml:"badgerDir"`
	JWTSecret          string        `yaml:"jwtSecret"`
	TokenTTL           time.Duration `yaml:"tokenTTL"`
	RefreshTTL         time.Duration `yaml:"refreshTTL"`
	AdminAddress       string        `yaml:"adminAddress"`
	AdminPasswordHash  string        `yaml:"adminPasswordHash"`
	LogLevel           string        `yaml:"logLevel"`
	MaxRequestBytes    int64         `yaml:"maxRequestBytes"`
	RedisAddr          string        `yaml:"redisAddr"`
	RedisPassword      string        `yaml:"redisPassword"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `yaml:"-"`
}

// Load reads the optional YAML file at path (SOLIDIFY_CONFIG when path is
// empty), applies SOLIDIFY_* environment overrides, fills defaults and
// validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		path = os.Getenv("SOLIDIFY_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.HTTPAddr, "SOLIDIFY_HTTP_ADDR")
	setString(&cfg.Storage, "SOLIDIFY_STORAGE")
	setString(&cfg.DatabaseDSN, "SOLIDIFY_DB_DSN")
	setString(&cfg.BadgerDir, "SOLIDIFY_BADGER_DIR")
	setString(&cfg.JWTSecret, "SOLIDIFY_JWT_SECRET")
	setString(&cfg.AdminAddress, "SOLIDIFY_ADMIN_ADDRESS")
	setString(&cfg.AdminPasswordHash, "SOLIDIFY_ADMIN_PASSWORD_HASH")
	setString(&cfg.LogLevel, "SOLIDIFY_LOG_LEVEL")
	setString(&cfg.RedisAddr, "SOLIDIFY_REDIS_ADDR")
	setString(&cfg.RedisPassword, "SOLIDIFY_REDIS_PASSWORD")
	if v := getEnv("SOLIDIFY_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SOLIDIFY_TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	if v := getEnv("SOLIDIFY_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SOLIDIFY_REFRESH_TTL: %w", err)
		}
		cfg.RefreshTTL = d
	}
	if v := getEnv("SOLIDIFY_MAX_REQUEST_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: SOLIDIFY_MAX_REQUEST_BYTES: %w", err)
		}
		cfg.MaxRequestBytes = n
	}
	if v := getEnv("SOLIDIFY_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SOLIDIFY_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.Storage == "" {
		cfg.Storage = StorageSQLite
	}
	cfg.Storage = strings.ToLower(cfg.Storage)
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "file:solidify.db?cache=shared&mode=rwc"
	}
	if cfg.BadgerDir == "" {
		cfg.BadgerDir = "solidify-data"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxRequestBytes == 0 {
		cfg.MaxRequestBytes = 1 << 20
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage {
	case StorageSQLite, StorageBadger, StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage %q (want sqlite, badger or memory)", cfg.Storage)
	}
	if cfg.TokenTTL < 0 {
		return errors.New("config: tokenTTL must be positive")
	}
	if cfg.RefreshTTL < 0 {
		return errors.New("config: refreshTTL must be positive")
	}
	if cfg.AdminPasswordHash != "" {
		if strings.TrimSpace(cfg.AdminAddress) == "" {
			return errors.New("config: adminPasswordHash requires adminAddress")
		}
		if err := passhash.Validate(cfg.AdminPasswordHash); err != nil {
			return fmt.Errorf("config: adminPasswordHash: %w", err)
		}
	}
	if cfg.MaxRequestBytes < 0 {
		return errors.New("config: maxRequestBytes must be >= 0")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	if cfg.RateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when rateLimitPerMinute is set")
	}
	if cfg.JWTSecret == devJWTSecret {
		cfg.Warnings = append(cfg.Warnings, "using development JWT secret; set SOLIDIFY_JWT_SECRET")
	}
	if strings.TrimSpace(cfg.AdminAddress) == "" {
		cfg.Warnings = append(cfg.Warnings, "no admin address configured; only existing role members can mutate records")
	} else if cfg.AdminPasswordHash == "" {
		cfg.Warnings = append(cfg.Warnings, "no admin password hash configured; the admin account must already exist")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := getEnv(key); v != "" {
		*dst = v
	}
}

func getEnv(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
