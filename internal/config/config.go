package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env           string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string `mapstructure:"DEFAULT_TENANT"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	RedisURL          string        `mapstructure:"REDIS_URL"`
	RedisPoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	RedisDialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	RedisReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	RedisWriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`
	TextCacheTTL      time.Duration `mapstructure:"TEXT_CACHE_TTL"`

	OrgOID       string `mapstructure:"ORG_OID"`
	OrgName      string `mapstructure:"ORG_NAME"`
	OrgPhone     string `mapstructure:"ORG_PHONE"`
	RealmCode    string `mapstructure:"REALM_CODE"`
	LanguageCode string `mapstructure:"LANGUAGE_CODE"`

	MetricsAddr           string `mapstructure:"METRICS_ADDR"`
	RevalidateConcurrency int    `mapstructure:"REVALIDATE_CONCURRENCY"`
}

// RedisConfig holds the connection settings for the optional Redis cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

var keys = []string{
	"ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "MIGRATIONS_DIR",
	"REDIS_URL", "REDIS_POOL_SIZE", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"TEXT_CACHE_TTL",
	"ORG_OID", "ORG_NAME", "ORG_PHONE", "REALM_CODE", "LANGUAGE_CODE",
	"METRICS_ADDR", "REVALIDATE_CONCURRENCY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")
	v.SetDefault("TEXT_CACHE_TTL", "10m")
	v.SetDefault("ORG_OID", "2.16.840.1.113883.2.24.1.1")
	v.SetDefault("REALM_CODE", "VN")
	v.SetDefault("LANGUAGE_CODE", "vi-VN")
	v.SetDefault("REVALIDATE_CONCURRENCY", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) Redis() RedisConfig {
	return RedisConfig{
		URL:          c.RedisURL,
		PoolSize:     c.RedisPoolSize,
		DialTimeout:  c.RedisDialTimeout,
		ReadTimeout:  c.RedisReadTimeout,
		WriteTimeout: c.RedisWriteTimeout,
	}
}

var (
	oidPattern      = regexp.MustCompile(`^[0-2](\.(0|[1-9][0-9]*))+$`)
	realmPattern    = regexp.MustCompile(`^[A-Z]{2}$`)
	languagePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)
)

// Validate checks the organisation identity that is stamped on every
// document and the numeric limits.
func (c *Config) Validate() error {
	if !oidPattern.MatchString(c.OrgOID) {
		return fmt.Errorf("ORG_OID must be a dotted numeric OID, got %q", c.OrgOID)
	}
	if c.OrgName == "" {
		return fmt.Errorf("ORG_NAME is required")
	}
	if !realmPattern.MatchString(c.RealmCode) {
		return fmt.Errorf("REALM_CODE must be a two-letter country code, got %q", c.RealmCode)
	}
	if !languagePattern.MatchString(c.LanguageCode) {
		return fmt.Errorf("LANGUAGE_CODE must look like \"vi-VN\", got %q", c.LanguageCode)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RedisURL != "" && c.TextCacheTTL <= 0 {
		return fmt.Errorf("TEXT_CACHE_TTL must be positive when REDIS_URL is set")
	}
	if c.RevalidateConcurrency < 1 {
		return fmt.Errorf("REVALIDATE_CONCURRENCY must be at least 1, got %d", c.RevalidateConcurrency)
	}
	return nil
}
