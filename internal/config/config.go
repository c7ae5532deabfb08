// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. The financial LoyaltyConfig
// (redeem rate, rounding rule, accrual cap) is deliberately NOT here: it
// lives in the database and is loaded per redemption, fail-closed.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	QR        QRConfig        `mapstructure:"qr"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	Fraud     FraudConfig     `mapstructure:"fraud"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds Redis connection configuration. Redis backs the
// scan-velocity counters and the process leader lock.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// QRConfig holds QR token signing configuration.
type QRConfig struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
}

// ReferralConfig holds the multi-level bonus policy: one flat percentage per
// level plus a minimum-bonus threshold per level. A computed bonus below its
// threshold is skipped entirely, never floored up.
type ReferralConfig struct {
	LevelPercentages []float64 `mapstructure:"level_percentages"`
	MinBonuses       []float64 `mapstructure:"min_bonuses"`
}

// FraudConfig holds fraud scoring weights and the rejection threshold.
type FraudConfig struct {
	Threshold        float64       `mapstructure:"threshold"`
	VelocityWindow   time.Duration `mapstructure:"velocity_window"`
	VelocityWeight   float64       `mapstructure:"velocity_weight"`
	AccountAgeWeight float64       `mapstructure:"account_age_weight"`
	MinAccountAge    time.Duration `mapstructure:"min_account_age"`
	GeoWeight        float64       `mapstructure:"geo_weight"`
	GeoRadiusKm      float64       `mapstructure:"geo_radius_km"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, QR_SIGNING_SECRET.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Infrastructure and policy
// defaults only; nothing here feeds money math directly.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "loyalty")
	v.SetDefault("database.name", "loyalty")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// QR defaults
	v.SetDefault("qr.default_ttl", "24h")

	// Referral policy: flat per-level percentages with minimum thresholds.
	v.SetDefault("referral.level_percentages", []float64{50, 30, 20})
	v.SetDefault("referral.min_bonuses", []float64{10, 5, 2})

	// Fraud scoring defaults
	v.SetDefault("fraud.threshold", 100)
	v.SetDefault("fraud.velocity_window", "10m")
	v.SetDefault("fraud.velocity_weight", 15)
	v.SetDefault("fraud.account_age_weight", 40)
	v.SetDefault("fraud.min_account_age", "24h")
	v.SetDefault("fraud.geo_weight", 60)
	v.SetDefault("fraud.geo_radius_km", 5)
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if len(c.Referral.LevelPercentages) != 3 {
		return fmt.Errorf("referral.level_percentages must have exactly 3 entries, got %d", len(c.Referral.LevelPercentages))
	}
	if len(c.Referral.MinBonuses) != 3 {
		return fmt.Errorf("referral.min_bonuses must have exactly 3 entries, got %d", len(c.Referral.MinBonuses))
	}
	for i, p := range c.Referral.LevelPercentages {
		if p < 0 || p > 100 {
			return fmt.Errorf("referral.level_percentages[%d] out of range [0,100]: %v", i, p)
		}
	}
	return nil
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
