package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Retry    RetryConfig    `yaml:"retry"`
	Hub      HubConfig      `yaml:"hub"`
	Matching MatchingConfig `yaml:"matching"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port" env:"MATCHD_SERVER_PORT"`
	Host string `yaml:"host" env:"MATCHD_SERVER_HOST"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"MATCHD_DATABASE_HOST"`
	Port     int    `yaml:"port" env:"MATCHD_DATABASE_PORT"`
	User     string `yaml:"user" env:"MATCHD_DATABASE_USER"`
	Password string `yaml:"password" env:"MATCHD_DATABASE_PASSWORD"`
	DBName   string `yaml:"dbname" env:"MATCHD_DATABASE_NAME"`
	SSLMode  string `yaml:"sslmode" env:"MATCHD_DATABASE_SSLMODE"`
	Migrate  bool   `yaml:"migrate" env:"MATCHD_DATABASE_MIGRATE"`
}

// RedisConfig holds the change feed connection
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"MATCHD_REDIS_ADDR"`
	Password string `yaml:"password" env:"MATCHD_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"MATCHD_REDIS_DB"`
	Channel  string `yaml:"channel" env:"MATCHD_REDIS_CHANNEL"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string     `yaml:"driver" env:"MATCHD_STORAGE_DRIVER"` // postgres | memory
	Seed   SeedConfig `yaml:"seed"`
}

// SeedConfig preloads the read-only catalog and profiles of the memory driver
type SeedConfig struct {
	Events   []SeedEvent   `yaml:"events"`
	Profiles []SeedProfile `yaml:"profiles"`
}

type SeedEvent struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	OrganizerIDs []string `yaml:"organizer_ids"`
}

type SeedProfile struct {
	UserID      string   `yaml:"user_id"`
	DisplayName string   `yaml:"display_name"`
	DanceStyles []string `yaml:"dance_styles"`
	Level       int      `yaml:"level"`
	City        string   `yaml:"city"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret" env:"MATCHD_JWT_SECRET"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level" env:"MATCHD_LOG_LEVEL"`
}

// RetryConfig bounds retries of transient store failures
type RetryConfig struct {
	MaxAttempts     uint          `yaml:"max_attempts" env:"MATCHD_RETRY_MAX_ATTEMPTS"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"MATCHD_RETRY_INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"MATCHD_RETRY_MAX_INTERVAL"`
}

// HubConfig holds subscription hub configuration
type HubConfig struct {
	Feed                 string `yaml:"feed" env:"MATCHD_HUB_FEED"` // memory | redis
	MaxReconnectAttempts uint   `yaml:"max_reconnect_attempts" env:"MATCHD_HUB_MAX_RECONNECT_ATTEMPTS"`
}

// MatchingConfig holds match promotion configuration
type MatchingConfig struct {
	Policy            string        `yaml:"policy" env:"MATCHD_MATCHING_POLICY"` // peer | organizer
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"MATCHD_MATCHING_RECONCILE_INTERVAL"`
	MatchTTL          time.Duration `yaml:"match_ttl" env:"MATCHD_MATCHING_MATCH_TTL"`
}

// Default returns the configuration used for values missing from the file
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, Host: "0.0.0.0"},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable", Migrate: true},
		Redis:    RedisConfig{Addr: "localhost:6379", Channel: "matchd:changes"},
		Storage:  StorageConfig{Driver: "postgres"},
		Log:      LogConfig{Level: "info"},
		Retry: RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		Hub:      HubConfig{Feed: "memory", MaxReconnectAttempts: 5},
		Matching: MatchingConfig{Policy: "peer", ReconcileInterval: time.Minute, MatchTTL: 30 * 24 * time.Hour},
	}
}

// Load reads configuration from a YAML file, then applies environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects unusable configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret must be set")
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Hub.Feed {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown hub feed %q", c.Hub.Feed)
	}
	switch c.Matching.Policy {
	case "peer", "organizer":
	default:
		return fmt.Errorf("unknown matching policy %q", c.Matching.Policy)
	}
	if c.Retry.MaxAttempts == 0 {
		return fmt.Errorf("retry max_attempts must be positive")
	}
	if c.Matching.ReconcileInterval <= 0 {
		return fmt.Errorf("matching reconcile_interval must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
