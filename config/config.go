// Package config provides configuration management for the application.
//
// Values are resolved in this order, later sources winning:
//
//  1. built-in defaults
//  2. the YAML file (${VAR} and ${VAR:-default} are expanded from the environment)
//  3. a .env file in the working directory (never overrides real environment variables)
//  4. environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"caredraft/internal/cache"
	"caredraft/internal/ratelimit"
	"caredraft/internal/storage"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "config.yaml"

// PathEnv names the environment variable that may point at the config file.
const PathEnv = "CAREDRAFT_CONFIG"

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LogConfig       `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	AI        AIConfig        `yaml:"ai"`
	Deadlines DeadlineConfig  `yaml:"deadlines"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`

	// APIKeys enables bearer-token auth on /api routes when non-empty.
	APIKeys []string `yaml:"api_keys" env:"CAREDRAFT_API_KEYS" envSeparator:","`

	// BodySizeLimit caps request bodies, e.g. "1M" or "512KB"
	BodySizeLimit string `yaml:"body_size_limit" env:"BODY_SIZE_LIMIT"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	// Format is "json", "pretty" or "auto" (pretty on a terminal, json otherwise)
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Level  string `yaml:"level" env:"LOG_LEVEL"`
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Type       string           `yaml:"type" env:"STORAGE_TYPE"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url" env:"POSTGRES_URL"`
	MaxConns int    `yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url" env:"MONGODB_URL"`
	Database string `yaml:"database" env:"MONGODB_DATABASE"`
}

// CacheConfig configures the request caches
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries" env:"CACHE_MAX_ENTRIES"`
	SingleFlight  bool          `yaml:"single_flight" env:"CACHE_SINGLE_FLIGHT"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"CACHE_SWEEP_INTERVAL"`
	SweepBatch    int           `yaml:"sweep_batch" env:"CACHE_SWEEP_BATCH"`
}

// RateLimitConfig configures request throttling
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`

	// Backend is "memory" or "redis"
	Backend     string `yaml:"backend" env:"RATE_LIMIT_BACKEND"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" env:"RATE_LIMIT_REDIS_PREFIX"`

	SweepInterval time.Duration `yaml:"sweep_interval" env:"RATE_LIMIT_SWEEP_INTERVAL"`

	Classes RateLimitClasses `yaml:"classes"`
}

// RateLimitClasses holds the per-class limits
type RateLimitClasses struct {
	General    ClassConfig `yaml:"general" envPrefix:"RATE_LIMIT_GENERAL_"`
	AI         ClassConfig `yaml:"ai" envPrefix:"RATE_LIMIT_AI_"`
	Extraction ClassConfig `yaml:"extraction" envPrefix:"RATE_LIMIT_EXTRACTION_"`
}

// ClassConfig is one endpoint class limit
type ClassConfig struct {
	Window      time.Duration `yaml:"window" env:"WINDOW"`
	MaxRequests int           `yaml:"max_requests" env:"MAX_REQUESTS"`
}

// AIConfig configures the text-assist provider
type AIConfig struct {
	BaseURL    string        `yaml:"base_url" env:"AI_BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"AI_API_KEY"`
	Model      string        `yaml:"model" env:"AI_MODEL"`
	Timeout    time.Duration `yaml:"timeout" env:"AI_TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"AI_MAX_RETRIES"`
}

// DeadlineConfig configures the deadline processor
type DeadlineConfig struct {
	Enabled        bool          `yaml:"enabled" env:"DEADLINES_ENABLED"`
	Interval       time.Duration `yaml:"interval" env:"DEADLINES_INTERVAL"`
	ReminderWindow time.Duration `yaml:"reminder_window" env:"DEADLINES_REMINDER_WINDOW"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"METRICS_ENDPOINT"`
}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	sc := storage.DefaultConfig()
	classes := ratelimit.DefaultClasses()
	class := func(name string) ClassConfig {
		c := classes[name]
		return ClassConfig{Window: c.Window, MaxRequests: c.MaxRequests}
	}

	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			BodySizeLimit:   "1M",
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LogConfig{
			Format: "auto",
			Level:  "info",
		},
		Storage: StorageConfig{
			Type:       sc.Type,
			SQLite:     SQLiteConfig{Path: sc.SQLite.Path},
			PostgreSQL: PostgreSQLConfig{MaxConns: sc.PostgreSQL.MaxConns},
			MongoDB:    MongoDBConfig{Database: sc.MongoDB.Database},
		},
		Cache: CacheConfig{
			MaxEntries:    cache.DefaultMaxEntries,
			SingleFlight:  true,
			SweepInterval: 5 * time.Minute,
			SweepBatch:    500,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Backend:       ratelimit.BackendMemory,
			SweepInterval: 5 * time.Minute,
			Classes: RateLimitClasses{
				General:    class(ratelimit.ClassGeneral),
				AI:         class(ratelimit.ClassAI),
				Extraction: class(ratelimit.ClassExtraction),
			},
		},
		AI: AIConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    60 * time.Second,
			MaxRetries: 2,
		},
		Deadlines: DeadlineConfig{
			Enabled:        true,
			Interval:       time.Hour,
			ReminderWindow: 72 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// Load resolves the configuration. An empty path falls back to $CAREDRAFT_CONFIG,
// then to config.yaml. Only the implicit config.yaml may be missing.
func Load(path string) (*Config, error) {
	cfg := buildDefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := true
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path == "" {
		path, explicit = DefaultPath, false
	}

	if err := applyYAML(cfg, path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// StorageConfig converts the storage section for the storage package.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Type:       c.Storage.Type,
		SQLite:     storage.SQLiteConfig{Path: c.Storage.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{URL: c.Storage.PostgreSQL.URL, MaxConns: c.Storage.PostgreSQL.MaxConns},
		MongoDB:    storage.MongoDBConfig{URL: c.Storage.MongoDB.URL, Database: c.Storage.MongoDB.Database},
	}
}

// RateLimitClasses returns the limiter config for every endpoint class.
func (c *Config) RateLimitClasses() map[string]ratelimit.Config {
	classes := c.RateLimit.Classes
	return map[string]ratelimit.Config{
		ratelimit.ClassGeneral:    classes.General.toLimiter(ratelimit.ClassGeneral),
		ratelimit.ClassAI:         classes.AI.toLimiter(ratelimit.ClassAI),
		ratelimit.ClassExtraction: classes.Extraction.toLimiter(ratelimit.ClassExtraction),
	}
}

func (c ClassConfig) toLimiter(name string) ratelimit.Config {
	return ratelimit.Config{Name: name, Window: c.Window, MaxRequests: c.MaxRequests}
}
