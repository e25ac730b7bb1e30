package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g. QUOTEBOT_DATABASE__PATH.
const EnvPrefix = "QUOTEBOT_"

// Config holds all application configuration
type Config struct {
	Environment    string         `koanf:"environment"`
	Telegram       TelegramConfig `koanf:"telegram"`
	Database       DatabaseConfig `koanf:"database"`
	Writer         WriterConfig   `koanf:"writer"`
	Cache          CacheConfig    `koanf:"cache"`
	Ingest         IngestConfig   `koanf:"ingest"`
	Backup         BackupConfig   `koanf:"backup"`
	Lock           LockConfig     `koanf:"lock"`
	Metrics        MetricsConfig  `koanf:"metrics"`
	AllowedChatIDs []int64        `koanf:"allowed_chat_ids"`
	AdminUserIDs   []int64        `koanf:"admin_user_ids"`

	AutoLeaveUnauthorized bool `koanf:"auto_leave_unauthorized"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Token string `koanf:"token"`
}

// Database drivers understood by storage.Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig describes the two stores: the main one (quotes, users,
// chats, requests, settings) and the error log.
type DatabaseConfig struct {
	Driver         string `koanf:"driver"`
	Path           string `koanf:"path"`
	ErrorsPath     string `koanf:"errors_path"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	User           string `koanf:"user"`
	Password       string `koanf:"password"`
	Database       string `koanf:"database"`
	ErrorsDatabase string `koanf:"errors_database"`
	SSLMode        string `koanf:"sslmode"`
}

// WriterConfig tunes the single serialized writer in front of each store.
type WriterConfig struct {
	QueueSize int           `koanf:"queue_size"`
	Timeout   time.Duration `koanf:"timeout"`
}

// CacheConfig holds prefetch cache configuration
type CacheConfig struct {
	BatchSize     int           `koanf:"batch_size"`
	CleanInterval time.Duration `koanf:"clean_interval"` // e.g., "10m"
	KeepDuration  time.Duration `koanf:"keep_duration"`  // e.g., "48h"
}

// IngestConfig configures the quote source client and the periodic sweep.
type IngestConfig struct {
	Enabled           bool    `koanf:"enabled"`
	SourceURL         string  `koanf:"source_url"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	SweepSchedule     string  `koanf:"sweep_schedule"`
}

type BackupConfig struct {
	Dir      string `koanf:"dir"`
	Schedule string `koanf:"schedule"`
}

// Lock backends for the ingestion advisory lock.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

type LockConfig struct {
	Backend   string        `koanf:"backend"`
	RedisAddr string        `koanf:"redis_addr"`
	TTL       time.Duration `koanf:"ttl"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DSN returns the PostgreSQL connection string for the main store
func (c *DatabaseConfig) DSN() string {
	return c.dsn(c.Database)
}

// ErrorsDSN returns the PostgreSQL connection string for the error log store
func (c *DatabaseConfig) ErrorsDSN() string {
	return c.dsn(c.ErrorsDatabase)
}

func (c *DatabaseConfig) dsn(database string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		database,
		c.SSLMode,
	)
}

// IsAdmin reports whether userID is listed in admin_user_ids.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return errors.New("lock.redis_addr is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	if c.Ingest.Enabled && c.Ingest.SourceURL == "" {
		return errors.New("ingest.source_url is required when ingest is enabled")
	}
	return nil
}

// Load loads configuration from environment variables and config files
func Load(environment string) (*Config, error) {
	k := koanf.New(".")
	// Load defaults first (lowest priority)
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	// Load from config file based on environment
	configFile := fmt.Sprintf("config/%s.yaml", environment)
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		// Config file is optional
		slog.Debug("config file not loaded", "file", configFile, "error", err)
	}

	// A local .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	// Environment variables override config file values
	if err := k.Load(env.ProviderWithValue(EnvPrefix, "__", func(key string, value string) (string, interface{}) {
		finalKey := strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))

		// Check if the existing config has this key as a slice
		switch k.Get(finalKey).(type) {
		case []interface{}, []string, []int64:
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return finalKey, parts
		}

		return finalKey, value
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Environment = environment

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Environment returns ENV or "development".
func Environment() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// defaultConfig returns the default configuration values
func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:         DriverSQLite,
			Path:           "database/database.sqlite",
			ErrorsPath:     "database/errors.sqlite",
			Port:           5432,
			Database:       "quotebot",
			ErrorsDatabase: "quotebot_errors",
			SSLMode:        "disable",
		},
		Writer: WriterConfig{
			QueueSize: 64,
			Timeout:   5 * time.Second,
		},
		Cache: CacheConfig{
			BatchSize:     20,
			CleanInterval: 10 * time.Minute,
			KeepDuration:  48 * time.Hour,
		},
		Ingest: IngestConfig{
			RequestsPerSecond: 1,
			SweepSchedule:     "@every 1h",
		},
		Backup: BackupConfig{
			Dir:      "backup",
			Schedule: "0 2 * * 6",
		},
		Lock: LockConfig{
			Backend: LockLocal,
			TTL:     30 * time.Minute,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		AllowedChatIDs: []int64{},
		AdminUserIDs:   []int64{},
	}
}
