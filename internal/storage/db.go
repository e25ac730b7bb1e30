package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/graffic/quotebot/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlitePragmas are applied on every pooled connection.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"

// DB holds the database connection
type DB struct {
	*gorm.DB
}

// New opens the main store described by cfg.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	return open(cfg.Driver, cfg.Path, cfg.DSN(), logger.Silent)
}

// NewErrors opens the error log store described by cfg.
func NewErrors(cfg *config.DatabaseConfig) (*DB, error) {
	return open(cfg.Driver, cfg.ErrorsPath, cfg.ErrorsDSN(), logger.Silent)
}

// NewWithLogger opens the main store with a custom gorm log level
func NewWithLogger(cfg *config.DatabaseConfig, logLevel logger.LogLevel) (*DB, error) {
	return open(cfg.Driver, cfg.Path, cfg.DSN(), logLevel)
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string) (*DB, error) {
	return open(config.DriverSQLite, path, "", logger.Silent)
}

func open(driver, path, dsn string, logLevel logger.LogLevel) (*DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var dialector gorm.Dialector
	switch driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(sqliteDSN(path))
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return &DB{db}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + sqlitePragmas
}

// IsSQLite reports whether db talks to SQLite.
func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// AutoMigrate runs auto-migration for the given models
func (db *DB) AutoMigrate(models ...interface{}) error {
	if err := db.DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
