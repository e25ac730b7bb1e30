package testutils

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/graffic/quotebot/internal/storage"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB wraps a GORM database connection and its running writer
type TestDB struct {
	DB     *gorm.DB
	Writer *storage.Writer
}

// Logger returns a logger that discards everything
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestDB creates a SQLite database in a temp dir, migrates models and
// starts a writer. Everything is torn down with the test.
func NewTestDB(t *testing.T, models ...interface{}) *TestDB {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return setup(t, db.DB, models)
}

// NewPostgresTestDB starts a disposable PostgreSQL container. Skipped with
// -short or when no container provider is available.
func NewPostgresTestDB(t *testing.T, models ...interface{}) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("quotebot_test"),
		postgres.WithUsername("quotebot"),
		postgres.WithPassword("quotebot"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return setup(t, db, models)
}

func setup(t *testing.T, db *gorm.DB, models []interface{}) *TestDB {
	t.Helper()

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("Failed to run migrations: %v", err)
		}
	}

	cfg := storage.WriterConfig{Name: "test", QueueSize: 64, Timeout: 5 * time.Second}
	writer := storage.NewWriter(db, cfg, Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = writer.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &TestDB{DB: db, Writer: writer}
}
