package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"
)

// ErrBackupUnsupported is returned for drivers without a file snapshot.
var ErrBackupUnsupported = errors.New("backup is only supported for sqlite")

// Backup snapshots a SQLite database into a dated file.
type Backup struct {
	db     *gorm.DB
	writer *Writer
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewBackup creates a backup job writing into dir.
func NewBackup(db *gorm.DB, writer *Writer, dir string, logger *slog.Logger) *Backup {
	return &Backup{
		db:     db,
		writer: writer,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// FileName returns the snapshot name for day t.
func FileName(t time.Time) string {
	return fmt.Sprintf("quotes-%s.db", t.Format(time.DateOnly))
}

// Run writes today's snapshot. It returns the file path and whether a new
// file was written; an existing snapshot for today is left untouched.
func (b *Backup) Run(ctx context.Context) (string, bool, error) {
	if !IsSQLite(b.db) {
		return "", false, ErrBackupUnsupported
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(b.dir, FileName(b.now()))
	if _, err := os.Stat(path); err == nil {
		b.logger.Info("backup already exists", "path", path)
		return path, false, nil
	}

	// VACUUM cannot run inside a transaction.
	err := b.writer.Do(ctx, func(db *gorm.DB) error {
		return db.Exec("VACUUM INTO ?", path).Error
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to back up database: %w", err)
	}

	b.logger.Info("backup completed", "path", path)
	return path, true, nil
}
