// Package errlog keeps handler failures in their own database so a broken
// main store does not hide the errors that broke it.
package errlog

import (
	"context"
	"fmt"
	"time"

	"github.com/graffic/quotebot/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Error is one recorded failure
type Error struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	Command   string         `json:"command"`
	Kind      string         `json:"kind"`
	Text      string         `json:"text"`
	Stack     string         `json:"stack,omitempty"`
	UserID    *int64         `gorm:"index" json:"user_id,omitempty"`
	ChatID    *int64         `json:"chat_id,omitempty"`
	MessageID *int64         `json:"message_id,omitempty"`
	Update    datatypes.JSON `json:"update,omitempty"`
}

// TableName specifies the table name for Error
func (Error) TableName() string {
	return "errors"
}

// Entry describes a failure to record. Update is the raw update payload,
// stored as is when it is valid JSON.
type Entry struct {
	Command   string
	Kind      string
	Text      string
	Stack     string
	UserID    int64
	ChatID    int64
	MessageID int64
	Update    []byte
}

// Log reads and appends error rows
type Log struct {
	db     *gorm.DB
	writer *storage.Writer
}

// NewLog creates an error log over its own database and writer
func NewLog(db *gorm.DB, writer *storage.Writer) *Log {
	return &Log{db: db, writer: writer}
}

func optional(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

// Record appends one error row.
func (l *Log) Record(ctx context.Context, e Entry) error {
	row := Error{
		Command:   e.Command,
		Kind:      e.Kind,
		Text:      e.Text,
		Stack:     e.Stack,
		UserID:    optional(e.UserID),
		ChatID:    optional(e.ChatID),
		MessageID: optional(e.MessageID),
	}
	if len(e.Update) > 0 {
		row.Update = datatypes.JSON(e.Update)
	}
	err := l.writer.Do(ctx, func(db *gorm.DB) error {
		return db.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

// Page returns errors newest first and the total count.
func (l *Log) Page(ctx context.Context, page, perPage int) ([]Error, int64, error) {
	total, err := l.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	var result []Error
	if err := l.db.WithContext(ctx).
		Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&result).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list errors: %w", err)
	}
	return result, total, nil
}

// Last returns the most recent error, or nil when none was recorded.
func (l *Log) Last(ctx context.Context) (*Error, error) {
	var e Error
	err := l.db.WithContext(ctx).Order("id DESC").Limit(1).Find(&e).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get last error: %w", err)
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

// Count returns the number of recorded errors.
func (l *Log) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.WithContext(ctx).Model(&Error{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count errors: %w", err)
	}
	return n, nil
}
