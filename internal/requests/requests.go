// Package requests is the append-only log of bot interactions. It is the
// only record of which quotes a user has already received.
package requests

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/graffic/quotebot/internal/storage"
	"gorm.io/gorm"
)

// pageSize bounds each keyset page read by QuoteIDsSeenBy.
const pageSize = 500

// Request is one logged interaction. IDs are assigned in arrival order.
type Request struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Command      string    `gorm:"not null" json:"command"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	ElapsedMs    int64     `gorm:"not null" json:"elapsed_ms"`
	UserID       *int64    `gorm:"index" json:"user_id,omitempty"`
	ChatID       *int64    `gorm:"index" json:"chat_id,omitempty"`
	QuoteID      *int64    `gorm:"index" json:"quote_id,omitempty"`
	Message      *string   `json:"message,omitempty"`
	CallbackData *string   `json:"callback_data,omitempty"`
}

// TableName specifies the table name for Request
func (Request) TableName() string {
	return "requests"
}

// Entry describes an interaction to record. Zero user, chat and quote ids
// and empty texts are stored as NULL.
type Entry struct {
	Command  string
	Elapsed  time.Duration
	UserID   int64
	ChatID   int64
	QuoteID  int64
	Text     string
	Callback string
}

// Occurrence is one delivery of a quote to a user. Position 0 is the most
// recent delivery of any quote to that user.
type Occurrence struct {
	Position int
	At       time.Time
}

// Log reads and appends request rows
type Log struct {
	db     *gorm.DB
	writer *storage.Writer
}

// NewLog creates a request log
func NewLog(db *gorm.DB, writer *storage.Writer) *Log {
	return &Log{db: db, writer: writer}
}

func optionalInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Record appends one row through the writer.
func (l *Log) Record(ctx context.Context, e Entry) error {
	row := Request{
		Command:      e.Command,
		ElapsedMs:    e.Elapsed.Milliseconds(),
		UserID:       optionalInt(e.UserID),
		ChatID:       optionalInt(e.ChatID),
		QuoteID:      optionalInt(e.QuoteID),
		Message:      optionalString(e.Text),
		CallbackData: optionalString(e.Callback),
	}
	err := l.writer.Do(ctx, func(db *gorm.DB) error {
		return db.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// SeenBy restricts a quotes query to quotes the user has received.
func SeenBy(userID int64) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("quotes.id IN (?)", seenSubquery(db, userID))
	}
}

// NotSeenBy restricts a quotes query to quotes the user has not received.
func NotSeenBy(userID int64) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("quotes.id NOT IN (?)", seenSubquery(db, userID))
	}
}

func seenSubquery(db *gorm.DB, userID int64) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Model(&Request{}).
		Distinct("quote_id").
		Where("user_id = ? AND quote_id IS NOT NULL", userID)
}

// QuoteIDsSeenBy yields the quote ids delivered to the user, most recent
// first. Each iteration starts a fresh read; ids repeat when a quote was
// delivered more than once.
func (l *Log) QuoteIDsSeenBy(ctx context.Context, userID int64) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		var cursor int64
		for {
			query := l.db.WithContext(ctx).
				Model(&Request{}).
				Select("id", "quote_id").
				Where("user_id = ? AND quote_id IS NOT NULL", userID)
			if cursor > 0 {
				query = query.Where("id < ?", cursor)
			}

			var page []Request
			if err := query.Order("id DESC").Limit(pageSize).Find(&page).Error; err != nil {
				yield(0, fmt.Errorf("failed to read request history: %w", err))
				return
			}

			for _, r := range page {
				if !yield(*r.QuoteID, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cursor = page[len(page)-1].ID
		}
	}
}

// LastQuoteSeenBy returns the most recently delivered quote id.
func (l *Log) LastQuoteSeenBy(ctx context.Context, userID int64) (int64, bool, error) {
	for id, err := range l.QuoteIDsSeenBy(ctx, userID) {
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}
	return 0, false, nil
}

// Occurrences lists where quoteID appears in the user's history.
func (l *Log) Occurrences(ctx context.Context, userID, quoteID int64) ([]Occurrence, error) {
	var rows []Request
	if err := l.db.WithContext(ctx).
		Model(&Request{}).
		Select("id", "quote_id", "created_at").
		Where("user_id = ? AND quote_id IS NOT NULL", userID).
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read request history: %w", err)
	}

	var result []Occurrence
	for i, r := range rows {
		if *r.QuoteID == quoteID {
			result = append(result, Occurrence{Position: i, At: r.CreatedAt})
		}
	}
	return result, nil
}

// FirstInteractionTime returns the timestamp of the oldest request.
func (l *Log) FirstInteractionTime(ctx context.Context) (time.Time, bool, error) {
	var first Request
	err := l.db.WithContext(ctx).Order("id ASC").Take(&first).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get first request: %w", err)
	}
	return first.CreatedAt, true, nil
}

// Span returns the first and last interaction times of a user.
func (l *Log) Span(ctx context.Context, userID int64) (first, last time.Time, ok bool, err error) {
	var rows []Request
	for _, order := range []string{"id ASC", "id DESC"} {
		var r Request
		err := l.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order(order).
			Take(&r).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return first, last, false, nil
		}
		if err != nil {
			return first, last, false, fmt.Errorf("failed to get request span: %w", err)
		}
		rows = append(rows, r)
	}
	return rows[0].CreatedAt, rows[1].CreatedAt, true, nil
}

// Count returns the number of logged requests.
func (l *Log) Count(ctx context.Context) (int64, error) {
	return l.count(l.db.WithContext(ctx).Model(&Request{}))
}

// CountByUser returns the number of requests made by a user.
func (l *Log) CountByUser(ctx context.Context, userID int64) (int64, error) {
	return l.count(l.db.WithContext(ctx).Model(&Request{}).Where("user_id = ?", userID))
}

// CountByChat returns the number of requests made in a chat.
func (l *Log) CountByChat(ctx context.Context, chatID int64) (int64, error) {
	return l.count(l.db.WithContext(ctx).Model(&Request{}).Where("chat_id = ?", chatID))
}

// DistinctQuotesSeen returns how many different quotes the user received.
func (l *Log) DistinctQuotesSeen(ctx context.Context, userID int64) (int64, error) {
	return l.count(l.db.WithContext(ctx).
		Model(&Request{}).
		Distinct("quote_id").
		Where("user_id = ? AND quote_id IS NOT NULL", userID))
}

func (l *Log) count(query *gorm.DB) (int64, error) {
	var n int64
	if err := query.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return n, nil
}
