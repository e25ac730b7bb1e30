package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/graffic/quotebot/internal/metrics"
	"gorm.io/gorm"
)

var (
	// ErrWriteTimeout is returned when an operation could not be queued or
	// did not complete within the writer timeout. It is transient.
	ErrWriteTimeout = errors.New("write timed out")
	// ErrWriterClosed is returned once the writer loop has stopped.
	ErrWriterClosed = errors.New("writer closed")
)

// WriterConfig holds writer tuning
type WriterConfig struct {
	Name      string
	QueueSize int
	Timeout   time.Duration
}

type writeOp struct {
	ctx    context.Context
	fn     func(tx *gorm.DB) error
	tx     bool
	result chan error
}

// Writer serializes every mutation against a database through one goroutine.
// Reads do not go through it.
type Writer struct {
	db     *gorm.DB
	config WriterConfig
	logger *slog.Logger
	queue  chan *writeOp

	mu     sync.RWMutex
	closed bool
}

// NewWriter creates a writer. Nothing is executed until Start runs.
func NewWriter(db *gorm.DB, config WriterConfig, logger *slog.Logger) *Writer {
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Name == "" {
		config.Name = "main"
	}
	return &Writer{
		db:     db,
		config: config,
		logger: logger,
		queue:  make(chan *writeOp, config.QueueSize),
	}
}

// Start runs queued operations until ctx is cancelled. Operations already
// queued at that point are still executed.
func (w *Writer) Start(ctx context.Context) error {
	w.logger.Info("starting writer",
		"writer", w.config.Name,
		"queue_size", w.config.QueueSize,
		"timeout", w.config.Timeout,
	)

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			w.logger.Info("stopping writer", "writer", w.config.Name)
			return ctx.Err()
		case op := <-w.queue:
			w.run(op)
		}
	}
}

func (w *Writer) shutdown() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	for {
		select {
		case op := <-w.queue:
			w.run(op)
		default:
			return
		}
	}
}

func (w *Writer) run(op *writeOp) {
	metrics.WriterQueueDepth.WithLabelValues(w.config.Name).Set(float64(len(w.queue)))

	if err := op.ctx.Err(); err != nil {
		op.result <- err
		return
	}

	db := w.db.WithContext(op.ctx)
	var err error
	if op.tx {
		err = db.Transaction(op.fn)
	} else {
		err = op.fn(db)
	}
	op.result <- err
}

// Do runs fn on the writer goroutine outside a transaction.
func (w *Writer) Do(ctx context.Context, fn func(db *gorm.DB) error) error {
	return w.submit(ctx, fn, false)
}

// Transaction runs fn on the writer goroutine inside a transaction.
func (w *Writer) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return w.submit(ctx, fn, true)
}

func (w *Writer) submit(ctx context.Context, fn func(*gorm.DB) error, tx bool) error {
	op := &writeOp{
		ctx:    ctx,
		fn:     fn,
		tx:     tx,
		result: make(chan error, 1),
	}

	timer := time.NewTimer(w.config.Timeout)
	defer timer.Stop()

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWriterClosed
	}
	select {
	case w.queue <- op:
		w.mu.RUnlock()
	case <-timer.C:
		w.mu.RUnlock()
		metrics.WriterTimeouts.WithLabelValues(w.config.Name).Inc()
		return fmt.Errorf("enqueue: %w", ErrWriteTimeout)
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	wait := time.NewTimer(w.config.Timeout)
	defer wait.Stop()

	select {
	case err := <-op.result:
		return err
	case <-wait.C:
		metrics.WriterTimeouts.WithLabelValues(w.config.Name).Inc()
		return fmt.Errorf("await result: %w", ErrWriteTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTransient reports whether err is worth retrying: writer back-pressure or
// SQLite lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWriteTimeout) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
