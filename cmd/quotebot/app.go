package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/graffic/quotebot/internal/bot"
	"github.com/graffic/quotebot/internal/bot/middleware"
	"github.com/graffic/quotebot/internal/cache"
	"github.com/graffic/quotebot/internal/config"
	"github.com/graffic/quotebot/internal/errlog"
	"github.com/graffic/quotebot/internal/ingest"
	"github.com/graffic/quotebot/internal/jobs"
	"github.com/graffic/quotebot/internal/lock"
	"github.com/graffic/quotebot/internal/metrics"
	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/requests"
	"github.com/graffic/quotebot/internal/selector"
	"github.com/graffic/quotebot/internal/source"
	"github.com/graffic/quotebot/internal/storage"
	"github.com/graffic/quotebot/internal/telegram"
	"github.com/graffic/quotebot/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	sweepLockKey     = "quotebot:sweep"
	sweepMaxElapsed  = 5 * time.Minute
	recordMaxElapsed = 10 * time.Second
	redisLockTTL     = 30 * time.Minute
)

// app holds the stores and services shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *storage.DB
	errorsDB *storage.DB
	writer   *storage.Writer
	errors   *storage.Writer

	quotes   *quotes.Store
	users    *users.Store
	requests *requests.Log
	errlog   *errlog.Log
	selector *selector.Selector
	cache    *cache.Service
	ingest   *ingest.Service

	redis *redis.Client

	stopWriters func()
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(
		&quotes.Quote{},
		&quotes.Comics{},
		&requests.Request{},
		&users.User{},
		&users.Settings{},
		&users.Chat{},
	); err != nil {
		_ = db.Close()
		return nil, err
	}

	errorsDB, err := storage.NewErrors(&cfg.Database)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to error database: %w", err)
	}
	if err := errorsDB.AutoMigrate(&errlog.Error{}); err != nil {
		_ = db.Close()
		_ = errorsDB.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		errorsDB: errorsDB,
		writer: storage.NewWriter(db.DB, storage.WriterConfig{
			Name:      "main",
			QueueSize: cfg.Writer.QueueSize,
			Timeout:   cfg.Writer.Timeout,
		}, logger),
		errors: storage.NewWriter(errorsDB.DB, storage.WriterConfig{
			Name:      "errors",
			QueueSize: cfg.Writer.QueueSize,
			Timeout:   cfg.Writer.Timeout,
		}, logger),
	}

	a.quotes = quotes.NewStore(db.DB, a.writer)
	a.users = users.NewStore(db.DB, a.writer)
	a.requests = requests.NewLog(db.DB, a.writer)
	a.errlog = errlog.NewLog(errorsDB.DB, a.errors)
	a.selector = selector.New(db.DB)
	a.cache = cache.NewService(a.selector, a.users, cfg.Cache.BatchSize)

	if cfg.Ingest.Enabled {
		fetcher := source.NewClient(cfg.Ingest.SourceURL, cfg.Ingest.RequestsPerSecond)
		a.ingest = ingest.NewService(a.quotes, fetcher, a.locker(), logger)
	}

	a.startWriters()
	return a, nil
}

func (a *app) locker() lock.Locker {
	if a.cfg.Lock.Backend != config.LockRedis {
		return lock.NewLocal()
	}
	a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Lock.RedisAddr})
	ttl := a.cfg.Lock.TTL
	if ttl <= 0 {
		ttl = redisLockTTL
	}
	return lock.NewRedis(a.redis, sweepLockKey, ttl)
}

// startWriters runs both writers until close. Subcommands other than serve
// rely on them too.
func (a *app) startWriters() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, w := range []*storage.Writer{a.writer, a.errors} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Start(ctx)
		}()
	}
	a.stopWriters = func() {
		cancel()
		wg.Wait()
	}
}

func (a *app) close() {
	a.stopWriters()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
	if err := a.errorsDB.Close(); err != nil {
		a.logger.Error("failed to close error database", "error", err)
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	a.logger.Info("starting quotebot", "environment", cfg.Environment, "driver", cfg.Database.Driver)

	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	var b *bot.Bot
	client, err := telegram.NewHTTPClient(cfg.Telegram.Token, func(ctx context.Context, update *models.Update) {
		b.Handle(ctx, update)
	})
	if err != nil {
		return fmt.Errorf("failed to create Telegram client: %w", err)
	}

	b = bot.New(bot.Deps{
		Client:   client,
		Quotes:   a.quotes,
		Requests: a.requests,
		Users:    a.users,
		Selector: a.selector,
		Cache:    a.cache,
		Errors:   a.errlog,
		Ingest:   a.ingest,
		IsAdmin:  cfg.IsAdmin,
		Logger:   a.logger,
	})

	var leaver middleware.ChatLeaver
	if cfg.AutoLeaveUnauthorized {
		leaver = client
	}
	b.Use(
		middleware.CatchErrors(a.errlog, client, a.logger),
		middleware.Logging(a.logger),
		middleware.ChatFilter(cfg.AllowedChatIDs, leaver, a.logger),
		middleware.TrackRequest(a.users, a.requests, recordMaxElapsed, a.logger),
	)

	scheduler := jobs.New(a.logger)
	if a.ingest != nil {
		if err := scheduler.Add("sweep", cfg.Ingest.SweepSchedule, jobs.Sweep(a.ingest, sweepMaxElapsed, a.logger)); err != nil {
			return err
		}
	}
	if cfg.Database.Driver == config.DriverSQLite {
		backup := storage.NewBackup(a.db.DB, a.writer, cfg.Backup.Dir, a.logger)
		if err := scheduler.Add("backup", cfg.Backup.Schedule, jobs.Backup(backup, a.logger)); err != nil {
			return err
		}
	}

	cleaner := cache.NewCleaner(a.cache, cache.Config{
		CleanInterval: cfg.Cache.CleanInterval,
		KeepDuration:  cfg.Cache.KeepDuration,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	// Verify bot
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify Telegram token: %w", err)
	}
	if err := client.SetCommands(ctx, b.Commands()); err != nil {
		a.logger.Warn("failed to set command menu", "error", err)
	}

	// Component 1: Bot polling
	g.Go(func() error {
		a.logger.Info("starting bot polling", "username", me.Username)
		return client.Start(ctx)
	})

	// Component 2: Cache cleaner
	g.Go(func() error {
		return cleaner.Start(ctx)
	})

	// Component 3: Scheduled jobs
	g.Go(func() error {
		return scheduler.Start(ctx)
	})

	// Component 4: Metrics
	if cfg.Metrics.Addr != "" {
		server := metrics.NewServer(cfg.Metrics.Addr, prometheus.DefaultGatherer, a.logger)
		g.Go(func() error {
			return server.Start(ctx)
		})
	}

	a.logger.Info("all components started, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("component error: %w", err)
	}
	a.logger.Info("application stopped")
	return nil
}

func runBackup(ctx context.Context, a *app) error {
	path, created, err := storage.NewBackup(a.db.DB, a.writer, a.cfg.Backup.Dir, a.logger).Run(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("backup done", "path", path, "created", created)
	return nil
}

func updateQuote(ctx context.Context, a *app, id int64) error {
	if a.ingest == nil {
		return errors.New("ingestion is disabled, set ingest.enabled and ingest.source_url")
	}
	outcome, err := a.ingest.UpdateQuote(ctx, id)
	if err != nil {
		return err
	}
	a.logger.Info("quote updated", "quote_id", id, "outcome", outcome.String())
	return nil
}

func runSweep(ctx context.Context, a *app) error {
	if a.ingest == nil {
		return errors.New("ingestion is disabled, set ingest.enabled and ingest.source_url")
	}
	n, err := a.ingest.Sweep(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("sweep done", "stored", n)
	return nil
}

func printStats(ctx context.Context, a *app, out io.Writer) error {
	total, err := a.quotes.Count(ctx)
	if err != nil {
		return err
	}
	withComics, err := a.quotes.CountWithComics(ctx)
	if err != nil {
		return err
	}
	userCount, err := a.users.Count(ctx)
	if err != nil {
		return err
	}
	requestCount, err := a.requests.Count(ctx)
	if err != nil {
		return err
	}
	errorCount, err := a.errlog.Count(ctx)
	if err != nil {
		return err
	}
	byYear, err := a.quotes.CountByYear(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "quotes:      %d (with comics %d)\n", total, withComics)
	fmt.Fprintf(out, "users:       %d\n", userCount)
	fmt.Fprintf(out, "requests:    %d\n", requestCount)
	fmt.Fprintf(out, "errors:      %d\n", errorCount)
	for _, c := range byYear {
		fmt.Fprintf(out, "  %d: %d\n", c.Year, c.Count)
	}
	return nil
}
