package cache

import (
	"context"
	"log/slog"
	"time"
)

// Config holds cache cleaner configuration
type Config struct {
	CleanInterval time.Duration
	KeepDuration  time.Duration
}

// Cleaner periodically evicts idle sessions
type Cleaner struct {
	service *Service
	config  Config
	logger  *slog.Logger
}

// NewCleaner creates a new cache cleaner
func NewCleaner(service *Service, config Config, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		service: service,
		config:  config,
		logger:  logger,
	}
}

// Start begins the periodic cleanup process
func (c *Cleaner) Start(ctx context.Context) error {
	c.logger.Info("starting cache cleaner",
		"clean_interval", c.config.CleanInterval,
		"keep_duration", c.config.KeepDuration,
	)

	ticker := time.NewTicker(c.config.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping cache cleaner")
			return ctx.Err()
		case <-ticker.C:
			c.clean()
		}
	}
}

func (c *Cleaner) clean() int {
	c.logger.Debug("running cache cleanup")

	removed := c.service.Clean(c.config.KeepDuration)

	c.logger.Info("cache cleanup completed",
		"removed", removed,
		"remaining", c.service.Sessions(),
	)
	return removed
}

// CleanOnce performs a single cleanup (useful for testing or manual cleanup)
func (c *Cleaner) CleanOnce() int {
	return c.clean()
}
