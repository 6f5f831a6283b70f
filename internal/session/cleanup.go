package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// CleanerOptions configures the maintenance process.
type CleanerOptions struct {
	// Schedule is a cron expression for cleanup runs.
	Schedule string
	// Retention is how long a tombstoned session survives before purge.
	Retention time.Duration
}

// DefaultCleanerOptions returns sensible defaults: nightly runs, 30-day
// retention.
func DefaultCleanerOptions() CleanerOptions {
	return CleanerOptions{
		Schedule:  "0 3 * * *",
		Retention: 30 * 24 * time.Hour,
	}
}

// Cleaner purges tombstoned sessions past their retention window, removing
// the video asset before the row. Per-session failures are logged and
// skipped; they never abort a run or propagate to callers.
type Cleaner struct {
	store  *Store
	videos *VideoStore
	opts   CleanerOptions
	logger *slog.Logger
	cron   *cron.Cron
}

// NewCleaner creates a cleaner over the given store and video assets.
// A nil logger falls back to slog.Default.
func NewCleaner(store *Store, videos *VideoStore, opts CleanerOptions, logger *slog.Logger) *Cleaner {
	if opts.Schedule == "" {
		opts.Schedule = DefaultCleanerOptions().Schedule
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultCleanerOptions().Retention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		store:  store,
		videos: videos,
		opts:   opts,
		logger: logger,
	}
}

// Start schedules cleanup runs.
func (c *Cleaner) Start() error {
	c.cron = cron.New()
	_, err := c.cron.AddFunc(c.opts.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := c.RunOnce(ctx); err != nil {
			c.logger.Warn("[session] cleanup run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("session: schedule cleanup %q: %w", c.opts.Schedule, err)
	}
	c.cron.Start()
	return nil
}

// Stop halts the schedule. Runs already in flight finish on their own.
func (c *Cleaner) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}
}

// RunOnce performs one cleanup pass and returns how many sessions were
// purged. Only fetching the candidates can fail; per-session errors are
// absorbed.
func (c *Cleaner) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-c.opts.Retention)
	candidates, err := c.store.DeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, rec := range candidates {
		// Video first: an orphaned row is recoverable, an orphaned video
		// is not.
		if err := c.videos.Remove(rec.FileName); err != nil {
			c.logger.Warn("[session] remove video", "file", rec.FileName, "error", err)
			continue
		}
		if err := c.store.Purge(ctx, rec.ID); err != nil {
			c.logger.Warn("[session] purge", "id", rec.ID, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		c.logger.Info("[session] cleanup complete", "purged", purged)
	}
	return purged, nil
}
