package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackbear10000/price-monitor/internal/notify"
	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

// Cleaner removes expired price history, trigger records, and fallback files.
type Cleaner struct {
	prices        storage.PriceStore
	triggers      storage.TriggerStore
	fallback      *notify.FileSink
	retentionDays int
	fallbackDays  int
	now           func() time.Time
	logger        zerolog.Logger
}

// NewCleaner constructs a retention cleaner.
func NewCleaner(prices storage.PriceStore, triggers storage.TriggerStore, fallback *notify.FileSink, retentionDays, fallbackDays int, logger zerolog.Logger) *Cleaner {
	return &Cleaner{
		prices:        prices,
		triggers:      triggers,
		fallback:      fallback,
		retentionDays: retentionDays,
		fallbackDays:  fallbackDays,
		now:           timeutil.Now,
		logger:        logger.With().Str("component", "cleaner").Logger(),
	}
}

// Sweep deletes everything older than the retention windows. Partial failures
// are logged; the rest of the sweep keeps going.
func (c *Cleaner) Sweep(ctx context.Context, tick time.Time) error {
	cutoff := c.now().AddDate(0, 0, -c.retentionDays)

	if c.prices != nil {
		removed, err := c.prices.DeleteSamplesBefore(ctx, cutoff)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to prune price samples")
		} else if removed > 0 {
			c.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned price samples")
		}
	}

	if c.triggers != nil {
		removed, err := c.triggers.DeleteTriggersBefore(ctx, cutoff)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to prune trigger records")
		} else if removed > 0 {
			c.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned trigger records")
		}
	}

	if c.fallback != nil && c.fallbackDays > 0 {
		removed, err := c.fallback.CleanupOld(time.Duration(c.fallbackDays) * 24 * time.Hour)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to prune fallback files")
		} else if removed > 0 {
			c.logger.Info().Int("removed", removed).Msg("pruned fallback files")
		}
	}

	return nil
}
