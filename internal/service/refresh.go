package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/blackbear10000/price-monitor/internal/fetcher"
	"github.com/blackbear10000/price-monitor/internal/metrics"
	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

// Refresher pulls fresh quotes for every active subject and appends them to
// the price history. Fetches fan out with bounded concurrency; one subject's
// upstream failure never blocks the others.
type Refresher struct {
	fetcher       fetcher.PriceFetcher
	subjects      storage.SubjectStore
	prices        storage.PriceStore
	maxConcurrent int
	now           func() time.Time
	logger        zerolog.Logger
}

// NewRefresher constructs a price refresher.
func NewRefresher(f fetcher.PriceFetcher, subjects storage.SubjectStore, prices storage.PriceStore, maxConcurrent int, logger zerolog.Logger) *Refresher {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Refresher{
		fetcher:       f,
		subjects:      subjects,
		prices:        prices,
		maxConcurrent: maxConcurrent,
		now:           timeutil.Now,
		logger:        logger.With().Str("component", "refresher").Logger(),
	}
}

// RefreshAll fetches and stores a sample for every active subject.
func (r *Refresher) RefreshAll(ctx context.Context, tick time.Time) error {
	subjects, err := r.subjects.ListActiveSubjects(ctx)
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		r.logger.Debug().Msg("no active subjects to refresh")
		return nil
	}

	p := pool.New().WithMaxGoroutines(r.maxConcurrent)
	for _, subject := range subjects {
		subject := subject
		p.Go(func() {
			r.refreshOne(ctx, subject)
		})
	}
	p.Wait()
	return nil
}

func (r *Refresher) refreshOne(ctx context.Context, subject storage.Subject) {
	price, _, err := r.fetcher.FetchPrice(ctx, subject.ID)
	if err != nil {
		metrics.PriceFetches.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).
			Str("subject_id", subject.ID).
			Str("symbol", subject.Symbol).
			Msg("price fetch failed")
		return
	}
	metrics.PriceFetches.WithLabelValues("ok").Inc()

	sample := storage.PriceSample{
		SubjectID: subject.ID,
		Value:     price,
		Timestamp: timeutil.Normalize(r.now()),
		Source:    "feed",
	}
	if err := r.prices.InsertSample(ctx, sample); err != nil {
		r.logger.Error().Err(err).Str("subject_id", subject.ID).Msg("failed to store sample")
		return
	}

	r.logger.Debug().
		Str("subject_id", subject.ID).
		Str("symbol", subject.Symbol).
		Str("price", price.String()).
		Msg("sample stored")
}
