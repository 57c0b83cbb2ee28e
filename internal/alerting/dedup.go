package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

var hundred = decimal.NewFromInt(100)

// TrendDedup suppresses a trend firing when it merely continues a movement
// that was already reported for the same rule, subject, and direction. This
// is best-effort noise reduction, not a correctness guarantee: it compares
// observed magnitudes within a bounded window and lets anything ambiguous
// through.
type TrendDedup struct {
	triggers  storage.TriggerStore
	window    time.Duration
	tolerance decimal.Decimal
	now       func() time.Time
	logger    zerolog.Logger
}

// NewTrendDedup constructs the filter. window and tolerance default to 24h
// and 3 percentage points.
func NewTrendDedup(triggers storage.TriggerStore, window time.Duration, tolerance decimal.Decimal, now func() time.Time, logger zerolog.Logger) *TrendDedup {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if tolerance.LessThanOrEqual(decimal.Zero) {
		tolerance = decimal.NewFromInt(3)
	}
	if now == nil {
		now = timeutil.Now
	}
	return &TrendDedup{
		triggers:  triggers,
		window:    window,
		tolerance: tolerance,
		now:       now,
		logger:    logger.With().Str("component", "trend_dedup").Logger(),
	}
}

// IsContinuation reports whether the pending firing continues a recently
// reported trend. Store failures are logged and never suppress: losing a
// duplicate alert beats losing a real one.
func (d *TrendDedup) IsContinuation(ctx context.Context, ruleID, subjectID string, condition storage.Condition, change decimal.Decimal) (bool, error) {
	since := d.now().Add(-d.window)
	prior, err := d.triggers.RecentTriggers(ctx, ruleID, subjectID, condition, since)
	if err != nil {
		d.logger.Error().Err(err).
			Str("rule_id", ruleID).
			Str("subject_id", subjectID).
			Msg("failed to load prior triggers; letting firing through")
		return false, err
	}
	return ContinuesTrend(prior, change, d.tolerance), nil
}

// ContinuesTrend is the pure continuation judgment over an explicit window of
// prior trigger records. A prior trend continues into the current one when
// both move in the same direction and their magnitudes differ by less than
// the tolerance, in percentage points.
func ContinuesTrend(prior []storage.TriggerRecord, change decimal.Decimal, tolerance decimal.Decimal) bool {
	for _, record := range prior {
		if record.Trend == nil {
			continue
		}
		ref := record.Trend.ReferencePrice
		if ref.IsZero() {
			continue
		}
		priorChange := record.CurrentPrice.Sub(ref).Div(ref).Mul(hundred)
		if priorChange.Sign() != change.Sign() {
			continue
		}
		if priorChange.Sub(change).Abs().LessThan(tolerance) {
			return true
		}
	}
	return false
}
