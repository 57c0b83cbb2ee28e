package alerting

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

const cooldownStripes = 64

// CooldownTracker gates re-firing per (rule, subject) pair. State is durable
// in the cooldown store; striped mutexes serialise individual store writes
// per key. Check-then-record atomicity comes from the caller: each pair is
// evaluated at most once per cycle and cycles do not overlap.
type CooldownTracker struct {
	store  storage.CooldownStore
	now    func() time.Time
	logger zerolog.Logger
	locks  [cooldownStripes]sync.Mutex
}

// NewCooldownTracker constructs a tracker over the given store.
func NewCooldownTracker(store storage.CooldownStore, now func() time.Time, logger zerolog.Logger) *CooldownTracker {
	if now == nil {
		now = timeutil.Now
	}
	return &CooldownTracker{
		store:  store,
		now:    now,
		logger: logger.With().Str("component", "cooldown_tracker").Logger(),
	}
}

// IsEligible reports whether the pair may fire: no prior record, or the
// cooldown has fully elapsed since the last firing.
func (t *CooldownTracker) IsEligible(ctx context.Context, ruleID, subjectID string, cooldown time.Duration) (bool, error) {
	mu := t.lockFor(ruleID, subjectID)
	mu.Lock()
	defer mu.Unlock()

	lastFired, found, err := t.store.LastFired(ctx, ruleID, subjectID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return !t.now().Before(lastFired.Add(cooldown)), nil
}

// RecordFired upserts the last-fired timestamp for the pair.
func (t *CooldownTracker) RecordFired(ctx context.Context, ruleID, subjectID string, at time.Time) error {
	mu := t.lockFor(ruleID, subjectID)
	mu.Lock()
	defer mu.Unlock()

	return t.store.UpsertLastFired(ctx, ruleID, subjectID, timeutil.Normalize(at))
}

// Clear resets the pair, e.g. after a rule's subject mapping changes.
func (t *CooldownTracker) Clear(ctx context.Context, ruleID, subjectID string) error {
	mu := t.lockFor(ruleID, subjectID)
	mu.Lock()
	defer mu.Unlock()

	t.logger.Debug().Str("rule_id", ruleID).Str("subject_id", subjectID).Msg("cooldown cleared")
	return t.store.DeleteCooldown(ctx, ruleID, subjectID)
}

func (t *CooldownTracker) lockFor(ruleID, subjectID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(subjectID))
	return &t.locks[h.Sum32()%cooldownStripes]
}
