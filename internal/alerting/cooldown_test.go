package alerting

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCooldownEligibility(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()

	clock := base
	tracker := NewCooldownTracker(store, func() time.Time { return clock }, zerolog.Nop())
	ctx := context.Background()

	eligible, err := tracker.IsEligible(ctx, "r1", "btc", 24*time.Hour)
	if err != nil {
		t.Fatalf("IsEligible: %v", err)
	}
	if !eligible {
		t.Fatal("a pair with no prior firing must be eligible")
	}

	if err := tracker.RecordFired(ctx, "r1", "btc", clock); err != nil {
		t.Fatalf("RecordFired: %v", err)
	}

	clock = base.Add(23 * time.Hour)
	eligible, _ = tracker.IsEligible(ctx, "r1", "btc", 24*time.Hour)
	if eligible {
		t.Fatal("23h after firing the 24h cooldown must still hold")
	}

	// boundary: exactly lastFired+cooldown is eligible again
	clock = base.Add(24 * time.Hour)
	eligible, _ = tracker.IsEligible(ctx, "r1", "btc", 24*time.Hour)
	if !eligible {
		t.Fatal("the pair must be eligible once the full cooldown elapsed")
	}
}

func TestCooldownIsPerPair(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	tracker := NewCooldownTracker(store, func() time.Time { return base }, zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordFired(ctx, "r1", "btc", base); err != nil {
		t.Fatalf("RecordFired: %v", err)
	}

	eligible, _ := tracker.IsEligible(ctx, "r1", "eth", 24*time.Hour)
	if !eligible {
		t.Fatal("firing for one subject must not cool down another")
	}
	eligible, _ = tracker.IsEligible(ctx, "r2", "btc", 24*time.Hour)
	if !eligible {
		t.Fatal("firing of one rule must not cool down another")
	}
}

// contentionStore flags overlapping store calls for the same key.
type contentionStore struct {
	inFlight   atomic.Int32
	overlapped atomic.Bool
	mu         sync.Mutex
	fired      map[string]time.Time
}

func newContentionStore() *contentionStore {
	return &contentionStore{fired: make(map[string]time.Time)}
}

func (s *contentionStore) enter() {
	if s.inFlight.Add(1) > 1 {
		s.overlapped.Store(true)
	}
	time.Sleep(time.Millisecond)
}

func (s *contentionStore) leave() { s.inFlight.Add(-1) }

func (s *contentionStore) LastFired(_ context.Context, ruleID, subjectID string) (time.Time, bool, error) {
	s.enter()
	defer s.leave()
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.fired[ruleID+"|"+subjectID]
	return at, ok, nil
}

func (s *contentionStore) UpsertLastFired(_ context.Context, ruleID, subjectID string, at time.Time) error {
	s.enter()
	defer s.leave()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[ruleID+"|"+subjectID] = at
	return nil
}

func (s *contentionStore) DeleteCooldown(_ context.Context, ruleID, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fired, ruleID+"|"+subjectID)
	return nil
}

func TestCooldownSerializesStoreCallsPerKey(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newContentionStore()
	tracker := NewCooldownTracker(store, func() time.Time { return base }, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.IsEligible(ctx, "r1", "btc", time.Hour); err != nil {
				t.Errorf("IsEligible: %v", err)
			}
			if err := tracker.RecordFired(ctx, "r1", "btc", base); err != nil {
				t.Errorf("RecordFired: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.overlapped.Load() {
		t.Fatal("同一键的存储调用必须串行执行")
	}
}

func TestCooldownClear(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	tracker := NewCooldownTracker(store, func() time.Time { return base }, zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordFired(ctx, "r1", "btc", base); err != nil {
		t.Fatalf("RecordFired: %v", err)
	}
	if err := tracker.Clear(ctx, "r1", "btc"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	eligible, _ := tracker.IsEligible(ctx, "r1", "btc", 24*time.Hour)
	if !eligible {
		t.Fatal("a cleared pair must be eligible again")
	}
}
