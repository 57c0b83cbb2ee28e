package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/blackbear10000/price-monitor/internal/storage"
)

type fakeStore struct {
	subjects []storage.Subject
	latest   map[string]storage.PriceSample
	at       map[string]storage.PriceSample
	globals  []storage.Rule
	scoped   map[string][]storage.Rule

	cooldowns map[string]time.Time
	appended  []storage.TriggerRecord
	recent    []storage.TriggerRecord
	disabled  []string
	lastFired map[string]time.Time

	appendErr error
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		latest:    make(map[string]storage.PriceSample),
		at:        make(map[string]storage.PriceSample),
		scoped:    make(map[string][]storage.Rule),
		cooldowns: make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
	}
}

func (s *fakeStore) ListActiveSubjects(ctx context.Context) ([]storage.Subject, error) {
	return s.subjects, nil
}

func (s *fakeStore) GetSubject(ctx context.Context, id string) (storage.Subject, error) {
	for _, subject := range s.subjects {
		if subject.ID == id {
			return subject, nil
		}
	}
	return storage.Subject{}, errors.New("subject not found")
}

func (s *fakeStore) UpsertSubject(ctx context.Context, subject storage.Subject) error { return nil }

func (s *fakeStore) Latest(ctx context.Context, subjectID string) (storage.PriceSample, error) {
	sample, ok := s.latest[subjectID]
	if !ok {
		return storage.PriceSample{}, storage.ErrNoSample
	}
	return sample, nil
}

func (s *fakeStore) At(ctx context.Context, subjectID string, ts time.Time) (storage.PriceSample, error) {
	sample, ok := s.at[subjectID]
	if !ok {
		return storage.PriceSample{}, storage.ErrNoSample
	}
	return sample, nil
}

func (s *fakeStore) InsertSample(ctx context.Context, sample storage.PriceSample) error { return nil }

func (s *fakeStore) ListSamplesBetween(ctx context.Context, subjectID string, from, to time.Time) ([]storage.PriceSample, error) {
	return nil, nil
}

func (s *fakeStore) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeStore) GlobalRules(ctx context.Context) ([]storage.Rule, error) {
	return s.globals, nil
}

func (s *fakeStore) SubjectRules(ctx context.Context, subjectID string) ([]storage.Rule, error) {
	return s.scoped[subjectID], nil
}

func (s *fakeStore) UpsertRule(ctx context.Context, rule storage.Rule) error { return nil }

func (s *fakeStore) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	if !enabled {
		s.disabled = append(s.disabled, ruleID)
	}
	return nil
}

func (s *fakeStore) SetRuleLastFired(ctx context.Context, ruleID string, at time.Time) error {
	s.lastFired[ruleID] = at
	return nil
}

func (s *fakeStore) LastFired(ctx context.Context, ruleID, subjectID string) (time.Time, bool, error) {
	at, ok := s.cooldowns[ruleID+"|"+subjectID]
	return at, ok, nil
}

func (s *fakeStore) UpsertLastFired(ctx context.Context, ruleID, subjectID string, at time.Time) error {
	s.cooldowns[ruleID+"|"+subjectID] = at
	return nil
}

func (s *fakeStore) DeleteCooldown(ctx context.Context, ruleID, subjectID string) error {
	delete(s.cooldowns, ruleID+"|"+subjectID)
	return nil
}

func (s *fakeStore) AppendTrigger(ctx context.Context, record storage.TriggerRecord) (int64, error) {
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	s.nextID++
	record.ID = s.nextID
	s.appended = append(s.appended, record)
	return s.nextID, nil
}

func (s *fakeStore) RecentTriggers(ctx context.Context, ruleID, subjectID string, condition storage.Condition, since time.Time) ([]storage.TriggerRecord, error) {
	all := append(append([]storage.TriggerRecord{}, s.recent...), s.appended...)
	var out []storage.TriggerRecord
	for _, record := range all {
		if record.RuleID == ruleID && record.SubjectID == subjectID && record.Condition == condition && record.FiredAt.After(since) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *fakeStore) ListRecentTriggers(ctx context.Context, limit int) ([]storage.TriggerRecord, error) {
	return s.appended, nil
}

func (s *fakeStore) MarkTriggerNotified(ctx context.Context, recordID int64, at time.Time) error {
	return nil
}

func (s *fakeStore) DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

var _ storage.SubjectStore = (*fakeStore)(nil)
var _ storage.PriceStore = (*fakeStore)(nil)
var _ storage.RuleStore = (*fakeStore)(nil)
var _ storage.CooldownStore = (*fakeStore)(nil)
var _ storage.TriggerStore = (*fakeStore)(nil)

func thresholdRule(id string, condition string, value string, cooldown time.Duration, oneShot bool) storage.Rule {
	payload := `{"type":"threshold","condition":"` + condition + `","value":` + value + `}`
	return storage.Rule{
		ID:        id,
		Condition: json.RawMessage(payload),
		Enabled:   true,
		OneShot:   oneShot,
		Cooldown:  cooldown,
		Priority:  "medium",
	}
}

func trendRule(id string, condition string, value string, lookback time.Duration, cooldown time.Duration) storage.Rule {
	payload := `{"type":"trend","condition":"` + condition + `","value":` + value + `,"lookback_seconds":` + decimal.NewFromInt(int64(lookback/time.Second)).String() + `}`
	return storage.Rule{
		ID:        id,
		Condition: json.RawMessage(payload),
		Enabled:   true,
		Cooldown:  cooldown,
		Priority:  "medium",
	}
}

func sample(subjectID string, value string, at time.Time) storage.PriceSample {
	return storage.PriceSample{
		SubjectID: subjectID,
		Value:     decimal.RequireFromString(value),
		Timestamp: at,
		Source:    "test",
	}
}

func newTestEvaluator(store *fakeStore, now func() time.Time) *Evaluator {
	return NewEvaluator(Config{
		Subjects:  store,
		Prices:    store,
		Rules:     store,
		Triggers:  store,
		Cooldowns: NewCooldownTracker(store, now, zerolog.Nop()),
		Dedup:     NewTrendDedup(store, 24*time.Hour, decimal.NewFromInt(3), now, zerolog.Nop()),
		Workers:   1,
		Now:       now,
		Logger:    zerolog.Nop(),
	})
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestThresholdAboveInclusiveBoundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "btc", Symbol: "BTC", Active: true}}
	store.globals = []storage.Rule{thresholdRule("r1", "above", "100", time.Hour, false)}
	store.latest["btc"] = sample("btc", "100", base)

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("price equal to target must fire, got %d records", len(records))
	}
	if records[0].Condition != storage.ConditionAbove {
		t.Fatalf("unexpected condition %s", records[0].Condition)
	}
	if !records[0].FiredAt.Equal(base) {
		t.Fatalf("FiredAt should be the normalized evaluation time, got %s", records[0].FiredAt)
	}
}

func TestThresholdBelowDoesNotFireAboveTarget(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "btc", Symbol: "BTC", Active: true}}
	store.globals = []storage.Rule{thresholdRule("r1", "below", "90", time.Hour, false)}
	store.latest["btc"] = sample("btc", "90.01", base)

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("price above target must not fire a below rule, got %d", len(records))
	}
}

func TestThresholdBelowInclusiveBoundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "btc", Symbol: "BTC", Active: true}}
	store.globals = []storage.Rule{thresholdRule("r1", "below", "90", time.Hour, false)}
	store.latest["btc"] = sample("btc", "90", base)

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("price equal to target must fire a below rule, got %d records", len(records))
	}
	if records[0].Condition != storage.ConditionBelow {
		t.Fatalf("unexpected condition %s", records[0].Condition)
	}
}

func TestTrendExactMagnitudeFires(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "eth", Symbol: "ETH", Active: true}}
	store.globals = []storage.Rule{trendRule("r1", "decrease", "5", 24*time.Hour, time.Hour)}
	store.latest["eth"] = sample("eth", "95", base)
	store.at["eth"] = sample("eth", "100", base.Add(-24*time.Hour))

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("a drop of exactly 5%% must fire a 5%% decrease rule, got %d", len(records))
	}
	trend := records[0].Trend
	if trend == nil {
		t.Fatal("trend payload missing")
	}
	if !trend.ActualChange.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("actual change should be -5, got %s", trend.ActualChange)
	}
}

func TestTrendDecreaseFires(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "eth", Symbol: "ETH", Active: true}}
	store.globals = []storage.Rule{trendRule("r1", "decrease", "5", 24*time.Hour, time.Hour)}
	store.latest["eth"] = sample("eth", "94", base)
	store.at["eth"] = sample("eth", "100", base.Add(-24*time.Hour))

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("a 6%% drop must fire a 5%% decrease rule, got %d", len(records))
	}
	trend := records[0].Trend
	if trend == nil {
		t.Fatal("trend payload missing")
	}
	if !trend.ActualChange.Equal(decimal.NewFromInt(-6)) {
		t.Fatalf("actual change should be -6, got %s", trend.ActualChange)
	}
	if !trend.ReferencePrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("reference price should be 100, got %s", trend.ReferencePrice)
	}
}

func TestTrendMissingReferenceIsSilent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "eth", Symbol: "ETH", Active: true}}
	store.globals = []storage.Rule{trendRule("r1", "increase", "5", 24*time.Hour, time.Hour)}
	store.latest["eth"] = sample("eth", "100", base)
	// no reference sample installed

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("缺少参考样本不应报错: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("missing reference must never fire, got %d", len(records))
	}
}

func TestCooldownSuppressesRefire(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "btc", Symbol: "BTC", Active: true}}
	store.globals = []storage.Rule{thresholdRule("r1", "above", "100", 24*time.Hour, false)}

	clock := base
	now := func() time.Time { return clock }
	evaluator := newTestEvaluator(store, now)

	// below target: nothing happens
	store.latest["btc"] = sample("btc", "90", base)
	records, _ := evaluator.EvaluateCycle(context.Background())
	if len(records) != 0 {
		t.Fatalf("90 < 100 must not fire")
	}

	// crosses: fires once
	clock = clock.Add(time.Minute)
	store.latest["btc"] = sample("btc", "101", clock)
	records, _ = evaluator.EvaluateCycle(context.Background())
	if len(records) != 1 {
		t.Fatalf("101 >= 100 must fire, got %d", len(records))
	}

	// still above within the cooldown: suppressed
	clock = clock.Add(time.Minute)
	store.latest["btc"] = sample("btc", "102", clock)
	records, _ = evaluator.EvaluateCycle(context.Background())
	if len(records) != 0 {
		t.Fatalf("refire within cooldown must be suppressed, got %d", len(records))
	}

	// cooldown fully elapsed: eligible again
	clock = clock.Add(24 * time.Hour)
	records, _ = evaluator.EvaluateCycle(context.Background())
	if len(records) != 1 {
		t.Fatalf("elapsed cooldown must re-enable the rule, got %d", len(records))
	}
}

func TestOneShotRuleDisablesAfterFiring(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "btc", Symbol: "BTC", Active: true}}
	store.globals = []storage.Rule{thresholdRule("r1", "above", "100", time.Hour, true)}
	store.latest["btc"] = sample("btc", "150", base)

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("one-shot rule must fire once, got %d", len(records))
	}
	if len(store.disabled) != 1 || store.disabled[0] != "r1" {
		t.Fatalf("one-shot rule must be disabled after firing, got %v", store.disabled)
	}
	if _, ok := store.lastFired["r1"]; ok {
		t.Fatal("one-shot rule should not also receive a last-fired update")
	}
}

func TestMalformedRuleDoesNotBlockOthers(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "btc", Symbol: "BTC", Active: true}}
	bad := storage.Rule{ID: "bad", Condition: json.RawMessage(`{"type":"threshold"`), Enabled: true, Cooldown: time.Hour}
	store.globals = []storage.Rule{bad, thresholdRule("good", "above", "100", time.Hour, false)}
	store.latest["btc"] = sample("btc", "120", base)

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("a malformed rule must not fail the cycle: %v", err)
	}
	if len(records) != 1 || records[0].RuleID != "good" {
		t.Fatalf("the valid rule must still fire, got %+v", records)
	}
}

func TestInCycleDuplicateConditionFiresOnce(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subjectID := "btc"
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: subjectID, Symbol: "BTC", Active: true}}

	scopedRule := thresholdRule("scoped", "above", "100", time.Hour, false)
	scopedRule.SubjectID = &subjectID
	store.scoped[subjectID] = []storage.Rule{scopedRule}
	store.globals = []storage.Rule{thresholdRule("global", "above", "100", time.Hour, false)}
	store.latest[subjectID] = sample(subjectID, "120", base)

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("identical conditions must collapse to one firing per cycle, got %d", len(records))
	}
	if records[0].RuleID != "scoped" {
		t.Fatalf("the subject-scoped rule should win, got %s", records[0].RuleID)
	}
}

func TestTrendContinuationSuppressed(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "eth", Symbol: "ETH", Active: true}}
	store.globals = []storage.Rule{trendRule("r1", "decrease", "5", 24*time.Hour, time.Minute)}

	clock := base
	now := func() time.Time { return clock }
	evaluator := newTestEvaluator(store, now)

	store.latest["eth"] = sample("eth", "94", base)
	store.at["eth"] = sample("eth", "100", base.Add(-24*time.Hour))
	records, _ := evaluator.EvaluateCycle(context.Background())
	if len(records) != 1 {
		t.Fatalf("first -6%% drop must fire, got %d", len(records))
	}

	// -6.3% continues the reported -6% movement: within tolerance, suppressed
	clock = clock.Add(2 * time.Minute)
	store.latest["eth"] = sample("eth", "93.7", clock)
	records, _ = evaluator.EvaluateCycle(context.Background())
	if len(records) != 0 {
		t.Fatalf("continuation within tolerance must be suppressed, got %d", len(records))
	}

	// -12% is a materially new movement: fires
	clock = clock.Add(2 * time.Minute)
	store.latest["eth"] = sample("eth", "88", clock)
	records, _ = evaluator.EvaluateCycle(context.Background())
	if len(records) != 1 {
		t.Fatalf("a deeper drop beyond tolerance must fire, got %d", len(records))
	}
}

func TestPersistFailureLeavesCooldownUntouched(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{{ID: "btc", Symbol: "BTC", Active: true}}
	store.globals = []storage.Rule{thresholdRule("r1", "above", "100", 24*time.Hour, false)}
	store.latest["btc"] = sample("btc", "120", base)
	store.appendErr = errors.New("db down")

	clock := base
	now := func() time.Time { return clock }
	evaluator := newTestEvaluator(store, now)

	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("a failed insert must not fail the cycle: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("unpersisted firing must not be accepted, got %d", len(records))
	}
	if len(store.cooldowns) != 0 {
		t.Fatal("cooldown must stay untouched when the record was not persisted")
	}

	// store recovers: the next cycle fires normally
	store.appendErr = nil
	clock = clock.Add(time.Minute)
	records, _ = evaluator.EvaluateCycle(context.Background())
	if len(records) != 1 {
		t.Fatalf("recovered store must allow the firing, got %d", len(records))
	}
}

func TestSubjectWithoutDataIsSkipped(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.subjects = []storage.Subject{
		{ID: "nodata", Symbol: "NODATA", Active: true},
		{ID: "btc", Symbol: "BTC", Active: true},
	}
	store.globals = []storage.Rule{thresholdRule("r1", "above", "100", time.Hour, false)}
	store.latest["btc"] = sample("btc", "120", base)

	evaluator := newTestEvaluator(store, fixedClock(base))
	records, err := evaluator.EvaluateCycle(context.Background())
	if err != nil {
		t.Fatalf("EvaluateCycle: %v", err)
	}
	if len(records) != 1 || records[0].SubjectID != "btc" {
		t.Fatalf("the subject with data must still be evaluated, got %+v", records)
	}
}
