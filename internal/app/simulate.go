package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blackbear10000/price-monitor/internal/alerting"
	"github.com/blackbear10000/price-monitor/internal/config"
	"github.com/blackbear10000/price-monitor/internal/notify"
	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

// SimulateOptions describe a synthetic rule and price scenario.
type SimulateOptions struct {
	Symbol    string
	Price     float64
	Reference float64
	RuleType  string
	Condition string
	Value     float64
	Lookback  time.Duration
}

// SimulateAlert 使用合成的规则与价格走完一次完整的评估和通知流程，
// 不依赖数据库，用于验证告警链路配置。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	if opts.Symbol == "" {
		opts.Symbol = "SIM"
	}

	rule, err := buildRule(config.RuleSeed{
		Type:        opts.RuleType,
		Condition:   opts.Condition,
		Value:       opts.Value,
		Lookback:    opts.Lookback,
		Description: "simulated rule",
	}, nil)
	if err != nil {
		return fmt.Errorf("invalid simulated rule: %w", err)
	}

	subject := storage.Subject{ID: opts.Symbol, Symbol: opts.Symbol, Active: true}
	prices := &staticPriceStore{
		current: storage.PriceSample{
			SubjectID: subject.ID,
			Value:     decimal.NewFromFloat(opts.Price),
			Timestamp: timeutil.Now(),
			Source:    "simulated",
		},
	}
	if opts.Reference > 0 {
		prices.reference = &storage.PriceSample{
			SubjectID: subject.ID,
			Value:     decimal.NewFromFloat(opts.Reference),
			Timestamp: timeutil.Now().Add(-opts.Lookback),
			Source:    "simulated",
		}
	}

	evaluator := alerting.NewEvaluator(alerting.Config{
		Subjects:  &staticSubjectStore{subject: subject},
		Prices:    prices,
		Rules:     &staticRuleStore{rule: rule},
		Triggers:  &memTriggerStore{},
		Cooldowns: alerting.NewCooldownTracker(&memCooldownStore{}, nil, a.Logger),
		Dedup:     alerting.NewTrendDedup(&memTriggerStore{}, a.Config.Evaluation.DedupWindow, decimalFromFloat(a.Config.Evaluation.DedupTolerancePct), nil, a.Logger),
		Workers:   1,
		Logger:    a.Logger,
	})

	records, err := evaluator.EvaluateSubject(ctx, subject.ID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "simulated scenario did not fire")
		return nil
	}

	sink, err := notify.NewFileSink(a.Config.Alerting.FallbackDir, a.Logger)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Channel:   a.newChannel(),
		Fallback:  sink,
		QueueSize: len(records),
		Policy: notify.RetryPolicy{
			MaxRetries: a.Config.Alerting.MaxRetries,
			BaseDelay:  a.Config.Alerting.RetryBaseDelay,
			MaxDelay:   a.Config.Alerting.RetryMaxDelay,
			Retryable:  notify.IsTransient,
		},
		Logger: a.Logger,
	})

	for _, record := range records {
		dispatcher.DeliverNow(ctx, record)
	}
	return nil
}

type staticSubjectStore struct {
	subject storage.Subject
}

func (s *staticSubjectStore) ListActiveSubjects(ctx context.Context) ([]storage.Subject, error) {
	return []storage.Subject{s.subject}, nil
}

func (s *staticSubjectStore) GetSubject(ctx context.Context, id string) (storage.Subject, error) {
	return s.subject, nil
}

func (s *staticSubjectStore) UpsertSubject(ctx context.Context, subject storage.Subject) error {
	return nil
}

type staticPriceStore struct {
	current   storage.PriceSample
	reference *storage.PriceSample
}

func (s *staticPriceStore) Latest(ctx context.Context, subjectID string) (storage.PriceSample, error) {
	return s.current, nil
}

func (s *staticPriceStore) At(ctx context.Context, subjectID string, ts time.Time) (storage.PriceSample, error) {
	if s.reference == nil {
		return storage.PriceSample{}, storage.ErrNoSample
	}
	return *s.reference, nil
}

func (s *staticPriceStore) InsertSample(ctx context.Context, sample storage.PriceSample) error {
	return nil
}

func (s *staticPriceStore) ListSamplesBetween(ctx context.Context, subjectID string, from, to time.Time) ([]storage.PriceSample, error) {
	return nil, nil
}

func (s *staticPriceStore) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type staticRuleStore struct {
	rule storage.Rule
}

func (s *staticRuleStore) GlobalRules(ctx context.Context) ([]storage.Rule, error) {
	return []storage.Rule{s.rule}, nil
}

func (s *staticRuleStore) SubjectRules(ctx context.Context, subjectID string) ([]storage.Rule, error) {
	return nil, nil
}

func (s *staticRuleStore) UpsertRule(ctx context.Context, rule storage.Rule) error {
	return nil
}

func (s *staticRuleStore) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	return nil
}

func (s *staticRuleStore) SetRuleLastFired(ctx context.Context, ruleID string, at time.Time) error {
	return nil
}

type memCooldownStore struct{}

func (s *memCooldownStore) LastFired(ctx context.Context, ruleID, subjectID string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (s *memCooldownStore) UpsertLastFired(ctx context.Context, ruleID, subjectID string, at time.Time) error {
	return nil
}

func (s *memCooldownStore) DeleteCooldown(ctx context.Context, ruleID, subjectID string) error {
	return nil
}

type memTriggerStore struct {
	nextID int64
}

func (s *memTriggerStore) AppendTrigger(ctx context.Context, record storage.TriggerRecord) (int64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *memTriggerStore) RecentTriggers(ctx context.Context, ruleID, subjectID string, condition storage.Condition, since time.Time) ([]storage.TriggerRecord, error) {
	return nil, nil
}

func (s *memTriggerStore) ListRecentTriggers(ctx context.Context, limit int) ([]storage.TriggerRecord, error) {
	return nil, nil
}

func (s *memTriggerStore) MarkTriggerNotified(ctx context.Context, recordID int64, at time.Time) error {
	return nil
}

func (s *memTriggerStore) DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

var _ storage.SubjectStore = (*staticSubjectStore)(nil)
var _ storage.PriceStore = (*staticPriceStore)(nil)
var _ storage.RuleStore = (*staticRuleStore)(nil)
var _ storage.CooldownStore = (*memCooldownStore)(nil)
var _ storage.TriggerStore = (*memTriggerStore)(nil)
