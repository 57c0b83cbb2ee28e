package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/blackbear10000/price-monitor/internal/metrics"
	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

// Config wires the evaluator's collaborators.
type Config struct {
	Subjects  storage.SubjectStore
	Prices    storage.PriceStore
	Rules     storage.RuleStore
	Triggers  storage.TriggerStore
	Cooldowns *CooldownTracker
	Dedup     *TrendDedup
	Workers   int
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Evaluator runs alert evaluation passes over the active subjects. One broken
// rule or one unreachable subject never blocks alerting for the rest of the
// portfolio; only an unreachable store aborts a cycle.
type Evaluator struct {
	subjects  storage.SubjectStore
	prices    storage.PriceStore
	rules     storage.RuleStore
	triggers  storage.TriggerStore
	cooldowns *CooldownTracker
	dedup     *TrendDedup
	workers   int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	now := cfg.Now
	if now == nil {
		now = timeutil.Now
	}
	return &Evaluator{
		subjects:  cfg.Subjects,
		prices:    cfg.Prices,
		rules:     cfg.Rules,
		triggers:  cfg.Triggers,
		cooldowns: cfg.Cooldowns,
		dedup:     cfg.Dedup,
		workers:   workers,
		now:       now,
		logger:    cfg.Logger.With().Str("component", "evaluator").Logger(),
	}
}

// EvaluateCycle runs one complete evaluation pass over every active subject
// and returns the accepted trigger records.
func (e *Evaluator) EvaluateCycle(ctx context.Context) ([]storage.TriggerRecord, error) {
	started := time.Now()

	subjects, err := e.subjects.ListActiveSubjects(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("list active subjects: %w", err)
	}
	if len(subjects) == 0 {
		e.logger.Warn().Msg("no active subjects; skipping evaluation cycle")
		metrics.CyclesTotal.WithLabelValues("ok").Inc()
		return nil, nil
	}

	globals, err := e.rules.GlobalRules(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("list global rules: %w", err)
	}

	e.logger.Info().Int("subjects", len(subjects)).Int("global_rules", len(globals)).Msg("starting evaluation cycle")

	workers := pool.NewWithResults[[]storage.TriggerRecord]().WithMaxGoroutines(e.workers)
	for _, subject := range subjects {
		subject := subject
		workers.Go(func() []storage.TriggerRecord {
			// A subject in progress runs to completion; cancellation is
			// honoured between subjects.
			if ctx.Err() != nil {
				return nil
			}
			accepted, subErr := e.evaluateSubject(ctx, subject, globals)
			if subErr != nil {
				e.logger.Error().Err(subErr).
					Str("subject_id", subject.ID).
					Str("symbol", subject.Symbol).
					Msg("subject evaluation failed")
			}
			return accepted
		})
	}

	results := workers.Wait()
	accepted := make([]storage.TriggerRecord, 0)
	for _, records := range results {
		accepted = append(accepted, records...)
	}

	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	metrics.CycleDuration.Observe(time.Since(started).Seconds())
	e.logger.Info().Int("triggered", len(accepted)).Dur("elapsed", time.Since(started)).Msg("evaluation cycle complete")
	return accepted, nil
}

// EvaluateSubject runs an on-demand pass for a single subject.
func (e *Evaluator) EvaluateSubject(ctx context.Context, subjectID string) ([]storage.TriggerRecord, error) {
	subject, err := e.subjects.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !subject.Active {
		e.logger.Warn().Str("subject_id", subjectID).Msg("subject inactive; skipping evaluation")
		return nil, nil
	}
	globals, err := e.rules.GlobalRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list global rules: %w", err)
	}
	return e.evaluateSubject(ctx, subject, globals)
}

func (e *Evaluator) evaluateSubject(ctx context.Context, subject storage.Subject, globals []storage.Rule) ([]storage.TriggerRecord, error) {
	current, err := e.prices.Latest(ctx, subject.ID)
	if errors.Is(err, storage.ErrNoSample) {
		e.logger.Warn().Str("subject_id", subject.ID).Str("symbol", subject.Symbol).Msg("no price data; skipping subject")
		metrics.SubjectsSkipped.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest price for %s: %w", subject.ID, err)
	}

	scoped, err := e.rules.SubjectRules(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("subject rules for %s: %w", subject.ID, err)
	}

	// Subject-scoped rules are checked before globals so that when both
	// express the same condition the more specific one wins the in-cycle
	// dedup.
	ordered := make([]storage.Rule, 0, len(scoped)+len(globals))
	ordered = append(ordered, scoped...)
	ordered = append(ordered, globals...)

	now := timeutil.Normalize(e.now())
	seen := make(map[string]struct{}, len(ordered))
	accepted := make([]storage.TriggerRecord, 0)

	for _, rule := range ordered {
		record, ruleErr := e.evaluateRule(ctx, subject, rule, current, now, seen)
		if ruleErr != nil {
			e.logger.Error().Err(ruleErr).
				Str("rule_id", rule.ID).
				Str("subject_id", subject.ID).
				Msg("rule evaluation failed")
			continue
		}
		if record != nil {
			accepted = append(accepted, *record)
		}
	}

	return accepted, nil
}

// evaluateRule checks one rule against one subject. It returns a non-nil
// record only for an accepted firing; a nil record with nil error means the
// rule did not fire or was suppressed.
func (e *Evaluator) evaluateRule(ctx context.Context, subject storage.Subject, rule storage.Rule, current storage.PriceSample, now time.Time, seen map[string]struct{}) (*storage.TriggerRecord, error) {
	spec, err := rule.Spec()
	if err != nil {
		metrics.MalformedRules.Inc()
		return nil, fmt.Errorf("malformed rule: %w", err)
	}

	eligible, err := e.cooldowns.IsEligible(ctx, rule.ID, subject.ID, rule.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("cooldown check: %w", err)
	}
	if !eligible {
		e.logger.Debug().Str("rule_id", rule.ID).Str("subject_id", subject.ID).Msg("rule in cooldown")
		metrics.TriggersSuppressed.WithLabelValues("cooldown").Inc()
		return nil, nil
	}

	var (
		fired bool
		trend *storage.TrendPayload
	)

	switch spec.Type {
	case storage.RuleThreshold:
		switch spec.Condition {
		case storage.ConditionAbove:
			fired = current.Value.GreaterThanOrEqual(spec.Value)
		case storage.ConditionBelow:
			fired = current.Value.LessThanOrEqual(spec.Value)
		}

	case storage.RuleTrend:
		referenceTime := now.Add(-spec.Lookback)
		reference, refErr := e.prices.At(ctx, subject.ID, referenceTime)
		if errors.Is(refErr, storage.ErrNoSample) {
			// Not an error: the series simply does not reach back far enough.
			e.logger.Debug().
				Str("rule_id", rule.ID).
				Str("subject_id", subject.ID).
				Time("reference_time", referenceTime).
				Msg("no reference sample; trend rule not evaluated")
			return nil, nil
		}
		if refErr != nil {
			return nil, fmt.Errorf("reference price: %w", refErr)
		}
		if reference.Value.IsZero() {
			return nil, fmt.Errorf("reference price is zero at %s", timeutil.Format(reference.Timestamp))
		}

		change := current.Value.Sub(reference.Value).Div(reference.Value).Mul(hundred)
		switch spec.Condition {
		case storage.ConditionIncrease:
			fired = change.GreaterThanOrEqual(spec.Value)
		case storage.ConditionDecrease:
			fired = change.LessThanOrEqual(spec.Value.Neg())
		}
		if fired {
			trend = &storage.TrendPayload{
				Magnitude:      spec.Value,
				Lookback:       spec.Lookback,
				ActualChange:   change,
				ReferencePrice: reference.Value,
				ReferenceTime:  reference.Timestamp,
			}
		}
	}

	if !fired {
		return nil, nil
	}

	if trend != nil && e.dedup != nil {
		continuation, dedupErr := e.dedup.IsContinuation(ctx, rule.ID, subject.ID, spec.Condition, trend.ActualChange)
		if dedupErr == nil && continuation {
			e.logger.Info().
				Str("rule_id", rule.ID).
				Str("subject_id", subject.ID).
				Str("change_pct", trend.ActualChange.StringFixed(2)).
				Msg("suppressed trend continuation")
			metrics.TriggersSuppressed.WithLabelValues("continuation").Inc()
			return nil, nil
		}
	}

	dedupKey := cycleKey(spec)
	if _, dup := seen[dedupKey]; dup {
		e.logger.Debug().Str("rule_id", rule.ID).Str("subject_id", subject.ID).Msg("duplicate condition already fired this cycle")
		metrics.TriggersSuppressed.WithLabelValues("duplicate").Inc()
		return nil, nil
	}

	record := storage.TriggerRecord{
		RuleID:        rule.ID,
		SubjectID:     subject.ID,
		SubjectSymbol: subject.Symbol,
		RuleType:      spec.Type,
		Condition:     spec.Condition,
		Target:        spec.Value,
		Trend:         trend,
		CurrentPrice:  current.Value,
		Priority:      rule.Priority,
		Description:   rule.Description,
		FiredAt:       now,
	}

	id, appendErr := e.triggers.AppendTrigger(ctx, record)
	if appendErr != nil {
		// Without a persisted record the firing is not accepted; the cooldown
		// stays untouched so the next cycle retries naturally.
		return nil, fmt.Errorf("persist trigger: %w", appendErr)
	}
	record.ID = id

	if err := e.cooldowns.RecordFired(ctx, rule.ID, subject.ID, now); err != nil {
		e.logger.Error().Err(err).Str("rule_id", rule.ID).Str("subject_id", subject.ID).Msg("failed to record cooldown")
	}

	if rule.OneShot {
		if err := e.rules.SetRuleEnabled(ctx, rule.ID, false); err != nil {
			e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("failed to disable one-shot rule")
		} else {
			e.logger.Info().Str("rule_id", rule.ID).Msg("one-shot rule disabled")
		}
	} else if err := e.rules.SetRuleLastFired(ctx, rule.ID, now); err != nil {
		e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("failed to update rule last-fired")
	}

	seen[dedupKey] = struct{}{}
	metrics.TriggersFired.WithLabelValues(string(spec.Type)).Inc()
	e.logger.Info().
		Str("rule_id", rule.ID).
		Str("subject_id", subject.ID).
		Str("symbol", subject.Symbol).
		Str("type", string(spec.Type)).
		Str("condition", string(spec.Condition)).
		Str("price", current.Value.String()).
		Msg("alert triggered")

	return &record, nil
}

// cycleKey identifies a logical alert within one cycle: a global and a
// subject-scoped rule expressing the same condition count as one.
func cycleKey(spec storage.RuleSpec) string {
	return string(spec.Type) + "|" + string(spec.Condition) + "|" + spec.Value.String()
}
