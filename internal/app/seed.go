package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blackbear10000/price-monitor/internal/config"
	"github.com/blackbear10000/price-monitor/internal/storage"
)

// ruleSeedNamespace derives stable rule IDs from seed content so restarts
// upsert instead of duplicating.
var ruleSeedNamespace = uuid.MustParse("8f1d2a74-5c0b-4c9e-9be1-3f6a0d4b7c55")

// Seed upserts the configured subjects and rules. Invalid seeds are logged
// and skipped; an unreachable store aborts.
func (a *App) Seed(ctx context.Context, store *storage.Store) error {
	for _, seed := range a.Config.Subjects {
		if seed.ID == "" {
			a.Logger.Warn().Str("symbol", seed.Symbol).Msg("subject seed missing id; skipped")
			continue
		}
		subject := storage.Subject{
			ID:          seed.ID,
			Symbol:      seed.Symbol,
			Description: seed.Description,
			Active:      true,
			Priority:    seed.Priority,
		}
		if subject.Symbol == "" {
			subject.Symbol = subject.ID
		}
		if err := store.UpsertSubject(ctx, subject); err != nil {
			return fmt.Errorf("seed subject %s: %w", seed.ID, err)
		}
	}

	for _, seed := range a.Config.Rules.Global {
		if err := a.seedRule(ctx, store, seed, nil); err != nil {
			return err
		}
	}
	for subjectID, seeds := range a.Config.Rules.Subject {
		id := subjectID
		for _, seed := range seeds {
			if err := a.seedRule(ctx, store, seed, &id); err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *App) seedRule(ctx context.Context, store *storage.Store, seed config.RuleSeed, subjectID *string) error {
	rule, err := buildRule(seed, subjectID)
	if err != nil {
		a.Logger.Error().Err(err).
			Str("type", seed.Type).
			Str("condition", seed.Condition).
			Msg("invalid rule seed; skipped")
		return nil
	}
	if err := store.UpsertRule(ctx, rule); err != nil {
		return fmt.Errorf("seed rule %s: %w", rule.ID, err)
	}
	return nil
}

func buildRule(seed config.RuleSeed, subjectID *string) (storage.Rule, error) {
	spec := storage.RuleSpec{
		Type:      storage.RuleType(seed.Type),
		Condition: storage.Condition(seed.Condition),
		Value:     decimalFromFloat(seed.Value),
		Lookback:  seed.Lookback,
	}

	payload, err := storage.EncodeCondition(spec)
	if err != nil {
		return storage.Rule{}, err
	}

	rule := storage.Rule{
		ID:          seed.ID,
		SubjectID:   subjectID,
		Condition:   payload,
		Enabled:     true,
		OneShot:     seed.OneShot,
		Cooldown:    seed.Cooldown,
		Priority:    seed.Priority,
		Description: seed.Description,
	}
	if rule.ID == "" {
		rule.ID = deriveRuleID(spec, subjectID)
	}
	if rule.Cooldown <= 0 {
		rule.Cooldown = 24 * time.Hour
	}
	if rule.Priority == "" {
		rule.Priority = "medium"
	}

	// Round-trip through Spec to reject malformed seeds up front.
	if _, err := rule.Spec(); err != nil {
		return storage.Rule{}, err
	}
	return rule, nil
}

func deriveRuleID(spec storage.RuleSpec, subjectID *string) string {
	scope := "global"
	if subjectID != nil {
		scope = *subjectID
	}
	key := scope + "|" + string(spec.Type) + "|" + string(spec.Condition) + "|" + spec.Value.String() + "|" + spec.Lookback.String()
	return uuid.NewSHA1(ruleSeedNamespace, []byte(key)).String()
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
