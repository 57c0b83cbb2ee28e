package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RuleType discriminates the two rule variants.
type RuleType string

const (
	RuleThreshold RuleType = "threshold"
	RuleTrend     RuleType = "trend"
)

// Condition is the comparison a rule applies to the subject's price.
type Condition string

const (
	ConditionAbove    Condition = "above"
	ConditionBelow    Condition = "below"
	ConditionIncrease Condition = "increase"
	ConditionDecrease Condition = "decrease"
)

// Subject is a monitored asset. Read-only input to the evaluator.
type Subject struct {
	ID          string
	Symbol      string
	Description string
	Active      bool
	Priority    int
	AddedAt     time.Time
}

// Rule is a stored alert definition. The condition payload is kept as raw
// JSON so that one unparseable rule cannot poison loading of the others;
// Spec decodes it on demand.
type Rule struct {
	ID            string
	SubjectID     *string // nil means the rule is global
	Condition     json.RawMessage
	Enabled       bool
	OneShot       bool
	Cooldown      time.Duration
	Priority      string
	Description   string
	LastTriggered *time.Time
}

// RuleSpec is the decoded condition payload of a Rule.
type RuleSpec struct {
	Type      RuleType
	Condition Condition
	Value     decimal.Decimal
	Lookback  time.Duration
}

type conditionDoc struct {
	Type            string      `json:"type"`
	Condition       string      `json:"condition"`
	Value           json.Number `json:"value"`
	LookbackSeconds int64       `json:"lookback_seconds,omitempty"`
}

// Spec decodes and validates the rule's condition payload.
func (r Rule) Spec() (RuleSpec, error) {
	var doc conditionDoc
	if err := json.Unmarshal(r.Condition, &doc); err != nil {
		return RuleSpec{}, fmt.Errorf("decode condition payload: %w", err)
	}

	value, err := decimal.NewFromString(doc.Value.String())
	if err != nil {
		return RuleSpec{}, fmt.Errorf("parse condition value %q: %w", doc.Value.String(), err)
	}

	spec := RuleSpec{
		Type:      RuleType(doc.Type),
		Condition: Condition(doc.Condition),
		Value:     value,
		Lookback:  time.Duration(doc.LookbackSeconds) * time.Second,
	}

	switch spec.Type {
	case RuleThreshold:
		if spec.Condition != ConditionAbove && spec.Condition != ConditionBelow {
			return RuleSpec{}, fmt.Errorf("threshold rule has condition %q", doc.Condition)
		}
		if !spec.Value.IsPositive() {
			return RuleSpec{}, errors.New("threshold target must be positive")
		}
	case RuleTrend:
		if spec.Condition != ConditionIncrease && spec.Condition != ConditionDecrease {
			return RuleSpec{}, fmt.Errorf("trend rule has condition %q", doc.Condition)
		}
		if spec.Lookback <= 0 {
			return RuleSpec{}, errors.New("trend rule requires a lookback duration")
		}
	default:
		return RuleSpec{}, fmt.Errorf("unknown rule type %q", doc.Type)
	}

	return spec, nil
}

// EncodeCondition builds a condition payload from a decoded spec. Used when
// seeding rules from configuration.
func EncodeCondition(spec RuleSpec) (json.RawMessage, error) {
	doc := conditionDoc{
		Type:      string(spec.Type),
		Condition: string(spec.Condition),
		Value:     json.Number(spec.Value.String()),
	}
	if spec.Type == RuleTrend {
		doc.LookbackSeconds = int64(spec.Lookback / time.Second)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode condition payload: %w", err)
	}
	return raw, nil
}

// PriceSample is one append-only observation of a subject's price.
type PriceSample struct {
	SubjectID string
	Value     decimal.Decimal
	Timestamp time.Time
	Source    string
}

// TrendPayload carries the observed movement behind a trend firing.
type TrendPayload struct {
	Magnitude      decimal.Decimal `json:"magnitude"`
	Lookback       time.Duration   `json:"lookback_ns"`
	ActualChange   decimal.Decimal `json:"actual_change"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	ReferenceTime  time.Time       `json:"reference_time"`
}

// TriggerRecord is the immutable log entry of an accepted firing. Only the
// notification fields are ever updated after insert.
type TriggerRecord struct {
	ID               int64
	RuleID           string
	SubjectID        string
	SubjectSymbol    string // resolved from subjects, not persisted on the record
	RuleType         RuleType
	Condition        Condition
	Target           decimal.Decimal
	Trend            *TrendPayload
	CurrentPrice     decimal.Decimal
	Priority         string
	Description      string
	FiredAt          time.Time
	NotificationSent bool
	NotificationTime *time.Time
}

// NotificationEntry is one append-only delivery-outcome line.
type NotificationEntry struct {
	ID         int64
	RecordID   int64
	Channel    string
	Content    string
	Status     string
	Error      string
	RetryCount int
	CreatedAt  time.Time
}
