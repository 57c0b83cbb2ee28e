package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

// RenderTrigger produces the human-readable alert text shared by every
// delivery channel and the fallback sink.
func RenderTrigger(record storage.TriggerRecord) string {
	builder := strings.Builder{}
	builder.WriteString("🚨 Price Alert 🚨\n")
	builder.WriteString(fmt.Sprintf("Subject: %s (%s)\n", record.SubjectSymbol, record.SubjectID))
	builder.WriteString(fmt.Sprintf("Current price: $%s\n", FormatPrice(record.CurrentPrice)))
	builder.WriteString(fmt.Sprintf("Condition: %s\n", conditionText(record)))
	builder.WriteString(fmt.Sprintf("Priority: %s\n", record.Priority))
	builder.WriteString(fmt.Sprintf("Triggered at: %s UTC\n", timeutil.Format(record.FiredAt)))
	if record.Description != "" {
		builder.WriteString(fmt.Sprintf("Note: %s\n", record.Description))
	}
	return strings.TrimRight(builder.String(), "\n")
}

func conditionText(record storage.TriggerRecord) string {
	switch record.RuleType {
	case storage.RuleThreshold:
		if record.Condition == storage.ConditionAbove {
			return fmt.Sprintf("price rose to or above $%s", FormatPrice(record.Target))
		}
		return fmt.Sprintf("price fell to or below $%s", FormatPrice(record.Target))

	case storage.RuleTrend:
		if record.Trend == nil {
			return fmt.Sprintf("%s %s%%", record.Condition, record.Target.String())
		}
		direction := "rose"
		if record.Condition == storage.ConditionDecrease {
			direction = "fell"
		}
		return fmt.Sprintf("%s %s%% within %s (actual %s%%, reference $%s at %s UTC)",
			direction,
			record.Target.String(),
			formatLookback(record.Trend.Lookback),
			record.Trend.ActualChange.StringFixed(2),
			FormatPrice(record.Trend.ReferencePrice),
			timeutil.Format(record.Trend.ReferenceTime),
		)
	}
	return string(record.Condition)
}

func formatLookback(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return d.String()
}

// FormatPrice renders a price with precision scaled to its magnitude, so BTC
// and micro-cap values both stay readable.
func FormatPrice(price decimal.Decimal) string {
	abs := price.Abs()
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return price.StringFixed(2)
	case abs.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return price.StringFixed(3)
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return price.StringFixed(4)
	case abs.GreaterThanOrEqual(decimal.NewFromFloat(0.01)):
		return price.StringFixed(5)
	case abs.GreaterThanOrEqual(decimal.NewFromFloat(0.0001)):
		return price.StringFixed(6)
	default:
		return price.StringFixed(8)
	}
}
