package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blackbear10000/price-monitor/internal/storage"
)

func TestRenderThresholdTrigger(t *testing.T) {
	text := RenderTrigger(testRecord(1))

	for _, want := range []string{"BTC", "120.0000", "rose to or above", "high"} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered alert should contain %q:\n%s", want, text)
		}
	}
}

func TestRenderTrendTrigger(t *testing.T) {
	record := testRecord(1)
	record.RuleType = storage.RuleTrend
	record.Condition = storage.ConditionDecrease
	record.Target = decimal.NewFromInt(5)
	record.Trend = &storage.TrendPayload{
		Magnitude:      decimal.NewFromInt(5),
		Lookback:       24 * time.Hour,
		ActualChange:   decimal.RequireFromString("-6.25"),
		ReferencePrice: decimal.NewFromInt(128),
		ReferenceTime:  time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
	}

	text := RenderTrigger(record)
	for _, want := range []string{"fell 5% within 24h", "-6.25%", "128.0000"} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered alert should contain %q:\n%s", want, text)
		}
	}
}

func TestFormatPriceScalesPrecision(t *testing.T) {
	cases := map[string]string{
		"64123.551": "64123.55",
		"512.3":     "512.300",
		"1.5":       "1.5000",
		"0.05":      "0.05000",
		"0.0005":    "0.000500",
		"0.0000042": "0.00000420",
	}
	for in, want := range cases {
		if got := FormatPrice(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatPrice(%s) = %s, want %s", in, got, want)
		}
	}
}
