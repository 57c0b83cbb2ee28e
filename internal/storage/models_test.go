package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSpecDecodesThreshold(t *testing.T) {
	rule := Rule{Condition: json.RawMessage(`{"type":"threshold","condition":"above","value":100.5}`)}
	spec, err := rule.Spec()
	if err != nil {
		t.Fatalf("Spec: %v", err)
	}
	if spec.Type != RuleThreshold || spec.Condition != ConditionAbove {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if !spec.Value.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("value should be 100.5, got %s", spec.Value)
	}
}

func TestSpecDecodesTrend(t *testing.T) {
	rule := Rule{Condition: json.RawMessage(`{"type":"trend","condition":"decrease","value":5,"lookback_seconds":86400}`)}
	spec, err := rule.Spec()
	if err != nil {
		t.Fatalf("Spec: %v", err)
	}
	if spec.Lookback != 24*time.Hour {
		t.Fatalf("lookback should be 24h, got %s", spec.Lookback)
	}
}

func TestSpecRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"truncated json":       `{"type":"threshold"`,
		"unknown type":         `{"type":"banana","condition":"above","value":1}`,
		"threshold wrong cond": `{"type":"threshold","condition":"increase","value":1}`,
		"threshold zero value": `{"type":"threshold","condition":"above","value":0}`,
		"negative threshold":   `{"type":"threshold","condition":"below","value":-5}`,
		"trend wrong cond":     `{"type":"trend","condition":"above","value":5,"lookback_seconds":60}`,
		"trend no lookback":    `{"type":"trend","condition":"increase","value":5}`,
		"non-numeric value":    `{"type":"threshold","condition":"above","value":"abc"}`,
	}
	for name, payload := range cases {
		rule := Rule{Condition: json.RawMessage(payload)}
		if _, err := rule.Spec(); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestEncodeConditionRoundTrip(t *testing.T) {
	spec := RuleSpec{
		Type:      RuleTrend,
		Condition: ConditionIncrease,
		Value:     decimal.RequireFromString("7.5"),
		Lookback:  6 * time.Hour,
	}
	payload, err := EncodeCondition(spec)
	if err != nil {
		t.Fatalf("EncodeCondition: %v", err)
	}

	decoded, err := Rule{Condition: payload}.Spec()
	if err != nil {
		t.Fatalf("Spec: %v", err)
	}
	if decoded.Type != spec.Type || decoded.Condition != spec.Condition || !decoded.Value.Equal(spec.Value) || decoded.Lookback != spec.Lookback {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, spec)
	}
}
