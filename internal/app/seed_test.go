package app

import (
	"testing"
	"time"

	"github.com/blackbear10000/price-monitor/internal/config"
	"github.com/blackbear10000/price-monitor/internal/storage"
)

func TestBuildRuleDefaults(t *testing.T) {
	rule, err := buildRule(config.RuleSeed{
		Type:      "threshold",
		Condition: "above",
		Value:     100,
	}, nil)
	if err != nil {
		t.Fatalf("buildRule: %v", err)
	}
	if rule.ID == "" {
		t.Fatal("a seed without id must receive a derived one")
	}
	if rule.Cooldown != 24*time.Hour {
		t.Fatalf("cooldown should default to 24h, got %s", rule.Cooldown)
	}
	if rule.Priority != "medium" {
		t.Fatalf("priority should default to medium, got %s", rule.Priority)
	}
	if !rule.Enabled {
		t.Fatal("seeded rules start enabled")
	}
}

func TestBuildRuleDerivedIDIsStable(t *testing.T) {
	seed := config.RuleSeed{Type: "trend", Condition: "decrease", Value: 5, Lookback: 24 * time.Hour}
	subject := "bitcoin"

	a, err := buildRule(seed, &subject)
	if err != nil {
		t.Fatalf("buildRule: %v", err)
	}
	b, err := buildRule(seed, &subject)
	if err != nil {
		t.Fatalf("buildRule: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("the same seed must derive the same id: %s vs %s", a.ID, b.ID)
	}

	global, err := buildRule(seed, nil)
	if err != nil {
		t.Fatalf("buildRule: %v", err)
	}
	if global.ID == a.ID {
		t.Fatal("global and subject-scoped seeds must not collide")
	}
}

func TestBuildRuleRejectsInvalidSeeds(t *testing.T) {
	cases := []config.RuleSeed{
		{Type: "banana", Condition: "above", Value: 1},
		{Type: "threshold", Condition: "increase", Value: 1},
		{Type: "threshold", Condition: "above", Value: 0},
		{Type: "trend", Condition: "decrease", Value: 5}, // missing lookback
	}
	for i, seed := range cases {
		if _, err := buildRule(seed, nil); err == nil {
			t.Fatalf("case %d: expected an error for %+v", i, seed)
		}
	}
}

func TestBuildRuleKeepsExplicitID(t *testing.T) {
	rule, err := buildRule(config.RuleSeed{
		ID:        "btc-ath",
		Type:      "threshold",
		Condition: "above",
		Value:     100000,
		OneShot:   true,
	}, nil)
	if err != nil {
		t.Fatalf("buildRule: %v", err)
	}
	if rule.ID != "btc-ath" {
		t.Fatalf("explicit id must be kept, got %s", rule.ID)
	}
	if !rule.OneShot {
		t.Fatal("one_shot must carry through")
	}
	if _, err := (storage.Rule{Condition: rule.Condition}).Spec(); err != nil {
		t.Fatalf("seeded payload must decode: %v", err)
	}
}
