package timeutil

import (
	"testing"
	"time"
)

func TestNormalizeDropsZoneAndSubsecond(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	in := time.Date(2026, 3, 14, 9, 26, 53, 589793238, loc)

	got := Normalize(in)

	if got.Location() != time.UTC {
		t.Fatalf("normalised timestamp should be UTC, got %v", got.Location())
	}
	if got.Nanosecond() != 0 {
		t.Fatalf("normalised timestamp should have second precision, got %dns", got.Nanosecond())
	}
	want := time.Date(2026, 3, 14, 1, 26, 53, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFormatStable(t *testing.T) {
	in := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := Format(in); got != "2026-01-02 03:04:05" {
		t.Fatalf("unexpected rendering: %s", got)
	}
}
