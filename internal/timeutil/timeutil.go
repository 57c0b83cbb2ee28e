// Package timeutil is the single timestamp-normalisation point for the
// monitor. Cooldown state, trigger records, and notification history all
// compare timestamps produced here; nothing else in the repository is
// allowed to format or truncate instants on its own.
package timeutil

import "time"

// Layout is the canonical wall-clock rendering for operator-facing output.
const Layout = "2006-01-02 15:04:05"

// Normalize converts t to the canonical representation: UTC, second precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Now returns the current instant in canonical form.
func Now() time.Time {
	return Normalize(time.Now())
}

// Format renders a canonical timestamp for display.
func Format(t time.Time) string {
	return Normalize(t).Format(Layout)
}
