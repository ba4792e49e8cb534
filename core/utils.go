package core

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanOr returns the cleaned `s`, or `fallback` when nothing is left of it.
func CleanOr(s, fallback string, lower ...bool) string {
	if s = CleanString(s, lower...); s != "" {
		return s
	}
	return fallback
}

// ParseDate parses a calendar day ("2006-01-02") as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, CleanString(s), time.UTC)
}

// TruncateDay drops the time of day, keeping the calendar day of `t` in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ContainsString reports whether `s` is in `slice`.
func ContainsString(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

// NowFunc returns the current UTC time. Tests replace it to pin "today".
var NowFunc = func() time.Time { return time.Now().UTC() }

// Today returns the current calendar day (midnight UTC).
func Today() time.Time {
	return TruncateDay(NowFunc())
}

// UniqueStrings returns the non-empty strings of `slice` without duplicates, keeping order.
func UniqueStrings(slice []string) []string {
	seen := make(map[string]struct{}, len(slice))
	res := make([]string, 0, len(slice))
	for _, s := range slice {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		res = append(res, s)
	}
	return res
}
