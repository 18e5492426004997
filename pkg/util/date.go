package util

import (
	"math"
	"strconv"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02 15:04:05.999999 MST",
	time.DateOnly,
}

// ParseTime tries RFC3339, RFC3339Nano, SQL datetime, date-only, and unix seconds.
// Unix seconds may be fractional or in exponent form, as BigQuery encodes TIMESTAMP cells.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FormatDate renders the UTC calendar date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// NormalizeDate rewrites any parseable time as YYYY-MM-DD and leaves other values untouched.
func NormalizeDate(s string) string {
	if t, ok := ParseTime(s); ok {
		return FormatDate(t)
	}
	return s
}

// NormalizeTimestamp rewrites any parseable time as RFC3339 UTC and leaves other values untouched.
func NormalizeTimestamp(s string) string {
	if t, ok := ParseTime(s); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return s
}

// NextUTCMidnight returns the start of the UTC day after t.
func NextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
