package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateUnavailable is returned by FormatDate for missing or invalid input.
const DateUnavailable = "Date not available"

// TimestampLayout matches the millisecond ISO-8601 form the content API emits.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatDate renders a date-like value as "15 May, 2025".
//
// Accepted inputs are strings in any layout dateparse understands,
// time.Time, *time.Time and numeric epoch milliseconds. Unzoned strings are
// read as UTC and the result is always rendered in UTC. Anything absent or
// unparseable yields DateUnavailable; FormatDate never panics.
func FormatDate(v any) string {
	t, ok := toTime(v)
	if !ok {
		return DateUnavailable
	}
	t = t.UTC()
	return fmt.Sprintf("%d %s, %d", t.Day(), t.Format("Jan"), t.Year())
}

// ParseTime leniently parses a timestamp string.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTimestamp renders t the way the content API does.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case string:
		return ParseTime(val)
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case int:
		return time.UnixMilli(int64(val)), true
	case int64:
		return time.UnixMilli(val), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(val)), true
	default:
		return time.Time{}, false
	}
}
