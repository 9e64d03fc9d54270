package utils

import (
	"math"
	"time"
)

// timestampLayouts are tried in order when parsing feed timestamps. The feeds
// store local time without an explicit offset, so offset-less layouts come
// first.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02",
}

// ParseTimestamp parses a feed timestamp string, trying each known layout.
// Returns the zero time and false when no layout matches.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SameDay reports whether two feed-local timestamp strings fall on the same
// calendar date as recorded.
//
// The comparison is on the first 10 characters of each string, deliberately
// not on UTC-converted dates: both feeds store local time without an offset,
// and round-tripping through UTC produces false "different day" results for
// timestamps between midnight and the feed's UTC offset.
func SameDay(ts1, ts2 string) bool {
	if len(ts1) < 10 || len(ts2) < 10 {
		return false
	}
	return ts1[:10] == ts2[:10]
}

// DaysApart returns the absolute number of calendar days between the date
// components of two feed timestamp strings, or -1 when either date prefix is
// unparsable.
func DaysApart(ts1, ts2 string) int {
	if len(ts1) < 10 || len(ts2) < 10 {
		return -1
	}
	d1, err1 := time.Parse("2006-01-02", ts1[:10])
	d2, err2 := time.Parse("2006-01-02", ts2[:10])
	if err1 != nil || err2 != nil {
		return -1
	}
	days := int(d1.Sub(d2).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// MinutesApart returns the absolute difference in minutes between two parsed
// instants. Returns +Inf when either instant is the zero time (i.e. its
// string form failed to parse), so callers can treat unparsable input as
// "never within the window" without a separate error path.
func MinutesApart(t1, t2 time.Time) float64 {
	if t1.IsZero() || t2.IsZero() {
		return math.Inf(1)
	}
	return math.Abs(t1.Sub(t2).Minutes())
}

// TruncateToMinute zeroes the seconds and sub-second components. Matching
// compares minute-truncated instants to avoid spurious near-misses from
// sub-minute clock skew between the feeds.
func TruncateToMinute(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Truncate(time.Minute)
}
