package utils

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSameDay(t *testing.T) {
	tests := []struct {
		name     string
		ts1, ts2 string
		expected bool
	}{
		{
			name:     "same day different times",
			ts1:      "2025-12-16T11:30:00",
			ts2:      "2025-12-16T23:59:59",
			expected: true,
		},
		{
			// The defining case: minutes apart across midnight is not the
			// same recorded day, whatever UTC conversion would say.
			name:     "across midnight",
			ts1:      "2025-12-16T23:58:00",
			ts2:      "2025-12-17T00:02:00",
			expected: false,
		},
		{
			name:     "different layouts same date",
			ts1:      "2025-12-16T11:30:00",
			ts2:      "2025-12-16 08:00:00",
			expected: true,
		},
		{
			name:     "too short to carry a date",
			ts1:      "2025-12",
			ts2:      "2025-12-16T11:30:00",
			expected: false,
		},
		{
			name:     "both empty",
			ts1:      "",
			ts2:      "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, SameDay(tt.ts1, tt.ts2))
		})
	}
}

func TestDaysApart(t *testing.T) {
	require.Equal(t, 0, DaysApart("2025-12-16T23:58:00", "2025-12-16T00:02:00"))
	require.Equal(t, 1, DaysApart("2025-12-16T23:58:00", "2025-12-17T00:02:00"))
	require.Equal(t, 1, DaysApart("2025-12-17T00:02:00", "2025-12-16T23:58:00"))
	require.Equal(t, 30, DaysApart("2025-12-01T00:00:00", "2025-12-31T00:00:00"))
	require.Equal(t, -1, DaysApart("not-a-date!", "2025-12-16T00:00:00"))
	require.Equal(t, -1, DaysApart("", "2025-12-16T00:00:00"))
}

func TestMinutesApart(t *testing.T) {
	t1, ok := ParseTimestamp("2025-12-16T11:28:00")
	require.True(t, ok)
	t2, ok := ParseTimestamp("2025-12-16T11:30:00")
	require.True(t, ok)

	require.Equal(t, 2.0, MinutesApart(t1, t2))
	require.Equal(t, 2.0, MinutesApart(t2, t1))
	require.Equal(t, 0.0, MinutesApart(t1, t1))

	// Either side failing to parse yields +Inf, never a panic.
	require.True(t, math.IsInf(MinutesApart(time.Time{}, t2), 1))
	require.True(t, math.IsInf(MinutesApart(t1, time.Time{}), 1))
}

func TestTruncateToMinute(t *testing.T) {
	ts, ok := ParseTimestamp("2025-12-16T11:29:59")
	require.True(t, ok)
	truncated := TruncateToMinute(ts)
	require.Equal(t, 0, truncated.Second())
	require.Equal(t, 29, truncated.Minute())

	// Sub-minute skew between feeds must not change the minute distance.
	other, _ := ParseTimestamp("2025-12-16T11:30:01")
	require.Equal(t, 1.0, MinutesApart(TruncateToMinute(ts), TruncateToMinute(other)))

	require.True(t, TruncateToMinute(time.Time{}).IsZero())
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{name: "offset-less datetime", input: "2025-12-16T11:30:00", ok: true},
		{name: "space separated", input: "2025-12-16 11:30:00", ok: true},
		{name: "rfc3339", input: "2025-12-16T11:30:00Z", ok: true},
		{name: "date only", input: "2025-12-16", ok: true},
		{name: "garbage", input: "yesterday-ish", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := ParseTimestamp(tt.input)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.ok, !parsed.IsZero())
		})
	}
}
