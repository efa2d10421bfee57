package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseStartTime(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"epoch seconds", "1709280000", time.Unix(1709280000, 0).UTC()},
		{"epoch seconds at threshold", "100000000000", time.Unix(100000000000, 0).UTC()},
		{"epoch milliseconds", "1709280000123", time.UnixMilli(1709280000123).UTC()},
		{"iso fractional z", "2024-03-01T08:00:00.250Z", time.Date(2024, 3, 1, 8, 0, 0, 250000000, time.UTC)},
		{"iso z", "2024-03-01T08:00:00Z", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"iso bare", "2024-03-01T08:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"space separated", "2024-03-01 08:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"explicit utc offset", "2024-03-01T08:00:00+00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"non-utc offset", "2024-03-01T08:00:00+02:00", time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStartTime(tc.raw)
			require.NoError(t, err)
			require.True(t, tc.want.Equal(got), "want %v, got %v", tc.want, got)
		})
	}
}

func TestParseStartTimeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "03/01/2024", "T08:00:00"} {
		_, err := ParseStartTime(raw)
		require.Error(t, err, "input %q", raw)
	}
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Morning Ride", Activity{Name: "Morning Ride"}.DisplayName())
	require.Equal(t, "Unknown Activity", Activity{}.DisplayName())
}
