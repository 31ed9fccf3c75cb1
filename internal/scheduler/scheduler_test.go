package scheduler

import (
	"testing"
	"time"
)

func TestNextWeeklyRun(t *testing.T) {
	cases := []struct {
		name string
		now  string
		want string
	}{
		{"midweek", "2026-07-29T15:04:05Z", "2026-08-03T00:00:00Z"},
		{"sunday night", "2026-08-02T23:59:59Z", "2026-08-03T00:00:00Z"},
		{"exactly monday midnight", "2026-08-03T00:00:00Z", "2026-08-10T00:00:00Z"},
		{"monday morning", "2026-08-03T08:00:00Z", "2026-08-10T00:00:00Z"},
	}
	for _, tc := range cases {
		now, _ := time.Parse(time.RFC3339, tc.now)
		want, _ := time.Parse(time.RFC3339, tc.want)
		if got := NextWeeklyRun(now); !got.Equal(want) {
			t.Errorf("%s: NextWeeklyRun(%s) = %s, want %s", tc.name, tc.now, got, want)
		}
	}
}

func TestNextMonthlyRun(t *testing.T) {
	cases := []struct {
		name string
		now  string
		want string
	}{
		{"midmonth", "2026-07-15T12:00:00Z", "2026-08-01T00:10:00Z"},
		{"just before fire time", "2026-08-01T00:09:59Z", "2026-08-01T00:10:00Z"},
		{"exactly fire time", "2026-08-01T00:10:00Z", "2026-09-01T00:10:00Z"},
		{"december rollover", "2026-12-20T00:00:00Z", "2027-01-01T00:10:00Z"},
	}
	for _, tc := range cases {
		now, _ := time.Parse(time.RFC3339, tc.now)
		want, _ := time.Parse(time.RFC3339, tc.want)
		if got := NextMonthlyRun(now); !got.Equal(want) {
			t.Errorf("%s: NextMonthlyRun(%s) = %s, want %s", tc.name, tc.now, got, want)
		}
	}
}
