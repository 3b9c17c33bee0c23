package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCharge(t *testing.T) {
	rates := Rates{FirstHour: 3000, SubsequentHour: 2000}

	testCases := []struct {
		name    string
		minutes int64
		grace   int64
		want    int64
	}{
		{name: "zero minutes, zero grace", minutes: 0, grace: 0, want: 0},
		{name: "one minute, zero grace", minutes: 1, grace: 0, want: 3000},
		{name: "inside grace", minutes: 10, grace: 15, want: 0},
		{name: "exactly grace", minutes: 15, grace: 15, want: 0},
		{name: "just past grace", minutes: 16, grace: 15, want: 3000},
		{name: "exactly one hour", minutes: 60, grace: 0, want: 3000},
		{name: "one hour and a minute", minutes: 61, grace: 0, want: 5000},
		{name: "ninety minutes", minutes: 90, grace: 0, want: 5000},
		{name: "two hours", minutes: 120, grace: 0, want: 5000},
		{name: "two hours and a minute", minutes: 121, grace: 0, want: 7000},
		{name: "grace longer than an hour", minutes: 70, grace: 90, want: 0},
		{name: "past a long grace", minutes: 91, grace: 90, want: 5000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Charge(tc.minutes, rates, tc.grace))
		})
	}
}

func TestCharge_Monotonic(t *testing.T) {
	for _, rates := range []Rates{{3000, 2000}, {0, 0}, {1000, 5000}, {5000, 0}} {
		for _, grace := range []int64{0, 5, 60, 75} {
			prev := int64(0)
			for m := int64(0); m <= 600; m++ {
				got := Charge(m, rates, grace)
				assert.GreaterOrEqualf(t, got, prev, "rates=%v grace=%d minutes=%d", rates, grace, m)
				prev = got
			}
		}
	}
}

func TestElapsedMinutes(t *testing.T) {
	entry := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(0), ElapsedMinutes(entry, entry))
	assert.Equal(t, int64(0), ElapsedMinutes(entry, entry.Add(59*time.Second)))
	assert.Equal(t, int64(1), ElapsedMinutes(entry, entry.Add(119*time.Second)), "minutes are truncated, never rounded")
	assert.Equal(t, int64(90), ElapsedMinutes(entry, entry.Add(90*time.Minute+30*time.Second)))
	assert.Equal(t, int64(0), ElapsedMinutes(entry, entry.Add(-time.Hour)))
}
