package metering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"mid month",
			time.Date(2026, 8, 14, 9, 30, 12, 0, time.UTC),
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"first instant of month",
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"non-utc input is normalized",
			time.Date(2026, 9, 1, 1, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodOf(tt.in))
		})
	}
}

func TestPreviousPeriod(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		PreviousPeriod(time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)))

	// year rollover
	assert.Equal(t,
		time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		PreviousPeriod(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)))
}

func TestSecondsUntilPeriodEnd(t *testing.T) {
	now := time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, int64(60), SecondsUntilPeriodEnd(now))

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(28*24*3600), SecondsUntilPeriodEnd(start))
}

func TestPeriodKey(t *testing.T) {
	assert.Equal(t, "2026-08", PeriodKey(time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)))
}
