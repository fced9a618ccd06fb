package metering

import "time"

// PeriodOf returns the billing period containing t: the first-of-month
// instant in UTC.
func PeriodOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CurrentPeriod returns the billing period containing the current instant
func CurrentPeriod() time.Time {
	return PeriodOf(time.Now())
}

// PreviousPeriod returns the period immediately before the one containing t
func PreviousPeriod(t time.Time) time.Time {
	return PeriodOf(t).AddDate(0, -1, 0)
}

// PeriodEnd returns the exclusive end of the period containing t
// (the first instant of the next month).
func PeriodEnd(period time.Time) time.Time {
	return PeriodOf(period).AddDate(0, 1, 0)
}

// SecondsUntilPeriodEnd returns how many seconds remain until the period
// containing now rolls over. Used as the retry-after hint when a quota is
// exhausted for the rest of the month.
func SecondsUntilPeriodEnd(now time.Time) int64 {
	remaining := PeriodEnd(PeriodOf(now)).Sub(now.UTC())
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

// PeriodKey formats a period for use in idempotency keys and log fields
func PeriodKey(period time.Time) string {
	return PeriodOf(period).Format("2006-01")
}
