package session

import "time"

// Clock abstracts the wall clock so expiry math is testable.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the default wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// EndOfDay returns 23:59:00 of the given instant in its own location.
// Access tokens expire here so every session renews at the day boundary.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 0, 0, t.Location())
}

// dayKey buckets an instant into the calendar day used for usage counters.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// IsOutsideThresholdPeriod reports whether more than the given duration
// string, e.g. "24h", has elapsed since t.
func IsOutsideThresholdPeriod(t time.Time, period string) (bool, error) {
	d, err := time.ParseDuration(period)
	if err != nil {
		return false, err
	}
	return time.Since(t) > d, nil
}
