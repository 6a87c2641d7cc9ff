package order

import (
	"time"
)

// IST is the canonical zone for every timestamp the engine writes.
// Mongo persists instants, so the offset only matters for day-bound math.
var IST = time.FixedZone("IST", 5*3600+30*60)

type Clock interface {
	Now() time.Time
}

// ISTClock is the production clock.
type ISTClock struct{}

func (ISTClock) Now() time.Time {
	return time.Now().In(IST)
}

// ParseDateIST parses a YYYY-MM-DD date (or an RFC 3339 timestamp) and
// returns the corresponding instant in IST. Bare dates resolve to start
// of day. Returns the zero time when the value cannot be parsed.
func ParseDateIST(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation("2006-01-02", value, IST); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(IST)
	}
	return time.Time{}
}

// TodayStartIST returns 00:00:00 of now's IST day.
func TodayStartIST(now time.Time) time.Time {
	n := now.In(IST)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, IST)
}

// TodayEndIST returns the last representable instant of now's IST day.
func TodayEndIST(now time.Time) time.Time {
	return TodayStartIST(now).Add(24*time.Hour - time.Nanosecond)
}

// DayWindowUTC resolves a logical date string into a [start, end) UTC day
// window for payment aggregation. "today", the empty string, and anything
// unparseable all resolve to the current UTC day.
func DayWindowUTC(value string, now time.Time) (time.Time, time.Time) {
	day := now.UTC()
	if value != "" && value != "today" {
		if t, err := time.Parse("2006-01-02", value); err == nil {
			day = t
		}
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
