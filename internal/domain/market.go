package domain

import (
	"time"
	_ "time/tzdata" // Exchange time must resolve on hosts without a zoneinfo database.
)

// Exchange is the local time zone of the US equity exchanges. Sessions and
// trade dates are always evaluated in this location.
var Exchange = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// DateIn parses a YYYY-MM-DD string as midnight in loc.
func DateIn(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
