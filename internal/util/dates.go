package util

import (
	"fmt"
	"time"

	"daytrade/internal/domain"
)

// ParseDateRange parses two YYYY-MM-DD strings in loc and rejects inverted
// ranges.
func ParseDateRange(start, end string, loc *time.Location) (time.Time, time.Time, error) {
	s, err := domain.DateIn(start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	e, err := domain.DateIn(end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing end date %q: %w", end, err)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return s, e, nil
}

// DaysInRange returns the number of calendar dates in [start, end], or 0 for
// an inverted range.
func DaysInRange(start, end time.Time) int {
	s := domain.StartOfDay(start)
	e := domain.StartOfDay(end)
	n := 0
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// EachDate returns every calendar date in [start, end] at midnight in
// start's location.
func EachDate(start, end time.Time) []time.Time {
	s := domain.StartOfDay(start)
	e := domain.StartOfDay(end.In(start.Location()))
	var dates []time.Time
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}
