// Package session assigns US equity trading sessions to price bars from their
// time of day.
package session

import (
	"time"

	"daytrade/internal/domain"
)

// Session boundaries as offsets from local midnight.
const (
	preMarketStart  = 4 * time.Hour
	intradayStart   = 9*time.Hour + 30*time.Minute
	intradayEnd     = 16 * time.Hour // inclusive
	postMarketStart = 16*time.Hour + 1*time.Minute
	postMarketEnd   = 19*time.Hour + 59*time.Minute + 59*time.Second // inclusive
)

// Classify returns the session of t using only its wall-clock time of day in
// t's own location. Callers are expected to pass exchange-local timestamps.
//
// Bars inside (16:00:00, 16:01:00) are SessionUnknown.
func Classify(t time.Time) domain.Session {
	tod := timeOfDay(t)
	switch {
	case tod >= preMarketStart && tod < intradayStart:
		return domain.SessionPreMarket
	case tod >= intradayStart && tod <= intradayEnd:
		return domain.SessionIntraday
	case tod >= postMarketStart && tod <= postMarketEnd:
		return domain.SessionPostMarket
	default:
		return domain.SessionUnknown
	}
}

// Tag classifies every bar in place after converting its timestamp to loc.
// A nil loc keeps each timestamp's existing location.
func Tag(bars []domain.Bar, loc *time.Location) {
	for i := range bars {
		if loc != nil {
			bars[i].Timestamp = bars[i].Timestamp.In(loc)
		}
		bars[i].Session = Classify(bars[i].Timestamp)
	}
}

// Filter returns the bars whose session is one of sessions, preserving order.
// With no sessions given it returns bars unchanged.
func Filter(bars []domain.Bar, sessions ...domain.Session) []domain.Bar {
	if len(sessions) == 0 {
		return bars
	}
	var out []domain.Bar
	for _, b := range bars {
		for _, s := range sessions {
			if b.Session == s {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}
