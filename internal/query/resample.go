package query

import (
	"fmt"
	"time"

	"daytrade/internal/domain"
)

// Interval is a resampling bucket width.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
)

// Intervals lists the supported resampling intervals.
var Intervals = []Interval{Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval1d}

// ParseInterval validates an interval name.
func ParseInterval(s string) (Interval, error) {
	for _, iv := range Intervals {
		if string(iv) == s {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unsupported interval %q", s)
}

func (iv Interval) width() time.Duration {
	switch iv {
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// bucketStart floors t to the interval, measured from local midnight.
func (iv Interval) bucketStart(t time.Time) time.Time {
	day := domain.StartOfDay(t)
	if iv == Interval1d {
		return day
	}
	w := iv.width()
	return day.Add(t.Sub(day) / w * w)
}

// Resample aggregates ascending bars into interval buckets aligned to local
// midnight of each bar's location. A bucket keeps its bars' session when
// they all share one, otherwise it is SessionUnknown.
func Resample(bars []domain.Bar, iv Interval) ([]domain.Bar, error) {
	if _, err := ParseInterval(string(iv)); err != nil {
		return nil, err
	}
	if iv == Interval1m || len(bars) == 0 {
		return bars, nil
	}

	var (
		out   []domain.Bar
		group []domain.Bar
		cur   time.Time
	)
	flush := func() {
		if len(group) == 0 {
			return
		}
		agg := Aggregate(group)
		sess := group[0].Session
		for _, b := range group[1:] {
			if b.Session != sess {
				sess = domain.SessionUnknown
				break
			}
		}
		out = append(out, domain.Bar{
			Ticker:    group[0].Ticker,
			Timestamp: cur,
			Open:      agg.Open,
			High:      agg.High,
			Low:       agg.Low,
			Close:     agg.Close,
			Volume:    agg.Volume,
			Session:   sess,
		})
		group = group[:0]
	}

	for _, b := range bars {
		start := iv.bucketStart(b.Timestamp)
		if !start.Equal(cur) {
			flush()
			cur = start
		}
		group = append(group, b)
	}
	flush()
	return out, nil
}
