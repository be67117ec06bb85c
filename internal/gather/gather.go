// Package gather defines the common shape of data gathering processes.
package gather

import (
	"context"
	"time"

	"daytrade/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early when ctx is cancelled.
	Run(ctx context.Context) error
}

// Sink receives gathered bars. query.Querier implements it by classifying
// sessions and writing idempotently.
type Sink interface {
	Store(ctx context.Context, bars []domain.Bar) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Lookback returns the range covering the days calendar dates ending with
// end's date, from midnight of the first to the last instant of end's date.
func Lookback(end time.Time, days int) DateRange {
	if days < 1 {
		days = 1
	}
	return DateRange{
		Start: domain.StartOfDay(end).AddDate(0, 0, -(days - 1)),
		End:   domain.EndOfDay(end),
	}
}
