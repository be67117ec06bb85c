package builtins

import (
	"context"
	"fmt"
	"time"

	"daytrade/internal/domain"
	"daytrade/internal/query"
	"daytrade/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Resolver = IntradayOpen{}

// IntradayOpen uses the first intraday open as the reference price. It
// reports no ratio.
type IntradayOpen struct{}

// Name implements strategy.Resolver.
func (IntradayOpen) Name() domain.StrategyName { return domain.StrategyIntradayOpen }

// Resolve implements strategy.Resolver.
func (IntradayOpen) Resolve(ctx context.Context, src strategy.Source, ticker string, date time.Time) (domain.Reference, error) {
	bars, err := src.Bars(ctx, ticker, date, domain.SessionIntraday)
	if err != nil {
		return domain.Reference{}, err
	}
	if len(bars) == 0 {
		return domain.Reference{}, fmt.Errorf("%w: no intraday bars for %s on %s",
			query.ErrNoData, ticker, date.Format(domain.DateLayout))
	}
	return domain.Reference{Price: bars[0].Open}, nil
}
