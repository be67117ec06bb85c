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
var _ strategy.Resolver = PreMarketClose{}

// PreMarketClose uses the last pre-market close as the reference price. Its
// ratio is the percent move from the previous trading day's 16:00 close, or
// from the pre-market open when that close is unavailable.
type PreMarketClose struct{}

// Name implements strategy.Resolver.
func (PreMarketClose) Name() domain.StrategyName { return domain.StrategyPreMarketClose }

// Resolve implements strategy.Resolver.
func (PreMarketClose) Resolve(ctx context.Context, src strategy.Source, ticker string, date time.Time) (domain.Reference, error) {
	bars, err := src.Bars(ctx, ticker, date, domain.SessionPreMarket)
	if err != nil {
		return domain.Reference{}, err
	}
	if len(bars) == 0 {
		return domain.Reference{}, fmt.Errorf("%w: no pre-market bars for %s on %s",
			query.ErrNoData, ticker, date.Format(domain.DateLayout))
	}

	price := bars[len(bars)-1].Close
	baseline := bars[0].Open

	prev, ok, err := src.PreviousSessionClose(ctx, ticker, date)
	if err != nil {
		return domain.Reference{}, err
	}
	if ok {
		baseline = prev.Close
	}

	return domain.Reference{
		Price:    price,
		Ratio:    pctChange(baseline, price),
		HasRatio: true,
	}, nil
}

// pctChange returns (to-from)/from*100, or 0 when from is zero.
func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
