package query

import (
	"context"
	"fmt"
	"time"

	"daytrade/internal/domain"
	"daytrade/internal/util"
)

// Aggregate summarises bars: first open, last close, max high, min low and
// summed volume. bars must be in ascending order and non-empty.
func Aggregate(bars []domain.Bar) domain.OHLCV {
	agg := domain.OHLCV{
		Open:  bars[0].Open,
		High:  bars[0].High,
		Low:   bars[0].Low,
		Close: bars[len(bars)-1].Close,
	}
	for _, b := range bars {
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Volume += b.Volume
	}
	return agg
}

func roundOHLCV(v domain.OHLCV) domain.OHLCV {
	return domain.OHLCV{
		Open:   util.Round2(v.Open),
		High:   util.Round2(v.High),
		Low:    util.Round2(v.Low),
		Close:  util.Round2(v.Close),
		Volume: v.Volume,
	}
}

// DailyAggregates returns one aggregate per stored date in [start, end],
// keyed by session, with prices rounded to two decimals. Dates are compared
// in exchange time.
func (q *Querier) DailyAggregates(ctx context.Context, ticker string, start, end time.Time) ([]domain.DailyAggregate, error) {
	from := domain.StartOfDay(start.In(q.loc))
	to := domain.EndOfDay(end.In(q.loc))
	bars, err := q.store.ReadBars(ctx, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("reading %s bars: %w", ticker, err)
	}

	var (
		out     []domain.DailyAggregate
		dayBars = map[domain.Session][]domain.Bar{}
		curDate string
	)
	flush := func() {
		if curDate == "" {
			return
		}
		agg := domain.DailyAggregate{Ticker: ticker, Date: curDate, Sessions: map[domain.Session]domain.OHLCV{}}
		for s, bs := range dayBars {
			agg.Sessions[s] = roundOHLCV(Aggregate(bs))
		}
		out = append(out, agg)
		dayBars = map[domain.Session][]domain.Bar{}
	}

	for _, b := range bars {
		d := b.Timestamp.In(q.loc).Format(domain.DateLayout)
		if d != curDate {
			flush()
			curDate = d
		}
		dayBars[b.Session] = append(dayBars[b.Session], b)
	}
	flush()
	return out, nil
}

// DayInfo describes the pre-market and intraday moves of one date.
type DayInfo struct {
	Ticker string
	Date   string

	PreMarketOpen      float64
	PreMarketClose     float64
	PreMarketChangePct float64 // vs prior 16:00 close, else pre-market open
	HasPreMarket       bool

	IntradayOpen      float64
	IntradayClose     float64
	IntradayChangePct float64 // close vs open
	HasIntraday       bool
}

// DayInfo computes the session moves of ticker on date. It returns ErrNoData
// when the date has no bars.
func (q *Querier) DayInfo(ctx context.Context, ticker string, date time.Time) (DayInfo, error) {
	bars, err := q.Bars(ctx, ticker, date)
	if err != nil {
		return DayInfo{}, err
	}
	info := DayInfo{Ticker: ticker, Date: date.In(q.loc).Format(domain.DateLayout)}

	var pre, intra []domain.Bar
	for _, b := range bars {
		switch b.Session {
		case domain.SessionPreMarket:
			pre = append(pre, b)
		case domain.SessionIntraday:
			intra = append(intra, b)
		}
	}

	if len(pre) > 0 {
		agg := Aggregate(pre)
		info.HasPreMarket = true
		info.PreMarketOpen = util.Round2(agg.Open)
		info.PreMarketClose = util.Round2(agg.Close)
	}

	baseline := info.PreMarketOpen
	prev, ok, err := q.PreviousSessionClose(ctx, ticker, date)
	if err != nil {
		return DayInfo{}, err
	}
	if ok {
		baseline = prev.Close
	}
	info.PreMarketChangePct = util.Round2(pctChange(baseline, info.PreMarketClose))

	if len(intra) > 0 {
		agg := Aggregate(intra)
		info.HasIntraday = true
		info.IntradayOpen = util.Round2(agg.Open)
		info.IntradayClose = util.Round2(agg.Close)
		info.IntradayChangePct = util.Round2(pctChange(agg.Open, agg.Close))
	}
	return info, nil
}

// pctChange returns (to-from)/from*100, or 0 when from is zero.
func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
