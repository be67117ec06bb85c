// Package query is the data-access facade over a bar store. It answers
// per-date and per-session questions about stored minute bars and owns the
// fetch-and-store path for adding tickers.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"daytrade/internal/domain"
	"daytrade/internal/session"
	"daytrade/internal/store"
	"daytrade/internal/util"
)

var (
	// ErrNoData is returned when no bars exist for the requested ticker and
	// date. It is distinct from a zero price.
	ErrNoData = errors.New("no data")

	// ErrAlreadyTracked is returned by AddStock for a ticker that already has
	// stored bars.
	ErrAlreadyTracked = errors.New("ticker already tracked")

	// ErrNotTracked is returned by Refresh for a ticker with no stored bars.
	ErrNotTracked = errors.New("ticker not tracked")
)

// Fetcher retrieves minute bars from an upstream market data provider.
type Fetcher interface {
	FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error)
}

// Querier answers bar queries against a BarStore in exchange time.
type Querier struct {
	store store.BarStore
	loc   *time.Location
	log   *slog.Logger

	// RetryAttempts and RetryDelay bound upstream fetches in AddStock and
	// Refresh.
	RetryAttempts int
	RetryDelay    time.Duration
}

// NewQuerier creates a Querier over bars. A nil logger uses slog.Default.
func NewQuerier(bars store.BarStore, log *slog.Logger) *Querier {
	if log == nil {
		log = slog.Default()
	}
	return &Querier{
		store:         bars,
		loc:           domain.Exchange,
		log:           log.With("component", "query"),
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Location returns the exchange location dates are evaluated in.
func (q *Querier) Location() *time.Location { return q.loc }

// Bars returns ticker's bars on date in ascending order, restricted to the
// given sessions (all sessions when none are given). It returns ErrNoData
// when the date has no bars at all; a date with bars but none in the
// requested sessions yields an empty slice.
func (q *Querier) Bars(ctx context.Context, ticker string, date time.Time, sessions ...domain.Session) ([]domain.Bar, error) {
	day := domain.StartOfDay(date.In(q.loc))
	bars, err := q.store.ReadBars(ctx, ticker, day, domain.EndOfDay(day))
	if err != nil {
		return nil, fmt.Errorf("reading %s bars for %s: %w", ticker, day.Format(domain.DateLayout), err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrNoData, strings.ToUpper(ticker), day.Format(domain.DateLayout))
	}
	return session.Filter(bars, sessions...), nil
}

// PreviousSessionClose returns the 16:00:00 bar of the latest stored trading
// date before date. The boolean is false when there is no earlier date or
// that date lacks a 16:00:00 bar.
func (q *Querier) PreviousSessionClose(ctx context.Context, ticker string, date time.Time) (domain.Bar, bool, error) {
	dates, err := q.store.ListDates(ctx, ticker)
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("listing %s dates: %w", ticker, err)
	}

	target := date.In(q.loc).Format(domain.DateLayout)
	i := sort.SearchStrings(dates, target)
	if i == 0 {
		return domain.Bar{}, false, nil
	}
	prev, err := domain.DateIn(dates[i-1], q.loc)
	if err != nil {
		return domain.Bar{}, false, err
	}

	closeAt := prev.Add(16 * time.Hour)
	bars, err := q.store.ReadBars(ctx, ticker, closeAt, closeAt)
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("reading %s close for %s: %w", ticker, dates[i-1], err)
	}
	for _, b := range bars {
		if b.Timestamp.Equal(closeAt) {
			return b, true, nil
		}
	}
	q.log.Debug("previous date has no 16:00 bar", "ticker", ticker, "date", dates[i-1])
	return domain.Bar{}, false, nil
}

// Store classifies bars into sessions in exchange time and writes them. The
// slice is modified in place.
func (q *Querier) Store(ctx context.Context, bars []domain.Bar) error {
	session.Tag(bars, q.loc)
	return q.store.WriteBars(ctx, bars)
}

// StockInfo summarises the stored history of one ticker.
type StockInfo struct {
	Ticker    string
	FirstDate string
	LastDate  string
	Days      int
}

// StockList returns every tracked ticker with its first and last stored
// dates.
func (q *Querier) StockList(ctx context.Context) ([]StockInfo, error) {
	tickers, err := q.store.ListTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}

	out := make([]StockInfo, 0, len(tickers))
	for _, t := range tickers {
		dates, err := q.store.ListDates(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("listing %s dates: %w", t, err)
		}
		info := StockInfo{Ticker: t, Days: len(dates)}
		if len(dates) > 0 {
			info.FirstDate = dates[0]
			info.LastDate = dates[len(dates)-1]
		}
		out = append(out, info)
	}
	return out, nil
}

// AddStock fetches [start, end] for a ticker that is not yet tracked and
// stores the bars. It returns the number of bars written.
func (q *Querier) AddStock(ctx context.Context, f Fetcher, ticker string, start, end time.Time) (int, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return 0, errors.New("ticker is required")
	}
	tracked, err := q.isTracked(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if tracked {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyTracked, ticker)
	}
	return q.fetchAndStore(ctx, f, ticker, start, end)
}

// Refresh re-fetches [start, end] for a tracked ticker. Bars already stored
// are left untouched.
func (q *Querier) Refresh(ctx context.Context, f Fetcher, ticker string, start, end time.Time) (int, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	tracked, err := q.isTracked(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if !tracked {
		return 0, fmt.Errorf("%w: %s", ErrNotTracked, ticker)
	}
	return q.fetchAndStore(ctx, f, ticker, start, end)
}

func (q *Querier) isTracked(ctx context.Context, ticker string) (bool, error) {
	tickers, err := q.store.ListTickers(ctx)
	if err != nil {
		return false, fmt.Errorf("listing tickers: %w", err)
	}
	for _, t := range tickers {
		if strings.EqualFold(t, ticker) {
			return true, nil
		}
	}
	return false, nil
}

func (q *Querier) fetchAndStore(ctx context.Context, f Fetcher, ticker string, start, end time.Time) (int, error) {
	var bars []domain.Bar
	attempt := 0
	err := util.Retry(ctx, q.RetryAttempts, q.RetryDelay, func() error {
		attempt++
		var ferr error
		bars, ferr = f.FetchBars(ctx, ticker, start, end)
		if ferr != nil {
			q.log.Warn("fetch failed", "ticker", ticker, "attempt", attempt, "error", ferr)
		}
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("%w: upstream returned no bars for %s", ErrNoData, ticker)
	}

	for i := range bars {
		bars[i].Ticker = ticker
	}
	if err := q.Store(ctx, bars); err != nil {
		return 0, fmt.Errorf("storing %s: %w", ticker, err)
	}
	q.log.Info("stored bars", "ticker", ticker, "bars", len(bars))
	return len(bars), nil
}
