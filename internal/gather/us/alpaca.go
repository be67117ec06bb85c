package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"daytrade/internal/domain"
	"daytrade/internal/gather"
	"daytrade/internal/session"
	"daytrade/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*MinuteBarGatherer)(nil)

// barsClient is the subset of *marketdata.Client the gatherer uses.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// MinuteBarConfig tunes a MinuteBarGatherer.
type MinuteBarConfig struct {
	Tickers         []string
	LookbackDays    int    // calendar days ending with the end date (7)
	MaxWorkers      int    // concurrent tickers (4)
	RateLimitPerMin int    // API calls per minute, 0 disables limiting
	Feed            string // "sip" or "iex"
	RetryAttempts   int
	RetryDelay      time.Duration
	StateDir        string // where the fetch log lives; empty disables it
	TradingURL      string // Alpaca trading API for the calendar; empty uses today
}

// ---------------------------------------------------------------------------
// MinuteBarGatherer: 1-minute OHLCV bars from the Alpaca API.
// ---------------------------------------------------------------------------

// MinuteBarGatherer fetches 1-minute bars for a watchlist of tickers via the
// Alpaca market-data API and hands them to a sink. It also serves as a
// query.Fetcher for adding and refreshing single tickers.
type MinuteBarGatherer struct {
	client    barsClient
	sink      gather.Sink
	cfg       MinuteBarConfig
	limiter   *util.RateLimiter
	apiKey    string
	apiSecret string
	log       *slog.Logger

	// endDate resolves the last date of a run.
	endDate func(ctx context.Context) (time.Time, error)
}

// NewMinuteBarGatherer creates a MinuteBarGatherer configured with the given
// Alpaca credentials and target sink.
func NewMinuteBarGatherer(apiKey, apiSecret, dataURL string, sink gather.Sink, cfg MinuteBarConfig) *MinuteBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newMinuteBarGatherer(marketdata.NewClient(opts), sink, cfg, apiKey, apiSecret)
}

func newMinuteBarGatherer(client barsClient, sink gather.Sink, cfg MinuteBarConfig, apiKey, apiSecret string) *MinuteBarGatherer {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.Feed == "" {
		cfg.Feed = "sip"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	g := &MinuteBarGatherer{
		client:    client,
		sink:      sink,
		cfg:       cfg,
		limiter:   util.NewRateLimiter(cfg.RateLimitPerMin),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		log:       slog.Default().With("gatherer", "us-minute"),
	}
	g.endDate = g.defaultEndDate
	return g
}

// Name returns the gatherer identifier.
func (g *MinuteBarGatherer) Name() string { return "us-minute" }

func (g *MinuteBarGatherer) defaultEndDate(_ context.Context) (time.Time, error) {
	if g.cfg.TradingURL == "" {
		return domain.StartOfDay(time.Now().In(domain.Exchange)), nil
	}
	return LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.cfg.TradingURL)
}

// FetchBars fetches ticker's 1-minute bars in [start, end], classified into
// sessions in exchange time.
func (g *MinuteBarGatherer) FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ticker = strings.ToUpper(ticker)
	alpacaBars, err := g.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(g.cfg.Feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", ticker, err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Ticker:    ticker,
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	session.Tag(bars, domain.Exchange)
	return bars, nil
}

// Run fetches the lookback window for every configured ticker and writes the
// bars to the sink. Tickers already fetched for the same end date, according
// to the fetch log, are skipped, so an interrupted run resumes where it
// stopped.
func (g *MinuteBarGatherer) Run(ctx context.Context) error {
	end, err := g.endDate(ctx)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	end = end.In(domain.Exchange)
	endStr := end.Format(domain.DateLayout)
	window := gather.Lookback(end, g.cfg.LookbackDays)

	var flog *fetchLog
	if g.cfg.StateDir != "" {
		flog, err = openFetchLog(g.cfg.StateDir)
		if err != nil {
			return fmt.Errorf("opening fetch log: %w", err)
		}
		defer flog.Close()
	}

	var remaining []string
	seen := make(map[string]struct{}, len(g.cfg.Tickers))
	for _, t := range g.cfg.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if flog != nil && flog.Done(endStr, t) {
			continue
		}
		remaining = append(remaining, t)
	}

	g.log.Info("starting us-minute",
		"endDate", endStr,
		"start", window.Start.Format(domain.DateLayout),
		"tickers", len(seen),
		"remaining", len(remaining),
	)
	if len(remaining) == 0 {
		return nil
	}

	tickerCh := make(chan string, len(remaining))
	for _, t := range remaining {
		tickerCh <- t
	}
	close(tickerCh)

	var (
		wg        sync.WaitGroup
		totalBars atomic.Int64
		empty     atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.cfg.MaxWorkers, len(remaining))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range tickerCh {
				if ctx.Err() != nil {
					return
				}

				n, err := g.gatherTicker(ctx, ticker, window)
				if err != nil {
					failed.Add(1)
					g.log.Error("ticker failed", "ticker", ticker, "err", err)
					continue
				}

				status := statusOK
				if n == 0 {
					status = statusEmpty
					empty.Add(1)
				}
				totalBars.Add(int64(n))
				if flog != nil {
					if err := flog.Record(endStr, ticker, status); err != nil {
						g.log.Error("recording fetch failed", "ticker", ticker, "err", err)
					}
				}

				g.log.Info("ticker done",
					"ticker", ticker,
					"bars", n,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"bars", totalBars.Load(),
		"empty", empty.Load(),
		"failed", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if f := failed.Load(); f > 0 {
		return fmt.Errorf("%d of %d tickers failed", f, len(remaining))
	}
	return nil
}

// gatherTicker fetches one ticker with retries and stores the result.
func (g *MinuteBarGatherer) gatherTicker(ctx context.Context, ticker string, window gather.DateRange) (int, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.cfg.RetryAttempts, g.cfg.RetryDelay, func() error {
		var ferr error
		bars, ferr = g.FetchBars(ctx, ticker, window.Start, window.End)
		return ferr
	})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := g.sink.Store(ctx, bars); err != nil {
		return 0, fmt.Errorf("storing bars: %w", err)
	}
	return len(bars), nil
}
