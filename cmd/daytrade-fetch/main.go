package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"daytrade/internal/config"
	"daytrade/internal/gather/us"
	"daytrade/internal/query"
	"daytrade/internal/store"
	"daytrade/internal/util"
)

func main() {
	tickersFlag := flag.String("tickers", "", "comma-separated tickers (default: fetch.tickers and fetch.tickers_file)")
	lookback := flag.Int("lookback", 0, "calendar days to fetch, ending with the latest finished trading day")
	tracked := flag.Bool("tracked", false, "also fetch every ticker already in the store")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		log.Fatalf("opening %s store: %v", cfg.Storage.Backend, err)
	}
	defer bars.Close()
	q := query.NewQuerier(bars, logger)

	var tickers []string
	if *tickersFlag != "" {
		tickers = strings.Split(*tickersFlag, ",")
	} else {
		tickers = append(tickers, cfg.Fetch.Tickers...)
		if cfg.Fetch.TickersFile != "" {
			fromFile, err := us.LoadTickers(cfg.Fetch.TickersFile)
			if err != nil {
				log.Fatalf("loading tickers: %v", err)
			}
			tickers = append(tickers, fromFile...)
		}
	}
	if *tracked {
		stocks, err := q.StockList(ctx)
		if err != nil {
			log.Fatalf("listing tracked tickers: %v", err)
		}
		for _, s := range stocks {
			tickers = append(tickers, s.Ticker)
		}
	}
	tickers = us.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		log.Fatal("no tickers to fetch: pass -tickers or set fetch.tickers")
	}

	fc := cfg.Fetch
	if *lookback > 0 {
		fc.LookbackDays = *lookback
	}
	gatherer := us.NewMinuteBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		q,
		us.MinuteBarConfig{
			Tickers:         tickers,
			LookbackDays:    fc.LookbackDays,
			MaxWorkers:      fc.MaxWorkers,
			RateLimitPerMin: fc.RateLimitPerMin,
			Feed:            cfg.Alpaca.Feed,
			RetryAttempts:   fc.RetryAttempts,
			RetryDelay:      fc.RetryDelay,
			StateDir:        filepath.Join(cfg.Storage.DataDir, "state"),
			TradingURL:      cfg.Alpaca.BaseURL,
		},
	)

	slog.Info("starting daytrade-fetch", "tickers", len(tickers), "backend", cfg.Storage.Backend)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("fetch error: %v", err)
	}
}
