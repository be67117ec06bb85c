package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"daytrade/internal/config"
	"daytrade/internal/domain"
	"daytrade/internal/gather/us"
	"daytrade/internal/query"
	"daytrade/internal/scheduler"
	"daytrade/internal/store"
	"daytrade/internal/util"
)

func main() {
	schedule := flag.String("schedule", "", "cron spec with seconds, in exchange time (default: refresh.schedule)")
	runOnStart := flag.Bool("run-on-start", false, "refresh once immediately")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *schedule != "" {
		cfg.Refresh.Schedule = *schedule
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

	refresh := func(ctx context.Context) error {
		tickers := append([]string(nil), cfg.Fetch.Tickers...)
		if cfg.Fetch.TickersFile != "" {
			fromFile, err := us.LoadTickers(cfg.Fetch.TickersFile)
			if err != nil {
				return err
			}
			tickers = append(tickers, fromFile...)
		}
		stocks, err := q.StockList(ctx)
		if err != nil {
			return err
		}
		for _, s := range stocks {
			tickers = append(tickers, s.Ticker)
		}
		tickers = us.NormalizeTickers(tickers)
		if len(tickers) == 0 {
			return fmt.Errorf("no tracked or configured tickers")
		}

		g := us.NewMinuteBarGatherer(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, q, us.MinuteBarConfig{
			Tickers:         tickers,
			LookbackDays:    cfg.Fetch.LookbackDays,
			MaxWorkers:      cfg.Fetch.MaxWorkers,
			RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
			Feed:            cfg.Alpaca.Feed,
			RetryAttempts:   cfg.Fetch.RetryAttempts,
			RetryDelay:      cfg.Fetch.RetryDelay,
			StateDir:        filepath.Join(cfg.Storage.DataDir, "state"),
			TradingURL:      cfg.Alpaca.BaseURL,
		})
		return g.Run(ctx)
	}

	sched, err := scheduler.New(ctx, "refresh", cfg.Refresh.Schedule, domain.Exchange, refresh, logger)
	if err != nil {
		log.Fatalf("scheduling refresh: %v", err)
	}

	if *runOnStart || cfg.Refresh.RunOnStart {
		sched.RunNow()
	}
	sched.Start()

	slog.Info("daytrade-refresh running", "schedule", cfg.Refresh.Schedule)
	<-ctx.Done()
	sched.Stop()
}
