package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"daytrade/internal/api"
	"daytrade/internal/config"
	"daytrade/internal/gather/us"
	"daytrade/internal/query"
	"daytrade/internal/store"
	"daytrade/internal/strategy"
	"daytrade/internal/strategy/builtins"
	"daytrade/internal/util"
)

func main() {
	addr := flag.String("addr", "", "listen address (default: server.host:server.grpc_port)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
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

	var runs store.RunStore
	if cfg.Backtest.RecordRuns {
		rs, closeRuns, err := store.OpenRunStore(bars, cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer closeRuns()
		runs = rs
	}

	q := query.NewQuerier(bars, logger)
	reg := builtins.NewRegistry()
	bt := strategy.NewBacktester(q, reg, logger)
	bt.Workers = cfg.Backtest.Workers

	svc := api.NewBacktestService(q, bt, reg, runs, logger)
	svc.FetchLookbackDays = cfg.Fetch.LookbackDays
	if cfg.Alpaca.APIKey != "" {
		svc.WithFetcher(us.NewMinuteBarGatherer(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, q, us.MinuteBarConfig{
			RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
			Feed:            cfg.Alpaca.Feed,
		}))
	} else {
		slog.Warn("alpaca credentials not set; AddStock and RefreshStock are disabled")
	}

	listen := cfg.Server.GRPCAddr()
	if *addr != "" {
		listen = *addr
	}
	srv := api.NewServer(listen, svc, logger)

	slog.Info("starting daytrade-server", "addr", listen, "backend", cfg.Storage.Backend, "recordRuns", runs != nil)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	slog.Info("daytrade-server stopped")
}
