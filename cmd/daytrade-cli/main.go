package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daytrade/internal/api"
	"daytrade/internal/config"
	"daytrade/internal/gather/us"
	"daytrade/internal/query"
	"daytrade/internal/store"
	"daytrade/internal/strategy"
	"daytrade/internal/strategy/builtins"
	"daytrade/internal/util"
	"daytrade/pkg/daytrade"
)

const version = "0.1.0"

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"version", "Print the CLI version", runVersion},
	{"stocks", "List tracked tickers", runStocks},
	{"strategies", "List reference-price strategies", runStrategies},
	{"day", "Show one date's session moves: day TICKER DATE", runDay},
	{"daily", "Show per-session summaries: daily TICKER START END", runDaily},
	{"bars", "Show one date of bars: bars [-interval 5m] [-session intraday] TICKER DATE", runBars},
	{"simulate", "Evaluate what-if trades: simulate TICKER DATE,BUY,SL,TP ...", runSimulate},
	{"backtest", "Run a backtest: backtest -ticker QQQ -up TQQQ -down SQQQ -start DATE -end DATE", runBacktest},
	{"add", "Fetch bars for a new ticker: add TICKER [START END]", runAdd},
	{"refresh", "Re-fetch a tracked ticker: refresh TICKER [START END]", runRefresh},
	{"runs", "List recorded backtest runs", runRuns},
	{"run", "Show a recorded backtest run: run ID", runRun},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: daytrade-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nEvery command except version accepts -server HOST:PORT (default $DAYTRADE_SERVER).\n")
	fmt.Fprintf(os.Stderr, "Without a server the CLI reads the local store named by $DAYTRADE_CONFIG.\n\n")
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, os.Args[2:]); err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
	usage()
	os.Exit(1)
}

// connFlags are the connection options shared by every command.
type connFlags struct {
	server  *string
	timeout *time.Duration
}

func newFlagSet(name string) (*flag.FlagSet, connFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := connFlags{
		server:  fs.String("server", os.Getenv("DAYTRADE_SERVER"), "daytrade-server address; empty uses the local store"),
		timeout: fs.Duration("timeout", 5*time.Minute, "overall deadline"),
	}
	return fs, cf
}

// connect returns a client for the remote server when one is configured, or
// an in-process client over the local store otherwise. record enables run
// recording for the in-process client.
func connect(ctx context.Context, cf connFlags, record bool) (*daytrade.Client, context.Context, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, *cf.timeout)
	if *cf.server != "" {
		c, err := daytrade.NewClient(*cf.server)
		if err != nil {
			cancel()
			return nil, nil, nil, err
		}
		return c, ctx, func() { c.Close(); cancel() }, nil
	}

	c, err := localClient(ctx, record)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return c, ctx, func() { c.Close(); cancel() }, nil
}

func localClient(ctx context.Context, record bool) (*daytrade.Client, error) {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	level := cfg.Logging.Level
	if level == "info" {
		level = "warn"
	}
	logger := util.NewLogger(level, cfg.Logging.Format)
	util.SetDefault(logger)

	bars, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}
	closers := []func() error{bars.Close}

	var runs store.RunStore
	if record || cfg.Backtest.RecordRuns {
		rs, closeRuns, err := store.OpenRunStore(bars, cfg.Storage.SQLitePath)
		if err != nil {
			bars.Close()
			return nil, err
		}
		runs = rs
		closers = append([]func() error{closeRuns}, closers...)
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
	}
	return daytrade.NewInProcess(svc, func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}), nil
}
