package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"daytrade/internal/api"
	"daytrade/internal/config"
	"daytrade/internal/report"
)

var errUsage = errors.New("missing arguments, run daytrade-cli without arguments for usage")

func runVersion(_ context.Context, _ []string) error {
	fmt.Printf("daytrade-cli %s\n", version)
	return nil
}

func runStocks(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("stocks")
	fs.Parse(args)
	c, ctx, done, err := connect(ctx, cf, false)
	if err != nil {
		return err
	}
	defer done()

	stocks, err := c.ListStocks(ctx)
	if err != nil {
		return err
	}
	fmt.Println(stocksTable(stocks))
	return nil
}

func runStrategies(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("strategies")
	fs.Parse(args)
	c, ctx, done, err := connect(ctx, cf, false)
	if err != nil {
		return err
	}
	defer done()

	strategies, err := c.ListStrategies(ctx)
	if err != nil {
		return err
	}
	fmt.Println(strategiesTable(strategies))
	return nil
}

func runDay(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("day")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errUsage
	}
	c, ctx, done, err := connect(ctx, cf, false)
	if err != nil {
		return err
	}
	defer done()

	info, err := c.DayInfo(ctx, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	fmt.Println(dayInfoTable(info))
	return nil
}

func runDaily(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("daily")
	fs.Parse(args)
	if fs.NArg() < 3 {
		return errUsage
	}
	c, ctx, done, err := connect(ctx, cf, false)
	if err != nil {
		return err
	}
	defer done()

	days, err := c.Daily(ctx, fs.Arg(0), fs.Arg(1), fs.Arg(2))
	if err != nil {
		return err
	}
	fmt.Println(dailyTable(days))
	return nil
}

func runBars(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("bars")
	interval := fs.String("interval", "", "resample interval such as 5m or 1h")
	sessions := fs.String("session", "", "comma-separated sessions to keep (pre-market, intraday, post-market)")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errUsage
	}
	c, ctx, done, err := connect(ctx, cf, false)
	if err != nil {
		return err
	}
	defer done()

	bars, err := c.Bars(ctx, api.BarsRequest{
		Ticker:   fs.Arg(0),
		Date:     fs.Arg(1),
		Interval: *interval,
		Sessions: splitList(*sessions),
	})
	if err != nil {
		return err
	}
	fmt.Println(barsTable(bars))
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("simulate")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errUsage
	}
	rows := make([]api.SimulateRow, 0, fs.NArg()-1)
	for _, arg := range fs.Args()[1:] {
		row, err := parseSimulateRow(arg)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	c, ctx, done, err := connect(ctx, cf, false)
	if err != nil {
		return err
	}
	defer done()

	results, err := c.Simulate(ctx, fs.Arg(0), rows)
	if err != nil {
		return err
	}
	fmt.Println(simulateTable(results))
	return nil
}

// parseSimulateRow parses "DATE,BUY,STOPLOSS,TAKEPROFIT".
func parseSimulateRow(s string) (api.SimulateRow, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return api.SimulateRow{}, fmt.Errorf("row %q: want DATE,BUY,STOPLOSS,TAKEPROFIT", s)
	}
	var nums [3]float64
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return api.SimulateRow{}, fmt.Errorf("row %q: %w", s, err)
		}
		nums[i] = v
	}
	return api.SimulateRow{
		Date:       strings.TrimSpace(parts[0]),
		BuyPrice:   nums[0],
		StopLoss:   nums[1],
		TakeProfit: nums[2],
	}, nil
}

func runBacktest(ctx context.Context, args []string) error {
	defaults, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	d := defaults.Backtest

	fs, cf := newFlagSet("backtest")
	ticker := fs.String("ticker", "", "primary ticker the strategy is computed on")
	up := fs.String("up", "", "ticker bought when the reference is above the previous close")
	down := fs.String("down", "", "ticker bought when the reference is below the previous close")
	strat := fs.String("strategy", d.Strategy, "reference-price strategy")
	start := fs.String("start", "", "first date, YYYY-MM-DD")
	end := fs.String("end", "", "last date, YYYY-MM-DD")
	ratio := fs.Float64("ratio", d.BuyPriceUpRatio, "buy price offset as a percent of the buy ticker's open")
	qty := fs.Int64("qty", d.Quantity, "shares per trade")
	tp := fs.Float64("tp", d.TakeProfitPct, "take-profit percent")
	sl := fs.Float64("sl", d.StopLossPct, "stop-loss percent")
	format := fs.String("format", "table", "output format: table, csv or json")
	out := fs.String("out", "", "write output to this file instead of stdout")
	record := fs.Bool("record", false, "record the run in the local run store")
	fs.Parse(args)
	if *ticker == "" || *start == "" || *end == "" {
		return errUsage
	}

	c, ctx, done, err := connect(ctx, cf, *record)
	if err != nil {
		return err
	}
	defer done()

	doc, err := c.RunBacktest(ctx, report.Params{
		PrimaryTicker:   *ticker,
		BuyTickerUp:     *up,
		BuyTickerDown:   *down,
		Strategy:        *strat,
		Start:           *start,
		End:             *end,
		BuyPriceUpRatio: *ratio,
		Quantity:        *qty,
		TakeProfitPct:   *tp,
		StopLossPct:     *sl,
	})
	if err != nil {
		return err
	}
	return writeDocument(*out, *format, doc)
}

func writeDocument(path, format string, doc *report.Document) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	switch format {
	case "csv":
		return report.WriteDocumentCSV(w, *doc)
	case "json":
		return report.WriteDocumentJSON(w, *doc)
	case "table":
		_, err := fmt.Fprintln(w, documentTable(doc))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func runAdd(ctx context.Context, args []string) error {
	return runFetch(ctx, "add", args, func(ctx context.Context, c fetchClient, ticker, start, end string) (int, error) {
		return c.AddStock(ctx, ticker, start, end)
	})
}

func runRefresh(ctx context.Context, args []string) error {
	return runFetch(ctx, "refresh", args, func(ctx context.Context, c fetchClient, ticker, start, end string) (int, error) {
		return c.RefreshStock(ctx, ticker, start, end)
	})
}

type fetchClient interface {
	AddStock(ctx context.Context, ticker, start, end string) (int, error)
	RefreshStock(ctx context.Context, ticker, start, end string) (int, error)
}

func runFetch(ctx context.Context, name string, args []string, fn func(context.Context, fetchClient, string, string, string) (int, error)) error {
	fs, cf := newFlagSet(name)
	fs.Parse(args)
	if fs.NArg() != 1 && fs.NArg() != 3 {
		return errUsage
	}
	c, ctx, done, err := connect(ctx, cf, false)
	if err != nil {
		return err
	}
	defer done()

	n, err := fn(ctx, c, fs.Arg(0), fs.Arg(1), fs.Arg(2))
	if err != nil {
		return err
	}
	fmt.Printf("%s: stored %d bars\n", strings.ToUpper(fs.Arg(0)), n)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("runs")
	limit := fs.Int("limit", 20, "maximum runs to list")
	fs.Parse(args)
	c, ctx, done, err := connect(ctx, cf, true)
	if err != nil {
		return err
	}
	defer done()

	runs, err := c.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Println(runsTable(runs))
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("run")
	format := fs.String("format", "table", "output format: table, csv or json")
	out := fs.String("out", "", "write output to this file instead of stdout")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errUsage
	}
	c, ctx, done, err := connect(ctx, cf, true)
	if err != nil {
		return err
	}
	defer done()

	doc, err := c.GetRun(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return writeDocument(*out, *format, doc)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
