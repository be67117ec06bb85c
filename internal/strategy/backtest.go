package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"daytrade/internal/domain"
	"daytrade/internal/engine"
	"daytrade/internal/query"
	"daytrade/internal/util"
)

// ErrInvalidParams wraps every backtest parameter validation failure.
var ErrInvalidParams = errors.New("invalid backtest parameters")

// Backtester replays stored minute bars day by day, resolving a reference
// price for the primary ticker and simulating one trade per day.
type Backtester struct {
	source   Source
	registry *Registry
	loc      *time.Location
	log      *slog.Logger

	// Workers bounds how many dates are evaluated concurrently. Values
	// below 2 evaluate sequentially. Report order is always ascending.
	Workers int

	now   func() time.Time
	newID func() string
}

// NewBacktester creates a Backtester that reads bars from source and looks up
// strategies in registry. A nil logger uses slog.Default.
func NewBacktester(source Source, registry *Registry, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		source:   source,
		registry: registry,
		loc:      domain.Exchange,
		log:      log.With("component", "backtest"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run validates p and evaluates every calendar date from p.Start to p.End
// inclusive. Dates whose reference cannot be resolved for lack of data are
// omitted. Any other error aborts the run without a partial report.
// Cancellation is checked between dates.
func (bt *Backtester) Run(ctx context.Context, p domain.BacktestParams) (*domain.Report, error) {
	res, err := bt.validate(&p)
	if err != nil {
		return nil, err
	}

	dates := util.EachDate(p.Start.In(bt.loc), p.End.In(bt.loc))
	rows := make([]*domain.BacktestRow, len(dates))

	if bt.Workers < 2 {
		for i, d := range dates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row, err := bt.evaluate(ctx, res, p, d)
			if err != nil {
				return nil, err
			}
			rows[i] = row
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(bt.Workers)
		for i, d := range dates {
			i, d := i, d
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				row, err := bt.evaluate(gctx, res, p, d)
				if err != nil {
					return err
				}
				rows[i] = row
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	report := &domain.Report{
		ID:        bt.newID(),
		CreatedAt: bt.now(),
		Params:    p,
	}
	for _, row := range rows {
		if row != nil {
			report.Rows = append(report.Rows, *row)
		}
	}

	bt.log.Info("backtest complete",
		"id", report.ID,
		"strategy", p.Strategy,
		"primary", p.PrimaryTicker,
		"dates", len(dates),
		"rows", len(report.Rows),
		"profit_loss", util.Round2(report.TotalProfitLoss()),
	)
	return report, nil
}

// evaluate produces the row for one date, or nil when the date has no data.
func (bt *Backtester) evaluate(ctx context.Context, res Resolver, p domain.BacktestParams, date time.Time) (*domain.BacktestRow, error) {
	day := date.Format(domain.DateLayout)

	ref, err := res.Resolve(ctx, bt.source, p.PrimaryTicker, date)
	if err != nil {
		if errors.Is(err, query.ErrNoData) {
			bt.log.Debug("skipping date", "date", day, "reason", err)
			return nil, nil
		}
		return nil, fmt.Errorf("resolving %s reference on %s: %w", p.PrimaryTicker, day, err)
	}

	ticker := p.BuyTickerUp
	if ref.HasRatio && ref.Ratio < 0 {
		ticker = p.BuyTickerDown
	}
	buy := util.Round2(ref.Price * (1 + p.BuyPriceUpRatio))

	bars, err := bt.source.Bars(ctx, ticker, date, domain.SessionIntraday)
	if err != nil && !errors.Is(err, query.ErrNoData) {
		return nil, fmt.Errorf("reading %s intraday bars on %s: %w", ticker, day, err)
	}

	outcome := engine.Simulate(buy, p.StopLossPct, p.TakeProfitPct, bars)
	return &domain.BacktestRow{
		Date:       day,
		Ticker:     ticker,
		Reference:  ref,
		BuyPrice:   buy,
		Outcome:    outcome,
		ProfitLoss: util.Money(outcome.ProfitLossPct, buy, p.Quantity),
	}, nil
}

// validate normalises tickers in p and checks every parameter, returning the
// strategy's resolver.
func (bt *Backtester) validate(p *domain.BacktestParams) (Resolver, error) {
	p.PrimaryTicker = strings.ToUpper(strings.TrimSpace(p.PrimaryTicker))
	p.BuyTickerUp = strings.ToUpper(strings.TrimSpace(p.BuyTickerUp))
	p.BuyTickerDown = strings.ToUpper(strings.TrimSpace(p.BuyTickerDown))

	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}

	switch {
	case p.PrimaryTicker == "":
		return nil, invalid("primary ticker is required")
	case p.BuyTickerUp == "":
		return nil, invalid("buy ticker for a positive move is required")
	case p.BuyTickerDown == "":
		return nil, invalid("buy ticker for a negative move is required")
	case p.Start.IsZero() || p.End.IsZero():
		return nil, invalid("start and end dates are required")
	case p.Quantity <= 0:
		return nil, invalid("quantity %d must be positive", p.Quantity)
	case math.IsNaN(p.BuyPriceUpRatio) || math.IsInf(p.BuyPriceUpRatio, 0) || 1+p.BuyPriceUpRatio <= 0:
		return nil, invalid("buy price ratio %v must keep the buy price positive", p.BuyPriceUpRatio)
	}

	start := domain.StartOfDay(p.Start.In(bt.loc))
	end := domain.StartOfDay(p.End.In(bt.loc))
	if end.Before(start) {
		return nil, invalid("end date %s is before start date %s",
			end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}

	limits := engine.Limits{StopLossPct: p.StopLossPct, TakeProfitPct: p.TakeProfitPct}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	if bt.registry == nil {
		return nil, invalid("no strategy registry configured")
	}
	res, err := bt.registry.Lookup(p.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return res, nil
}
