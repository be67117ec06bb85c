package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daytrade/internal/domain"
	"daytrade/internal/query"
)

// BarSource returns a ticker's bars for one calendar date. It reports
// query.ErrNoData when the date has no bars at all.
type BarSource interface {
	Bars(ctx context.Context, ticker string, date time.Time, sessions ...domain.Session) ([]domain.Bar, error)
}

// Request is one ad-hoc what-if trade.
type Request struct {
	Date          string
	BuyPrice      float64
	StopLossPct   float64
	TakeProfitPct float64
}

// Result is the evaluation of one Request. Value is nil when the row could
// not be evaluated.
type Result struct {
	Date       string
	Value      *float64
	ResultType string
	Outcome    domain.TradeOutcome
	Err        error
}

// Engine evaluates ad-hoc simulations against stored bars, one row at a time
// and outside any date-range loop.
type Engine struct {
	source BarSource
	loc    *time.Location
	log    *slog.Logger
}

// NewEngine creates an Engine reading bars from source. Dates are parsed in
// loc.
func NewEngine(source BarSource, loc *time.Location, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		source: source,
		loc:    loc,
		log:    log.With("component", "engine"),
	}
}

// SimulateBatch evaluates every request against ticker's bars for the
// request's date. A zero buy price yields a neutral zero value without
// reading bars. Failures are reported per row and never abort the batch.
func (e *Engine) SimulateBatch(ctx context.Context, ticker string, reqs []Request) ([]Result, error) {
	if ticker == "" {
		return nil, errors.New("ticker not provided")
	}

	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := e.simulateOne(ctx, ticker, req)
		if res.Err != nil {
			e.log.Warn("simulation row failed", "ticker", ticker, "date", req.Date, "error", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) simulateOne(ctx context.Context, ticker string, req Request) Result {
	res := Result{Date: req.Date, ResultType: domain.ResultNeutral}

	if req.BuyPrice == 0 {
		zero := 0.0
		res.Value = &zero
		res.Outcome = neutral()
		return res
	}
	if err := ValidatePrice(req.BuyPrice); err != nil {
		res.Err = err
		return res
	}
	limits := Limits{StopLossPct: req.StopLossPct, TakeProfitPct: req.TakeProfitPct}
	if err := limits.Validate(); err != nil {
		res.Err = err
		return res
	}

	date, err := domain.DateIn(req.Date, e.loc)
	if err != nil {
		res.Err = fmt.Errorf("parsing date %q: %w", req.Date, err)
		return res
	}

	bars, err := e.source.Bars(ctx, ticker, date)
	if err != nil && !errors.Is(err, query.ErrNoData) {
		res.Err = err
		return res
	}

	out := Simulate(req.BuyPrice, limits.StopLossPct, limits.TakeProfitPct, bars)
	v := out.ProfitLossPct
	res.Value = &v
	res.ResultType = out.ResultType()
	res.Outcome = out
	return res
}
