// Package domain defines the core value types shared across daytrade: price
// bars and their trading sessions, trade outcomes, and backtest reports.
package domain

import (
	"time"
)

// DateLayout is the calendar-date format used for trade dates, file names
// and report rows.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// Session is a time-of-day bucket of the US equity trading day.
type Session string

const (
	SessionPreMarket  Session = "pre-market"
	SessionIntraday   Session = "intraday"
	SessionPostMarket Session = "post-market"
	SessionUnknown    Session = "unknown"
)

// Sessions lists the sessions in chronological order of the trading day,
// followed by SessionUnknown.
var Sessions = []Session{SessionPreMarket, SessionIntraday, SessionPostMarket, SessionUnknown}

// ParseSession returns the Session named by s. Unrecognised names map to
// SessionUnknown.
func ParseSession(s string) Session {
	switch Session(s) {
	case SessionPreMarket, SessionIntraday, SessionPostMarket:
		return Session(s)
	}
	return SessionUnknown
}

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is one sampled OHLCV observation, typically one minute wide. Session is
// empty until the bar has been classified at ingest.
type Bar struct {
	Ticker    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Session   Session
}

// Date returns the bar's calendar date in its own location.
func (b Bar) Date() string {
	return b.Timestamp.Format(DateLayout)
}

// OHLCV is an aggregated open/high/low/close/volume summary.
type OHLCV struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// DailyAggregate summarises one ticker's bars for one calendar date, keyed by
// session. It is derived from stored bars and never persisted.
type DailyAggregate struct {
	Ticker   string
	Date     string
	Sessions map[Session]OHLCV
}

// Session returns the summary for s and whether any bar fell in it.
func (d DailyAggregate) Session(s Session) (OHLCV, bool) {
	v, ok := d.Sessions[s]
	return v, ok
}

// ---------------------------------------------------------------------------
// Trade outcomes
// ---------------------------------------------------------------------------

// Trigger names the condition that closed a simulated trade.
type Trigger string

const (
	TriggerNone       Trigger = "none"
	TriggerStopLoss   Trigger = "stop-loss"
	TriggerTakeProfit Trigger = "take-profit"
)

// Result types reported for ad-hoc simulations.
const (
	ResultPositive = "positive"
	ResultNegative = "negative"
	ResultNeutral  = "neutral"
)

// TradeOutcome is the result of one simulated trade. TriggerTime is the zero
// time when Trigger is TriggerNone.
type TradeOutcome struct {
	ProfitLossPct float64
	Trigger       Trigger
	TriggerTime   time.Time
	BuyPrice      float64
	SellPrice     float64
}

// Triggered reports whether a stop-loss or take-profit condition fired.
func (o TradeOutcome) Triggered() bool {
	return o.Trigger != TriggerNone && o.Trigger != ""
}

// ResultType classifies the outcome as positive, negative or neutral by the
// sign of ProfitLossPct.
func (o TradeOutcome) ResultType() string {
	switch {
	case o.ProfitLossPct > 0:
		return ResultPositive
	case o.ProfitLossPct < 0:
		return ResultNegative
	default:
		return ResultNeutral
	}
}

// ---------------------------------------------------------------------------
// Backtests
// ---------------------------------------------------------------------------

// StrategyName selects how the daily reference price is derived.
type StrategyName string

const (
	StrategyPreMarketClose    StrategyName = "pre_market_close"
	StrategyPreMarketAvg      StrategyName = "pre_market_avg"
	StrategyPreMarketWeighted StrategyName = "pre_market_weighted"
	StrategyIntradayOpen      StrategyName = "intraday_open"
)

// Reference is the baseline a strategy derives for one trading day. Ratio is
// the percentage move the strategy observed and is meaningful only when
// HasRatio is set.
type Reference struct {
	Price    float64
	Ratio    float64
	HasRatio bool
}

// BacktestParams describes one backtest request.
type BacktestParams struct {
	PrimaryTicker   string
	BuyTickerUp     string // traded when the reference ratio is >= 0
	BuyTickerDown   string // traded when the reference ratio is < 0
	Strategy        StrategyName
	Start           time.Time
	End             time.Time
	BuyPriceUpRatio float64
	Quantity        int64
	TakeProfitPct   float64
	StopLossPct     float64
}

// BacktestRow is the evaluation of one trading day.
type BacktestRow struct {
	Date       string
	Ticker     string
	Reference  Reference
	BuyPrice   float64
	Outcome    TradeOutcome
	ProfitLoss float64
}

// Report is the ordered result of a backtest run, one row per trading day in
// ascending date order.
type Report struct {
	ID        string
	CreatedAt time.Time
	Params    BacktestParams
	Rows      []BacktestRow
}

// TotalProfitLoss sums the monetary profit/loss over all rows.
func (r *Report) TotalProfitLoss() float64 {
	var total float64
	for _, row := range r.Rows {
		total += row.ProfitLoss
	}
	return total
}
