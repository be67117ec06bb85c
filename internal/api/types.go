package api

import (
	"time"

	"daytrade/internal/domain"
	"daytrade/internal/engine"
	"daytrade/internal/query"
	"daytrade/internal/store"
	"daytrade/internal/util"
)

// MaxSimulateRows bounds the rows of one Simulate request.
const MaxSimulateRows = 50

// TickerRequest names a ticker and an optional date range.
type TickerRequest struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date,omitempty"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

// SimulateRow is one what-if trade of a Simulate request.
type SimulateRow struct {
	Date       string  `json:"date"`
	BuyPrice   float64 `json:"buy_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// SimulateRequest evaluates rows against one ticker.
type SimulateRequest struct {
	Ticker string        `json:"ticker"`
	Rows   []SimulateRow `json:"rows"`
}

// SimulateResult is the evaluation of one SimulateRow. Value is null when
// the row could not be evaluated.
type SimulateResult struct {
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
	ResultType  string   `json:"result_type"`
	Trigger     string   `json:"trigger"`
	TriggerTime *string  `json:"trigger_time"`
	BuyPrice    float64  `json:"buy_price"`
	SellPrice   float64  `json:"sell_price"`
	Error       string   `json:"error,omitempty"`
}

// SimulateResponse holds one result per request row, in order.
type SimulateResponse struct {
	Ticker  string           `json:"ticker"`
	Results []SimulateResult `json:"results"`
}

func fromEngineResult(r engine.Result) SimulateResult {
	out := SimulateResult{
		Date:       r.Date,
		ResultType: r.ResultType,
		Trigger:    string(r.Outcome.Trigger),
		BuyPrice:   util.Round2(r.Outcome.BuyPrice),
		SellPrice:  util.Round2(r.Outcome.SellPrice),
	}
	if r.Value != nil {
		v := util.Round2(*r.Value)
		out.Value = &v
	}
	if r.Outcome.Triggered() && !r.Outcome.TriggerTime.IsZero() {
		s := r.Outcome.TriggerTime.Format(time.RFC3339)
		out.TriggerTime = &s
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// Stock is one tracked ticker.
type Stock struct {
	Ticker    string `json:"ticker"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
	Days      int    `json:"days"`
}

// StockListResponse lists the tracked tickers.
type StockListResponse struct {
	Stocks []Stock `json:"stocks"`
}

func fromStockInfo(s query.StockInfo) Stock {
	return Stock{Ticker: s.Ticker, FirstDate: s.FirstDate, LastDate: s.LastDate, Days: s.Days}
}

// Strategy is a selectable reference-price strategy.
type Strategy struct {
	Name        string `json:"name"`
	Implemented bool   `json:"implemented"`
}

// StrategyListResponse lists the registered strategies.
type StrategyListResponse struct {
	Strategies []Strategy `json:"strategies"`
}

// DayInfoResponse describes one date's session moves.
type DayInfoResponse struct {
	Ticker             string   `json:"ticker"`
	Date               string   `json:"date"`
	PreMarketOpen      *float64 `json:"pre_market_open"`
	PreMarketClose     *float64 `json:"pre_market_close"`
	PreMarketChangePct float64  `json:"pre_market_change_pct"`
	IntradayOpen       *float64 `json:"intraday_open"`
	IntradayClose      *float64 `json:"intraday_close"`
	IntradayChangePct  float64  `json:"intraday_change_pct"`
}

func fromDayInfo(d query.DayInfo) DayInfoResponse {
	out := DayInfoResponse{
		Ticker:             d.Ticker,
		Date:               d.Date,
		PreMarketChangePct: d.PreMarketChangePct,
		IntradayChangePct:  d.IntradayChangePct,
	}
	if d.HasPreMarket {
		out.PreMarketOpen, out.PreMarketClose = ptr(d.PreMarketOpen), ptr(d.PreMarketClose)
	}
	if d.HasIntraday {
		out.IntradayOpen, out.IntradayClose = ptr(d.IntradayOpen), ptr(d.IntradayClose)
	}
	return out
}

func ptr(v float64) *float64 { return &v }

// OHLCV is a serialised price summary.
type OHLCV struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func fromOHLCV(v domain.OHLCV) OHLCV {
	return OHLCV{Open: v.Open, High: v.High, Low: v.Low, Close: v.Close, Volume: v.Volume}
}

// DailyRow is the per-session summary of one date.
type DailyRow struct {
	Date     string           `json:"date"`
	Sessions map[string]OHLCV `json:"sessions"`
}

// DailyResponse lists per-session summaries in ascending date order.
type DailyResponse struct {
	Ticker string     `json:"ticker"`
	Days   []DailyRow `json:"days"`
}

// BarsRequest selects one date of bars, optionally filtered by session and
// resampled.
type BarsRequest struct {
	Ticker   string   `json:"ticker"`
	Date     string   `json:"date"`
	Interval string   `json:"interval,omitempty"`
	Sessions []string `json:"sessions,omitempty"`
}

// Bar is a serialised price bar.
type Bar struct {
	Timestamp string `json:"timestamp"`
	Session   string `json:"session"`
	OHLCV
}

// BarsResponse holds bars in ascending time order.
type BarsResponse struct {
	Ticker   string `json:"ticker"`
	Interval string `json:"interval"`
	Bars     []Bar  `json:"bars"`
}

func fromBar(b domain.Bar) Bar {
	return Bar{
		Timestamp: b.Timestamp.Format(time.RFC3339),
		Session:   string(b.Session),
		OHLCV: OHLCV{
			Open:   util.Round2(b.Open),
			High:   util.Round2(b.High),
			Low:    util.Round2(b.Low),
			Close:  util.Round2(b.Close),
			Volume: b.Volume,
		},
	}
}

// FetchResponse reports how many bars an AddStock or RefreshStock call
// stored.
type FetchResponse struct {
	Ticker string `json:"ticker"`
	Bars   int    `json:"bars"`
}

// RunRequest names a recorded run.
type RunRequest struct {
	ID string `json:"id"`
}

// ListRunsRequest limits ListRuns.
type ListRunsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RunSummary describes a recorded run without its rows.
type RunSummary struct {
	ID              string  `json:"id"`
	CreatedAt       string  `json:"created_at"`
	PrimaryTicker   string  `json:"primary_ticker"`
	Strategy        string  `json:"strategy"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	Rows            int     `json:"rows"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
}

// ListRunsResponse lists runs newest first.
type ListRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

func fromRunSummary(s store.RunSummary) RunSummary {
	return RunSummary{
		ID:              s.ID,
		CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
		PrimaryTicker:   s.Params.PrimaryTicker,
		Strategy:        string(s.Params.Strategy),
		Start:           s.Params.Start.Format(domain.DateLayout),
		End:             s.Params.End.Format(domain.DateLayout),
		Rows:            s.Rows,
		TotalProfitLoss: util.Round2(s.TotalProfitLoss),
	}
}
