package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"daytrade/internal/domain"
	"daytrade/internal/engine"
	"daytrade/internal/gather"
	"daytrade/internal/query"
	"daytrade/internal/report"
	"daytrade/internal/session"
	"daytrade/internal/store"
	"daytrade/internal/strategy"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ BacktestServer = (*BacktestService)(nil)

// BacktestService implements the Backtest gRPC service over a query facade,
// a backtester and an optional run recorder.
type BacktestService struct {
	querier    *query.Querier
	backtester *strategy.Backtester
	registry   *strategy.Registry
	engine     *engine.Engine
	runs       store.RunStore
	fetcher    query.Fetcher
	log        *slog.Logger

	// FetchLookbackDays sizes AddStock and RefreshStock requests that give
	// no range.
	FetchLookbackDays int

	now func() time.Time
}

// NewBacktestService creates a BacktestService. runs may be nil, in which
// case reports are not recorded and GetRun/ListRuns are unavailable.
func NewBacktestService(q *query.Querier, bt *strategy.Backtester, reg *strategy.Registry, runs store.RunStore, log *slog.Logger) *BacktestService {
	if log == nil {
		log = slog.Default()
	}
	return &BacktestService{
		querier:           q,
		backtester:        bt,
		registry:          reg,
		engine:            engine.NewEngine(q, q.Location(), log),
		runs:              runs,
		log:               log.With("component", "api"),
		FetchLookbackDays: 7,
		now:               time.Now,
	}
}

// WithFetcher enables AddStock and RefreshStock.
func (s *BacktestService) WithFetcher(f query.Fetcher) *BacktestService {
	s.fetcher = f
	return s
}

// RunBacktest runs a backtest and, when a run store is configured, records
// the report.
func (s *BacktestService) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req report.Params
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	params, err := req.Domain(s.querier.Location())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rep, err := s.backtester.Run(ctx, params)
	if err != nil {
		return nil, toStatus(err)
	}
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, rep); err != nil {
			return nil, toStatus(fmt.Errorf("recording run: %w", err))
		}
	}
	s.log.Info("backtest served", "id", rep.ID, "rows", len(rep.Rows))
	return encode(report.FromReport(rep))
}

// Simulate evaluates ad-hoc what-if rows against one ticker.
func (s *BacktestService) Simulate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SimulateRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	if len(req.Rows) > MaxSimulateRows {
		return nil, status.Errorf(codes.InvalidArgument, "at most %d rows per request, got %d", MaxSimulateRows, len(req.Rows))
	}
	ticker := normalizeTicker(req.Ticker)

	reqs := make([]engine.Request, 0, len(req.Rows))
	for _, r := range req.Rows {
		reqs = append(reqs, engine.Request{
			Date:          r.Date,
			BuyPrice:      r.BuyPrice,
			StopLossPct:   r.StopLoss,
			TakeProfitPct: r.TakeProfit,
		})
	}
	results, err := s.engine.SimulateBatch(ctx, ticker, reqs)
	if err != nil {
		if ticker == "" {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, toStatus(err)
	}

	resp := SimulateResponse{Ticker: ticker, Results: make([]SimulateResult, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, fromEngineResult(r))
	}
	return encode(resp)
}

// ListStocks lists the tracked tickers with their stored date span.
func (s *BacktestService) ListStocks(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	infos, err := s.querier.StockList(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := StockListResponse{Stocks: make([]Stock, 0, len(infos))}
	for _, info := range infos {
		resp.Stocks = append(resp.Stocks, fromStockInfo(info))
	}
	return encode(resp)
}

// ListStrategies lists the registered strategies.
func (s *BacktestService) ListStrategies(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names := s.registry.List()
	resp := StrategyListResponse{Strategies: make([]Strategy, 0, len(names))}
	for _, name := range names {
		_, err := s.registry.Lookup(name)
		resp.Strategies = append(resp.Strategies, Strategy{Name: string(name), Implemented: err == nil})
	}
	return encode(resp)
}

// DayInfo returns the pre-market and intraday moves of one date.
func (s *BacktestService) DayInfo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req TickerRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	ticker, date, err := s.tickerDate(req.Ticker, req.Date)
	if err != nil {
		return nil, err
	}
	info, err := s.querier.DayInfo(ctx, ticker, date)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(fromDayInfo(info))
}

// Daily returns per-session summaries for each stored date in a range.
func (s *BacktestService) Daily(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req TickerRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	ticker := normalizeTicker(req.Ticker)
	if ticker == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker not provided")
	}
	start, end, err := s.dateRange(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	aggs, err := s.querier.DailyAggregates(ctx, ticker, start, end)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := DailyResponse{Ticker: ticker, Days: make([]DailyRow, 0, len(aggs))}
	for _, agg := range aggs {
		row := DailyRow{Date: agg.Date, Sessions: make(map[string]OHLCV, len(agg.Sessions))}
		for sess, v := range agg.Sessions {
			row.Sessions[string(sess)] = fromOHLCV(v)
		}
		resp.Days = append(resp.Days, row)
	}
	return encode(resp)
}

// Bars returns one date of bars, optionally filtered by session and
// resampled to a coarser interval.
func (s *BacktestService) Bars(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req BarsRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	ticker, date, err := s.tickerDate(req.Ticker, req.Date)
	if err != nil {
		return nil, err
	}
	iv := query.Interval1m
	if req.Interval != "" {
		if iv, err = query.ParseInterval(req.Interval); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	sessions := make([]domain.Session, 0, len(req.Sessions))
	for _, name := range req.Sessions {
		sess := domain.ParseSession(name)
		if sess == domain.SessionUnknown && name != string(domain.SessionUnknown) {
			return nil, status.Errorf(codes.InvalidArgument, "unknown session %q", name)
		}
		sessions = append(sessions, sess)
	}

	bars, err := s.querier.Bars(ctx, ticker, date)
	if err != nil {
		return nil, toStatus(err)
	}
	bars = session.Filter(bars, sessions...)
	bars, err = query.Resample(bars, iv)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := BarsResponse{Ticker: ticker, Interval: string(iv), Bars: make([]Bar, 0, len(bars))}
	for _, b := range bars {
		resp.Bars = append(resp.Bars, fromBar(b))
	}
	return encode(resp)
}

// AddStock fetches and stores a ticker that is not yet tracked.
func (s *BacktestService) AddStock(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.fetch(ctx, in, s.querier.AddStock)
}

// RefreshStock re-fetches a tracked ticker.
func (s *BacktestService) RefreshStock(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.fetch(ctx, in, s.querier.Refresh)
}

type fetchFunc func(ctx context.Context, f query.Fetcher, ticker string, start, end time.Time) (int, error)

func (s *BacktestService) fetch(ctx context.Context, in *structpb.Struct, fn fetchFunc) (*structpb.Struct, error) {
	if s.fetcher == nil {
		return nil, status.Error(codes.FailedPrecondition, "no market data fetcher configured")
	}
	var req TickerRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	ticker := normalizeTicker(req.Ticker)
	if ticker == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker not provided")
	}

	var window gather.DateRange
	if req.Start == "" && req.End == "" {
		window = gather.Lookback(s.now().In(s.querier.Location()), s.FetchLookbackDays)
	} else {
		start, end, err := s.dateRange(req.Start, req.End)
		if err != nil {
			return nil, err
		}
		window = gather.DateRange{Start: start, End: domain.EndOfDay(end)}
	}

	n, err := fn(ctx, s.fetcher, ticker, window.Start, window.End)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(FetchResponse{Ticker: ticker, Bars: n})
}

// GetRun loads a recorded report.
func (s *BacktestService) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.runs == nil {
		return nil, status.Error(codes.FailedPrecondition, "run recording is disabled")
	}
	var req RunRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id not provided")
	}
	rep, err := s.runs.GetRun(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(report.FromReport(rep))
}

// ListRuns lists recorded runs, newest first.
func (s *BacktestService) ListRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.runs == nil {
		return nil, status.Error(codes.FailedPrecondition, "run recording is disabled")
	}
	var req ListRunsRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	runs, err := s.runs.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := ListRunsResponse{Runs: make([]RunSummary, 0, len(runs))}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, fromRunSummary(r))
	}
	return encode(resp)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *BacktestService) tickerDate(ticker, date string) (string, time.Time, error) {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return "", time.Time{}, status.Error(codes.InvalidArgument, "ticker not provided")
	}
	d, err := domain.DateIn(date, s.querier.Location())
	if err != nil {
		return "", time.Time{}, status.Errorf(codes.InvalidArgument, "parsing date %q: %v", date, err)
	}
	return ticker, d, nil
}

func (s *BacktestService) dateRange(start, end string) (time.Time, time.Time, error) {
	from, err := domain.DateIn(start, s.querier.Location())
	if err != nil {
		return time.Time{}, time.Time{}, status.Errorf(codes.InvalidArgument, "parsing start date %q: %v", start, err)
	}
	to, err := domain.DateIn(end, s.querier.Location())
	if err != nil {
		return time.Time{}, time.Time{}, status.Errorf(codes.InvalidArgument, "parsing end date %q: %v", end, err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, status.Errorf(codes.InvalidArgument, "end date %s is before start date %s", end, start)
	}
	return from, to, nil
}

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func encode(v any) (*structpb.Struct, error) {
	out, err := EncodeStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, strategy.ErrInvalidParams),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrNotImplemented):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, query.ErrNoData), errors.Is(err, store.ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, query.ErrAlreadyTracked):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, query.ErrNotTracked):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
