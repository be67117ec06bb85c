// Package daytrade is a Go client for the daytrade-server gRPC API.
package daytrade

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"daytrade/internal/api"
	"daytrade/internal/report"
)

// Client provides a Go SDK for interacting with the daytrade-server API.
type Client struct {
	conn  grpc.ClientConnInterface
	close func() error
}

// NewClient creates a client targeting the given gRPC address. Extra dial
// options are applied after insecure transport credentials.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	return &Client{conn: conn, close: conn.Close}, nil
}

// NewInProcess creates a client that calls srv directly. closeFn, which may
// be nil, runs on Close.
func NewInProcess(srv api.BacktestServer, closeFn func() error) *Client {
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &Client{conn: inProcessConn{srv: srv}, close: closeFn}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.close()
}

// inProcessConn routes unary calls to a local BacktestServer.
type inProcessConn struct {
	srv api.BacktestServer
}

func (c inProcessConn) Invoke(ctx context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	prefix := "/" + api.ServiceName + "/"
	if !strings.HasPrefix(method, prefix) {
		return fmt.Errorf("unknown service method %s", method)
	}
	out, err := api.Invoke(ctx, c.srv, strings.TrimPrefix(method, prefix), args.(*structpb.Struct))
	if err != nil {
		return err
	}
	proto.Merge(reply.(proto.Message), out)
	return nil
}

func (inProcessConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streaming is not supported in process")
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := api.EncodeStruct(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return err
	}
	if err := api.DecodeStruct(out, resp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

// RunBacktest runs a backtest on the server.
func (c *Client) RunBacktest(ctx context.Context, p report.Params) (*report.Document, error) {
	var doc report.Document
	if err := c.call(ctx, api.MethodRunBacktest, p, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Simulate evaluates what-if rows against one ticker.
func (c *Client) Simulate(ctx context.Context, ticker string, rows []api.SimulateRow) ([]api.SimulateResult, error) {
	var resp api.SimulateResponse
	if err := c.call(ctx, api.MethodSimulate, api.SimulateRequest{Ticker: ticker, Rows: rows}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ListStocks lists the tracked tickers.
func (c *Client) ListStocks(ctx context.Context) ([]api.Stock, error) {
	var resp api.StockListResponse
	if err := c.call(ctx, api.MethodListStocks, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Stocks, nil
}

// ListStrategies lists the selectable strategies.
func (c *Client) ListStrategies(ctx context.Context) ([]api.Strategy, error) {
	var resp api.StrategyListResponse
	if err := c.call(ctx, api.MethodListStrategies, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// DayInfo returns one date's session moves.
func (c *Client) DayInfo(ctx context.Context, ticker, date string) (*api.DayInfoResponse, error) {
	var resp api.DayInfoResponse
	if err := c.call(ctx, api.MethodDayInfo, api.TickerRequest{Ticker: ticker, Date: date}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Daily returns per-session summaries for [start, end].
func (c *Client) Daily(ctx context.Context, ticker, start, end string) ([]api.DailyRow, error) {
	var resp api.DailyResponse
	if err := c.call(ctx, api.MethodDaily, api.TickerRequest{Ticker: ticker, Start: start, End: end}, &resp); err != nil {
		return nil, err
	}
	return resp.Days, nil
}

// Bars returns one date of bars, optionally filtered and resampled.
func (c *Client) Bars(ctx context.Context, req api.BarsRequest) ([]api.Bar, error) {
	var resp api.BarsResponse
	if err := c.call(ctx, api.MethodBars, req, &resp); err != nil {
		return nil, err
	}
	return resp.Bars, nil
}

// AddStock asks the server to fetch a new ticker. Empty dates use the
// server's default lookback.
func (c *Client) AddStock(ctx context.Context, ticker, start, end string) (int, error) {
	var resp api.FetchResponse
	if err := c.call(ctx, api.MethodAddStock, api.TickerRequest{Ticker: ticker, Start: start, End: end}, &resp); err != nil {
		return 0, err
	}
	return resp.Bars, nil
}

// RefreshStock asks the server to re-fetch a tracked ticker.
func (c *Client) RefreshStock(ctx context.Context, ticker, start, end string) (int, error) {
	var resp api.FetchResponse
	if err := c.call(ctx, api.MethodRefreshStock, api.TickerRequest{Ticker: ticker, Start: start, End: end}, &resp); err != nil {
		return 0, err
	}
	return resp.Bars, nil
}

// GetRun loads a recorded report.
func (c *Client) GetRun(ctx context.Context, id string) (*report.Document, error) {
	var doc report.Document
	if err := c.call(ctx, api.MethodGetRun, api.RunRequest{ID: id}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListRuns lists recorded runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]api.RunSummary, error) {
	var resp api.ListRunsResponse
	if err := c.call(ctx, api.MethodListRuns, api.ListRunsRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}
