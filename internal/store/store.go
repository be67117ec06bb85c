// Package store defines storage interfaces for minute bars and backtest runs
// and provides Parquet, SQL (SQLite/Postgres) and ClickHouse backends.
package store

import (
	"context"
	"time"

	"daytrade/internal/domain"
)

// BarStore persists and retrieves session-tagged minute bars.
type BarStore interface {
	// WriteBars persists a batch of bars. Writes are idempotent per
	// (ticker, timestamp): a bar already stored is kept as is.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns a ticker's bars within [start, end] in ascending
	// timestamp order, with timestamps in exchange time.
	ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error)

	// ListTickers returns all tickers with stored bars, sorted.
	ListTickers(ctx context.Context) ([]string, error)

	// ListDates returns the exchange-local dates (YYYY-MM-DD) on which a
	// ticker has bars, ascending.
	ListDates(ctx context.Context, ticker string) ([]string, error)
}

// Backend is a BarStore that holds resources.
type Backend interface {
	BarStore
	Close() error
}

// RunSummary describes a recorded backtest run without its rows.
type RunSummary struct {
	ID              string
	CreatedAt       time.Time
	Params          domain.BacktestParams
	Rows            int
	TotalProfitLoss float64
}

// RunStore records backtest reports.
type RunStore interface {
	// SaveRun persists a report and all of its rows.
	SaveRun(ctx context.Context, report *domain.Report) error

	// GetRun loads a report by ID.
	GetRun(ctx context.Context, id string) (*domain.Report, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
