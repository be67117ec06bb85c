package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"daytrade/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ClickHouseStore)(nil)
var _ Backend = (*ClickHouseStore)(nil)

// ClickHouseOptions configures a ClickHouse connection.
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func (o ClickHouseOptions) withDefaults() ClickHouseOptions {
	if o.Addr == "" {
		o.Addr = "localhost:9000"
	}
	if o.Database == "" {
		o.Database = "daytrade"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	if o.Table == "" {
		o.Table = "minute_bars"
	}
	return o
}

// ClickHouseStore implements BarStore on a ReplacingMergeTree table ordered
// by (ticker, ts_ms). Reads use FINAL so duplicates never surface.
type ClickHouseStore struct {
	conn     clickhouse.Conn
	opts     ClickHouseOptions
	location *time.Location
	now      func() time.Time
}

// NewClickHouseStore connects, pings and ensures the schema exists.
func NewClickHouseStore(ctx context.Context, opts ClickHouseOptions) (*ClickHouseStore, error) {
	opts = opts.withDefaults()
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	s := &ClickHouseStore{conn: conn, opts: opts, location: domain.Exchange, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

func (s *ClickHouseStore) table() string {
	return s.opts.Database + "." + s.opts.Table
}

func (s *ClickHouseStore) ensureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.opts.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if err := s.conn.Exec(ctx, clickHouseTableDDL(s.table())); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func clickHouseTableDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			ticker LowCardinality(String),
			ts_ms Int64,
			trade_date String,
			session LowCardinality(String),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Int64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (ticker, ts_ms)
		SETTINGS index_granularity = 8192
	`, table)
}

// insertVersion maps an ingest time to a ReplacingMergeTree version that
// decreases over time, so the earliest stored row survives merges.
func insertVersion(t time.Time) uint64 {
	return math.MaxUint64 - uint64(t.UnixNano())
}

// WriteBars appends all bars in one batch.
func (s *ClickHouseStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", s.table()))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	now := s.now().UTC()
	ver := insertVersion(now)
	for _, b := range bars {
		ts := b.Timestamp.In(s.location)
		if err := batch.Append(
			strings.ToUpper(b.Ticker),
			ts.UnixMilli(),
			ts.Format(domain.DateLayout),
			string(b.Session),
			b.Open, b.High, b.Low, b.Close,
			b.Volume,
			now,
			ver,
		); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}
	return nil
}

// ReadBars reads a ticker's deduplicated bars within [start, end].
func (s *ClickHouseStore) ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`SELECT ticker, ts_ms, session, open, high, low, close, volume
		FROM %s FINAL
		WHERE ticker = ? AND ts_ms >= ? AND ts_ms <= ?
		ORDER BY ts_ms`, s.table()),
		strings.ToUpper(ticker), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b       domain.Bar
			ms      int64
			session string
		)
		if err := rows.Scan(&b.Ticker, &ms, &session, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Timestamp = time.UnixMilli(ms).In(s.location)
		b.Session = domain.ParseSession(session)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListTickers returns the distinct tickers in the table.
func (s *ClickHouseStore) ListTickers(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, fmt.Sprintf("SELECT DISTINCT ticker FROM %s ORDER BY ticker", s.table()))
}

// ListDates returns the distinct trade dates for ticker.
func (s *ClickHouseStore) ListDates(ctx context.Context, ticker string) ([]string, error) {
	return s.queryStrings(ctx,
		fmt.Sprintf("SELECT DISTINCT trade_date FROM %s WHERE ticker = ? ORDER BY trade_date", s.table()),
		strings.ToUpper(ticker))
}

func (s *ClickHouseStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
