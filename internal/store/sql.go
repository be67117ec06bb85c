package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver.
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"daytrade/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*SQLStore)(nil)
var _ Backend = (*SQLStore)(nil)
var _ RunStore = (*SQLStore)(nil)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("backtest run not found")

// Dialect selects the placeholder style and driver of a SQLStore.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// SQLStore implements BarStore and RunStore on SQLite or Postgres.
type SQLStore struct {
	db       *sql.DB
	dialect  Dialect
	location *time.Location
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// migrations.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newSQLStore(db, DialectSQLite)
}

// NewPostgresStore connects to Postgres using dsn and runs migrations.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLStore(db, DialectPostgres)
}

func newSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, location: domain.Exchange}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS minute_bars (
			ticker      TEXT NOT NULL,
			ts          BIGINT NOT NULL,
			trade_date  TEXT NOT NULL,
			session     TEXT NOT NULL,
			open        DOUBLE PRECISION NOT NULL,
			high        DOUBLE PRECISION NOT NULL,
			low         DOUBLE PRECISION NOT NULL,
			close       DOUBLE PRECISION NOT NULL,
			volume      BIGINT NOT NULL,
			PRIMARY KEY (ticker, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_minute_bars_date ON minute_bars(ticker, trade_date)`,
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id                 TEXT PRIMARY KEY,
			created_at         BIGINT NOT NULL,
			primary_ticker     TEXT NOT NULL,
			buy_ticker_up      TEXT NOT NULL,
			buy_ticker_down    TEXT NOT NULL,
			strategy           TEXT NOT NULL,
			start_date         TEXT NOT NULL,
			end_date           TEXT NOT NULL,
			buy_price_up_ratio DOUBLE PRECISION NOT NULL,
			quantity           BIGINT NOT NULL,
			take_profit_pct    DOUBLE PRECISION NOT NULL,
			stop_loss_pct      DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backtest_rows (
			run_id          TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			trade_date      TEXT NOT NULL,
			ticker          TEXT NOT NULL,
			reference_price DOUBLE PRECISION NOT NULL,
			reference_ratio DOUBLE PRECISION NOT NULL,
			has_ratio       INTEGER NOT NULL,
			buy_price       DOUBLE PRECISION NOT NULL,
			trigger_kind    TEXT NOT NULL,
			trigger_ts      BIGINT NOT NULL,
			outcome_buy     DOUBLE PRECISION NOT NULL,
			sell_price      DOUBLE PRECISION NOT NULL,
			profit_loss_pct DOUBLE PRECISION NOT NULL,
			profit_loss     DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars inserts bars in one transaction, ignoring (ticker, ts) conflicts.
func (s *SQLStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO minute_bars
		(ticker, ts, trade_date, session, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (ticker, ts) DO NOTHING`))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		ts := b.Timestamp.In(s.location)
		if _, err := stmt.ExecContext(ctx,
			strings.ToUpper(b.Ticker), ts.UnixMilli(), ts.Format(domain.DateLayout), string(b.Session),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return fmt.Errorf("insert bar %s %s: %w", b.Ticker, ts.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// ReadBars selects a ticker's bars with start <= ts <= end.
func (s *SQLStore) ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT ticker, ts, session, open, high, low, close, volume
		FROM minute_bars
		WHERE ticker = ? AND ts >= ? AND ts <= ?
		ORDER BY ts`),
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

// ListTickers returns the distinct tickers in minute_bars.
func (s *SQLStore) ListTickers(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT ticker FROM minute_bars ORDER BY ticker`)
}

// ListDates returns the distinct trade dates stored for ticker.
func (s *SQLStore) ListDates(ctx context.Context, ticker string) ([]string, error) {
	return s.queryStrings(ctx,
		s.rebind(`SELECT DISTINCT trade_date FROM minute_bars WHERE ticker = ? ORDER BY trade_date`),
		strings.ToUpper(ticker))
}

func (s *SQLStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts the run header and its rows in one transaction.
func (s *SQLStore) SaveRun(ctx context.Context, report *domain.Report) error {
	if report.ID == "" {
		return errors.New("save run: report has no ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	p := report.Params
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO backtest_runs
		(id, created_at, primary_ticker, buy_ticker_up, buy_ticker_down, strategy,
		 start_date, end_date, buy_price_up_ratio, quantity, take_profit_pct, stop_loss_pct)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
		report.ID, report.CreatedAt.UnixMilli(), p.PrimaryTicker, p.BuyTickerUp, p.BuyTickerDown,
		string(p.Strategy), p.Start.Format(domain.DateLayout), p.End.Format(domain.DateLayout),
		p.BuyPriceUpRatio, p.Quantity, p.TakeProfitPct, p.StopLossPct,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", report.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO backtest_rows
		(run_id, seq, trade_date, ticker, reference_price, reference_ratio, has_ratio,
		 buy_price, trigger_kind, trigger_ts, outcome_buy, sell_price, profit_loss_pct, profit_loss)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range report.Rows {
		var triggerMs int64
		if !r.Outcome.TriggerTime.IsZero() {
			triggerMs = r.Outcome.TriggerTime.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx,
			report.ID, i, r.Date, r.Ticker, r.Reference.Price, r.Reference.Ratio, boolToInt(r.Reference.HasRatio),
			r.BuyPrice, string(r.Outcome.Trigger), triggerMs, r.Outcome.BuyPrice, r.Outcome.SellPrice,
			r.Outcome.ProfitLossPct, r.ProfitLoss,
		); err != nil {
			return fmt.Errorf("insert row %d of run %s: %w", i, report.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun loads a run and its rows in sequence order.
func (s *SQLStore) GetRun(ctx context.Context, id string) (*domain.Report, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, created_at, primary_ticker, buy_ticker_up,
		buy_ticker_down, strategy, start_date, end_date, buy_price_up_ratio, quantity,
		take_profit_pct, stop_loss_pct
		FROM backtest_runs WHERE id = ?`), id)

	var report domain.Report
	if err := s.scanRunHeader(row, &report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT trade_date, ticker, reference_price,
		reference_ratio, has_ratio, buy_price, trigger_kind, trigger_ts, outcome_buy, sell_price,
		profit_loss_pct, profit_loss
		FROM backtest_rows WHERE run_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("query rows of run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r         domain.BacktestRow
			hasRatio  int64
			trigger   string
			triggerMs int64
		)
		if err := rows.Scan(&r.Date, &r.Ticker, &r.Reference.Price, &r.Reference.Ratio, &hasRatio,
			&r.BuyPrice, &trigger, &triggerMs, &r.Outcome.BuyPrice, &r.Outcome.SellPrice,
			&r.Outcome.ProfitLossPct, &r.ProfitLoss); err != nil {
			return nil, err
		}
		r.Reference.HasRatio = hasRatio != 0
		r.Outcome.Trigger = domain.Trigger(trigger)
		if triggerMs != 0 {
			r.Outcome.TriggerTime = time.UnixMilli(triggerMs).In(s.location)
		}
		report.Rows = append(report.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListRuns returns run summaries, newest first.
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT r.id, r.created_at, r.primary_ticker,
		r.buy_ticker_up, r.buy_ticker_down, r.strategy, r.start_date, r.end_date,
		r.buy_price_up_ratio, r.quantity, r.take_profit_pct, r.stop_loss_pct,
		COUNT(b.seq), COALESCE(SUM(b.profit_loss), 0)
		FROM backtest_runs r
		LEFT JOIN backtest_rows b ON b.run_id = r.id
		GROUP BY r.id, r.created_at, r.primary_ticker, r.buy_ticker_up, r.buy_ticker_down,
			r.strategy, r.start_date, r.end_date, r.buy_price_up_ratio, r.quantity,
			r.take_profit_pct, r.stop_loss_pct
		ORDER BY r.created_at DESC, r.id
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			report domain.Report
			sum    RunSummary
		)
		if err := s.scanRunHeader(rows, &report, &sum.Rows, &sum.TotalProfitLoss); err != nil {
			return nil, err
		}
		sum.ID = report.ID
		sum.CreatedAt = report.CreatedAt
		sum.Params = report.Params
		out = append(out, sum)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanRunHeader(sc rowScanner, report *domain.Report, extra ...any) error {
	var (
		createdMs  int64
		strategy   string
		start, end string
	)
	p := &report.Params
	dest := []any{&report.ID, &createdMs, &p.PrimaryTicker, &p.BuyTickerUp, &p.BuyTickerDown,
		&strategy, &start, &end, &p.BuyPriceUpRatio, &p.Quantity, &p.TakeProfitPct, &p.StopLossPct}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	report.CreatedAt = time.UnixMilli(createdMs).In(s.location)
	p.Strategy = domain.StrategyName(strategy)
	var err error
	if p.Start, err = domain.DateIn(start, s.location); err != nil {
		return fmt.Errorf("run %s start date: %w", report.ID, err)
	}
	if p.End, err = domain.DateIn(end, s.location); err != nil {
		return fmt.Errorf("run %s end date: %w", report.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// rebind rewrites '?' placeholders to '$1, $2, ...' for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
