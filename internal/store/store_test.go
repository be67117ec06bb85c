package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"daytrade/internal/domain"
)

func nyTime(date string, hour, min int) time.Time {
	d, err := domain.DateIn(date, domain.Exchange)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func sampleBars() []domain.Bar {
	return []domain.Bar{
		{Ticker: "tqqq", Timestamp: nyTime("2024-03-04", 9, 29), Open: 60, High: 60.5, Low: 59.8, Close: 60.2, Volume: 1000, Session: domain.SessionPreMarket},
		{Ticker: "TQQQ", Timestamp: nyTime("2024-03-04", 9, 30), Open: 60.2, High: 61, Low: 60, Close: 60.9, Volume: 5000, Session: domain.SessionIntraday},
		{Ticker: "TQQQ", Timestamp: nyTime("2024-03-05", 16, 0), Open: 62, High: 62.1, Low: 61.9, Close: 62.05, Volume: 7000, Session: domain.SessionIntraday},
		{Ticker: "SQQQ", Timestamp: nyTime("2024-03-04", 10, 0), Open: 11, High: 11.2, Low: 10.9, Close: 11.1, Volume: 300, Session: domain.SessionIntraday},
	}
}

// exerciseBarStore runs the shared BarStore contract against s.
func exerciseBarStore(t *testing.T, s BarStore) {
	t.Helper()
	ctx := context.Background()

	if err := s.WriteBars(ctx, sampleBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Re-writing a bar with different values must not replace the stored one.
	dup := []domain.Bar{{Ticker: "TQQQ", Timestamp: nyTime("2024-03-04", 9, 30), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1, Session: domain.SessionIntraday}}
	if err := s.WriteBars(ctx, dup); err != nil {
		t.Fatalf("WriteBars dup: %v", err)
	}

	start := nyTime("2024-03-04", 0, 0)
	end := domain.EndOfDay(nyTime("2024-03-05", 0, 0))
	got, err := s.ReadBars(ctx, "TQQQ", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bars, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("bars not ascending at %d: %v then %v", i, got[i-1].Timestamp, got[i].Timestamp)
		}
	}
	if got[0].Ticker != "TQQQ" {
		t.Errorf("ticker = %q, want TQQQ", got[0].Ticker)
	}
	if got[0].Session != domain.SessionPreMarket {
		t.Errorf("session = %q, want %q", got[0].Session, domain.SessionPreMarket)
	}
	if got[1].Open != 60.2 || got[1].Volume != 5000 {
		t.Errorf("duplicate write replaced stored bar: %+v", got[1])
	}
	if loc := got[2].Timestamp.Location(); loc != domain.Exchange {
		t.Errorf("location = %v, want %v", loc, domain.Exchange)
	}
	if !got[2].Timestamp.Equal(nyTime("2024-03-05", 16, 0)) {
		t.Errorf("timestamp = %v, want 16:00 on 2024-03-05", got[2].Timestamp)
	}

	// Range bounds are inclusive and filter within a day.
	oneDay, err := s.ReadBars(ctx, "TQQQ", nyTime("2024-03-04", 9, 30), nyTime("2024-03-04", 9, 30))
	if err != nil {
		t.Fatalf("ReadBars single: %v", err)
	}
	if len(oneDay) != 1 {
		t.Errorf("got %d bars for a single-minute range, want 1", len(oneDay))
	}

	none, err := s.ReadBars(ctx, "QQQ", start, end)
	if err != nil {
		t.Fatalf("ReadBars unknown ticker: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d bars for unknown ticker, want 0", len(none))
	}

	tickers, err := s.ListTickers(ctx)
	if err != nil {
		t.Fatalf("ListTickers: %v", err)
	}
	if strings.Join(tickers, ",") != "SQQQ,TQQQ" {
		t.Errorf("tickers = %v, want [SQQQ TQQQ]", tickers)
	}

	dates, err := s.ListDates(ctx, "tqqq")
	if err != nil {
		t.Fatalf("ListDates: %v", err)
	}
	if strings.Join(dates, ",") != "2024-03-04,2024-03-05" {
		t.Errorf("dates = %v, want [2024-03-04 2024-03-05]", dates)
	}
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")
	got := ps.barPath("aapl", "2024-06-15")
	want := filepath.Join("/data", "us", "minute", "AAPL", "2024-06-15.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreBarStore(t *testing.T) {
	exerciseBarStore(t, NewParquetStore(t.TempDir()))
}

func TestParquetStoreEmpty(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, nil); err != nil {
		t.Fatalf("WriteBars(nil): %v", err)
	}
	tickers, err := ps.ListTickers(ctx)
	if err != nil {
		t.Fatalf("ListTickers: %v", err)
	}
	if len(tickers) != 0 {
		t.Errorf("tickers = %v, want none", tickers)
	}
	dates, err := ps.ListDates(ctx, "TQQQ")
	if err != nil {
		t.Fatalf("ListDates: %v", err)
	}
	if len(dates) != 0 {
		t.Errorf("dates = %v, want none", dates)
	}
}

func TestParquetStoreGroupsByExchangeDate(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	// 01:30 UTC on Mar 5 is 20:30 on Mar 4 in New York.
	b := domain.Bar{Ticker: "TQQQ", Timestamp: time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1}
	if err := ps.WriteBars(ctx, []domain.Bar{b}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	dates, err := ps.ListDates(ctx, "TQQQ")
	if err != nil {
		t.Fatalf("ListDates: %v", err)
	}
	if len(dates) != 1 || dates[0] != "2024-03-04" {
		t.Errorf("dates = %v, want [2024-03-04]", dates)
	}
}

func TestMergeBarRecordsKeepsExisting(t *testing.T) {
	existing := []BarRecord{{Timestamp: 2, Close: 10}, {Timestamp: 1, Close: 9}}
	incoming := []BarRecord{{Timestamp: 2, Close: 99}, {Timestamp: 3, Close: 11}}

	got := mergeBarRecords(existing, incoming)
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	wantClose := []float64{9, 10, 11}
	for i, r := range got {
		if r.Timestamp != int64(i+1) {
			t.Errorf("record %d timestamp = %d, want %d", i, r.Timestamp, i+1)
		}
		if r.Close != wantClose[i] {
			t.Errorf("record %d close = %v, want %v", i, r.Close, wantClose[i])
		}
	}
}

func newTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "daytrade.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreBarStore(t *testing.T) {
	exerciseBarStore(t, newTestSQLite(t))
}

func TestSQLiteStoreMigrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daytrade.db")
	for i := 0; i < 2; i++ {
		s, err := NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
}

func sampleReport(id string, created time.Time) *domain.Report {
	trig := nyTime("2024-03-04", 10, 15)
	return &domain.Report{
		ID:        id,
		CreatedAt: created,
		Params: domain.BacktestParams{
			PrimaryTicker:   "QQQ",
			BuyTickerUp:     "TQQQ",
			BuyTickerDown:   "SQQQ",
			Strategy:        domain.StrategyPreMarketClose,
			Start:           nyTime("2024-03-04", 0, 0),
			End:             nyTime("2024-03-05", 0, 0),
			BuyPriceUpRatio: 0.01,
			Quantity:        10,
			TakeProfitPct:   2,
			StopLossPct:     3,
		},
		Rows: []domain.BacktestRow{
			{
				Date:       "2024-03-04",
				Ticker:     "TQQQ",
				Reference:  domain.Reference{Price: 100, Ratio: 0.5, HasRatio: true},
				BuyPrice:   101,
				Outcome:    domain.TradeOutcome{ProfitLossPct: 2.5, Trigger: domain.TriggerTakeProfit, TriggerTime: trig, BuyPrice: 101, SellPrice: 103.53},
				ProfitLoss: 25.25,
			},
			{
				Date:      "2024-03-05",
				Ticker:    "SQQQ",
				Reference: domain.Reference{Price: 20},
				BuyPrice:  20.2,
				Outcome:   domain.TradeOutcome{Trigger: domain.TriggerNone},
			},
		},
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	older := sampleReport("run-a", time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC))
	newer := sampleReport("run-b", time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC))
	newer.Rows = newer.Rows[:1]
	for _, r := range []*domain.Report{older, newer} {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s): %v", r.ID, err)
		}
	}

	got, err := s.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Params.PrimaryTicker != "QQQ" || got.Params.Strategy != domain.StrategyPreMarketClose {
		t.Errorf("params = %+v", got.Params)
	}
	if got.Params.Start.Format(domain.DateLayout) != "2024-03-04" {
		t.Errorf("start = %v, want 2024-03-04", got.Params.Start)
	}
	if !got.CreatedAt.Equal(older.CreatedAt) {
		t.Errorf("created = %v, want %v", got.CreatedAt, older.CreatedAt)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(got.Rows))
	}
	r0 := got.Rows[0]
	if !r0.Reference.HasRatio || r0.Reference.Ratio != 0.5 {
		t.Errorf("row 0 reference = %+v", r0.Reference)
	}
	if r0.Outcome.Trigger != domain.TriggerTakeProfit || !r0.Outcome.TriggerTime.Equal(older.Rows[0].Outcome.TriggerTime) {
		t.Errorf("row 0 outcome = %+v", r0.Outcome)
	}
	if r0.ProfitLoss != 25.25 {
		t.Errorf("row 0 profit_loss = %v, want 25.25", r0.ProfitLoss)
	}
	r1 := got.Rows[1]
	if r1.Reference.HasRatio {
		t.Errorf("row 1 has ratio, want none")
	}
	if !r1.Outcome.TriggerTime.IsZero() {
		t.Errorf("row 1 trigger time = %v, want zero", r1.Outcome.TriggerTime)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Errorf("run order = %s, %s; want run-b, run-a", runs[0].ID, runs[1].ID)
	}
	if runs[1].Rows != 2 || runs[1].TotalProfitLoss != 25.25 {
		t.Errorf("run-a summary = %+v", runs[1])
	}

	_, err = s.GetRun(ctx, "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteStoreSaveRunRequiresID(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.SaveRun(context.Background(), &domain.Report{}); err == nil {
		t.Fatal("expected error for report without ID")
	}
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar("SELECT a FROM t WHERE x = ? AND y IN (?, ?)")
	want := "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	sqlite := &SQLStore{dialect: DialectSQLite}
	if q := sqlite.rebind("x = ?"); q != "x = ?" {
		t.Errorf("sqlite rebind = %q, want unchanged", q)
	}
}

func TestDialectString(t *testing.T) {
	if DialectPostgres.String() != "postgres" || DialectSQLite.String() != "sqlite" {
		t.Errorf("got %s/%s", DialectSQLite, DialectPostgres)
	}
}

func TestClickHouseSchema(t *testing.T) {
	ddl := clickHouseTableDDL("daytrade.minute_bars")
	for _, want := range []string{"daytrade.minute_bars", "ReplacingMergeTree(version)", "ORDER BY (ticker, ts_ms)"} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q", want)
		}
	}

	opts := ClickHouseOptions{}.withDefaults()
	if opts.Addr != "localhost:9000" || opts.Database != "daytrade" || opts.Table != "minute_bars" {
		t.Errorf("defaults = %+v", opts)
	}
}

func TestInsertVersionDecreases(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if insertVersion(t0) <= insertVersion(t0.Add(time.Second)) {
		t.Error("later insert must carry a lower version")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "mongo"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenParquetDefault(t *testing.T) {
	b, err := Open(context.Background(), Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*ParquetStore); !ok {
		t.Errorf("backend = %T, want *ParquetStore", b)
	}
}

func TestOpenRunStore(t *testing.T) {
	dir := t.TempDir()

	sqlStore, err := NewSQLiteStore(filepath.Join(dir, "bars.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer sqlStore.Close()
	rs, closeRuns, err := OpenRunStore(sqlStore, filepath.Join(dir, "unused.db"))
	if err != nil {
		t.Fatalf("OpenRunStore: %v", err)
	}
	if rs != RunStore(sqlStore) {
		t.Error("a SQL backend should record its own runs")
	}
	closeRuns()

	rs, closeRuns, err = OpenRunStore(NewParquetStore(dir), filepath.Join(dir, "nested", "runs.db"))
	if err != nil {
		t.Fatalf("OpenRunStore: %v", err)
	}
	defer closeRuns()
	if _, ok := rs.(*SQLStore); !ok {
		t.Errorf("run store = %T, want *SQLStore", rs)
	}
}
