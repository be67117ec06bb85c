package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"daytrade/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ Backend = (*ParquetStore)(nil)

// ParquetStore implements BarStore using one Parquet file per ticker and
// exchange-local trading date.
type ParquetStore struct {
	DataDir  string
	Location *time.Location
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Location: domain.Exchange}
}

// Close is a no-op; ParquetStore holds no open handles.
func (s *ParquetStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for minute bar data.
type BarRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Session   string  `parquet:"session"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars merges bars into per-day Parquet files at:
//
//	<DataDir>/us/minute/<TICKER>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		ticker string
		date   string
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.In(s.Location)
		k := key{ticker: strings.ToUpper(b.Ticker), date: ts.Format(domain.DateLayout)}
		groups[k] = append(groups[k], BarRecord{
			Ticker:    k.ticker,
			Timestamp: ts.UnixMilli(),
			Session:   string(b.Session),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.barPath(k.ticker, k.date)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading bars for %s/%s: %w", k.ticker, k.date, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%s: %w", k.ticker, k.date, err)
		}
	}
	return nil
}

// ReadBars reads the day files overlapping [start, end].
func (s *ParquetStore) ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	ticker = strings.ToUpper(ticker)
	first := domain.StartOfDay(start.In(s.Location))
	last := end.In(s.Location)

	var bars []domain.Bar
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[BarRecord](s.barPath(ticker, d.Format(domain.DateLayout)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).In(s.Location)
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, recordToBar(r, ts))
		}
	}
	return bars, nil
}

// ListTickers lists the ticker directories under us/minute.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "us", "minute"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// ListDates lists the day files of a ticker.
func (s *ParquetStore) ListDates(_ context.Context, ticker string) ([]string, error) {
	dir := filepath.Join(s.DataDir, "us", "minute", strings.ToUpper(ticker))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, ".parquet"))
	}
	sort.Strings(dates)
	return dates, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a ticker's day file.
// Layout: <dataDir>/us/minute/<TICKER>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) barPath(ticker, date string) string {
	return filepath.Join(s.DataDir, "us", "minute", strings.ToUpper(ticker), date+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by timestamp. Records already on
// disk win over incoming ones, so re-ingesting a day never rewrites history.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}
	for _, r := range existing {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

func recordToBar(r BarRecord, ts time.Time) domain.Bar {
	return domain.Bar{
		Ticker:    r.Ticker,
		Timestamp: ts,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Session:   domain.ParseSession(r.Session),
	}
}
