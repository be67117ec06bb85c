// Package csvimport loads minute bars from yfinance-style CSV exports
// (Datetime,Open,High,Low,Close,Volume[,Market]) in UTF-8 or UTF-16.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"daytrade/internal/domain"
	"daytrade/internal/gather"
)

// ErrMissingColumn is returned when a required header column is absent.
var ErrMissingColumn = errors.New("missing column")

// timestampLayouts are tried in order for the Datetime column.
var timestampLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// NewReader returns a UTF-8 view of r, honouring a UTF-8 or UTF-16 byte
// order mark and stripping it.
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// Result is the outcome of parsing one CSV stream.
type Result struct {
	Bars    []domain.Bar
	Skipped int // rows with blank or non-numeric prices
}

type columns struct {
	ts, open, high, low, close, volume int
}

func findColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	lookup := func(names ...string) (int, error) {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: %s", ErrMissingColumn, names[0])
	}

	var c columns
	var err error
	if c.ts, err = lookup("datetime", "timestamp", "date"); err != nil {
		return c, err
	}
	if c.open, err = lookup("open"); err != nil {
		return c, err
	}
	if c.high, err = lookup("high"); err != nil {
		return c, err
	}
	if c.low, err = lookup("low"); err != nil {
		return c, err
	}
	if c.close, err = lookup("close"); err != nil {
		return c, err
	}
	if c.volume, err = lookup("volume"); err != nil {
		return c, err
	}
	return c, nil
}

// Parse reads bars for ticker from r. Timestamps without a zone offset are
// interpreted in loc; all timestamps are returned in loc. Any Market column
// is ignored because sessions are recomputed at ingest.
func Parse(r io.Reader, ticker string, loc *time.Location) (Result, error) {
	cr := csv.NewReader(NewReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return Result{}, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return Result{}, fmt.Errorf("reading header: %w", err)
	}
	cols, err := findColumns(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return Result{}, fmt.Errorf("line %d: %w", line, err)
		}

		raw := field(rec, cols.ts)
		ts, ok := parseTimestamp(raw, loc)
		if !ok {
			// yfinance multi-index exports carry extra header rows.
			if line <= 3 {
				res.Skipped++
				continue
			}
			return Result{}, fmt.Errorf("line %d: unparsable timestamp %q", line, raw)
		}

		prices := [4]float64{}
		valid := true
		for i, c := range []int{cols.open, cols.high, cols.low, cols.close} {
			v, err := strconv.ParseFloat(field(rec, c), 64)
			if err != nil || math.IsNaN(v) {
				valid = false
				break
			}
			prices[i] = v
		}
		if !valid {
			res.Skipped++
			continue
		}
		vol, _ := strconv.ParseFloat(field(rec, cols.volume), 64)
		if math.IsNaN(vol) || vol < 0 {
			vol = 0
		}

		res.Bars = append(res.Bars, domain.Bar{
			Ticker:    ticker,
			Timestamp: ts,
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    int64(vol),
		})
	}
	return res, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(rec[i], `"`))
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// TickerFromPath derives a ticker from a file name such as "tqqq.csv".
func TickerFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Importer parses CSV files and hands the bars to a sink.
type Importer struct {
	sink gather.Sink
	loc  *time.Location
	log  *slog.Logger
}

// NewImporter creates an Importer writing to sink in exchange time.
func NewImporter(sink gather.Sink) *Importer {
	return &Importer{
		sink: sink,
		loc:  domain.Exchange,
		log:  slog.Default().With("importer", "csv"),
	}
}

// ImportFile loads path for ticker, or for the ticker named by the file when
// ticker is empty, and returns the number of bars stored.
func (im *Importer) ImportFile(ctx context.Context, path, ticker string) (int, error) {
	if ticker == "" {
		ticker = TickerFromPath(path)
	}
	ticker = strings.ToUpper(ticker)

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	res, err := Parse(f, ticker, im.loc)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(res.Bars) == 0 {
		im.log.Warn("no bars in file", "path", path, "skipped", res.Skipped)
		return 0, nil
	}
	if err := im.sink.Store(ctx, res.Bars); err != nil {
		return 0, fmt.Errorf("storing %s bars: %w", ticker, err)
	}
	im.log.Info("imported", "ticker", ticker, "bars", len(res.Bars), "skipped", res.Skipped)
	return len(res.Bars), nil
}
