package csvimport

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"

	"daytrade/internal/domain"
)

const sample = `Datetime,Open,High,Low,Close,Adj Close,Volume,Market
2024-03-04 09:30:00-05:00,60.1,60.5,60.0,60.4,60.4,12000,intraday
2024-03-04 09:31:00-05:00,60.4,60.6,,60.5,60.5,9000,intraday
2024-03-04 09:32:00,60.5,60.9,60.3,60.8,60.8,8000,intraday
`

func TestParse(t *testing.T) {
	res, err := Parse(strings.NewReader(sample), "TQQQ", domain.Exchange)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Bars) != 2 || res.Skipped != 1 {
		t.Fatalf("got %d bars, %d skipped; want 2, 1", len(res.Bars), res.Skipped)
	}

	first := res.Bars[0]
	want := time.Date(2024, 3, 4, 9, 30, 0, 0, domain.Exchange)
	if !first.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, want)
	}
	if first.Ticker != "TQQQ" || first.Open != 60.1 || first.Close != 60.4 || first.Volume != 12000 {
		t.Errorf("first bar = %+v", first)
	}

	// Naive timestamps are exchange-local.
	if got := res.Bars[1].Timestamp; !got.Equal(time.Date(2024, 3, 4, 9, 32, 0, 0, domain.Exchange)) {
		t.Errorf("naive timestamp = %v", got)
	}
	if first.Session != "" {
		t.Errorf("session = %q, want unset before ingest", first.Session)
	}
}

func TestParseUTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.Bytes([]byte(sample))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	res, err := Parse(bytes.NewReader(encoded), "TQQQ", domain.Exchange)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Bars) != 2 {
		t.Errorf("got %d bars, want 2", len(res.Bars))
	}
}

func TestParseUTF8BOM(t *testing.T) {
	res, err := Parse(strings.NewReader("\ufeff"+sample), "TQQQ", domain.Exchange)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Bars) != 2 {
		t.Errorf("got %d bars, want 2", len(res.Bars))
	}
}

func TestParseMultiIndexHeader(t *testing.T) {
	in := "Price,Close,High,Low,Open,Volume\n" +
		"Ticker,QQQ,QQQ,QQQ,QQQ,QQQ\n" +
		"Datetime,,,,,\n" +
		"2024-03-04 09:30:00-05:00,1.5,2,1,1.2,100\n"
	// Without a Datetime header the first column is not found.
	if _, err := Parse(strings.NewReader(in), "QQQ", domain.Exchange); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("error = %v, want ErrMissingColumn", err)
	}

	in = strings.Replace(in, "Price,", "Datetime,", 1)
	res, err := Parse(strings.NewReader(in), "QQQ", domain.Exchange)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Bars) != 1 || res.Skipped != 2 {
		t.Fatalf("got %d bars, %d skipped; want 1, 2", len(res.Bars), res.Skipped)
	}
	if b := res.Bars[0]; b.Open != 1.2 || b.Close != 1.5 {
		t.Errorf("columns matched by name: %+v", b)
	}
}

func TestParseBadTimestamp(t *testing.T) {
	in := "Datetime,Open,High,Low,Close,Volume\n" +
		"2024-03-04 09:30:00,1,1,1,1,1\n" +
		"2024-03-04 09:31:00,1,1,1,1,1\n" +
		"2024-03-04 09:32:00,1,1,1,1,1\n" +
		"yesterday,1,1,1,1,1\n"
	if _, err := Parse(strings.NewReader(in), "X", domain.Exchange); err == nil {
		t.Fatal("expected error for unparsable timestamp")
	}
}

func TestTickerFromPath(t *testing.T) {
	if got := TickerFromPath("/data/csv/tqqq.csv"); got != "TQQQ" {
		t.Errorf("got %q, want TQQQ", got)
	}
}

type recordingSink struct {
	bars []domain.Bar
}

func (s *recordingSink) Store(_ context.Context, bars []domain.Bar) error {
	s.bars = append(s.bars, bars...)
	return nil
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqqq.csv")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	n, err := NewImporter(sink).ImportFile(context.Background(), path, "")
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 2 || len(sink.bars) != 2 {
		t.Fatalf("n = %d, stored = %d; want 2, 2", n, len(sink.bars))
	}
	if sink.bars[0].Ticker != "SQQQ" {
		t.Errorf("ticker = %q, want SQQQ", sink.bars[0].Ticker)
	}
}
