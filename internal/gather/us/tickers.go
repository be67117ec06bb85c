package us

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"daytrade/internal/gather/csvimport"
)

// LoadTickers reads the first column ("ticker") of a CSV watchlist. The file
// must have a header row; blank lines and duplicates are dropped and tickers
// are upper-cased.
func LoadTickers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(csvimport.NewReader(f))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}

	if len(records) < 2 {
		return nil, nil
	}

	var col []string
	for _, row := range records[1:] {
		if len(row) > 0 {
			col = append(col, row[0])
		}
	}
	return NormalizeTickers(col), nil
}

// NormalizeTickers trims, upper-cases and de-duplicates tickers, preserving
// first-seen order.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
