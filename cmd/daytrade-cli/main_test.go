package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"daytrade/internal/api"
	"daytrade/internal/report"
)

func TestParseSimulateRow(t *testing.T) {
	got, err := parseSimulateRow("2024-03-04, 100.5,98,103")
	if err != nil {
		t.Fatalf("parseSimulateRow: %v", err)
	}
	want := api.SimulateRow{Date: "2024-03-04", BuyPrice: 100.5, StopLoss: 98, TakeProfit: 103}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	for _, bad := range []string{"2024-03-04,1,2", "2024-03-04,x,2,3", ""} {
		if _, err := parseSimulateRow(bad); err == nil {
			t.Errorf("parseSimulateRow(%q): expected error", bad)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" pre-market, ,intraday")
	if len(got) != 2 || got[0] != "pre-market" || got[1] != "intraday" {
		t.Errorf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}

func TestSignStyle(t *testing.T) {
	if signStyle("-1.00").GetForeground() != lossStyle.GetForeground() {
		t.Error("negative values should use the loss style")
	}
	if signStyle("2.50").GetForeground() != gainStyle.GetForeground() {
		t.Error("positive values should use the gain style")
	}
	if signStyle("0.00").GetForeground() != cellStyle.GetForeground() {
		t.Error("zero should use the plain style")
	}
}

func TestTablesContainValues(t *testing.T) {
	v := 12.5
	out := simulateTable([]api.SimulateResult{
		{Date: "2024-03-04", ResultType: "positive", Trigger: "take-profit", BuyPrice: 100, SellPrice: 102, Value: &v},
		{Date: "2024-03-05", Error: "no data"},
	})
	for _, want := range []string{"2024-03-04", "take-profit", "12.50", "no data"} {
		if !strings.Contains(out, want) {
			t.Errorf("simulate table missing %q:\n%s", want, out)
		}
	}

	out = stocksTable([]api.Stock{{Ticker: "QQQ", FirstDate: "2024-03-01", LastDate: "2024-03-04", Days: 2}})
	if !strings.Contains(out, "QQQ") || !strings.Contains(out, "2024-03-01") {
		t.Errorf("stocks table:\n%s", out)
	}
}

func TestWriteDocument(t *testing.T) {
	doc := &report.Document{
		Params: report.Params{PrimaryTicker: "QQQ", Strategy: "intraday_open", Start: "2024-03-04", End: "2024-03-04", Quantity: 10},
		Rows: []report.Row{
			{Date: "2024-03-04", Ticker: "TQQQ", ReferencePrice: 101, BuyPrice: 101, Trigger: "take-profit", SellPrice: 103, ProfitLossPct: 1.98, ProfitLoss: 20},
		},
		TotalProfitLoss: 20,
	}
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "out.csv")
	if err := writeDocument(csvPath, "csv", doc); err != nil {
		t.Fatalf("writeDocument csv: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("TQQQ")) {
		t.Errorf("csv output missing row:\n%s", data)
	}

	jsonPath := filepath.Join(dir, "out.json")
	if err := writeDocument(jsonPath, "json", doc); err != nil {
		t.Fatalf("writeDocument json: %v", err)
	}
	data, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"primary_ticker"`)) {
		t.Errorf("json output missing params:\n%s", data)
	}

	if err := writeDocument(filepath.Join(dir, "out.txt"), "xml", doc); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestBarsTableFormatsVolume(t *testing.T) {
	out := barsTable([]api.Bar{{Timestamp: "2024-03-04T09:30:00-05:00", Session: "intraday", OHLCV: api.OHLCV{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1234567}}})
	if !strings.Contains(out, "1,234,567") {
		t.Errorf("bars table should group volume digits:\n%s", out)
	}
	if got := pct(1.5); got != "+1.50%" {
		t.Errorf("pct(1.5) = %q, want +1.50%%", got)
	}
}
