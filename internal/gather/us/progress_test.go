package us

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchLogRecordAndReload(t *testing.T) {
	dir := t.TempDir()

	fl, err := openFetchLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, tk := range []string{"AAPL", "MSFT"} {
		if err := fl.Record("2024-03-04", tk, statusOK); err != nil {
			t.Fatal(err)
		}
	}
	if err := fl.Record("2024-03-04", "ZZZZ", statusEmpty); err != nil {
		t.Fatal(err)
	}
	fl.Close()

	fl2, err := openFetchLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer fl2.Close()

	for _, tk := range []string{"AAPL", "MSFT", "ZZZZ"} {
		if !fl2.Done("2024-03-04", tk) {
			t.Errorf("expected %q to be done after reload", tk)
		}
	}
	if fl2.Done("2024-03-04", "NVDA") {
		t.Error("NVDA should not be done")
	}
	if fl2.Done("2024-03-05", "AAPL") {
		t.Error("entries must not carry over to another date")
	}
}

func TestFetchLogKeepsLatestDate(t *testing.T) {
	dir := t.TempDir()
	content := "2024-03-01\tAAPL\tok\n" +
		"2024-03-04\tMSFT\tok\n" +
		"garbage line\n" +
		"2024-03-04\tTSLA\tempty\n"
	if err := os.WriteFile(filepath.Join(dir, ".fetch-log"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fl, err := openFetchLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer fl.Close()

	if fl.Done("2024-03-01", "AAPL") {
		t.Error("older date should be dropped")
	}
	if fl.Status("2024-03-04", "TSLA") != statusEmpty {
		t.Errorf("TSLA status = %q, want empty", fl.Status("2024-03-04", "TSLA"))
	}

	data, err := os.ReadFile(filepath.Join(dir, ".fetch-log"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "2024-03-01") || strings.Contains(string(data), "garbage") {
		t.Errorf("log not compacted:\n%s", data)
	}
}

func TestFetchLogNewDateResets(t *testing.T) {
	fl, err := openFetchLog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fl.Close()

	fl.Record("2024-03-04", "AAPL", statusOK)
	fl.Record("2024-03-05", "MSFT", statusOK)
	if fl.Done("2024-03-04", "AAPL") {
		t.Error("recording a new date should forget the old one")
	}
	if !fl.Done("2024-03-05", "MSFT") {
		t.Error("MSFT should be done for 2024-03-05")
	}
}
