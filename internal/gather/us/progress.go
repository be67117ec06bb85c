package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	statusOK    = "ok"
	statusEmpty = "empty"
)

// fetchLog is an append-only record of which tickers have been fetched for
// which run end date. Lines are "<date>\t<ticker>\t<status>". Only entries
// for the most recent date are kept in memory; older ones are dropped on
// open so the file does not grow without bound.
type fetchLog struct {
	mu     sync.Mutex
	path   string
	date   string
	done   map[string]string // ticker -> status for date
	file   *os.File
	writer *bufio.Writer
}

// openFetchLog loads <dir>/.fetch-log, keeping only the latest date's
// entries, and opens it for appending.
func openFetchLog(dir string) (*fetchLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	fl := &fetchLog{
		path: filepath.Join(dir, ".fetch-log"),
		done: make(map[string]string),
	}

	if data, err := os.ReadFile(fl.path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			parts := strings.Split(strings.TrimSpace(line), "\t")
			if len(parts) != 3 {
				continue
			}
			date, ticker, status := parts[0], parts[1], parts[2]
			switch {
			case date > fl.date:
				fl.date = date
				fl.done = map[string]string{ticker: status}
			case date == fl.date:
				fl.done[ticker] = status
			}
		}
	}

	if err := fl.rewrite(); err != nil {
		return nil, err
	}
	return fl, nil
}

// rewrite compacts the file to the in-memory entries and reopens it for
// appending.
func (fl *fetchLog) rewrite() error {
	var b strings.Builder
	for ticker, status := range fl.done {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", fl.date, ticker, status)
	}
	if err := os.WriteFile(fl.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing .fetch-log: %w", err)
	}

	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening .fetch-log: %w", err)
	}
	fl.file = f
	fl.writer = bufio.NewWriter(f)
	return nil
}

// Done reports whether ticker was already fetched for date.
func (fl *fetchLog) Done(date, ticker string) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if date != fl.date {
		return false
	}
	_, ok := fl.done[ticker]
	return ok
}

// Record appends a ticker's fetch status for date. Recording a newer date
// forgets the entries of the previous one.
func (fl *fetchLog) Record(date, ticker, status string) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if date != fl.date {
		fl.date = date
		fl.done = make(map[string]string)
	}
	fl.done[ticker] = status
	if _, err := fmt.Fprintf(fl.writer, "%s\t%s\t%s\n", date, ticker, status); err != nil {
		return fmt.Errorf("writing .fetch-log: %w", err)
	}
	return fl.writer.Flush()
}

// Status returns the recorded status of ticker for date, or "".
func (fl *fetchLog) Status(date, ticker string) string {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if date != fl.date {
		return ""
	}
	return fl.done[ticker]
}

// Close flushes and closes the log file.
func (fl *fetchLog) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.writer != nil {
		fl.writer.Flush()
	}
	if fl.file != nil {
		return fl.file.Close()
	}
	return nil
}
