package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"daytrade/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daytrade.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STORAGE_BACKEND", "DATA_DIR", "SQLITE_PATH", "POSTGRES_DSN", "CLICKHOUSE_ADDR",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL", "ALPACA_DATA_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  backend: "clickhouse"
  data_dir: "/tmp/daytrade/data"
  sqlite_path: "/tmp/daytrade/daytrade.db"
  clickhouse:
    addr: "ch:9000"
    database: "bars"
server:
  host: "0.0.0.0"
  grpc_port: 9090
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
  feed: "iex"
logging:
  level: "debug"
  format: "json"
fetch:
  tickers: ["TQQQ", "SQQQ"]
  lookback_days: 5
  retry_delay: 3s
refresh:
  schedule: "0 */15 * * * *"
  run_on_start: true
backtest:
  strategy: "intraday_open"
  quantity: 10
  take_profit_pct: 1.5
  stop_loss_pct: 3
  workers: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.Backend != store.BackendClickHouse {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, store.BackendClickHouse)
	}
	if cfg.Storage.DataDir != "/tmp/daytrade/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/daytrade/data")
	}
	if cfg.Server.GRPCAddr() != "0.0.0.0:9090" {
		t.Errorf("Server.GRPCAddr() = %q, want %q", cfg.Server.GRPCAddr(), "0.0.0.0:9090")
	}
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want %q", cfg.Alpaca.Feed, "iex")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if len(cfg.Fetch.Tickers) != 2 || cfg.Fetch.Tickers[1] != "SQQQ" {
		t.Errorf("Fetch.Tickers = %v, want [TQQQ SQQQ]", cfg.Fetch.Tickers)
	}
	if cfg.Fetch.LookbackDays != 5 {
		t.Errorf("Fetch.LookbackDays = %d, want 5", cfg.Fetch.LookbackDays)
	}
	if cfg.Fetch.RetryDelay != 3*time.Second {
		t.Errorf("Fetch.RetryDelay = %v, want 3s", cfg.Fetch.RetryDelay)
	}
	if !cfg.Refresh.RunOnStart {
		t.Error("Refresh.RunOnStart = false, want true")
	}
	if cfg.Backtest.Strategy != "intraday_open" || cfg.Backtest.Quantity != 10 {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if cfg.Backtest.TakeProfitPct != 1.5 || cfg.Backtest.StopLossPct != 3 {
		t.Errorf("Backtest thresholds = %v/%v, want 1.5/3", cfg.Backtest.TakeProfitPct, cfg.Backtest.StopLossPct)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	opts := cfg.StoreOptions()
	if opts.Backend != store.BackendClickHouse || opts.ClickHouse.Addr != "ch:9000" || opts.ClickHouse.Database != "bars" {
		t.Errorf("StoreOptions() = %+v", opts)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "logging:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.Backend != store.BackendParquet {
		t.Errorf("Storage.Backend = %q, want parquet", cfg.Storage.Backend)
	}
	if cfg.Server.GRPCPort != 50051 {
		t.Errorf("Server.GRPCPort = %d, want 50051", cfg.Server.GRPCPort)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want warn/text", cfg.Logging)
	}
	if cfg.Fetch.LookbackDays != 7 || cfg.Fetch.MaxWorkers != 4 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Backtest.Strategy != "pre_market_close" || cfg.Backtest.Quantity != 100 {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Storage.Backend != store.BackendSQLite {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error", cfg.Logging.Level)
	}

	t.Setenv("APCA_API_KEY_ID", "sdk-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "sdk-key" {
		t.Errorf("Alpaca.APIKey = %q, want APCA_API_KEY_ID to win", cfg.Alpaca.APIKey)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("DAYTRADE_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("DAYTRADE_CONFIG", "/etc/daytrade.yaml")
	if got := Path(); got != "/etc/daytrade.yaml" {
		t.Errorf("Path() = %q, want /etc/daytrade.yaml", got)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = store.BackendPostgres }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero quantity", func(c *Config) { c.Backtest.Quantity = 0 }},
		{"bad schedule", func(c *Config) { c.Refresh.Schedule = "every tuesday" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("0 10 20 * * MON-FRI")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	loc := time.UTC
	from := time.Date(2024, 3, 8, 21, 0, 0, 0, loc) // Friday after the run
	next := sched.Next(from)
	want := time.Date(2024, 3, 11, 20, 10, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", from, next, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Storage.Backend != store.BackendParquet {
		t.Errorf("Storage.Backend = %q, want parquet", cfg.Storage.Backend)
	}

	if _, err := LoadOrDefault(writeConfig(t, "storage: [unterminated")); err == nil {
		t.Error("expected parse error to propagate")
	}
}
