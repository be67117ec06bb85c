package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendParquet    = "parquet"
	BackendSQLite     = "sqlite"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Options selects and configures a bar storage backend.
type Options struct {
	Backend     string
	DataDir     string
	SQLitePath  string
	PostgresDSN string
	ClickHouse  ClickHouseOptions
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case BackendParquet, "":
		return NewParquetStore(opts.DataDir), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(opts.PostgresDSN)
	case BackendClickHouse:
		return NewClickHouseStore(ctx, opts.ClickHouse)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// OpenRunStore returns b when it can record runs itself, otherwise a SQLite
// store at sqlitePath. The close func releases only what OpenRunStore opened.
func OpenRunStore(b Backend, sqlitePath string) (RunStore, func() error, error) {
	if rs, ok := b.(RunStore); ok {
		return rs, func() error { return nil }, nil
	}
	s, err := NewSQLiteStore(sqlitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run store: %w", err)
	}
	return s, s.Close, nil
}
