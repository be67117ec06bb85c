package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"daytrade/internal/config"
	"daytrade/internal/gather/csvimport"
	"daytrade/internal/query"
	"daytrade/internal/store"
	"daytrade/internal/util"
)

func main() {
	ticker := flag.String("ticker", "", "ticker for every file (default: derived from each file name)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: daytrade-import [-ticker T] file.csv [file.csv ...]\n\n")
		fmt.Fprintf(os.Stderr, "Imports minute bars from CSV exports with Datetime,Open,High,Low,Close,Volume columns.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		log.Fatalf("opening %s store: %v", cfg.Storage.Backend, err)
	}
	defer bars.Close()

	importer := csvimport.NewImporter(query.NewQuerier(bars, logger))

	var total, failed int
	for _, path := range flag.Args() {
		if ctx.Err() != nil {
			break
		}
		n, err := importer.ImportFile(ctx, path, *ticker)
		if err != nil {
			failed++
			slog.Error("import failed", "path", path, "err", err)
			continue
		}
		total += n
	}

	slog.Info("import complete", "files", flag.NArg(), "bars", total, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
