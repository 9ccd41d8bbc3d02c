// Command dedup rewrites backfilled tables keeping one row per
// (ticker, start_time). Loads are at-least-once, so run it after backfills
// that were interrupted or retried.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/market-backfill/internal/backfill"
	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/database"
	"github.com/rickgao/market-backfill/internal/version"
	"github.com/rickgao/market-backfill/internal/warehouse"
)

func main() {
	configPath := flag.String("config", "configs/backfiller.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to dotenv file (optional)")
	jobID := flag.String("job", "", "deduplicate only this job's table")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting dedup",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := config.LoadEnv(*envPath); err != nil {
		logger.Error("failed to load env file", "err", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	jobs, err := backfill.JobsFromConfig(cfg)
	if err != nil {
		logger.Error("invalid job configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Warehouse.DB)
	if err != nil {
		logger.Error("failed to connect to warehouse", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := warehouse.New(pool, logger)

	// Jobs sharing a table are deduplicated once.
	done := make(map[string]bool)
	failed := 0
	for _, job := range jobs {
		if *jobID != "" && job.ID != *jobID {
			continue
		}
		table := job.Table(cfg.Warehouse.Dataset)
		if done[table] {
			continue
		}
		done[table] = true

		start := time.Now()
		deleted, err := store.Deduplicate(ctx, table)
		if err != nil {
			logger.Error("dedup failed", "job", job.ID, "table", table, "err", err)
			failed++
			continue
		}
		logger.Info("table deduplicated",
			"job", job.ID,
			"table", table,
			"deleted", deleted,
			"duration", time.Since(start),
		)
	}

	if len(done) == 0 {
		fmt.Fprintf(os.Stderr, "no job matches %q\n", *jobID)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
