package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xela07ax/usage-analytics-dashboard/internal/infra"
	"github.com/xela07ax/usage-analytics-dashboard/internal/ingest"
	"go.uber.org/zap"
)

// runImport разбирает CSV и пишет строки пачками в sqlite или postgres.
func runImport(ctx context.Context, csvPath string, batchSize int) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := openRepo(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer repo.Close()

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	events, err := ingest.ParseCSV(f, logger)
	if err != nil {
		return err
	}

	if batchSize <= 0 {
		batchSize = 500
	}
	inserted := 0
	for start := 0; start < len(events); start += batchSize {
		end := min(start+batchSize, len(events))
		stored, err := repo.WriteBatch(ctx, events[start:end])
		if err != nil {
			return fmt.Errorf("write rows %d-%d: %w", start, end, err)
		}
		inserted += len(stored)
	}

	logger.Info("import finished",
		zap.String("csv", csvPath),
		zap.String("driver", cfg.Storage.Driver),
		zap.Int("events", len(events)),
		zap.Int("inserted", inserted),
	)
	return nil
}
