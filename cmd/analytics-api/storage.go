package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/analytics"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra"
	"github.com/xela07ax/usage-analytics-dashboard/internal/ingest"
	"github.com/xela07ax/usage-analytics-dashboard/internal/repository/postgres"
	"github.com/xela07ax/usage-analytics-dashboard/internal/repository/sqlite"
	"go.uber.org/zap"
)

// eventRepo: общее у sqlite и postgres репозиториев.
type eventRepo interface {
	analytics.EventSource
	ingest.Writer
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// storage: выбранный драйвер в виде, удобном для сборки сервиса.
// writer == nil для csv: новые события живут только в памяти.
type storage struct {
	source analytics.EventSource
	writer ingest.Writer
	ping   func(ctx context.Context) error
	close  func() error
	// operators != nil только для postgres
	operators *postgres.OperatorRepo
}

func openStorage(ctx context.Context, cfg infra.StorageConfig, logger *zap.Logger) (*storage, error) {
	if cfg.Driver == "csv" {
		src := ingest.NewCSVSource(cfg.CSVPath, logger)
		return &storage{
			source: src,
			ping:   src.Ping,
			close:  func() error { return nil },
		}, nil
	}

	repo, err := openRepo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st := &storage{source: repo, writer: repo, ping: repo.Ping, close: repo.Close}
	if pg, ok := repo.(*postgres.EventRepo); ok {
		st.operators = pg.Operators()
	}
	return st, nil
}

// openRepo открывает базу, проверяет соединение и создает схему.
func openRepo(ctx context.Context, cfg infra.StorageConfig) (eventRepo, error) {
	var repo eventRepo
	switch cfg.Driver {
	case "sqlite":
		r, err := sqlite.NewEventRepo(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo = r
	case "postgres":
		r, err := postgres.NewEventRepo(cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		repo = r
	default:
		return nil, fmt.Errorf("storage driver %q has no database", cfg.Driver)
	}

	// 1. Проверяем соединение с таймаутом
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repo.Ping(pctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	// 2. Схема
	if err := repo.EnsureSchema(pctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}
