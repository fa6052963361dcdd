package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/usage-analytics-dashboard/internal/analytics"
	"github.com/xela07ax/usage-analytics-dashboard/internal/api/handler"
	"github.com/xela07ax/usage-analytics-dashboard/internal/api/server"
	"github.com/xela07ax/usage-analytics-dashboard/internal/api/service"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra/auth"
	"github.com/xela07ax/usage-analytics-dashboard/internal/ingest"
	"github.com/xela07ax/usage-analytics-dashboard/internal/repository/postgres"
)

// Фильтры, которые дашборд запрашивает чаще всего.
var warmupPresets = []domain.QueryParams{
	{DateRange: 90},
	{DateRange: 30},
	{DateRange: 7},
}

func runServe(ctx context.Context, debug bool) error {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logger.Level = "debug"
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting analytics-api",
		zap.String("version", version),
		zap.String("driver", cfg.Storage.Driver),
		zap.String("addr", cfg.Server.Addr()),
	)

	// Контекст жизненного цикла: SIGINT/SIGTERM останавливают фоновые горутины
	appCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Хранилище
	store, err := openStorage(appCtx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.close()

	// 3. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg, "usage")

	// 4. Ядро аналитики
	opts := analytics.Options{TopUsersLimit: cfg.Analytics.TopUsersLimit, Observer: metrics}
	if cfg.Analytics.ReferenceDate != "" {
		// формат уже проверен в Config.Validate
		opts.ReferenceDate, _ = time.Parse("2006-01-02", cfg.Analytics.ReferenceDate)
	}
	svc := analytics.NewService(store.source, opts, logger)
	if err := svc.Refresh(appCtx); err != nil {
		return err
	}

	// 5. Кэш (Redis опционален)
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(appCtx, 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			logger.Warn("redis unreachable, cache calls will fall through", zap.Error(err))
		}
		cancel()
	}
	cache := analytics.NewCache(svc, rdb, cfg.Redis.CacheTTL, metrics, logger)
	go cache.Listen(appCtx)
	go func() {
		if err := cache.Warmup(appCtx, warmupPresets); err != nil {
			logger.Warn("cache warm-up failed", zap.Error(err))
		}
	}()

	// 6. Приём событий
	batcher := ingest.NewBatcher(store.writer, cache, metrics, ingest.Options{
		BufferSize:    cfg.Ingest.BufferSize,
		BatchSize:     cfg.Ingest.BatchSize,
		FlushInterval: cfg.Ingest.FlushInterval,
	}, logger)
	batcher.Start()

	// 7. Авторизация
	validator, authH, err := buildAuth(appCtx, cfg.Auth, store.operators, logger)
	if err != nil {
		return err
	}
	if validator == nil {
		logger.Warn("auth.public_key is not set, /api is served without tokens")
	}

	// 8. HTTP
	apiServer := server.NewAPIServer(cfg, logger, metrics, validator,
		handler.NewAnalyticsHandler(cache, logger),
		handler.NewEventsHandler(batcher, cfg.Ingest.RatePerMinute, metrics, logger),
		authH,
	)
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 9. gRPC health
	grpcSrv, hs := engine.NewGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go engine.WatchHealth(appCtx, hs, 10*time.Second, logger, store.ping)

	errCh := make(chan error, 3)
	go func() {
		logger.Info("http server started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc server started", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// 10. Ждем сигнал или падение одного из серверов
	var runErr error
	select {
	case <-appCtx.Done():
		logger.Info("shutting down...")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()

	// Batcher после HTTP: новых Enqueue уже не будет, дописываем хвост
	batcher.Stop()

	logger.Info("analytics-api stopped")
	return runErr
}

// buildAuth собирает проверку токенов и выдачу токенов оператору.
// Без публичного ключа validator == nil, без приватного нет /auth/token.
// Операторы ищутся в базе (если есть), затем в конфиге.
func buildAuth(ctx context.Context, cfg infra.AuthConfig, db *postgres.OperatorRepo, logger *zap.Logger) (auth.TokenValidator, *handler.AuthHandler, error) {
	var validator auth.TokenValidator
	if len(cfg.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		validator = auth.NewBaseValidator(pub)
	}

	if len(cfg.PrivateKey) == 0 {
		return validator, nil, nil
	}
	key, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	signer := auth.NewSigner(key, "usage-analytics", cfg.TokenTTL)
	operators := service.OperatorChain{}
	if db != nil {
		if err := db.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		operators = append(operators, db)
	}
	operators = append(operators, service.NewStaticOperators(cfg.OperatorUsername, cfg.OperatorPasswordHash))
	authH := handler.NewAuthHandler(service.NewAuthService(operators, signer), logger)
	return validator, authH, nil
}
