// Команда dashboard рендерит страницу аналитики поверх analytics-api:
// фильтры, карточки, графики, лидерборд и выгрузку.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/usage-analytics-dashboard/internal/apiclient"
	"github.com/xela07ax/usage-analytics-dashboard/internal/connectors"
	"github.com/xela07ax/usage-analytics-dashboard/internal/dashboard"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra/auth"
)

var version = "dev"

func main() {
	var (
		debug         bool
		secureCookies bool
	)
	cmd := &cobra.Command{
		Use:          "dashboard",
		Short:        "Usage analytics dashboard",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), debug, secureCookies)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark session cookies Secure (behind HTTPS)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, debug, secureCookies bool) error {
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

	appCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg, "dashboard")

	// 3. Транспорт к API: HTTP -> Reliability (limiter, breaker, retry)
	tokens, err := serviceTokens(cfg.Auth)
	if err != nil {
		return err
	}
	adapter := connectors.NewHTTPAdapter(cfg.Client.BaseURL, cfg.Client.Timeout, tokens)
	safe := engine.NewReliabilityWrapper(adapter, engine.ReliabilitySettings{
		Name:          "analytics-api",
		Attempts:      cfg.Client.Attempts,
		RateLimit:     cfg.Client.RateLimit,
		RateBurst:     cfg.Client.RateBurst,
		CallTimeout:   cfg.Client.Timeout,
		CBMaxRequests: cfg.Client.CBMaxRequests,
		CBInterval:    cfg.Client.CBInterval,
		CBTimeout:     cfg.Client.CBTimeout,
		CBMaxFailures: cfg.Client.CBMaxFailures,
	}, metrics, logger)
	client := apiclient.New(safe)

	// 4. Сессии
	secret := []byte(cfg.Dashboard.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		logger.Warn("dashboard.session_secret is empty, using a random one; sessions reset on restart")
	}
	sessions := dashboard.NewSessionStore(secret, cfg.Dashboard.SessionName, secureCookies)

	// 5. Логин оператора опционален
	opts := dashboard.Options{
		FetchTimeout: cfg.Client.Timeout * time.Duration(max(cfg.Client.Attempts, 1)),
		ResultTTL:    cfg.Dashboard.ResultTTL,
	}
	if cfg.Auth.OperatorUsername != "" {
		opts.Auth = dashboard.NewOperatorAuth(cfg.Auth.OperatorUsername, cfg.Auth.OperatorPasswordHash)
	} else {
		logger.Warn("auth.operator_username is empty, dashboard is open without login")
	}

	h := dashboard.NewHandler(client, sessions,
		dashboard.NewShaper(cfg.Dashboard.MaxDailyPoint, logger),
		dashboard.NewChartRenderer(cfg.Dashboard.ChartWidth, cfg.Dashboard.ChartHeight),
		opts, logger)

	// 6. Роутер
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	h.Routes(r)

	srv := &http.Server{
		Addr:         cfg.Dashboard.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Dashboard.ReadTimeout,
		WriteTimeout: cfg.Dashboard.WriteTimeout,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.Dashboard.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("dashboard started", zap.String("addr", srv.Addr), zap.String("api", cfg.Client.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-appCtx.Done():
		logger.Info("shutting down...")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	return runErr
}

// serviceTokens подписывает сервисные токены дашборда, если есть приватный ключ.
// Без ключа возвращает nil и запросы уходят без Authorization.
func serviceTokens(cfg infra.AuthConfig) (connectors.TokenSource, error) {
	if len(cfg.PrivateKey) == 0 {
		return nil, nil
	}
	key, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	signer := auth.NewSigner(key, "usage-analytics", cfg.TokenTTL)
	return apiclient.NewServiceTokens(signer, "dashboard", domain.ScopeAnalyticsRead), nil
}
