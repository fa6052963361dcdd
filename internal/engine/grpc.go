package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HealthService: имя сервиса в grpc.health.v1 (пустое имя означает весь сервер).
const HealthService = "usage.analytics.v1.AnalyticsService"

// UnaryLoggingInterceptor прокидывает trace id из метаданных и пишет каждый вызов в лог.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// 1. Trace-ID из метаданных (в gRPC заголовки в нижнем регистре)
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-trace-id"); len(ids) > 0 {
				ctx = WithTraceID(ctx, ids[0])
			}
		}

		// 2. Идем дальше по цепочке
		start := time.Now()
		resp, err := handler(ctx, req)

		LoggerFrom(ctx, logger).Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)),
		)
		return resp, err
	}
}

// NewGRPCServer собирает gRPC сервер с health-сервисом.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLoggingInterceptor(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchHealth периодически проверяет зависимость (источник событий) и переключает
// статус health-сервиса. Блокирует до отмены ctx.
func WatchHealth(ctx context.Context, hs *health.Server, interval time.Duration, logger *zap.Logger, check func(context.Context) error) {
	set := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		st := healthpb.HealthCheckResponse_SERVING
		if err := check(cctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("health check failed", zap.Error(err))
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(HealthService, st)
	}

	set()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			set()
		}
	}
}
