package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WarmupOnce выполняет прогрев кэша только на одном инстансе из кластера.
// Распределенная блокировка через SetNX: кто первый взял lockKey, тот и греет.
func WarmupOnce(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	lockKey string,
	lockTTL time.Duration,
	warm func(ctx context.Context) error,
) error {
	ok, err := rdb.SetNX(ctx, lockKey, "processing", lockTTL).Result()
	if err != nil || !ok {
		// Либо ошибка сети, либо другой уже греет кэш
		logger.Debug("warm-up skipped", zap.String("lock", lockKey), zap.Bool("locked", !ok), zap.Error(err))
		return nil
	}

	logger.Info("performing cache warm-up...", zap.String("lock", lockKey))
	return warm(ctx)
}
