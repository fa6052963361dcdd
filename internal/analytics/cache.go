package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheObserver: хуки для метрик кэша.
type CacheObserver interface {
	CacheResult(kind string, hit bool)
}

// Cache: L2 кэш ответов в Redis поверх Service.
//
// Ключ = поколение данных + нормализованные параметры. Запись событий увеличивает
// поколение (INCR), и все старые ключи разом перестают читаться. Одновременные
// промахи по одному ключу схлопываются через singleflight.
// Без Redis (rdb == nil) все вызовы идут напрямую в Service.
type Cache struct {
	svc      *Service
	rdb      *redis.Client
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
	group    singleflight.Group
	// computeTimeout: предел общего расчета при промахе
	computeTimeout time.Duration

	// instanceID отличает свои сигналы инвалидации от чужих
	instanceID string
}

func NewCache(svc *Service, rdb *redis.Client, ttl time.Duration, observer CacheObserver, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		svc:            svc,
		rdb:            rdb,
		ttl:            ttl,
		observer:       observer,
		logger:         logger.With(zap.String("mod", "analytics_cache")),
		instanceID:     uuid.NewString(),
		computeTimeout: 30 * time.Second,
	}
}

func (c *Cache) Generate(ctx context.Context, params domain.QueryParams) (domain.AnalyticsResponse, error) {
	return cached(ctx, c, "analytics", infra.AnalyticsCacheKey, params, c.svc.Generate)
}

func (c *Cache) Insights(ctx context.Context, params domain.QueryParams) (domain.InsightsResponse, error) {
	return cached(ctx, c, "insights", infra.InsightsCacheKey, params, c.svc.Insights)
}

// Export не кэшируется: выгрузки редкие и объемные.
func (c *Cache) Export(ctx context.Context, req domain.ExportRequest) (ExportFile, error) {
	return c.svc.Export(ctx, req)
}

func cached[T any](
	ctx context.Context,
	c *Cache,
	kind string,
	keyFn func(int64, string) string,
	params domain.QueryParams,
	compute func(context.Context, domain.QueryParams) (T, error),
) (T, error) {
	if c.rdb == nil {
		return compute(ctx, params)
	}

	gen, err := c.generation(ctx)
	if err != nil {
		// Redis недоступен: отвечаем из памяти, кэш не трогаем
		c.logger.Warn("cache bypassed", zap.Error(err))
		return compute(ctx, params)
	}
	key := keyFn(gen, params.CacheKey())

	// 1. Пробуем Redis
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			c.observe(kind, true)
			return out, nil
		}
		c.logger.Warn("corrupted cache entry", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	c.observe(kind, false)

	// 2. Промах: один расчет на ключ, остальные ждут его результат.
	// Расчет не привязан к отмене первого клиента, иначе ошибку получат все ждущие.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		out, err := compute(cctx, params)
		if err != nil {
			return out, err
		}
		if data, err := json.Marshal(out); err == nil {
			if err := c.rdb.Set(cctx, key, data, c.ttl).Err(); err != nil {
				c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		return out, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *Cache) observe(kind string, hit bool) {
	if c.observer != nil {
		c.observer.CacheResult(kind, hit)
	}
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, infra.RedisKeyGeneration).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate поднимает поколение и оповещает остальные реплики.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	gen, err := c.rdb.Incr(ctx, infra.RedisKeyGeneration).Result()
	if err != nil {
		return fmt.Errorf("analytics: bump cache generation: %w", err)
	}
	payload := c.instanceID + ":" + strconv.FormatInt(gen, 10)
	if err := c.rdb.Publish(ctx, infra.RedisChanInvalidate, payload).Err(); err != nil {
		return fmt.Errorf("analytics: publish invalidation: %w", err)
	}
	return nil
}

// Append реализует ingest.Sink: событие в снимок, затем инвалидация кэша.
// Если снимок не изменился, кэш не трогаем.
func (c *Cache) Append(events []domain.UsageEvent) {
	if c.svc.Append(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Invalidate(ctx); err != nil {
		c.logger.Error("invalidation failed", zap.Error(err))
	}
}

// Listen слушает сигналы инвалидации от других реплик и перечитывает снимок
// из общей базы. Блокирует до отмены ctx.
func (c *Cache) Listen(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	engine.ListenResilient(ctx, c.rdb, c.logger, infra.RedisChanInvalidate,
		nil,
		func(origin, gen string) {
			if origin == c.instanceID {
				return
			}
			c.logger.Debug("invalidation received", zap.String("origin", origin), zap.String("generation", gen))
			if err := c.svc.Refresh(ctx); err != nil {
				c.logger.Error("refresh after invalidation failed", zap.Error(err))
			}
		},
	)
}

// Warmup заранее считает ответы для типовых фильтров. Греет только один инстанс.
func (c *Cache) Warmup(ctx context.Context, presets []domain.QueryParams) error {
	if c.rdb == nil {
		return nil
	}
	return engine.WarmupOnce(ctx, c.rdb, c.logger, infra.RedisKeyLockWarmup, 30*time.Second,
		func(ctx context.Context) error {
			for _, p := range presets {
				if _, err := c.Generate(ctx, p); err != nil {
					return fmt.Errorf("analytics: warm-up %s: %w", p.CacheKey(), err)
				}
			}
			return nil
		},
	)
}
