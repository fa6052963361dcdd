package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "usage"
)

// Ключи кэша
const (
	// RedisKeyGeneration: счетчик поколения данных. Любая запись событий его инкрементирует,
	// старые ключи кэша после этого просто перестают читаться и умирают по TTL.
	RedisKeyGeneration = RedisNamespace + ":analytics:generation"
	RedisKeyLockWarmup = RedisNamespace + ":lock:warmup:analytics"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanInvalidate: сигнал остальным репликам: снимок событий устарел.
	RedisChanInvalidate = RedisNamespace + ":analytics:invalidate"
)

// AnalyticsCacheKey Генератор ключа ответа аналитики для поколения и набора фильтров
func AnalyticsCacheKey(generation int64, paramsKey string) string {
	return fmt.Sprintf("%s:analytics:g%d:%s", RedisNamespace, generation, paramsKey)
}

// InsightsCacheKey то же для /insights
func InsightsCacheKey(generation int64, paramsKey string) string {
	return fmt.Sprintf("%s:insights:g%d:%s", RedisNamespace, generation, paramsKey)
}
