package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/usage-analytics-dashboard/internal/connectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ExecutionProvider: транспорт, который оборачиваем (connectors.HTTPAdapter).
type ExecutionProvider interface {
	Call(ctx context.Context, req connectors.Request) (*connectors.Response, error)
}

type ReliabilitySettings struct {
	Name          string
	Attempts      uint
	RateLimit     float64 // запросов в секунду
	RateBurst     int
	CallTimeout   time.Duration // предел одной попытки
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration // Время, через которое CB попробует "закрыться"
	CBMaxFailures uint32
}

type ReliabilityWrapper struct {
	next        ExecutionProvider
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	attempts    uint
	callTimeout time.Duration
	metrics     *Metrics
}

func NewReliabilityWrapper(next ExecutionProvider, s ReliabilitySettings, metrics *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if s.Attempts == 0 {
		s.Attempts = 3
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = 10 * time.Second
	}
	if s.CBMaxFailures == 0 {
		s.CBMaxFailures = 5
	}
	if s.RateLimit <= 0 {
		s.RateLimit = 100
	}
	if s.RateBurst <= 0 {
		s.RateBurst = 20
	}
	logger = logger.With(zap.String("mod", "reliability"), zap.String("breaker", s.Name))

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.CBMaxRequests,
		Interval:    s.CBInterval,
		Timeout:     s.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если больше N ошибок подряд, открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > s.CBMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return &ReliabilityWrapper{
		next:        next,
		cb:          cb,
		limiter:     rate.NewLimiter(rate.Limit(s.RateLimit), s.RateBurst),
		attempts:    s.Attempts,
		callTimeout: s.CallTimeout,
		metrics:     metrics,
	}
}

// Call: Rate Limiter -> Circuit Breaker -> Retry с бэкоффом.
// Ошибки запроса (4xx кроме 429) не повторяются и не считаются отказом для предохранителя.
func (w *ReliabilityWrapper) Call(ctx context.Context, req connectors.Request) (*connectors.Response, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		w.outcome("throttled")
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var (
		finalData *connectors.Response
		permanent error // ошибка, которую бессмысленно повторять
	)

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если API вернул ThrottleError (считали Retry-After заголовок)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка), стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
			defer cancel()

			resp, callErr := w.next.Call(tCtx, req)
			if callErr != nil && !connectors.Retryable(callErr) {
				permanent = callErr
				return nil
			}
			finalData = resp
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		w.classify(err)
		return nil, err
	}
	if permanent != nil {
		w.outcome("client_error")
		return nil, permanent
	}

	w.outcome("ok")
	return cbResult.(*connectors.Response), nil
}

func (w *ReliabilityWrapper) classify(err error) {
	var tErr *connectors.ThrottleError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		w.outcome("circuit_open")
	case errors.As(err, &tErr):
		w.outcome("throttled")
	default:
		w.outcome("failed")
	}
}

func (w *ReliabilityWrapper) outcome(o string) {
	if w.metrics != nil {
		w.metrics.ClientCalls.WithLabelValues(o).Inc()
	}
}

// State: текущее состояние предохранителя (для /health дашборда).
func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}
