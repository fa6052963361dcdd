package connectors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ThrottleError: API ответил 429. RetryAfter взят из заголовка Retry-After.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// StatusError: любой не-2xx ответ, кроме 429.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.Code)
	}
	return fmt.Sprintf("HTTP error! status: %d: %s", e.Code, e.Message)
}

// Retryable: 5xx и 429 повторяем. Остальные 4xx означают ошибку запроса, повтор бесполезен.
func Retryable(err error) bool {
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	var sErr *StatusError
	if errors.As(err, &sErr) {
		return sErr.Code >= http.StatusInternalServerError
	}
	// Сетевые ошибки и таймауты
	return true
}
