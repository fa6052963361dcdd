package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"github.com/xela07ax/usage-analytics-dashboard/internal/ingest"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxEventsBody = 4 << 20

// EventQueue: буфер пакетной записи (ingest.Batcher). Enqueue принимает
// пакет целиком или не принимает ничего.
type EventQueue interface {
	Enqueue(events ...domain.UsageEvent) (int, error)
	Buffered() int
}

type EventsHandler struct {
	queue   EventQueue
	limiter *rate.Limiter
	metrics *engine.Metrics
	logger  *zap.Logger
}

type acceptedResponse struct {
	Accepted int `json:"accepted"`
}

// NewEventsHandler ограничивает прием perMinute запросами в минуту; 0, без лимита.
func NewEventsHandler(q EventQueue, perMinute int, metrics *engine.Metrics, logger *zap.Logger) *EventsHandler {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		burst := perMinute / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
	}
	return &EventsHandler{
		queue:   q,
		limiter: limiter,
		metrics: metrics,
		logger:  logger.Named("events-handler"),
	}
}

// Ingest принимает массив событий (или одно событие) и ставит их в очередь записи.
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	events, err := decodeEvents(http.MaxBytesReader(w, r.Body, maxEventsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "no events in request")
		return
	}

	// 1. Валидируем все до постановки в очередь: пакет принимается целиком или никак
	for i := range events {
		ev, err := ingest.Normalize(events[i])
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
		events[i] = ev
	}

	// 2. Очередь
	n, err := h.queue.Enqueue(events...)
	if h.metrics != nil {
		h.metrics.IngestBufferFill.Set(float64(h.queue.Buffered()))
	}
	log := engine.LoggerFrom(r.Context(), h.logger)
	switch {
	case errors.Is(err, ingest.ErrBufferFull):
		// Ничего не принято, повтор безопасен
		log.Warn("ingest buffer full", zap.Int("received", len(events)))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "ingest buffer is full")
		return
	case errors.Is(err, ingest.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "ingest is shutting down")
		return
	case err != nil:
		log.Error("enqueue events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to accept events")
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: n})
}

func decodeEvents(r io.Reader) ([]domain.UsageEvent, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	if body[0] == '{' {
		var ev domain.UsageEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, errors.New("invalid event json")
		}
		return []domain.UsageEvent{ev}, nil
	}
	var events []domain.UsageEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, errors.New("invalid events json")
	}
	return events, nil
}
