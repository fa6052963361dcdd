package engine

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: время обработки HTTP запросов
	RequestDuration *prometheus.HistogramVec

	// Аналитика: время расчета ответа и размер выборки
	GenerateDuration prometheus.Histogram
	SnapshotEvents   prometheus.Gauge

	// Кэш: попадания и промахи по типу ответа
	CacheTotal *prometheus.CounterVec

	// Ingest: записанные, упавшие и отброшенные события, заполненность буфера
	IngestTotal      *prometheus.CounterVec
	IngestBufferFill prometheus.Gauge

	// Клиент дашборда: исходы вызовов API
	ClientCalls *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of request latencies.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status"}),

		GenerateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_generate_duration_seconds",
			Help:      "Time spent filtering and aggregating events.",
			Buckets:   prometheus.DefBuckets,
		}),

		SnapshotEvents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analytics_snapshot_events",
			Help:      "Number of events held in memory.",
		}),

		CacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by kind and result.",
		}, []string{"kind", "result"}), // result: hit, miss

		IngestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Ingested events by outcome.",
		}, []string{"outcome"}), // outcome: stored, failed, dropped

		IngestBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_buffer_utilization",
			Help:      "Current number of events in ingest buffer.",
		}),

		ClientCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_calls_total",
			Help:      "Calls to the analytics API by outcome.",
		}, []string{"outcome"}), // outcome: ok, throttled, client_error, failed, circuit_open

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
	}
}

// ObserveGenerate реализует analytics.Observer
func (m *Metrics) ObserveGenerate(d time.Duration, _ int) {
	m.GenerateDuration.Observe(d.Seconds())
}

func (m *Metrics) SnapshotSize(n int) {
	m.SnapshotEvents.Set(float64(n))
}

// CacheResult реализует analytics.CacheObserver
func (m *Metrics) CacheResult(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(kind, result).Inc()
}

// IngestFlushed реализует ingest.Observer
func (m *Metrics) IngestFlushed(n int, err error) {
	outcome := "stored"
	if err != nil {
		outcome = "failed"
	}
	m.IngestTotal.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) IngestDropped(n int) {
	m.IngestTotal.WithLabelValues("dropped").Add(float64(n))
}

// HTTPMiddleware пишет латентность по шаблону маршрута chi, а не по сырому пути,
// чтобы не раздувать кардинальность.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
