package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/xela07ax/usage-analytics-dashboard/internal/api/handler"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra/auth"
	"go.uber.org/zap"
)

type APIServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	cfg     *infra.Config
	metrics *engine.Metrics

	// Проверка токенов RS256. nil, auth выключен (ключи не настроены)
	authValidator auth.TokenValidator

	analyticsHandler *handler.AnalyticsHandler // /api/analytics, /api/insights, /api/export
	eventsHandler    *handler.EventsHandler    // /api/events
	authHandler      *handler.AuthHandler      // /auth/token, nil если подписи нет
}

// NewAPIServer собирает роутер analytics-api со всеми зависимостями.
func NewAPIServer(
	cfg *infra.Config,
	logger *zap.Logger,
	metrics *engine.Metrics,
	validator auth.TokenValidator,
	analyticsH *handler.AnalyticsHandler,
	eventsH *handler.EventsHandler,
	authH *handler.AuthHandler,
) *APIServer {
	s := &APIServer{
		router:           chi.NewRouter(),
		logger:           logger.Named("analytics-api"),
		cfg:              cfg,
		metrics:          metrics,
		authValidator:    validator,
		analyticsHandler: analyticsH,
		eventsHandler:    eventsH,
		authHandler:      authH,
	}

	s.routes()
	return s
}

func (s *APIServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.HTTPMiddleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", engine.TraceHeader},
		ExposedHeaders:   []string{"Content-Disposition", engine.TraceHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", handler.Health)
	if s.authHandler != nil {
		r.Post("/auth/token", s.authHandler.Login)
	}

	// --- 3. API аналитики (RS256 токен, если auth включен) ---
	r.Route("/api", func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		r.Group(func(r chi.Router) {
			if s.authValidator != nil {
				r.Use(auth.RequireScope(domain.ScopeAnalyticsRead))
			}
			r.Get("/analytics", s.analyticsHandler.GetAnalytics)
			r.Post("/insights", s.analyticsHandler.Insights)
			r.Post("/export", s.analyticsHandler.Export)
		})

		r.Group(func(r chi.Router) {
			if s.authValidator != nil {
				r.Use(auth.RequireScope(domain.ScopeEventsWrite))
			}
			r.Post("/events", s.eventsHandler.Ingest)
		})
	})
}

// ServeHTTP позволяет использовать APIServer как стандартный http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
