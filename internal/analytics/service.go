package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"go.uber.org/zap"
)

// EventSource: откуда берется снимок событий (CSV, SQLite, Postgres).
type EventSource interface {
	LoadEvents(ctx context.Context) ([]domain.UsageEvent, error)
}

// Observer: хуки для метрик, реализуется engine.Metrics.
type Observer interface {
	ObserveGenerate(d time.Duration, events int)
	SnapshotSize(n int)
}

type Options struct {
	// ReferenceDate: "сегодня" для окон по dateRange. Нулевое значение означает системные часы.
	ReferenceDate time.Time
	TopUsersLimit int
	Observer      Observer
}

// Service держит снимок событий в памяти и считает аналитику по запросу.
type Service struct {
	source EventSource
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	events []domain.UsageEvent
	ids    map[string]struct{}
	names  companyNames
}

func NewService(source EventSource, opts Options, logger *zap.Logger) *Service {
	if opts.TopUsersLimit <= 0 {
		opts.TopUsersLimit = 10
	}
	return &Service{
		source: source,
		opts:   opts,
		logger: logger.With(zap.String("mod", "analytics")),
		now:    time.Now,
		ids:    map[string]struct{}{},
		names:  companyNames{},
	}
}

// Refresh полностью перечитывает снимок из источника.
func (s *Service) Refresh(ctx context.Context) error {
	events, err := s.source.LoadEvents(ctx)
	if err != nil {
		return fmt.Errorf("analytics: load events: %w", err)
	}

	names := companyNames{}
	ids := make(map[string]struct{}, len(events))
	for _, e := range events {
		names.learn(e.CompanyID, e.Content)
		ids[e.ID] = struct{}{}
	}

	s.mu.Lock()
	s.events = events
	s.ids = ids
	s.names = names
	s.mu.Unlock()

	if s.opts.Observer != nil {
		s.opts.Observer.SnapshotSize(len(events))
	}
	s.logger.Info("snapshot refreshed", zap.Int("events", len(events)), zap.Int("companies", len(names)))
	return nil
}

// Append добавляет уже сохраненные события в снимок (вызывается ingest-воркером).
// Id, который уже есть в снимке, пропускается: снимок совпадает с тем,
// что вернет перечитывание из базы. Возвращает число добавленных.
func (s *Service) Append(events []domain.UsageEvent) int {
	if len(events) == 0 {
		return 0
	}
	s.mu.Lock()
	fresh := make([]domain.UsageEvent, 0, len(events))
	for _, e := range events {
		if _, seen := s.ids[e.ID]; seen {
			continue
		}
		s.ids[e.ID] = struct{}{}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		s.mu.Unlock()
		return 0
	}
	// Новый слайс: читатели могут держать старый без блокировки
	merged := make([]domain.UsageEvent, 0, len(s.events)+len(fresh))
	merged = append(merged, s.events...)
	merged = append(merged, fresh...)
	s.events = merged
	for _, e := range fresh {
		s.names.learn(e.CompanyID, e.Content)
	}
	n := len(s.events)
	s.mu.Unlock()

	if s.opts.Observer != nil {
		s.opts.Observer.SnapshotSize(n)
	}
	return len(fresh)
}

// Size: число событий в снимке.
func (s *Service) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Today: опорная дата для окон по dateRange.
func (s *Service) Today() time.Time {
	if !s.opts.ReferenceDate.IsZero() {
		return dayStart(s.opts.ReferenceDate)
	}
	return dayStart(s.now())
}

// Generate считает полный ответ аналитики: сначала фильтрует события
// (компания, поиск, окно дат), затем строит сводку, тренды, компании и топ пользователей.
func (s *Service) Generate(ctx context.Context, params domain.QueryParams) (domain.AnalyticsResponse, error) {
	start := time.Now()

	s.mu.RLock()
	events := s.events
	names := s.names.clone()
	s.mu.RUnlock()

	w := resolveWindow(params, s.Today())
	filtered, err := filterEvents(ctx, events, params, w)
	if err != nil {
		return domain.AnalyticsResponse{}, err
	}

	resp := domain.EmptyAnalytics()
	resp.Summary = summarize(filtered)
	resp.Trends = trendsByCompany(filtered, w, names)
	resp.Companies = companyMetrics(filtered, names)
	resp.TopUsers = topUsers(filtered, names, s.opts.TopUsersLimit)

	if s.opts.Observer != nil {
		s.opts.Observer.ObserveGenerate(time.Since(start), len(filtered))
	}
	return resp, nil
}

func (c companyNames) clone() companyNames {
	out := make(companyNames, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
