package dashboard

import (
	"sync"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

// pageData: все, что страница получила от API для одного набора applied-фильтров.
type pageData struct {
	Key        string
	Analytics  domain.AnalyticsResponse
	Highlights []domain.Insight
	Companies  []domain.Company
	fetched    time.Time
}

// ResultStore держит последний ответ API на сессию. Повторный показ страницы с теми же
// applied-фильтрами (Apply без изменений, графики, перезагрузка) берет данные отсюда.
type ResultStore struct {
	mu      sync.RWMutex
	entries map[string]*pageData
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func NewResultStore(ttl time.Duration, max int) *ResultStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if max <= 0 {
		max = 1024
	}
	return &ResultStore{entries: make(map[string]*pageData), ttl: ttl, max: max, now: time.Now}
}

func (s *ResultStore) valid(d *pageData) bool {
	return s.now().Sub(d.fetched) < s.ttl
}

// Get отдает данные сессии, только если они для того же ключа фильтров и не протухли.
func (s *ResultStore) Get(sessionID, key string) (*pageData, bool) {
	if sessionID == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.entries[sessionID]
	if !ok || d.Key != key || !s.valid(d) {
		return nil, false
	}
	return d, true
}

func (s *ResultStore) Put(sessionID string, d *pageData) {
	if sessionID == "" {
		return
	}
	d.fetched = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = d
	if len(s.entries) <= s.max {
		return
	}
	// 1. Сначала выкидываем протухшие
	for id, e := range s.entries {
		if !s.valid(e) {
			delete(s.entries, id)
		}
	}
	// 2. Если не помогло, самую старую запись
	for len(s.entries) > s.max {
		var oldestID string
		var oldest time.Time
		for id, e := range s.entries {
			if oldestID == "" || e.fetched.Before(oldest) {
				oldestID, oldest = id, e.fetched
			}
		}
		delete(s.entries, oldestID)
	}
}

func (s *ResultStore) Drop(sessionID string) {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
}

func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
