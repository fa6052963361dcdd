package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/connectors"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra/auth"
)

// Caller: надежный транспорт (engine.ReliabilityWrapper) или голый адаптер в тестах.
type Caller interface {
	Call(ctx context.Context, req connectors.Request) (*connectors.Response, error)
}

// Client: типизированная обертка над analytics API для дашборда.
type Client struct {
	caller Caller
}

func New(caller Caller) *Client {
	return &Client{caller: caller}
}

// AnalyticsQuery переводит фильтры в query-параметры GET /analytics:
// dateRange только если > 0, companyId кроме пустого и "all",
// даты только валидные и только дата без времени.
func AnalyticsQuery(p domain.QueryParams) url.Values {
	q := url.Values{}
	if p.DateRange > 0 {
		q.Set("dateRange", strconv.Itoa(p.DateRange))
	}
	if p.CompanyID != "" && p.CompanyID != domain.AllCompanies {
		q.Set("companyId", p.CompanyID)
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if d, ok := isoDate(p.FromDate); ok {
		q.Set("fromDate", d)
	}
	if d, ok := isoDate(p.ToDate); ok {
		q.Set("toDate", d)
	}
	return q
}

// isoDate принимает YYYY-MM-DD или RFC3339 и возвращает дату в UTC.
func isoDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if t, err := time.Parse(domain.DateLayout, s); err == nil {
		return t.Format(domain.DateLayout), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(domain.DateLayout), true
	}
	return "", false
}

func (c *Client) GetAnalytics(ctx context.Context, p domain.QueryParams) (domain.AnalyticsResponse, error) {
	resp, err := c.caller.Call(ctx, connectors.Request{
		Method: http.MethodGet,
		Path:   "/analytics",
		Query:  AnalyticsQuery(p),
	})
	if err != nil {
		return domain.AnalyticsResponse{}, err
	}

	out := domain.EmptyAnalytics()
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return domain.AnalyticsResponse{}, fmt.Errorf("decode analytics: %w", err)
	}
	// null от API не должен ронять шаблоны
	if out.Trends.Trends == nil {
		out.Trends.Trends = map[string][]domain.UsageTrend{}
	}
	if out.Companies == nil {
		out.Companies = []domain.Company{}
	}
	if out.TopUsers == nil {
		out.TopUsers = []domain.UserActivity{}
	}
	return out, nil
}

func (c *Client) Insights(ctx context.Context, p domain.QueryParams) (domain.InsightsResponse, error) {
	body, err := json.Marshal(p.ForAPI())
	if err != nil {
		return domain.InsightsResponse{}, err
	}
	resp, err := c.caller.Call(ctx, connectors.Request{Method: http.MethodPost, Path: "/insights", Body: body})
	if err != nil {
		return domain.InsightsResponse{}, err
	}
	var out domain.InsightsResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return domain.InsightsResponse{}, fmt.Errorf("decode insights: %w", err)
	}
	return out, nil
}

// Export возвращает файл выгрузки как есть (тело, тип, имя).
func (c *Client) Export(ctx context.Context, p domain.QueryParams, opts domain.ExportOptions) (*connectors.Response, error) {
	body, err := json.Marshal(domain.ExportRequest{Params: p.ForAPI(), Options: opts})
	if err != nil {
		return nil, err
	}
	return c.caller.Call(ctx, connectors.Request{Method: http.MethodPost, Path: "/export", Body: body})
}

// ServiceTokens: источник сервисного токена дашборда. Токен переиспользуется,
// пока до истечения остается больше минуты.
type ServiceTokens struct {
	signer *auth.Signer
	userID string
	scopes []string

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewServiceTokens(signer *auth.Signer, userID string, scopes ...string) *ServiceTokens {
	return &ServiceTokens{signer: signer, userID: userID, scopes: scopes}
}

// Token реализует connectors.TokenSource
func (s *ServiceTokens) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Until(s.expires) > time.Minute {
		return s.token, nil
	}
	tok, err := s.signer.Sign(s.userID, s.scopes)
	if err != nil {
		return "", err
	}
	s.token = tok
	s.expires = time.Now().Add(s.signer.TTL())
	return tok, nil
}
