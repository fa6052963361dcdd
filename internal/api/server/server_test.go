package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/analytics"
	"github.com/xela07ax/usage-analytics-dashboard/internal/api/handler"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra/auth"
	"go.uber.org/zap"
)

type memSource struct{ events []domain.UsageEvent }

func (m memSource) LoadEvents(context.Context) ([]domain.UsageEvent, error) { return m.events, nil }

type nopQueue struct{}

func (nopQueue) Enqueue(events ...domain.UsageEvent) (int, error) { return len(events), nil }
func (nopQueue) Buffered() int                                    { return 0 }

func newServer(t *testing.T, validator auth.TokenValidator) *APIServer {
	t.Helper()
	day := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	src := memSource{events: []domain.UsageEvent{
		{ID: "1", CompanyID: "acme", CreatedAt: day, Content: "Login - Acme Corp ann@acme.io"},
		{ID: "2", CompanyID: "acme", CreatedAt: day.AddDate(0, 0, -1), Content: "Login - Acme Corp bob@acme.io"},
	}}
	svc := analytics.NewService(src, analytics.Options{ReferenceDate: time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)}, zap.NewNop())
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := &infra.Config{Server: infra.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}}}
	return NewAPIServer(cfg, zap.NewNop(), engine.NewMetrics(nil, "test"), validator,
		handler.NewAnalyticsHandler(svc, zap.NewNop()),
		handler.NewEventsHandler(nopQueue{}, 0, nil, zap.NewNop()),
		nil,
	)
}

func TestAnalyticsRouteWithoutAuth(t *testing.T) {
	s := newServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics?dateRange=7", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"totalEvents":2`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec.Header().Get(engine.TraceHeader) == "" {
		t.Fatal("missing trace header")
	}
}

func TestHealthIsPublic(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	s := newServer(t, auth.NewBaseValidator(&key.PublicKey))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScopesEnforced(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	signer := auth.NewSigner(key, "test", time.Minute)
	s := newServer(t, auth.NewBaseValidator(&key.PublicKey))

	readOnly, err := signer.Sign("dashboard", []string{domain.ScopeAnalyticsRead})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/analytics", "", "", http.StatusUnauthorized},
		{"read scope", http.MethodGet, "/api/analytics", "", readOnly, http.StatusOK},
		{"write without scope", http.MethodPost, "/api/events",
			`{"company_id":"acme","created_at":"2025-07-01T10:00:00Z"}`, readOnly, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/analytics", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}
