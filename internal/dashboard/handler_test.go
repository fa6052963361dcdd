package dashboard

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/usage-analytics-dashboard/internal/connectors"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeAPI struct {
	mu      sync.Mutex
	calls   int32
	seen    []domain.QueryParams
	err     error
	delay   time.Duration
	resp    domain.AnalyticsResponse
	exports []domain.ExportOptions
	file    *connectors.Response
}

func (f *fakeAPI) GetAnalytics(ctx context.Context, p domain.QueryParams) (domain.AnalyticsResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.seen = append(f.seen, p)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.AnalyticsResponse{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.AnalyticsResponse{}, f.err
	}
	return f.resp, nil
}

func (f *fakeAPI) Insights(context.Context, domain.QueryParams) (domain.InsightsResponse, error) {
	return domain.InsightsResponse{Insights: []domain.Insight{{ID: "top-company", Title: "Top company", Value: "Acme Corp"}}}, nil
}

func (f *fakeAPI) Export(_ context.Context, _ domain.QueryParams, opts domain.ExportOptions) (*connectors.Response, error) {
	f.mu.Lock()
	f.exports = append(f.exports, opts)
	f.mu.Unlock()
	if f.file != nil {
		return f.file, nil
	}
	return &connectors.Response{Body: []byte("id,name\n"), ContentType: "text/csv", Filename: "usage.csv"}, nil
}

// firstParams: параметры первого запроса аналитики (страница грузит applied-фильтры первыми).
func (f *fakeAPI) firstParams() domain.QueryParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seen) == 0 {
		return domain.QueryParams{}
	}
	return f.seen[0]
}

func sampleResponse() domain.AnalyticsResponse {
	return domain.AnalyticsResponse{
		Summary: domain.DashboardSummary{TotalEvents: 3, TotalCompanies: 2, PeakUsageDay: "2025-07-02"},
		Trends: domain.UsageTrends{Trends: map[string][]domain.UsageTrend{
			"Acme Corp": pts("2025-07-01", 1, "2025-07-02", 1),
			"Beta":      pts("2025-07-01", 0, "2025-07-02", 1),
		}},
		Companies: []domain.Company{{ID: "c1", Name: "Acme Corp", EventCount: 2}, {ID: "c2", Name: "Beta", EventCount: 1}},
		TopUsers:  []domain.UserActivity{{Email: "ann@acme.io", EventCount: 2, CompanyName: "Acme Corp"}},
	}
}

func newTestHandler(t *testing.T, api *fakeAPI, auth Authenticator) (*httptest.Server, *http.Client) {
	t.Helper()
	h := NewHandler(api,
		NewSessionStore([]byte("0123456789abcdef0123456789abcdef"), "test_session", false),
		NewShaper(30, zap.NewNop()),
		NewChartRenderer(400, 200),
		Options{
			FetchTimeout: time.Second,
			Auth:         auth,
			Clock:        func() time.Time { return now },
		},
		zap.NewNop(),
	)
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return srv, &http.Client{Jar: jar}
}

func get(t *testing.T, c *http.Client, u string) (int, string) {
	t.Helper()
	resp, err := c.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, c *http.Client, u string, form url.Values) (int, string) {
	t.Helper()
	resp, err := c.PostForm(u, form)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestPageRendersDashboard(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse()}
	srv, c := newTestHandler(t, api, nil)

	code, body := get(t, c, srv.URL+"/")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	for _, want := range []string{"TOTAL EVENTS", "Jul 2, 2025", "ann...", "Usage patterns across all companies", "Top company"} {
		if !strings.Contains(body, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
	if got := api.firstParams(); got.CompanyID != "" || got.DateRange != domain.DefaultDateRange {
		t.Fatalf("fetched with %+v", got)
	}
}

func TestApplyFiltersFlow(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse()}
	srv, c := newTestHandler(t, api, nil)

	code, body := post(t, c, srv.URL+"/filters/apply", url.Values{
		"companyId": {"c1"}, "dateRange": {"7"}, "search": {"ann"}, "fromDate": {""}, "toDate": {""},
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, "Applied") {
		t.Fatal("expected applied message")
	}
	got := api.firstParams()
	if got.CompanyID != "c1" || got.DateRange != 7 || got.Search != "ann" {
		t.Fatalf("fetched with %+v", got)
	}
}

func TestApplyInvalidRangeShowsError(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse()}
	srv, c := newTestHandler(t, api, nil)

	_, body := post(t, c, srv.URL+"/filters/apply", url.Values{
		"fromDate": {"2025-07-10"}, "toDate": {"2025-07-01"},
	})
	if !strings.Contains(body, InvalidDateRangeMessage) {
		t.Fatal("expected date validation message")
	}
	if got := api.firstParams(); got.FromDate != "" {
		t.Fatalf("invalid range was applied: %+v", got)
	}
}

func TestErrorPanelWithRetry(t *testing.T) {
	api := &fakeAPI{err: &connectors.StatusError{Code: 503}}
	srv, c := newTestHandler(t, api, nil)

	code, body := get(t, c, srv.URL+"/")
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, "HTTP error! status: 503") || !strings.Contains(body, "Try Again") {
		t.Fatalf("body = %s", body)
	}
}

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&connectors.ThrottleError{RetryAfter: 3 * time.Second}, "Too many requests. Please retry in 3s."},
		{&connectors.StatusError{Code: 500}, "HTTP error! status: 500"},
		{context.DeadlineExceeded, "Request timed out while loading analytics."},
		{errors.New("dial tcp: refused"), "Failed to fetch analytics: dial tcp: refused"},
	}
	for _, tc := range cases {
		if got := ErrorMessage(tc.err); got != tc.want {
			t.Errorf("ErrorMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestConcurrentFetchesCollapse(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse(), delay: 100 * time.Millisecond}
	h := NewHandler(api, NewSessionStore([]byte("k"), "s", false), NewShaper(30, zap.NewNop()),
		NewChartRenderer(0, 0), Options{FetchTimeout: time.Second}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.fetch(context.Background(), domain.DefaultQueryParams()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&api.calls); n != 1 {
		t.Fatalf("api called %d times", n)
	}
}

func TestFetchTimeout(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse(), delay: time.Second}
	h := NewHandler(api, NewSessionStore([]byte("k"), "s", false), NewShaper(30, zap.NewNop()),
		NewChartRenderer(0, 0), Options{FetchTimeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := h.fetch(context.Background(), domain.DefaultQueryParams())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestChartsServeSVG(t *testing.T) {
	srv, c := newTestHandler(t, &fakeAPI{resp: sampleResponse()}, nil)

	for _, path := range []string{"/charts/trends.svg", "/charts/companies.svg"} {
		resp, err := c.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
			t.Fatalf("%s: status = %d, type = %q", path, resp.StatusCode, resp.Header.Get("Content-Type"))
		}
	}
}

func TestViewAndExport(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse()}
	srv, c := newTestHandler(t, api, nil)

	if code, body := post(t, c, srv.URL+"/view", url.Values{"view": {"weekly"}, "chart": {"bar"}}); code != http.StatusOK {
		t.Fatalf("view: status = %d body = %s", code, body)
	}

	resp, err := c.PostForm(srv.URL+"/export", url.Values{"format": {"csv"}, "includeCharts": {"1"}})
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if disposition, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err != nil ||
		disposition != "attachment" || params["filename"] != "usage.csv" || string(body) != "id,name\n" {
		t.Fatalf("headers = %v body = %q", resp.Header, body)
	}
	if len(api.exports) != 1 || !api.exports[0].IncludeCharts || api.exports[0].Format != domain.ExportCSV {
		t.Fatalf("exports = %+v", api.exports)
	}
}

func TestLoginRequired(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv, c := newTestHandler(t, &fakeAPI{resp: sampleResponse()}, NewOperatorAuth("ops", string(hash)))

	_, body := get(t, c, srv.URL+"/")
	if !strings.Contains(body, "Sign in") {
		t.Fatal("expected redirect to login")
	}

	code, body := post(t, c, srv.URL+"/login", url.Values{"username": {"ops"}, "password": {"nope"}})
	if code != http.StatusUnauthorized || !strings.Contains(body, "Invalid username or password") {
		t.Fatalf("bad login: status = %d", code)
	}

	_, body = post(t, c, srv.URL+"/login", url.Values{"username": {"ops"}, "password": {"pw"}})
	if !strings.Contains(body, "TOTAL EVENTS") {
		t.Fatal("expected dashboard after login")
	}

	_, body = post(t, c, srv.URL+"/logout", nil)
	if !strings.Contains(body, "Sign in") {
		t.Fatal("expected login page after logout")
	}
}

func TestExportSanitizesUpstreamHeaders(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse(), file: &connectors.Response{
		Body:     []byte("{}"),
		Filename: "usage\"; x=\"1.json\r\nSet-Cookie: a=b",
	}}
	srv, c := newTestHandler(t, api, nil)

	resp, err := c.PostForm(srv.URL+"/export", url.Values{"format": {"json"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("content type = %q", got)
	}
	if resp.Header.Get("Set-Cookie") != "" {
		t.Fatal("filename leaked into headers")
	}
	disposition, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil || disposition != "attachment" {
		t.Fatalf("disposition = %q, err = %v", resp.Header.Get("Content-Disposition"), err)
	}
	if params["filename"] != api.file.Filename {
		t.Fatalf("filename = %q", params["filename"])
	}
}

func TestNoOpApplyReusesLastResult(t *testing.T) {
	api := &fakeAPI{resp: sampleResponse()}
	srv, c := newTestHandler(t, api, nil)

	if code, _ := get(t, c, srv.URL+"/"); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if n := atomic.LoadInt32(&api.calls); n != 1 {
		t.Fatalf("first page: api called %d times", n)
	}

	// Apply с теми же значениями: данные берутся из сохраненного ответа
	defaults := url.Values{"dateRange": {"90"}, "companyId": {"all"}, "search": {""}, "fromDate": {""}, "toDate": {""}}
	code, body := post(t, c, srv.URL+"/filters/apply", defaults)
	if code != http.StatusOK || !strings.Contains(body, "TOTAL EVENTS") {
		t.Fatalf("status = %d", code)
	}
	for _, path := range []string{"/charts/trends.svg", "/charts/companies.svg"} {
		resp, err := c.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	if n := atomic.LoadInt32(&api.calls); n != 1 {
		t.Fatalf("no-op apply and charts: api called %d times", n)
	}

	// Изменение фильтра приводит к новому запросу
	changed := url.Values{"dateRange": {"30"}}
	if code, _ := post(t, c, srv.URL+"/filters/apply", changed); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if n := atomic.LoadInt32(&api.calls); n != 2 {
		t.Fatalf("changed apply: api called %d times", n)
	}
	api.mu.Lock()
	last := api.seen[len(api.seen)-1]
	api.mu.Unlock()
	if last.DateRange != 30 {
		t.Fatalf("fetched with %+v", last)
	}
}

func TestErrorsAreNotKept(t *testing.T) {
	api := &fakeAPI{err: &connectors.StatusError{Code: 503}}
	srv, c := newTestHandler(t, api, nil)

	if code, _ := get(t, c, srv.URL+"/"); code != http.StatusBadGateway {
		t.Fatalf("status = %d", code)
	}
	api.mu.Lock()
	api.err = nil
	api.resp = sampleResponse()
	api.mu.Unlock()

	// Try Again после ошибки идет в API заново
	if code, body := get(t, c, srv.URL+"/"); code != http.StatusOK || !strings.Contains(body, "TOTAL EVENTS") {
		t.Fatalf("retry: status = %d", code)
	}
	if n := atomic.LoadInt32(&api.calls); n != 2 {
		t.Fatalf("api called %d times", n)
	}
}

func TestResultStore(t *testing.T) {
	clock := time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)
	s := NewResultStore(time.Minute, 2)
	s.now = func() time.Time { return clock }

	s.Put("a", &pageData{Key: "k1"})
	if _, ok := s.Get("a", "k1"); !ok {
		t.Fatal("expected hit")
	}
	if _, ok := s.Get("a", "k2"); ok {
		t.Fatal("other filters must miss")
	}
	if _, ok := s.Get("", "k1"); ok {
		t.Fatal("empty session id must miss")
	}

	clock = clock.Add(time.Second)
	s.Put("b", &pageData{Key: "k1"})
	clock = clock.Add(time.Second)
	s.Put("c", &pageData{Key: "k1"})
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	if _, ok := s.Get("a", "k1"); ok {
		t.Fatal("oldest entry must be evicted")
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := s.Get("c", "k1"); ok {
		t.Fatal("expired entry must miss")
	}
	s.Drop("b")
	if s.Len() != 1 {
		t.Fatalf("len after drop = %d", s.Len())
	}
}
