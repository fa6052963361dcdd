package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/usage-analytics-dashboard/internal/connectors"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// AnalyticsAPI: клиент analytics-api (apiclient.Client).
type AnalyticsAPI interface {
	GetAnalytics(ctx context.Context, p domain.QueryParams) (domain.AnalyticsResponse, error)
	Insights(ctx context.Context, p domain.QueryParams) (domain.InsightsResponse, error)
	Export(ctx context.Context, p domain.QueryParams, opts domain.ExportOptions) (*connectors.Response, error)
}

type Options struct {
	FetchTimeout time.Duration
	// ResultTTL: сколько живет сохраненный ответ API для сессии.
	ResultTTL time.Duration
	// Auth == nil, дашборд открыт без логина.
	Auth  Authenticator
	Clock func() time.Time
}

type Handler struct {
	api      AnalyticsAPI
	sessions *SessionStore
	shaper   *Shaper
	charts   ChartRenderer
	auth     Authenticator
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	results  *ResultStore

	group singleflight.Group
}

func NewHandler(api AnalyticsAPI, sessions *SessionStore, shaper *Shaper, charts ChartRenderer, opts Options, logger *zap.Logger) *Handler {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Handler{
		api:      api,
		sessions: sessions,
		shaper:   shaper,
		charts:   charts,
		auth:     opts.Auth,
		timeout:  opts.FetchTimeout,
		now:      opts.Clock,
		logger:   logger.Named("dashboard"),
		results:  NewResultStore(opts.ResultTTL, 0),
	}
}

// Routes маршруты для Chi
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/login", h.LoginPage)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireOperator)

		r.Get("/", h.Page)
		r.Post("/filters", h.ChangeFilters)
		r.Post("/filters/apply", h.ApplyFilters)
		r.Post("/filters/clear", h.ClearFilters)
		r.Post("/filters/reset", h.ResetFilters)
		r.Post("/filters/last-year", h.TryLastYear)
		r.Post("/view", h.SetView)
		r.Get("/charts/trends.svg", h.TrendsChart)
		r.Get("/charts/companies.svg", h.CompaniesChart)
		r.Post("/export", h.Export)
	})
}

func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.auth != nil {
			state, _ := h.sessions.Load(r)
			if state.Operator == "" {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// fetch: одинаковые параллельные запросы схлопываются, у запроса свой таймаут,
// отмена одного клиента не обрывает общий вызов.
func (h *Handler) fetch(ctx context.Context, p domain.QueryParams) (domain.AnalyticsResponse, error) {
	p = p.ForAPI()
	v, err, shared := h.group.Do(p.CacheKey(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		return h.api.GetAnalytics(fctx, p)
	})
	if err != nil {
		return domain.AnalyticsResponse{}, err
	}
	if shared {
		engine.LoggerFrom(ctx, h.logger).Debug("analytics fetch shared", zap.String("params", p.CacheKey()))
	}
	return v.(domain.AnalyticsResponse), nil
}

// ErrorMessage переводит ошибку загрузки в текст для панели ошибки.
func ErrorMessage(err error) string {
	var throttle *connectors.ThrottleError
	var status *connectors.StatusError
	switch {
	case errors.As(err, &throttle):
		if throttle.RetryAfter > 0 {
			return fmt.Sprintf("Too many requests. Please retry in %s.", throttle.RetryAfter.Round(time.Second))
		}
		return "Too many requests. Please retry later."
	case errors.As(err, &status):
		return status.Error()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "Analytics service is temporarily unavailable."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out while loading analytics."
	case err != nil:
		return "Failed to fetch analytics: " + err.Error()
	}
	return ""
}

func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	state, sess := h.sessions.Load(r)
	log := engine.LoggerFrom(r.Context(), h.logger)

	dirty := state.Applied || state.DateError != ""
	if state.ID == "" {
		state.ID = uuid.NewString()
		dirty = true
	}

	data, err := h.load(r.Context(), state)
	if err != nil {
		log.Warn("load analytics", zap.Error(err))
		h.render(w, http.StatusBadGateway, "error", errorView{Message: ErrorMessage(err), Operator: state.Operator})
		return
	}

	view := h.pageView(state, &data.Analytics)
	view.Highlights = data.Highlights
	view.Companies = companyOptions(data.Companies, state.Filters.Inputs.CompanyID)

	// "Applied" и ошибка дат показываются один раз
	if dirty {
		state.Applied = false
		state.DateError = ""
		if err := h.sessions.Save(w, r, sess, state); err != nil {
			log.Error("save session", zap.Error(err))
		}
	}
	h.render(w, http.StatusOK, "page", view)
}

// load: данные страницы для applied-фильтров. API вызывается, только если для
// сессии нет свежего ответа с тем же ключом фильтров.
func (h *Handler) load(ctx context.Context, state *SessionState) (*pageData, error) {
	applied := state.Filters.Applied
	key := applied.ForAPI().CacheKey()
	if d, ok := h.results.Get(state.ID, key); ok {
		return d, nil
	}

	resp, err := h.fetch(ctx, applied)
	if err != nil {
		return nil, err
	}
	d := &pageData{
		Key:        key,
		Analytics:  resp,
		Highlights: h.highlights(ctx, applied),
		Companies:  h.knownCompanies(ctx, applied, resp.Companies),
	}
	h.results.Put(state.ID, d)
	return d, nil
}

// analytics: ответ для графиков. Сохраненный ответ страницы переиспользуется.
func (h *Handler) analytics(ctx context.Context, state *SessionState) (domain.AnalyticsResponse, error) {
	if d, ok := h.results.Get(state.ID, state.Filters.Applied.ForAPI().CacheKey()); ok {
		return d.Analytics, nil
	}
	return h.fetch(ctx, state.Filters.Applied)
}

func (h *Handler) pageView(state *SessionState, resp *domain.AnalyticsResponse) pageView {
	applied := state.Filters.Applied
	multiline := ShouldShowMultiline(applied.CompanyID, resp.Trends) && state.Chart != ChartBar
	names := CompanyNames(multiline, resp.Trends)
	legend := make([]legendItem, len(names))
	for i, n := range names {
		legend[i] = legendItem{Name: n, Color: CompanyColor(i)}
	}

	return pageView{
		Operator:       state.Operator,
		Inputs:         state.Filters.Inputs,
		Applied:        applied,
		DateError:      state.DateError,
		ShowApplied:    state.Applied,
		HasChanges:     state.Filters.HasChangesToApply(),
		HasActive:      state.Filters.HasActiveFilters(),
		Today:          h.now().UTC().Format(domain.DateLayout),
		DateRanges:     dateRangeOptions(state.Filters.Inputs.DateRange),
		Cards:          InsightCards(resp.Summary, WindowDays(applied, h.now())),
		NoData:         NoDataAtAll(resp),
		EmptyRange:     EmptyDueToDateRange(resp),
		View:           state.View,
		Chart:          state.Chart,
		Subtitle:       Subtitle(multiline, applied.CompanyID, resp.Companies),
		Legend:         legend,
		Leaderboard:    Leaderboard(resp.TopUsers),
		CompanyBars:    CompanyComparison(resp.Companies),
		ChartVersion:   applied.CacheKey() + "|" + string(state.View) + "|" + string(state.Chart),
		TrendsChartAlt: "Usage trends, " + string(state.View),
	}
}

// knownCompanies: список для селектора. При фильтре по компании или поиску ответ
// содержит не все компании, поэтому список берется из запроса без них за год.
func (h *Handler) knownCompanies(ctx context.Context, applied domain.QueryParams, current []domain.Company) []domain.Company {
	if (applied.CompanyID == domain.AllCompanies || applied.CompanyID == "") && applied.Search == "" {
		return current
	}
	all, err := h.fetch(ctx, domain.QueryParams{DateRange: domain.MaxDateRange, CompanyID: domain.AllCompanies})
	if err != nil {
		engine.LoggerFrom(ctx, h.logger).Warn("load company list", zap.Error(err))
		return current
	}
	return all.Companies
}

// highlights: необязательный блок наблюдений из POST /insights; ошибка его просто скрывает.
func (h *Handler) highlights(ctx context.Context, p domain.QueryParams) []domain.Insight {
	ictx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	resp, err := h.api.Insights(ictx, p.ForAPI())
	if err != nil {
		engine.LoggerFrom(ctx, h.logger).Warn("load insights", zap.Error(err))
		return nil
	}
	return resp.Insights
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, fn func(*SessionState)) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	state, sess := h.sessions.Load(r)
	fn(state)
	if err := h.sessions.Save(w, r, sess, state); err != nil {
		engine.LoggerFrom(r.Context(), h.logger).Error("save session", zap.Error(err))
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// patchFromForm берет только присланные поля формы фильтров.
func patchFromForm(r *http.Request) FilterPatch {
	var p FilterPatch
	if _, ok := r.PostForm["dateRange"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("dateRange"))); err == nil && n > 0 {
			p.DateRange = &n
		}
	}
	field := func(name string) *string {
		if _, ok := r.PostForm[name]; !ok {
			return nil
		}
		v := r.PostForm.Get(name)
		return &v
	}
	p.CompanyID = field("companyId")
	p.Search = field("search")
	p.FromDate = field("fromDate")
	p.ToDate = field("toDate")
	return p
}

func (h *Handler) ChangeFilters(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *SessionState) {
		s.Filters.Change(patchFromForm(r))
		s.DateError = DateError(s.Filters.Inputs, h.now())
	})
}

func (h *Handler) ApplyFilters(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *SessionState) {
		s.Filters.Change(patchFromForm(r))
		refetch, err := s.Filters.Apply(h.now())
		if err != nil {
			s.DateError = InvalidDateRangeMessage
			return
		}
		s.DateError = ""
		s.Applied = refetch
		if refetch {
			h.results.Drop(s.ID)
		}
		engine.LoggerFrom(r.Context(), h.logger).Debug("filters applied",
			zap.Bool("refetch", refetch), zap.String("params", s.Filters.Applied.CacheKey()))
	})
}

func (h *Handler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *SessionState) {
		s.Filters.Clear()
		s.DateError = ""
	})
}

func (h *Handler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *SessionState) {
		if s.Filters.Reset() {
			h.results.Drop(s.ID)
		}
		s.DateError = ""
	})
}

func (h *Handler) TryLastYear(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *SessionState) {
		if s.Filters.TryLastYear() {
			h.results.Drop(s.ID)
		}
		s.DateError = ""
	})
}

func (h *Handler) SetView(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *SessionState) {
		if v := r.PostForm.Get("view"); v != "" {
			s.View = ParseViewMode(v)
		}
		if c := r.PostForm.Get("chart"); c != "" {
			s.Chart = ParseChartType(c)
		}
	})
}

func (h *Handler) TrendsChart(w http.ResponseWriter, r *http.Request) {
	state, _ := h.sessions.Load(r)
	resp, err := h.analytics(r.Context(), state)
	if err != nil {
		engine.LoggerFrom(r.Context(), h.logger).Warn("trends chart: load analytics", zap.Error(err))
		h.writeSVG(w, func(buf *bytes.Buffer) error { return h.charts.placeholder(buf, ErrorMessage(err)) })
		return
	}
	multiline := ShouldShowMultiline(state.Filters.Applied.CompanyID, resp.Trends) && state.Chart != ChartBar
	chart := h.shaper.ChartData(resp.Trends, state.View, multiline)
	h.writeSVG(w, func(buf *bytes.Buffer) error { return h.charts.Trends(buf, chart, state.Chart) })
}

func (h *Handler) CompaniesChart(w http.ResponseWriter, r *http.Request) {
	state, _ := h.sessions.Load(r)
	resp, err := h.analytics(r.Context(), state)
	if err != nil {
		engine.LoggerFrom(r.Context(), h.logger).Warn("companies chart: load analytics", zap.Error(err))
		h.writeSVG(w, func(buf *bytes.Buffer) error { return h.charts.placeholder(buf, ErrorMessage(err)) })
		return
	}
	bars := CompanyComparison(resp.Companies)
	h.writeSVG(w, func(buf *bytes.Buffer) error { return h.charts.Companies(buf, bars) })
}

func (h *Handler) writeSVG(w http.ResponseWriter, draw func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		h.logger.Error("render chart", zap.Error(err))
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	state, _ := h.sessions.Load(r)
	opts := domain.ExportOptions{
		Format:        domain.ExportFormat(r.PostForm.Get("format")),
		IncludeCharts: r.PostForm.Get("includeCharts") != "",
		DateRange:     strconv.Itoa(state.Filters.Applied.DateRange),
	}
	if opts.Format == "" {
		opts.Format = domain.ExportCSV
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	file, err := h.api.Export(ctx, state.Filters.Applied.ForAPI(), opts)
	if err != nil {
		engine.LoggerFrom(r.Context(), h.logger).Warn("export", zap.Error(err))
		h.render(w, http.StatusBadGateway, "error", errorView{Message: ErrorMessage(err), Operator: state.Operator})
		return
	}

	name := file.Filename
	if name == "" {
		name = "usage-analytics." + string(opts.Format)
	}
	ctype := file.ContentType
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	_, _ = w.Write(file.Body)
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "login", loginView{})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	if err := h.auth.Authenticate(r.Context(), username, r.PostForm.Get("password")); err != nil {
		engine.LoggerFrom(r.Context(), h.logger).Warn("login failed", zap.String("username", username))
		h.render(w, http.StatusUnauthorized, "login", loginView{Username: username, Error: "Invalid username or password"})
		return
	}
	h.update(w, r, func(s *SessionState) { s.Operator = username })
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	state, sess := h.sessions.Load(r)
	h.results.Drop(state.ID)
	state.Operator = ""
	sess.Options.MaxAge = -1
	if err := h.sessions.Save(w, r, sess, state); err != nil {
		h.logger.Error("logout: save session", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy","service":"usage-dashboard"}`))
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
