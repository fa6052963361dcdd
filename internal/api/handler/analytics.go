package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xela07ax/usage-analytics-dashboard/internal/analytics"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/engine"
	"go.uber.org/zap"
)

// AnalyticsService: то, что нужно хендлеру от кэша аналитики (или самого Service).
type AnalyticsService interface {
	Generate(ctx context.Context, params domain.QueryParams) (domain.AnalyticsResponse, error)
	Insights(ctx context.Context, params domain.QueryParams) (domain.InsightsResponse, error)
	Export(ctx context.Context, req domain.ExportRequest) (analytics.ExportFile, error)
}

type AnalyticsHandler struct {
	service AnalyticsService
	logger  *zap.Logger
}

func NewAnalyticsHandler(s AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: s, logger: logger.Named("analytics-handler")}
}

// ParseQueryParams разбирает query GET /api/analytics.
func ParseQueryParams(q url.Values) domain.QueryParams {
	dateRange, err := strconv.Atoi(strings.TrimSpace(q.Get("dateRange")))
	if err != nil {
		dateRange = 0
	}
	return NormalizeParams(domain.QueryParams{
		DateRange: dateRange,
		CompanyID: q.Get("companyId"),
		Search:    q.Get("search"),
		FromDate:  q.Get("fromDate"),
		ToDate:    q.Get("toDate"),
	})
}

// NormalizeParams обрезает пробелы и подставляет окно по умолчанию,
// если dateRange не задан или вне (0, 365].
func NormalizeParams(p domain.QueryParams) domain.QueryParams {
	if p.DateRange <= 0 || p.DateRange > domain.MaxDateRange {
		p.DateRange = domain.APIDefaultDateRange
	}
	p.CompanyID = strings.TrimSpace(p.CompanyID)
	if p.CompanyID == domain.AllCompanies {
		p.CompanyID = ""
	}
	p.Search = strings.TrimSpace(p.Search)
	p.FromDate = strings.TrimSpace(p.FromDate)
	p.ToDate = strings.TrimSpace(p.ToDate)
	return p
}

func (h *AnalyticsHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	params := ParseQueryParams(r.URL.Query())
	log := engine.LoggerFrom(r.Context(), h.logger)

	resp, err := h.service.Generate(r.Context(), params)
	if err != nil {
		log.Error("generate analytics", zap.Error(err), zap.String("params", params.CacheKey()))
		writeError(w, http.StatusInternalServerError, "Failed to fetch analytics data")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AnalyticsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	var params domain.QueryParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params = NormalizeParams(params)

	resp, err := h.service.Insights(r.Context(), params)
	if err != nil {
		engine.LoggerFrom(r.Context(), h.logger).Error("generate insights", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate insights")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AnalyticsHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req domain.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Params = NormalizeParams(req.Params)
	if req.Options.Format == "" {
		req.Options.Format = domain.ExportCSV
	}

	file, err := h.service.Export(r.Context(), req)
	switch {
	case errors.Is(err, analytics.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "unsupported export format: "+string(req.Options.Format))
		return
	case err != nil:
		engine.LoggerFrom(r.Context(), h.logger).Error("export analytics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to export data")
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Body)
}

// Health: liveness для балансировщика.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "usage-analytics-dashboard",
	})
}
