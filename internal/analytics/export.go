package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

var ErrUnsupportedFormat = errors.New("analytics: unsupported export format")

// ExportFile: готовая выгрузка для отдачи как вложение.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

type exportDocument struct {
	ExportedAt time.Time               `json:"exportedAt"`
	Params     domain.QueryParams      `json:"params"`
	Summary    domain.DashboardSummary `json:"summary"`
	Companies  []domain.Company        `json:"companies"`
	TopUsers   []domain.UserActivity   `json:"topUsers"`
	Trends     *domain.UsageTrends     `json:"trends,omitempty"`
	Insights   []domain.Insight        `json:"insights"`
}

// Export выгружает отфильтрованную аналитику в CSV или JSON.
// Ряды трендов попадают в выгрузку только при IncludeCharts.
func (s *Service) Export(ctx context.Context, req domain.ExportRequest) (ExportFile, error) {
	switch req.Options.Format {
	case domain.ExportCSV, domain.ExportJSON:
	default:
		return ExportFile{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Options.Format)
	}

	resp, err := s.Generate(ctx, req.Params)
	if err != nil {
		return ExportFile{}, err
	}

	name := fmt.Sprintf("usage-analytics-%s.%s", s.Today().Format(domain.DateLayout), req.Options.Format)
	if req.Options.Format == domain.ExportJSON {
		doc := exportDocument{
			ExportedAt: s.now().UTC(),
			Params:     req.Params,
			Summary:    resp.Summary,
			Companies:  resp.Companies,
			TopUsers:   resp.TopUsers,
			Insights:   BuildInsights(resp),
		}
		if req.Options.IncludeCharts {
			doc.Trends = &resp.Trends
		}
		body, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return ExportFile{}, fmt.Errorf("analytics: encode json export: %w", err)
		}
		return ExportFile{Filename: name, ContentType: "application/json", Body: body}, nil
	}

	body, err := encodeCSV(resp, req.Options.IncludeCharts)
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{Filename: name, ContentType: "text/csv; charset=utf-8", Body: body}, nil
}

// encodeCSV пишет несколько таблиц подряд, разделяя их пустой строкой.
func encodeCSV(resp domain.AnalyticsResponse, withTrends bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"metric", "value"},
		{"total_events", strconv.Itoa(resp.Summary.TotalEvents)},
		{"total_companies", strconv.Itoa(resp.Summary.TotalCompanies)},
		{"peak_usage_day", resp.Summary.PeakUsageDay},
		{},
		{"company_id", "company_name", "event_count", "active_users", "last_activity"},
	}
	for _, c := range resp.Companies {
		rows = append(rows, []string{
			c.ID, c.Name, strconv.Itoa(c.EventCount), strconv.Itoa(c.ActiveUsers),
			c.LastActivity.UTC().Format(time.RFC3339),
		})
	}

	rows = append(rows, []string{}, []string{"email", "company_name", "event_count"})
	for _, u := range resp.TopUsers {
		rows = append(rows, []string{u.Email, u.CompanyName, strconv.Itoa(u.EventCount)})
	}

	if withTrends {
		rows = append(rows, []string{}, []string{"date", "company", "events"})
		names := make([]string, 0, len(resp.Trends.Trends))
		for name := range resp.Trends.Trends {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, p := range resp.Trends.Trends[name] {
				rows = append(rows, []string{p.Date, name, strconv.Itoa(p.Events)})
			}
		}
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("analytics: encode csv export: %w", err)
	}
	return buf.Bytes(), nil
}
