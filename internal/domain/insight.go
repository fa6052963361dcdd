package domain

// Insight: карточка "ключевого наблюдения" для POST /api/insights.
type Insight struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Severity    string `json:"severity"` // info, positive, warning
}

type InsightsResponse struct {
	Params   QueryParams `json:"params"`
	Insights []Insight   `json:"insights"`
}

// ExportFormat: формат выгрузки. xlsx объявлен в API, но не поддерживается.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportXLSX ExportFormat = "xlsx"
)

type ExportOptions struct {
	Format        ExportFormat `json:"format"`
	IncludeCharts bool         `json:"includeCharts"`
	DateRange     string       `json:"dateRange"`
}

// ExportRequest: тело POST /api/export.
type ExportRequest struct {
	Params  QueryParams   `json:"params"`
	Options ExportOptions `json:"options"`
}
