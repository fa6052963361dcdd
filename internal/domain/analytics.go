package domain

import "time"

// UsageEvent: одно событие использования продукта (строка исходного CSV или запись БД).
type UsageEvent struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	CompanyID         string    `json:"company_id"`
	Type              string    `json:"type"`
	Content           string    `json:"content"`
	Attribute         string    `json:"attribute"`
	UpdatedAt         time.Time `json:"updated_at"`
	OriginalTimestamp time.Time `json:"original_timestamp"`
	Value             *string   `json:"value,omitempty"`
}

// Company: агрегат по компании за выбранное окно.
type Company struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EventCount   int       `json:"eventCount"`
	ActiveUsers  int       `json:"activeUsers"`
	LastActivity time.Time `json:"lastActivity"`
}

type UserActivity struct {
	Email       string `json:"email"`
	EventCount  int    `json:"eventCount"`
	CompanyName string `json:"companyName"`
}

// UsageTrend: точка временного ряда: дата (YYYY-MM-DD) и число событий.
type UsageTrend struct {
	Date   string `json:"date"`
	Events int    `json:"events"`
}

// UsageTrends: дневные ряды по компаниям.
// Ключ: имя компании, значение: ряд по дням (с нулями для дней без событий).
type UsageTrends struct {
	Trends map[string][]UsageTrend `json:"trends"`
}

type DashboardSummary struct {
	TotalEvents    int    `json:"totalEvents"`
	TotalCompanies int    `json:"totalCompanies"`
	PeakUsageDay   string `json:"peakUsageDay"`
}

// AnalyticsResponse: полный ответ GET /api/analytics.
type AnalyticsResponse struct {
	Summary   DashboardSummary `json:"summary"`
	Trends    UsageTrends      `json:"trends"`
	Companies []Company        `json:"companies"`
	TopUsers  []UserActivity   `json:"topUsers"`
}

// EmptyAnalytics гарантирует фронту пустые массивы вместо null.
func EmptyAnalytics() AnalyticsResponse {
	return AnalyticsResponse{
		Trends:    UsageTrends{Trends: map[string][]UsageTrend{}},
		Companies: []Company{},
		TopUsers:  []UserActivity{},
	}
}
