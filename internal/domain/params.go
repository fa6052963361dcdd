package domain

import (
	"fmt"
	"strings"
)

const (
	// DateLayout: формат дат во всех query-параметрах и трендах.
	DateLayout = "2006-01-02"

	// AllCompanies: значение селектора "Все компании" на дашборде.
	AllCompanies = "all"

	// DefaultDateRange: окно по умолчанию на дашборде.
	DefaultDateRange = 90
	// APIDefaultDateRange: окно, которое API подставляет при невалидном dateRange.
	APIDefaultDateRange = 30
	MaxDateRange        = 365
	LastYearDateRange   = 365
)

// QueryParams: состояние фильтров (и query-параметры GET /api/analytics).
type QueryParams struct {
	DateRange int    `json:"dateRange"`
	CompanyID string `json:"companyId"`
	Search    string `json:"search"`
	FromDate  string `json:"fromDate,omitempty"`
	ToDate    string `json:"toDate,omitempty"`
}

// DefaultQueryParams возвращает фильтры дашборда по умолчанию.
func DefaultQueryParams() QueryParams {
	return QueryParams{
		DateRange: DefaultDateRange,
		CompanyID: AllCompanies,
	}
}

// Equal сравнивает все поля фильтра.
func (p QueryParams) Equal(o QueryParams) bool {
	return p == o
}

// ForAPI переводит значение селектора "all" в пустую строку, понятную API.
func (p QueryParams) ForAPI() QueryParams {
	if p.CompanyID == AllCompanies {
		p.CompanyID = ""
	}
	return p
}

// CacheKey: стабильное представление параметров для ключей кэша.
func (p QueryParams) CacheKey() string {
	return fmt.Sprintf("r=%d|c=%s|s=%s|f=%s|t=%s",
		p.DateRange,
		strings.TrimSpace(p.CompanyID),
		strings.ToLower(strings.TrimSpace(p.Search)),
		strings.TrimSpace(p.FromDate),
		strings.TrimSpace(p.ToDate),
	)
}
