package analytics

import (
	"context"
	"strings"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

// filterEvents применяет фильтры по компании, поиску и окну дат.
// Исходный слайс не меняется.
func filterEvents(ctx context.Context, events []domain.UsageEvent, p domain.QueryParams, w window) ([]domain.UsageEvent, error) {
	companyID := strings.TrimSpace(p.CompanyID)
	if companyID == domain.AllCompanies {
		companyID = ""
	}
	term := strings.ToLower(strings.TrimSpace(p.Search))

	out := make([]domain.UsageEvent, 0, len(events))
	for i, e := range events {
		// Снимок бывает большим: периодически проверяем отмену запроса
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if companyID != "" && e.CompanyID != companyID {
			continue
		}
		if term != "" && !matchesSearch(e, term) {
			continue
		}
		if !w.contains(e.CreatedAt) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// matchesSearch: подстрока без учета регистра в content, company_id или email.
func matchesSearch(e domain.UsageEvent, term string) bool {
	return strings.Contains(strings.ToLower(e.Content), term) ||
		strings.Contains(strings.ToLower(e.CompanyID), term) ||
		strings.Contains(strings.ToLower(ExtractEmail(e.Content)), term)
}
