package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

// Normalize проверяет событие из POST /api/events и достраивает необязательные поля
// так же, как это делает парсер CSV.
func Normalize(ev domain.UsageEvent) (domain.UsageEvent, error) {
	ev.CompanyID = strings.TrimSpace(ev.CompanyID)
	if ev.CompanyID == "" {
		return ev, fmt.Errorf("company_id is required")
	}
	if ev.CreatedAt.IsZero() {
		return ev, fmt.Errorf("created_at is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = ev.CreatedAt
	}
	if ev.OriginalTimestamp.IsZero() {
		ev.OriginalTimestamp = ev.CreatedAt
	}
	return ev, nil
}
