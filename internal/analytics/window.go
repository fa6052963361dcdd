package analytics

import (
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

// window: полуинтервал [from, to) в UTC, границы выровнены по суткам.
type window struct {
	from, to time.Time
	set      bool
}

func (w window) contains(t time.Time) bool {
	if !w.set {
		return true
	}
	t = t.UTC()
	return !t.Before(w.from) && t.Before(w.to)
}

// days перечисляет даты окна (YYYY-MM-DD) по возрастанию.
func (w window) days() []string {
	var out []string
	for d := w.from; d.Before(w.to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(domain.DateLayout))
	}
	return out
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDay(s string) (time.Time, bool) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// resolveWindow вычисляет окно по параметрам:
//   - fromDate + toDate: [from, to] включительно;
//   - только fromDate: [from, today];
//   - иначе dateRange дней, заканчивая today.
//
// Нераспарсенный fromDate выключает фильтр по датам. Нераспарсенный toDate
// заменяется на from + dateRange - 1 (30 дней, если dateRange не задан).
func resolveWindow(p domain.QueryParams, today time.Time) window {
	today = dayStart(today)

	var from, to time.Time
	switch {
	case p.FromDate != "":
		f, ok := parseDay(p.FromDate)
		if !ok {
			return window{}
		}
		from = f
		switch {
		case p.ToDate == "":
			to = today
		default:
			if t, ok := parseDay(p.ToDate); ok {
				to = t
			} else if p.DateRange > 0 {
				to = from.AddDate(0, 0, p.DateRange-1)
			} else {
				to = from.AddDate(0, 0, domain.APIDefaultDateRange-1)
			}
		}
	case p.DateRange > 0:
		to = today
		from = today.AddDate(0, 0, -p.DateRange+1)
	default:
		return window{}
	}

	// to включает весь день
	return window{from: from, to: to.AddDate(0, 0, 1), set: true}
}
