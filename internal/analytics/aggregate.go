package analytics

import (
	"sort"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

func dayKey(e domain.UsageEvent) string {
	return e.CreatedAt.UTC().Format(domain.DateLayout)
}

// summarize: итоги и пиковый день. При равенстве побеждает более ранняя дата.
func summarize(events []domain.UsageEvent) domain.DashboardSummary {
	if len(events) == 0 {
		return domain.DashboardSummary{}
	}

	companies := make(map[string]struct{})
	daily := make(map[string]int)
	for _, e := range events {
		companies[e.CompanyID] = struct{}{}
		daily[dayKey(e)]++
	}

	peakDay, peak := "", 0
	for day, n := range daily {
		if n > peak || (n == peak && day < peakDay) {
			peakDay, peak = day, n
		}
	}

	return domain.DashboardSummary{
		TotalEvents:    len(events),
		TotalCompanies: len(companies),
		PeakUsageDay:   peakDay,
	}
}

// trendsByCompany строит дневные ряды по именам компаний с нулями для пустых дней.
// Без окна дат ряд охватывает дни от первого до последнего события.
func trendsByCompany(events []domain.UsageEvent, w window, names companyNames) domain.UsageTrends {
	trends := domain.UsageTrends{Trends: map[string][]domain.UsageTrend{}}
	if len(events) == 0 {
		return trends
	}

	if !w.set {
		lo, hi := events[0].CreatedAt, events[0].CreatedAt
		for _, e := range events[1:] {
			if e.CreatedAt.Before(lo) {
				lo = e.CreatedAt
			}
			if e.CreatedAt.After(hi) {
				hi = e.CreatedAt
			}
		}
		w = window{from: dayStart(lo), to: dayStart(hi).AddDate(0, 0, 1), set: true}
	}
	days := w.days()

	counts := make(map[string]map[string]int)
	for _, e := range events {
		name := names.name(e.CompanyID)
		if counts[name] == nil {
			counts[name] = make(map[string]int)
		}
		counts[name][dayKey(e)]++
	}

	for name, byDay := range counts {
		series := make([]domain.UsageTrend, len(days))
		for i, d := range days {
			series[i] = domain.UsageTrend{Date: d, Events: byDay[d]}
		}
		trends.Trends[name] = series
	}
	return trends
}

// companyMetrics: события, уникальные пользователи и последняя активность по компаниям.
// Сортировка по числу событий по убыванию, затем по id.
func companyMetrics(events []domain.UsageEvent, names companyNames) []domain.Company {
	if len(events) == 0 {
		return []domain.Company{}
	}

	byID := make(map[string]*domain.Company)
	users := make(map[string]map[string]struct{})
	for _, e := range events {
		c, ok := byID[e.CompanyID]
		if !ok {
			c = &domain.Company{ID: e.CompanyID, Name: names.name(e.CompanyID), LastActivity: e.CreatedAt}
			byID[e.CompanyID] = c
			users[e.CompanyID] = make(map[string]struct{})
		}
		c.EventCount++
		if e.CreatedAt.After(c.LastActivity) {
			c.LastActivity = e.CreatedAt
		}
		if email := ExtractEmail(e.Content); email != "" {
			users[e.CompanyID][email] = struct{}{}
		}
	}

	out := make([]domain.Company, 0, len(byID))
	for id, c := range byID {
		c.ActiveUsers = len(users[id])
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventCount != out[j].EventCount {
			return out[i].EventCount > out[j].EventCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// topUsers: самые активные пользователи по email. Компания пользователя -
// компания его последнего по времени события.
func topUsers(events []domain.UsageEvent, names companyNames, limit int) []domain.UserActivity {
	if len(events) == 0 {
		return []domain.UserActivity{}
	}

	type acc struct {
		count    int
		lastSeen domain.UsageEvent
	}
	byEmail := make(map[string]*acc)
	for _, e := range events {
		email := ExtractEmail(e.Content)
		if email == "" {
			continue
		}
		a, ok := byEmail[email]
		if !ok {
			a = &acc{lastSeen: e}
			byEmail[email] = a
		}
		a.count++
		if !e.CreatedAt.Before(a.lastSeen.CreatedAt) {
			a.lastSeen = e
		}
	}

	out := make([]domain.UserActivity, 0, len(byEmail))
	for email, a := range byEmail {
		out = append(out, domain.UserActivity{
			Email:       email,
			EventCount:  a.count,
			CompanyName: names.name(a.lastSeen.CompanyID),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventCount != out[j].EventCount {
			return out[i].EventCount > out[j].EventCount
		}
		return out[i].Email < out[j].Email
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
