package dashboard

import (
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

const (
	leaderboardSize  = 10
	companyChartSize = 5
)

// InsightCard: плитка сводки над графиками.
type InsightCard struct {
	ID    string
	Title string
	Value string
	Tone  string
}

// WindowDays: длина окна примененных фильтров в днях (минимум 1).
func WindowDays(p domain.QueryParams, now time.Time) int {
	from, errFrom := time.Parse(domain.DateLayout, p.FromDate)
	if p.FromDate != "" && errFrom == nil {
		to, err := time.Parse(domain.DateLayout, p.ToDate)
		if p.ToDate == "" || err != nil {
			to = now.UTC().Truncate(24 * time.Hour)
		}
		if days := int(to.Sub(from).Hours()/24) + 1; days > 0 {
			return days
		}
		return 1
	}
	if p.DateRange > 0 {
		return p.DateRange
	}
	return domain.DefaultDateRange
}

// AverageEventsPerDay: округленное среднее за окно, "0" когда событий нет.
func AverageEventsPerDay(summary domain.DashboardSummary, days int) string {
	if summary.TotalEvents <= 0 || days <= 0 {
		return "0"
	}
	return domain.FormatCount((summary.TotalEvents + days/2) / days)
}

func FormatPeakUsageDay(day string) string {
	if day == "" {
		return "N/A"
	}
	return domain.FormatDay(day)
}

func InsightCards(summary domain.DashboardSummary, days int) []InsightCard {
	return []InsightCard{
		{ID: "total-events", Title: "TOTAL EVENTS", Value: domain.FormatCount(summary.TotalEvents), Tone: "blue"},
		{ID: "companies", Title: "COMPANIES", Value: strconv.Itoa(summary.TotalCompanies), Tone: "emerald"},
		{ID: "avg-events-per-day", Title: "AVG EVENTS/DAY", Value: AverageEventsPerDay(summary, days), Tone: "indigo"},
		{ID: "peak-usage-day", Title: "PEAK USAGE DAY", Value: FormatPeakUsageDay(summary.PeakUsageDay), Tone: "purple"},
	}
}

// HasNoSummaryData: ни событий, ни компаний.
func HasNoSummaryData(summary domain.DashboardSummary) bool {
	return summary.TotalEvents == 0 && summary.TotalCompanies == 0
}

// LeaderboardRow: строка топа пользователей.
type LeaderboardRow struct {
	Rank        int
	Medal       string // gold, silver, bronze, default
	Email       string
	Display     string
	CompanyName string
	Events      string
}

func RankStyle(index int) string {
	switch index {
	case 0:
		return "gold"
	case 1:
		return "silver"
	case 2:
		return "bronze"
	default:
		return "default"
	}
}

// FormatUserEmail показывает только локальную часть адреса: "ann..." для ann@acme.io.
func FormatUserEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local + "..."
}

func Leaderboard(users []domain.UserActivity) []LeaderboardRow {
	if len(users) > leaderboardSize {
		users = users[:leaderboardSize]
	}
	rows := make([]LeaderboardRow, len(users))
	for i, u := range users {
		rows[i] = LeaderboardRow{
			Rank:        i + 1,
			Medal:       RankStyle(i),
			Email:       u.Email,
			Display:     FormatUserEmail(u.Email),
			CompanyName: u.CompanyName,
			Events:      domain.FormatCount(u.EventCount),
		}
	}
	return rows
}

// CompanyBar: компания на графике сравнения.
type CompanyBar struct {
	ID     string
	Name   string
	Events int
	Users  int
}

// CompanyComparison берет первые 5 компаний (API уже отсортировал их по событиям).
func CompanyComparison(companies []domain.Company) []CompanyBar {
	if len(companies) > companyChartSize {
		companies = companies[:companyChartSize]
	}
	out := make([]CompanyBar, len(companies))
	for i, c := range companies {
		out[i] = CompanyBar{ID: c.ID, Name: c.Name, Events: c.EventCount, Users: c.ActiveUsers}
	}
	return out
}

// EmptyDueToDateRange: компании есть, а событий в окне нет.
func EmptyDueToDateRange(resp *domain.AnalyticsResponse) bool {
	if resp == nil {
		return false
	}
	return len(resp.Companies) > 0 && resp.Summary.TotalEvents == 0
}

// NoDataAtAll: в ответе нет ни компаний, ни событий, ни пользователей.
func NoDataAtAll(resp *domain.AnalyticsResponse) bool {
	if resp == nil {
		return false
	}
	return len(resp.Companies) == 0 && resp.Summary.TotalEvents == 0 && len(resp.TopUsers) == 0
}
