package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

const (
	severityInfo     = "info"
	severityPositive = "positive"
	severityWarning  = "warning"

	// trendThreshold: изменение в процентах, ниже которого тренд считаем ровным
	trendThreshold = 5.0
)

// Insights строит ключевые наблюдения по тем же фильтрам, что и Generate.
func (s *Service) Insights(ctx context.Context, params domain.QueryParams) (domain.InsightsResponse, error) {
	resp, err := s.Generate(ctx, params)
	if err != nil {
		return domain.InsightsResponse{}, err
	}
	return domain.InsightsResponse{Params: params, Insights: BuildInsights(resp)}, nil
}

// BuildInsights выводит наблюдения из готового ответа аналитики.
func BuildInsights(resp domain.AnalyticsResponse) []domain.Insight {
	insights := []domain.Insight{{
		ID:          "total-events",
		Title:       "Total events",
		Value:       domain.FormatCount(resp.Summary.TotalEvents),
		Description: fmt.Sprintf("across %d companies", resp.Summary.TotalCompanies),
		Severity:    severityInfo,
	}}
	if resp.Summary.TotalEvents == 0 {
		return insights
	}

	daily := DailyTotals(resp.Trends)
	if len(daily) > 0 {
		insights = append(insights, domain.Insight{
			ID:          "avg-events-per-day",
			Title:       "Average events per day",
			Value:       domain.FormatCount(roundDiv(resp.Summary.TotalEvents, len(daily))),
			Description: fmt.Sprintf("over %d days", len(daily)),
			Severity:    severityInfo,
		})
	}

	if len(resp.Companies) > 0 {
		top := resp.Companies[0]
		share := float64(top.EventCount) * 100 / float64(resp.Summary.TotalEvents)
		insights = append(insights, domain.Insight{
			ID:          "top-company",
			Title:       "Most active company",
			Value:       top.Name,
			Description: fmt.Sprintf("%.1f%% of all events, %d active users", share, top.ActiveUsers),
			Severity:    severityInfo,
		})
	}

	if len(resp.TopUsers) > 0 {
		u := resp.TopUsers[0]
		insights = append(insights, domain.Insight{
			ID:          "top-user",
			Title:       "Most active user",
			Value:       u.Email,
			Description: fmt.Sprintf("%s events at %s", domain.FormatCount(u.EventCount), u.CompanyName),
			Severity:    severityInfo,
		})
	}

	if resp.Summary.PeakUsageDay != "" {
		peak := 0
		for _, p := range daily {
			if p.Date == resp.Summary.PeakUsageDay {
				peak = p.Events
			}
		}
		insights = append(insights, domain.Insight{
			ID:          "peak-usage-day",
			Title:       "Peak usage day",
			Value:       domain.FormatDay(resp.Summary.PeakUsageDay),
			Description: fmt.Sprintf("%s events", domain.FormatCount(peak)),
			Severity:    severityInfo,
		})
	}

	if in, ok := trendInsight(daily); ok {
		insights = append(insights, in)
	}
	return insights
}

// trendInsight сравнивает первую и вторую половину окна.
func trendInsight(daily []domain.UsageTrend) (domain.Insight, bool) {
	if len(daily) < 2 {
		return domain.Insight{}, false
	}
	half := len(daily) / 2
	var first, second int
	for i, p := range daily {
		if i < half {
			first += p.Events
		} else if i >= len(daily)-half {
			second += p.Events
		}
	}

	in := domain.Insight{ID: "usage-trend", Title: "Usage trend"}
	switch {
	case first == 0 && second == 0:
		return domain.Insight{}, false
	case first == 0:
		in.Value = "new activity"
		in.Description = "no events in the first half of the period"
		in.Severity = severityPositive
		return in, true
	}

	change := float64(second-first) * 100 / float64(first)
	in.Value = fmt.Sprintf("%+.1f%%", change)
	switch {
	case change > trendThreshold:
		in.Description = "usage is growing compared to the first half of the period"
		in.Severity = severityPositive
	case change < -trendThreshold:
		in.Description = "usage is declining compared to the first half of the period"
		in.Severity = severityWarning
	default:
		in.Description = "usage is stable"
		in.Severity = severityInfo
	}
	return in, true
}

// DailyTotals сворачивает ряды компаний в один ряд, отсортированный по дате.
func DailyTotals(trends domain.UsageTrends) []domain.UsageTrend {
	sum := make(map[string]int)
	for _, series := range trends.Trends {
		for _, p := range series {
			sum[p.Date] += p.Events
		}
	}
	out := make([]domain.UsageTrend, 0, len(sum))
	for d, n := range sum {
		out = append(out, domain.UsageTrend{Date: d, Events: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func roundDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
