package dashboard

import (
	"reflect"
	"testing"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func pts(pairs ...any) []domain.UsageTrend {
	out := make([]domain.UsageTrend, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.UsageTrend{Date: pairs[i].(string), Events: pairs[i+1].(int)})
	}
	return out
}

func TestAggregateToWeeklyUsesISOWeekStart(t *testing.T) {
	// 2025-06-30, понедельник; 2025-07-06, воскресенье той же недели
	in := pts(
		"2025-07-07", 5, // следующая неделя
		"2025-06-30", 1,
		"2025-07-06", 2,
		"2025-07-02", 3,
		"bad-date", 100,
	)
	got := AggregateToWeekly(in)
	want := []Bucket{
		{Date: "2025-06-30", Events: 6, StartDate: "2025-06-30", EndDate: "2025-07-06"},
		{Date: "2025-07-07", Events: 5, StartDate: "2025-07-07", EndDate: "2025-07-07"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestAggregateToWeeklyAcrossYearBoundary(t *testing.T) {
	// ISO-неделя 2025-W01 начинается в понедельник 2024-12-30
	got := AggregateToWeekly(pts("2025-01-01", 1, "2024-12-30", 2, "2025-01-05", 3))
	if len(got) != 1 || got[0].Date != "2024-12-30" || got[0].Events != 6 {
		t.Fatalf("got %+v", got)
	}
}

func TestAggregateToMonthly(t *testing.T) {
	got := AggregateToMonthly(pts("2025-07-31", 1, "2025-06-01", 2, "2025-07-01", 3, "nope", 9))
	want := []Bucket{{Date: "2025-06", Events: 2}, {Date: "2025-07", Events: 4}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if got := AggregateToWeekly(nil); len(got) != 0 {
		t.Fatalf("weekly: %+v", got)
	}
	if got := AggregateToMonthly(nil); len(got) != 0 {
		t.Fatalf("monthly: %+v", got)
	}
}

func series(n int) []domain.UsageTrend {
	out := make([]domain.UsageTrend, n)
	for i := range out {
		out[i] = domain.UsageTrend{Date: "d" + itoa(i), Events: i}
	}
	return out
}

func TestOptimizeDailyKeepsLastPoint(t *testing.T) {
	in := series(90)
	got := OptimizeDaily(in, 30)
	// шаг 3: 0,3,...,87 и последняя 89
	if len(got) != 31 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0] != in[0] || got[1] != in[3] {
		t.Fatalf("unexpected stride: %+v %+v", got[0], got[1])
	}
	if got[len(got)-1] != in[89] {
		t.Fatalf("last = %+v", got[len(got)-1])
	}
}

func TestOptimizeDailyLastPointOnStride(t *testing.T) {
	in := series(7)
	got := OptimizeDaily(in, 4) // шаг 2: 0,2,4,6
	if len(got) != 4 || got[3] != in[6] {
		t.Fatalf("got %+v", got)
	}
}

func TestOptimizeDailyShortSeriesUntouched(t *testing.T) {
	in := series(10)
	got := OptimizeDaily(in, 0)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("got %+v", got)
	}
	got[0].Events = 999
	if in[0].Events == 999 {
		t.Fatal("input was mutated")
	}
}

func TestMultilineWeekly(t *testing.T) {
	trends := map[string][]domain.UsageTrend{
		"Acme": pts("2025-06-30", 1, "2025-07-07", 2),
		"Beta": pts("2025-07-01", 4),
	}
	got := AggregateToWeeklyCompany(trends)
	if len(got) != 2 {
		t.Fatalf("rows = %+v", got)
	}
	if got[0].Date != "2025-06-30" || got[0].Values["Acme"] != 1 || got[0].Values["Beta"] != 4 {
		t.Fatalf("row0 = %+v", got[0])
	}
	if got[0].StartDate != "2025-06-30" || got[0].EndDate != "2025-07-01" {
		t.Fatalf("row0 range = %s..%s", got[0].StartDate, got[0].EndDate)
	}
	if _, ok := got[1].Values["Beta"]; ok {
		t.Fatalf("row1 = %+v", got[1])
	}
}

func TestChartDataSingleSeriesSumsCompanies(t *testing.T) {
	s := NewShaper(30, zap.NewNop())
	trends := domain.UsageTrends{Trends: map[string][]domain.UsageTrend{
		"Acme": pts("2025-07-01", 1, "2025-07-02", 2),
		"Beta": pts("2025-07-01", 3, "2025-07-02", 0),
	}}

	c := s.ChartData(trends, ViewDaily, false)
	if !reflect.DeepEqual(c.Series, []string{SingleSeriesName}) {
		t.Fatalf("series = %v", c.Series)
	}
	if got := c.Values(SingleSeriesName); !reflect.DeepEqual(got, []float64{4, 2}) {
		t.Fatalf("values = %v", got)
	}
	if got := c.Labels(); !reflect.DeepEqual(got, []string{"Jul 1", "Jul 2"}) {
		t.Fatalf("labels = %v", got)
	}
}

func TestChartDataMultiline(t *testing.T) {
	s := NewShaper(30, zap.NewNop())
	trends := domain.UsageTrends{Trends: map[string][]domain.UsageTrend{
		"Beta": pts("2025-07-01", 3),
		"Acme": pts("2025-07-01", 1, "2025-08-02", 2),
	}}

	c := s.ChartData(trends, ViewMonthly, true)
	if !reflect.DeepEqual(c.Series, []string{"Acme", "Beta"}) {
		t.Fatalf("series = %v", c.Series)
	}
	if got := c.Values("Beta"); !reflect.DeepEqual(got, []float64{3, 0}) {
		t.Fatalf("beta = %v", got)
	}
	if got := c.Labels(); !reflect.DeepEqual(got, []string{"Jul 2025", "Aug 2025"}) {
		t.Fatalf("labels = %v", got)
	}
}

func TestChartDataEmpty(t *testing.T) {
	c := NewShaper(0, zap.NewNop()).ChartData(domain.UsageTrends{}, ViewWeekly, false)
	if !c.Empty() {
		t.Fatalf("chart = %+v", c)
	}
}

func TestShouldShowMultiline(t *testing.T) {
	two := domain.UsageTrends{Trends: map[string][]domain.UsageTrend{"a": nil, "b": nil}}
	one := domain.UsageTrends{Trends: map[string][]domain.UsageTrend{"a": nil}}

	if !ShouldShowMultiline("all", two) {
		t.Fatal("all companies with two series")
	}
	if ShouldShowMultiline("all", one) {
		t.Fatal("single series")
	}
	if ShouldShowMultiline("c1", two) {
		t.Fatal("specific company")
	}
}

func TestSubtitleAndCompanyName(t *testing.T) {
	companies := []domain.Company{{ID: "c1", Name: "Acme Corp"}}
	cases := []struct {
		multiline bool
		id        string
		want      string
	}{
		{true, "all", "Usage patterns across all companies"},
		{false, "all", "Aggregated usage patterns"},
		{false, "c1", "Usage patterns for Acme Corp"},
		{false, "c9", "Usage patterns for c9"},
	}
	for _, tc := range cases {
		if got := Subtitle(tc.multiline, tc.id, companies); got != tc.want {
			t.Errorf("Subtitle(%v, %q) = %q", tc.multiline, tc.id, got)
		}
	}
}

func TestCompanyColorWraps(t *testing.T) {
	if CompanyColor(0) != "#3B82F6" || CompanyColor(8) != "#3B82F6" || CompanyColor(9) != "#EF4444" {
		t.Fatal("palette does not wrap")
	}
}

func TestFormatDateForDisplay(t *testing.T) {
	cases := []struct {
		date       string
		view       ViewMode
		start, end string
		want       string
	}{
		{"2025-07-01", ViewDaily, "", "", "Jul 1"},
		{"2025-06-30", ViewWeekly, "2025-07-01", "2025-07-07", "Jul 01 - Jul 07"},
		{"2025-06-30", ViewWeekly, "", "", "2025-06-30"},
		{"2025-07", ViewMonthly, "", "", "Jul 2025"},
		{"garbage", ViewDaily, "", "", "garbage"},
	}
	for _, tc := range cases {
		if got := FormatDateForDisplay(tc.date, tc.view, tc.start, tc.end); got != tc.want {
			t.Errorf("FormatDateForDisplay(%q, %s) = %q, want %q", tc.date, tc.view, got, tc.want)
		}
	}
}

func TestChartDataRecoversFromPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := NewShaper(30, zap.New(core))
	s.totals = func(domain.UsageTrends) []domain.UsageTrend { panic("broken series") }
	trends := domain.UsageTrends{Trends: map[string][]domain.UsageTrend{
		"Acme": pts("2025-07-01", 1, "2025-07-02", 2),
	}}

	c := s.ChartData(trends, ViewWeekly, false)
	if !c.Empty() || c.Series != nil || c.View != ViewWeekly || c.Multiline {
		t.Fatalf("chart = %+v", c)
	}
	if logs.FilterMessage("chart data shaping failed").Len() != 1 {
		t.Fatalf("expected one error log, got %v", logs.All())
	}

	// Многолинейный режим той же функцией не пользуется и строится как обычно
	if c := s.ChartData(trends, ViewDaily, true); c.Empty() {
		t.Fatal("multiline chart must not be affected")
	}
}
