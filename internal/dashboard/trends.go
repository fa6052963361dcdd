package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/analytics"
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"go.uber.org/zap"
)

type ViewMode string

const (
	ViewDaily   ViewMode = "daily"
	ViewWeekly  ViewMode = "weekly"
	ViewMonthly ViewMode = "monthly"
)

// ParseViewMode: неизвестное значение трактуется как daily.
func ParseViewMode(s string) ViewMode {
	switch ViewMode(s) {
	case ViewWeekly, ViewMonthly:
		return ViewMode(s)
	default:
		return ViewDaily
	}
}

type ChartType string

const (
	ChartLine ChartType = "line"
	ChartBar  ChartType = "bar"
)

func ParseChartType(s string) ChartType {
	if ChartType(s) == ChartBar {
		return ChartBar
	}
	return ChartLine
}

// DefaultMaxDailyPoints: сколько точек оставляет OptimizeDaily по умолчанию.
const DefaultMaxDailyPoints = 30

const monthLayout = "2006-01"

// Bucket: точка графика. StartDate/EndDate заполнены для недель:
// первая и последняя дата с данными внутри недели.
type Bucket struct {
	Date      string
	Events    int
	StartDate string
	EndDate   string
}

// weekStart возвращает понедельник ISO-недели.
func weekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// AggregateToWeekly суммирует дневные точки по ISO-неделям (ключ, дата понедельника).
// Точки с некорректной датой пропускаются.
func AggregateToWeekly(points []domain.UsageTrend) []Bucket {
	byWeek := make(map[string]*Bucket)
	for _, p := range points {
		d, err := time.Parse(domain.DateLayout, p.Date)
		if err != nil {
			continue
		}
		key := weekStart(d).Format(domain.DateLayout)
		b, ok := byWeek[key]
		if !ok {
			b = &Bucket{Date: key, StartDate: p.Date, EndDate: p.Date}
			byWeek[key] = b
		}
		b.Events += p.Events
		if p.Date < b.StartDate {
			b.StartDate = p.Date
		}
		if p.Date > b.EndDate {
			b.EndDate = p.Date
		}
	}
	return sortedBuckets(byWeek)
}

// AggregateToMonthly суммирует дневные точки по месяцам (ключ YYYY-MM).
func AggregateToMonthly(points []domain.UsageTrend) []Bucket {
	byMonth := make(map[string]*Bucket)
	for _, p := range points {
		d, err := time.Parse(domain.DateLayout, p.Date)
		if err != nil {
			continue
		}
		key := d.Format(monthLayout)
		b, ok := byMonth[key]
		if !ok {
			b = &Bucket{Date: key}
			byMonth[key] = b
		}
		b.Events += p.Events
	}
	return sortedBuckets(byMonth)
}

func sortedBuckets(m map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// OptimizeDaily прореживает ряд с шагом ceil(n/maxPoints), начиная с первой точки.
// Последняя точка сохраняется всегда.
func OptimizeDaily(points []domain.UsageTrend, maxPoints int) []domain.UsageTrend {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxDailyPoints
	}
	n := len(points)
	if n <= maxPoints {
		out := make([]domain.UsageTrend, n)
		copy(out, points)
		return out
	}

	step := (n + maxPoints - 1) / maxPoints
	out := make([]domain.UsageTrend, 0, maxPoints+1)
	last := -1
	for i := 0; i < n; i += step {
		out = append(out, points[i])
		last = i
	}
	if last != n-1 {
		out = append(out, points[n-1])
	}
	return out
}

// Row: точка многолинейного графика: значение на каждую компанию.
type Row struct {
	Date      string
	StartDate string
	EndDate   string
	Values    map[string]int
}

// MultilineDaily объединяет даты всех компаний; отсутствующие значения не заполняются.
func MultilineDaily(trends map[string][]domain.UsageTrend) []Row {
	byDate := make(map[string]*Row)
	for company, series := range trends {
		for _, p := range series {
			if _, err := time.Parse(domain.DateLayout, p.Date); err != nil {
				continue
			}
			r, ok := byDate[p.Date]
			if !ok {
				r = &Row{Date: p.Date, Values: make(map[string]int)}
				byDate[p.Date] = r
			}
			r.Values[company] += p.Events
		}
	}
	return sortedRows(byDate)
}

// AggregateToWeeklyCompany: недельные бакеты по каждой компании с общими ключами.
func AggregateToWeeklyCompany(trends map[string][]domain.UsageTrend) []Row {
	byWeek := make(map[string]*Row)
	for company, series := range trends {
		for _, b := range AggregateToWeekly(series) {
			r, ok := byWeek[b.Date]
			if !ok {
				r = &Row{Date: b.Date, StartDate: b.StartDate, EndDate: b.EndDate, Values: make(map[string]int)}
				byWeek[b.Date] = r
			}
			r.Values[company] += b.Events
			if b.StartDate < r.StartDate {
				r.StartDate = b.StartDate
			}
			if b.EndDate > r.EndDate {
				r.EndDate = b.EndDate
			}
		}
	}
	return sortedRows(byWeek)
}

// AggregateToMonthlyCompany: месячные бакеты по каждой компании.
func AggregateToMonthlyCompany(trends map[string][]domain.UsageTrend) []Row {
	byMonth := make(map[string]*Row)
	for company, series := range trends {
		for _, b := range AggregateToMonthly(series) {
			r, ok := byMonth[b.Date]
			if !ok {
				r = &Row{Date: b.Date, Values: make(map[string]int)}
				byMonth[b.Date] = r
			}
			r.Values[company] += b.Events
		}
	}
	return sortedRows(byMonth)
}

func sortedRows(m map[string]*Row) []Row {
	out := make([]Row, 0, len(m))
	for _, r := range m {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// SingleSeriesName: имя единственного ряда, когда компании не разделяются.
const SingleSeriesName = "Events"

// Chart: подготовленные для отрисовки данные графика трендов.
type Chart struct {
	View      ViewMode
	Multiline bool
	Series    []string
	Rows      []Row
}

// Empty: нечего рисовать.
func (c Chart) Empty() bool { return len(c.Rows) == 0 || len(c.Series) == 0 }

// Labels: подписи оси X для текущего режима.
func (c Chart) Labels() []string {
	out := make([]string, len(c.Rows))
	for i, r := range c.Rows {
		out[i] = FormatDateForDisplay(r.Date, c.View, r.StartDate, r.EndDate)
	}
	return out
}

// Values: значения ряда по всем точкам (0, где компании нет).
func (c Chart) Values(series string) []float64 {
	out := make([]float64, len(c.Rows))
	for i, r := range c.Rows {
		out[i] = float64(r.Values[series])
	}
	return out
}

// Shaper готовит данные графиков; ошибки формирования не всплывают,
// вместо них пустой график и запись в лог.
type Shaper struct {
	MaxDailyPoints int
	Logger         *zap.Logger

	// totals сводит ряды компаний в один; nil означает analytics.DailyTotals.
	totals func(domain.UsageTrends) []domain.UsageTrend
}

func NewShaper(maxDailyPoints int, logger *zap.Logger) *Shaper {
	if maxDailyPoints <= 0 {
		maxDailyPoints = DefaultMaxDailyPoints
	}
	return &Shaper{MaxDailyPoints: maxDailyPoints, Logger: logger.Named("chart-shaper")}
}

// ChartData строит график: по линии на компанию в многолинейном режиме,
// иначе один ряд с суммой по компаниям.
func (s *Shaper) ChartData(trends domain.UsageTrends, view ViewMode, multiline bool) (chart Chart) {
	chart = Chart{View: view, Multiline: multiline}
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("chart data shaping failed",
				zap.Any("panic", r),
				zap.String("view", string(view)),
				zap.Bool("multiline", multiline),
				zap.Int("companies", len(trends.Trends)))
			chart = Chart{View: view, Multiline: multiline}
		}
	}()

	if len(trends.Trends) == 0 {
		s.Logger.Debug("chart data: empty trends")
		return chart
	}
	s.logMalformed(trends)

	if multiline {
		chart.Series = CompanyNames(true, trends)
		switch view {
		case ViewWeekly:
			chart.Rows = AggregateToWeeklyCompany(trends.Trends)
		case ViewMonthly:
			chart.Rows = AggregateToMonthlyCompany(trends.Trends)
		default:
			chart.Rows = MultilineDaily(trends.Trends)
		}
		return chart
	}

	chart.Series = []string{SingleSeriesName}
	sum := s.totals
	if sum == nil {
		sum = analytics.DailyTotals
	}
	totals := sum(trends)
	switch view {
	case ViewWeekly:
		chart.Rows = bucketRows(AggregateToWeekly(totals))
	case ViewMonthly:
		chart.Rows = bucketRows(AggregateToMonthly(totals))
	default:
		daily := OptimizeDaily(validPoints(totals), s.MaxDailyPoints)
		rows := make([]Row, len(daily))
		for i, p := range daily {
			rows[i] = Row{Date: p.Date, Values: map[string]int{SingleSeriesName: p.Events}}
		}
		chart.Rows = rows
	}
	return chart
}

func (s *Shaper) logMalformed(trends domain.UsageTrends) {
	bad := 0
	for _, series := range trends.Trends {
		for _, p := range series {
			if _, err := time.Parse(domain.DateLayout, p.Date); err != nil {
				bad++
			}
		}
	}
	if bad > 0 {
		s.Logger.Debug("chart data: skipped malformed dates", zap.Int("points", bad))
	}
}

func validPoints(points []domain.UsageTrend) []domain.UsageTrend {
	out := points[:0:0]
	for _, p := range points {
		if _, err := time.Parse(domain.DateLayout, p.Date); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func bucketRows(buckets []Bucket) []Row {
	rows := make([]Row, len(buckets))
	for i, b := range buckets {
		rows[i] = Row{
			Date:      b.Date,
			StartDate: b.StartDate,
			EndDate:   b.EndDate,
			Values:    map[string]int{SingleSeriesName: b.Events},
		}
	}
	return rows
}

// ShouldShowMultiline: по линии на компанию только для "Все компании" и больше чем одной компании.
func ShouldShowMultiline(companyID string, trends domain.UsageTrends) bool {
	return (companyID == domain.AllCompanies || companyID == "") && len(trends.Trends) > 1
}

// CompanyName ищет имя компании по id для подписи.
func CompanyName(id string, companies []domain.Company) string {
	if id == domain.AllCompanies || id == "" {
		return "All Companies"
	}
	for _, c := range companies {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

func Subtitle(showMultiline bool, companyID string, companies []domain.Company) string {
	if showMultiline {
		return "Usage patterns across all companies"
	}
	if companyID == domain.AllCompanies || companyID == "" {
		return "Aggregated usage patterns"
	}
	return "Usage patterns for " + CompanyName(companyID, companies)
}

// CompanyNames: отсортированные имена для легенды, пусто вне многолинейного режима.
func CompanyNames(showMultiline bool, trends domain.UsageTrends) []string {
	if !showMultiline || len(trends.Trends) == 0 {
		return nil
	}
	names := make([]string, 0, len(trends.Trends))
	for name := range trends.Trends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var palette = []string{
	"#3B82F6", "#EF4444", "#10B981", "#F59E0B",
	"#8B5CF6", "#F97316", "#06B6D4", "#84CC16",
}

// CompanyColor: цвет линии по индексу, палитра повторяется по кругу.
func CompanyColor(index int) string {
	if index < 0 {
		index = -index
	}
	return palette[index%len(palette)]
}

// FormatDateForDisplay: daily "Jul 1", weekly "Jul 01 - Jul 07", monthly "Jul 2025".
// Если дату разобрать не удалось, возвращается исходная строка.
func FormatDateForDisplay(date string, view ViewMode, start, end string) string {
	switch view {
	case ViewWeekly:
		s, err1 := time.Parse(domain.DateLayout, start)
		e, err2 := time.Parse(domain.DateLayout, end)
		if err1 != nil || err2 != nil {
			return date
		}
		return fmt.Sprintf("%s - %s", s.Format("Jan 02"), e.Format("Jan 02"))
	case ViewMonthly:
		m, err := time.Parse(monthLayout, date)
		if err != nil {
			return date
		}
		return m.Format("Jan 2006")
	default:
		d, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			return date
		}
		return d.Format("Jan 2")
	}
}
