package dashboard

import (
	"html/template"
	"net/url"
	"sort"
	"strconv"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

type option struct {
	Value    string
	Label    string
	Selected bool
}

type legendItem struct {
	Name  string
	Color string
}

type pageView struct {
	Operator       string
	Inputs         domain.QueryParams
	Applied        domain.QueryParams
	DateError      string
	ShowApplied    bool
	HasChanges     bool
	HasActive      bool
	Today          string
	DateRanges     []option
	Companies      []option
	Cards          []InsightCard
	Highlights     []domain.Insight
	NoData         bool
	EmptyRange     bool
	View           ViewMode
	Chart          ChartType
	Subtitle       string
	Legend         []legendItem
	Leaderboard    []LeaderboardRow
	CompanyBars    []CompanyBar
	ChartVersion   string
	TrendsChartAlt string
}

type errorView struct {
	Message  string
	Operator string
}

type loginView struct {
	Operator string
	Username string
	Error    string
}

var dateRanges = []struct {
	days  int
	label string
}{
	{7, "Last 7 days"},
	{30, "Last 30 days"},
	{90, "Last 90 days"},
	{365, "Last year"},
}

func dateRangeOptions(selected int) []option {
	out := make([]option, 0, len(dateRanges)+1)
	found := false
	for _, r := range dateRanges {
		sel := r.days == selected
		found = found || sel
		out = append(out, option{Value: itoa(r.days), Label: r.label, Selected: sel})
	}
	if !found && selected > 0 {
		out = append(out, option{Value: itoa(selected), Label: "Last " + itoa(selected) + " days", Selected: true})
	}
	return out
}

// companyOptions: "Все компании" первой, дальше по имени. Выбранная компания,
// которой нет в списке, все равно остается в селекторе.
func companyOptions(companies []domain.Company, selected string) []option {
	sorted := make([]domain.Company, len(companies))
	copy(sorted, companies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := []option{{Value: domain.AllCompanies, Label: "All Companies", Selected: selected == domain.AllCompanies || selected == ""}}
	found := out[0].Selected
	for _, c := range sorted {
		sel := c.ID == selected
		found = found || sel
		out = append(out, option{Value: c.ID, Label: c.Name, Selected: sel})
	}
	if !found {
		out = append(out, option{Value: selected, Label: selected, Selected: true})
	}
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }

var templates = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"query": url.QueryEscape,
}).Parse(layoutTemplate + pageTemplate + errorTemplate + loginTemplate))

const layoutTemplate = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Usage Analytics Dashboard</title>
<style>
body{font-family:system-ui,sans-serif;background:#F3F4F6;margin:0;color:#111827}
main{max-width:1200px;margin:0 auto;padding:24px}
header{display:flex;justify-content:space-between;align-items:center}
.card{background:#fff;border:1px solid #E5E7EB;border-radius:10px;padding:16px;margin-bottom:16px}
.grid{display:grid;grid-template-columns:repeat(auto-fit,minmax(220px,1fr));gap:12px}
.tile{border-radius:8px;padding:12px}
.tile h4{font-size:11px;letter-spacing:.05em;margin:0 0 6px}
.tile p{font-size:22px;font-weight:700;margin:0}
.blue{background:#EFF6FF}.emerald{background:#ECFDF5}.indigo{background:#EEF2FF}.purple{background:#F5F3FF}
.error{background:#FEF2F2;border-color:#FECACA;text-align:center}
.alert{background:#FFFBEB;border-color:#FDE68A}.info{background:#EFF6FF;border-color:#BFDBFE}
.msg-err{color:#DC2626;font-size:12px}.msg-ok{color:#16A34A;font-size:12px}
.rank{display:inline-block;width:24px;height:24px;border-radius:12px;color:#fff;text-align:center;line-height:24px}
.gold{background:#CA8A04}.silver{background:#6B7280}.bronze{background:#EA580C}.default{background:#2563EB}
table{width:100%;border-collapse:collapse}td,th{padding:6px;border-bottom:1px solid #F3F4F6;text-align:left}
.legend span{display:inline-block;width:10px;height:10px;border-radius:5px;margin-right:4px}
form.inline{display:inline}
</style>
</head>
<body><main>
<header><h1>Usage Analytics</h1>{{if .Operator}}<form class="inline" method="post" action="/logout"><span>{{.Operator}}</span> <button>Log out</button></form>{{end}}</header>
{{end}}
{{define "foot"}}</main></body></html>{{end}}
`

const pageTemplate = `
{{define "page"}}{{template "head" .}}
<section class="card">
  <h2>Filters {{if .HasActive}}<small>(active)</small>{{end}}</h2>
  <form method="post" action="/filters/apply">
    <input type="search" name="search" value="{{.Inputs.Search}}" placeholder="Search content, company or email">
    <select name="companyId">{{range .Companies}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select>
    <select name="dateRange">{{range .DateRanges}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select>
    <input type="date" name="fromDate" value="{{.Inputs.FromDate}}" max="{{.Today}}">
    <input type="date" name="toDate" value="{{.Inputs.ToDate}}" max="{{.Today}}">
    <button type="submit"{{if .DateError}} disabled{{end}}>Apply</button>
    <button type="submit" formaction="/filters">Save without applying</button>
    <button type="submit" formaction="/filters/clear">Clear All</button>
  </form>
  {{if .DateError}}<p class="msg-err">{{.DateError}}</p>{{end}}
  {{if .ShowApplied}}<p class="msg-ok">Applied</p>{{else if .HasChanges}}<p><small>You have changes that are not applied yet.</small></p>{{end}}
</section>

{{if .NoData}}
<section class="card info">
  <h3>No data available in the system</h3>
  <p>There are no companies, events, or user activities recorded yet for the time range you selected. Consider changing the date range or company filter to see more data.</p>
  <form class="inline" method="post" action="/filters/reset"><button>Reset to Default (90 days)</button></form>
  <form class="inline" method="post" action="/filters/last-year"><button>Try Last Year</button></form>
</section>
{{else if .EmptyRange}}
<section class="card alert">
  <h3>No data available for selected date range</h3>
  <p>Try adjusting your date range or company filter to see more data. The selected period may not have any activity.</p>
  <form class="inline" method="post" action="/filters/reset"><button>Reset to Default (90 days)</button></form>
  <form class="inline" method="post" action="/filters/last-year"><button>Try Last Year</button></form>
</section>
{{end}}

<section class="card">
  <h2>Key Insights</h2>
  <div class="grid">{{range .Cards}}<div class="tile {{.Tone}}"><h4>{{.Title}}</h4><p>{{.Value}}</p></div>{{end}}</div>
  {{if .Highlights}}<ul>{{range .Highlights}}<li><strong>{{.Title}}:</strong> {{.Value}} <small>{{.Description}}</small></li>{{end}}</ul>{{end}}
</section>

<section class="card">
  <h2>Usage Trends</h2>
  <p>{{.Subtitle}}</p>
  <form class="inline" method="post" action="/view">
    <button name="view" value="daily"{{if eq .View "daily"}} disabled{{end}}>Daily</button>
    <button name="view" value="weekly"{{if eq .View "weekly"}} disabled{{end}}>Weekly</button>
    <button name="view" value="monthly"{{if eq .View "monthly"}} disabled{{end}}>Monthly</button>
    <button name="chart" value="line"{{if eq .Chart "line"}} disabled{{end}}>Line</button>
    <button name="chart" value="bar"{{if eq .Chart "bar"}} disabled{{end}}>Bar</button>
  </form>
  <div><img src="/charts/trends.svg?v={{query .ChartVersion}}" alt="{{.TrendsChartAlt}}" width="100%"></div>
  {{if .Legend}}<p class="legend">{{range .Legend}}<span style="background:{{.Color}}"></span>{{.Name}} {{end}}</p>{{end}}
</section>

<div class="grid">
<section class="card">
  <h2>Top Active Users</h2>
  {{if .Leaderboard}}
  <table>{{range .Leaderboard}}
    <tr><td><span class="rank {{.Medal}}">{{.Rank}}</span></td><td title="{{.Email}}">{{.Display}}</td><td>{{.CompanyName}}</td><td>{{.Events}} events</td></tr>
  {{end}}</table>
  {{else}}<p>No user activity for the selected filters.</p>{{end}}
</section>

<section class="card">
  <h2>Company Comparison</h2>
  {{if .CompanyBars}}
  <img src="/charts/companies.svg?v={{query .ChartVersion}}" alt="Top companies by events" width="100%">
  <table><tr><th>Company</th><th>Events</th><th>Active users</th></tr>
  {{range .CompanyBars}}<tr><td>{{.Name}}</td><td>{{.Events}}</td><td>{{.Users}}</td></tr>{{end}}</table>
  {{else}}<p>No company data for the selected filters.</p>{{end}}
</section>
</div>

<section class="card">
  <h2>Export</h2>
  <form method="post" action="/export">
    <select name="format"><option value="csv">CSV</option><option value="json">JSON</option></select>
    <label><input type="checkbox" name="includeCharts" value="1"> Include trend series</label>
    <button>Download</button>
  </form>
</section>
{{template "foot" .}}{{end}}
`

const errorTemplate = `
{{define "error"}}{{template "head" .}}
<section class="card error">
  <h2>Error Loading Dashboard</h2>
  <p>{{.Message}}</p>
  <form method="get" action="/"><button>Try Again</button></form>
</section>
{{template "foot" .}}{{end}}
`

const loginTemplate = `
{{define "login"}}{{template "head" .}}
<section class="card">
  <h2>Sign in</h2>
  {{if .Error}}<p class="msg-err">{{.Error}}</p>{{end}}
  <form method="post" action="/login">
    <p><input name="username" value="{{.Username}}" placeholder="Username" autocomplete="username"></p>
    <p><input name="password" type="password" placeholder="Password" autocomplete="current-password"></p>
    <button>Sign in</button>
  </form>
</section>
{{template "foot" .}}{{end}}
`
