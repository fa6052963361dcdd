package dashboard

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ChartRenderer рисует графики дашборда в SVG.
type ChartRenderer struct {
	Width  int
	Height int
}

func NewChartRenderer(width, height int) ChartRenderer {
	if width <= 0 {
		width = 960
	}
	if height <= 0 {
		height = 420
	}
	return ChartRenderer{Width: width, Height: height}
}

// Trends рисует график трендов. В режиме bar многолинейный график
// сворачивается в сумму по компаниям: go-chart не умеет сгруппированные столбцы.
func (cr ChartRenderer) Trends(w io.Writer, c Chart, kind ChartType) error {
	if c.Empty() {
		return cr.placeholder(w, "No trend data for the selected filters")
	}
	labels := c.Labels()

	var buf bytes.Buffer
	var err error
	if kind == ChartBar {
		bars := make([]chart.Value, len(c.Rows))
		for i, r := range c.Rows {
			total := 0
			for _, s := range c.Series {
				total += r.Values[s]
			}
			bars[i] = chart.Value{
				Label: labels[i],
				Value: float64(total),
				Style: chart.Style{FillColor: color(CompanyColor(0)), StrokeColor: color(CompanyColor(0))},
			}
		}
		err = cr.barChart(bars).Render(chart.SVG, &buf)
	} else {
		err = cr.lineChart(c, labels).Render(chart.SVG, &buf)
	}
	if err != nil {
		// одна точка или пустой диапазон: go-chart отказывается рисовать
		return cr.placeholder(w, fallbackText(c, labels))
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// Companies: столбцы по событиям для топ-5 компаний.
func (cr ChartRenderer) Companies(w io.Writer, bars []CompanyBar) error {
	if len(bars) == 0 {
		return cr.placeholder(w, "No company data for the selected filters")
	}
	values := make([]chart.Value, len(bars))
	for i, b := range bars {
		c := color(CompanyColor(i))
		values[i] = chart.Value{
			Label: truncate(b.Name, 18),
			Value: float64(b.Events),
			Style: chart.Style{FillColor: c, StrokeColor: c},
		}
	}
	var buf bytes.Buffer
	if err := cr.barChart(values).Render(chart.SVG, &buf); err != nil {
		return cr.placeholder(w, fmt.Sprintf("%s: %d events", bars[0].Name, bars[0].Events))
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (cr ChartRenderer) lineChart(c Chart, labels []string) chart.Chart {
	xs := make([]float64, len(c.Rows))
	for i := range xs {
		xs[i] = float64(i)
	}

	series := make([]chart.Series, 0, len(c.Series))
	maxY := 0.0
	for i, name := range c.Series {
		ys := c.Values(name)
		for _, y := range ys {
			if y > maxY {
				maxY = y
			}
		}
		col := color(CompanyColor(i))
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: col,
				StrokeWidth: 2,
				DotColor:    col,
				DotWidth:    2,
			},
		})
	}

	graph := chart.Chart{
		Width:  cr.Width,
		Height: cr.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Ticks: xTicks(labels),
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: yMax(maxY)},
			ValueFormatter: chart.IntValueFormatter,
		},
		Series: series,
	}
	if c.Multiline {
		graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	}
	return graph
}

func (cr ChartRenderer) barChart(values []chart.Value) chart.BarChart {
	maxY := 0.0
	for _, v := range values {
		if v.Value > maxY {
			maxY = v.Value
		}
	}
	barWidth := (cr.Width - 80) / (2 * len(values))
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < 4 {
		barWidth = 4
	}
	return chart.BarChart{
		Width:      cr.Width,
		Height:     cr.Height,
		BarWidth:   barWidth,
		BarSpacing: barWidth,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.Style{FontSize: 8},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: yMax(maxY)},
			ValueFormatter: chart.IntValueFormatter,
		},
		Bars: values,
	}
}

// xTicks: не больше ~12 подписей, иначе они наезжают друг на друга.
// Тики задают диапазон оси X, поэтому последняя точка всегда получает тик.
func xTicks(labels []string) []chart.Tick {
	n := len(labels)
	step := 1
	if n > 12 {
		step = (n + 11) / 12
	}
	ticks := make([]chart.Tick, 0, n/step+2)
	last := -1
	for i := 0; i < n; i += step {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: labels[i]})
		last = i
	}
	if n > 0 && last != n-1 {
		ticks = append(ticks, chart.Tick{Value: float64(n - 1), Label: labels[n-1]})
	}
	return ticks
}

func yMax(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v * 1.1
}

func color(hex string) drawing.Color {
	return drawing.ColorFromHex(hex)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func fallbackText(c Chart, labels []string) string {
	if len(c.Rows) == 1 && len(c.Series) > 0 {
		total := 0
		for _, s := range c.Series {
			total += c.Rows[0].Values[s]
		}
		return fmt.Sprintf("%s: %d events", labels[0], total)
	}
	return "Chart is not available for this data"
}

// placeholder: минимальный SVG с текстом вместо графика.
func (cr ChartRenderer) placeholder(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<rect width="100%%" height="100%%" fill="#F9FAFB"/>`+
			`<text x="50%%" y="50%%" text-anchor="middle" font-family="sans-serif" font-size="14" fill="#6B7280">%s</text>`+
			`</svg>`,
		cr.Width, cr.Height, cr.Width, cr.Height, html.EscapeString(text))
	return err
}
