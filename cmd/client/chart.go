package main

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thushara2679/trading-alert/adapter"
	"github.com/thushara2679/trading-alert/features"
	"github.com/thushara2679/trading-alert/model/candle"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
	shadowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	axisStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
)

// priceAxis is the width of the "  12345.67 │" gutter.
const priceAxis = 11

type barMsg struct{ bar candle.Bar }

type chart struct {
	req  adapter.Request
	bars <-chan candle.Bar

	series  []candle.Bar
	updates int
	width   int
	height  int
}

func newChart(req adapter.Request, seed []candle.Bar, bars <-chan candle.Bar) chart {
	return chart{req: req, bars: bars, series: append([]candle.Bar(nil), seed...)}
}

func (m chart) Init() tea.Cmd { return nextBar(m.bars) }

func (m chart) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			return m, tea.Quit
		}
	case barMsg:
		m.push(msg.bar)
		return m, nextBar(m.bars)
	}
	return m, nil
}

func (m chart) View() string {
	if m.width == 0 {
		return "connecting…"
	}
	var b strings.Builder
	b.WriteString(m.title())
	b.WriteByte('\n')
	b.WriteString(m.plot())
	b.WriteString(hintStyle.Render("[q] quit"))
	return b.String()
}

func nextBar(ch <-chan candle.Bar) tea.Cmd {
	return func() tea.Msg { return barMsg{<-ch} }
}

// push appends a bar, replacing the last one when timestamps match, and keeps
// at most req.Bars entries.
func (m *chart) push(b candle.Bar) {
	m.updates++
	if n := len(m.series); n > 0 && m.series[n-1].Timestamp == b.Timestamp {
		m.series[n-1] = b
		return
	}
	m.series = append(m.series, b)
	if keep := m.req.Bars; keep > 0 && len(m.series) > keep {
		m.series = m.series[len(m.series)-keep:]
	}
}

func (m chart) title() string {
	name := m.req.Exchange + ":" + m.req.Symbol
	if len(m.series) == 0 {
		return titleStyle.Render(fmt.Sprintf("%s  %s  no bars yet", name, m.req.Interval))
	}
	b := m.series[len(m.series)-1]
	return titleStyle.Render(fmt.Sprintf(
		"%s  %s  %s  O:%.2f  H:%.2f  L:%.2f  C:%.2f  V:%.0f  volZ:%+.2f  live:%d",
		name, m.req.Interval, b.Time().Format("01-02 15:04"),
		b.Open, b.High, b.Low, b.Close, b.Volume,
		features.VolumeZScore(volumes(m.series), features.DefaultWindow), m.updates,
	))
}

func (m chart) plot() string {
	rows := max(m.height-4, 3)
	cols := max((m.width-priceAxis)/2, 1)

	visible := m.series
	if len(visible) > cols {
		visible = visible[len(visible)-cols:]
	}
	hi, lo := span(visible)
	if hi == lo {
		hi = lo + 1
	}

	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, len(visible)*2)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	for i, b := range visible {
		paint(grid, b, i*2, hi, lo)
	}

	var sb strings.Builder
	for r := range rows {
		sb.WriteString(axisStyle.Render(fmt.Sprintf("%9.2f │", level(r, rows, hi, lo))))
		sb.WriteString(strings.Join(grid[r], ""))
		sb.WriteByte('\n')
	}
	sb.WriteString(axisStyle.Render(strings.Repeat("─", priceAxis+len(visible)*2)))
	sb.WriteByte('\n')
	sb.WriteString(timeAxis(visible))
	sb.WriteByte('\n')
	return sb.String()
}

// timeAxis labels every fifth bar with its HH:MM open time. Each label takes
// five columns, which is what five two-column bars leave room for.
func timeAxis(bars []candle.Bar) string {
	line := []byte(strings.Repeat(" ", priceAxis+len(bars)*2))
	for i := 0; i < len(bars); i += 5 {
		label := bars[i].Time().Format("15:04")
		copy(line[priceAxis+i*2:], label)
	}
	return string(line)
}

// paint draws one bar into two grid columns starting at x.
func paint(grid [][]string, b candle.Bar, x int, hi, lo float64) {
	rows := len(grid)
	style := upStyle
	if b.Close < b.Open {
		style = downStyle
	}
	bodyTop := row(math.Max(b.Open, b.Close), rows, hi, lo)
	bodyBot := row(math.Min(b.Open, b.Close), rows, hi, lo)
	top, bot := row(b.High, rows, hi, lo), row(b.Low, rows, hi, lo)

	for r := range rows {
		switch {
		case r >= bodyTop && r <= bodyBot:
			grid[r][x] = style.Render("█")
			grid[r][x+1] = style.Render("█")
		case r >= top && r <= bot:
			grid[r][x] = shadowStyle.Render("│")
		}
	}
}

// row maps a price onto a grid row, 0 being the top.
func row(price float64, rows int, hi, lo float64) int {
	r := int(math.Round((hi - price) / (hi - lo) * float64(rows-1)))
	return min(max(r, 0), rows-1)
}

func level(r, rows int, hi, lo float64) float64 {
	if rows <= 1 {
		return hi
	}
	return hi - float64(r)/float64(rows-1)*(hi-lo)
}

func span(bars []candle.Bar) (hi, lo float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	hi, lo = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}

func volumes(bars []candle.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
