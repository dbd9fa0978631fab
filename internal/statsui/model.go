// Package statsui provides the Bubble Tea session report browser.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/stats"
)

const (
	tabOverview = iota
	tabSessions
	tabKeys
)

const timeLayout = "2006-01-02 15:04"

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea report browser.
type Model struct {
	src    stats.Source
	filter model.SessionFilter

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	overview  viewport.Model
	tables    map[int]*table.Model

	width  int
	height int
}

// NewModel loads the first report for filter.
func NewModel(src stats.Source, filter model.SessionFilter) *Model {
	if filter.CurveWindow <= 0 {
		filter.CurveWindow = 5
	}
	sessions := newTable(sessionColumns())
	keys := newTable(keyColumns())
	m := &Model{
		src:      src,
		filter:   filter,
		tabs:     []string{"Overview", "Sessions", "Keys"},
		overview: viewport.New(0, 0),
		tables:   map[int]*table.Model{tabSessions: &sessions, tabKeys: &keys},
	}
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderOverview()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.filter.CurveWindow = nextCurveWindow(m.filter.CurveWindow)
			m.refreshReport()
			return m, nil
		case "-":
			m.filter.CurveWindow = prevCurveWindow(m.filter.CurveWindow)
			m.refreshReport()
			return m, nil
		case "r":
			m.refreshReport()
			return m, nil
		}
		if t, ok := m.tables[m.activeTab]; ok {
			var cmd tea.Cmd
			*t, cmd = t.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.overview, cmd = m.overview.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := maxInt(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = maxInt(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width = m.width
	m.overview.Height = bodyHeight
	for _, t := range m.tables {
		t.SetWidth(m.width)
		// One line goes to the header border.
		t.SetHeight(maxInt(1, bodyHeight-1))
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	for idx, t := range m.tables {
		if idx == m.activeTab {
			t.Focus()
		} else {
			t.Blur()
		}
	}
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.src, m.filter)
	if err != nil {
		m.errMsg = err.Error()
		m.overview.SetContent("Failed to load sessions.")
		return
	}
	m.errMsg = ""
	m.report = report
	m.tables[tabSessions].SetRows(sessionRows(report.Sessions))
	m.tables[tabKeys].SetRows(keyRows(report.KeyAggs))
	m.renderOverview()
}

func (m *Model) renderOverview() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	var buf bytes.Buffer
	if err := stats.RenderSummary(&buf, m.report.Sessions); err != nil {
		m.overview.SetContent(fmt.Sprintf("Failed to render summary: %v", err))
		return
	}
	if len(m.report.Sessions) > 0 {
		if err := stats.RenderLatencyCurve(&buf, m.report.Sessions, m.report.CurveWindow, width-2); err != nil {
			m.overview.SetContent(fmt.Sprintf("Failed to render curve: %v", err))
			return
		}
		if len(m.report.TopKeys) > 0 {
			fmt.Fprintf(&buf, "Most pressed: %s\n", strings.Join(m.report.TopKeys, " "))
		}
	}
	m.overview.SetContent(strings.TrimRight(buf.String(), "\n"))
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	return padLines(m.renderTabs(), m.width) + "\n" + padLines(m.renderFilterSummary(), m.width)
}

func (m *Model) renderFilterSummary() string {
	user := m.filter.Participant
	if user == "" {
		user = "any"
	}
	mode := "any"
	if m.filter.Mode.Valid() {
		mode = m.filter.Mode.Name()
	}
	since := "any"
	if m.filter.Since != nil {
		since = m.filter.Since.Format("2006-01-02")
	}
	last := "all"
	if m.filter.Last > 0 {
		last = strconv.Itoa(m.filter.Last)
	}
	summary := fmt.Sprintf("Filter: user=%s  mode=%s  since=%s  last=%s  window=%d",
		user, mode, since, last, m.filter.CurveWindow)
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	help := headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Reload: r  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderBody() string {
	t, ok := m.tables[m.activeTab]
	if !ok {
		return m.overview.View()
	}
	if len(m.report.Sessions) == 0 {
		return "No sessions found."
	}
	if len(t.Rows()) == 0 {
		return "No key stats found."
	}
	return tableMutedStyle.Render(t.View())
}

func newTable(columns []table.Column) table.Model {
	t := table.New(table.WithColumns(columns), table.WithHeight(1))
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func sessionColumns() []table.Column {
	return []table.Column{
		{Title: "Finished", Width: 16},
		{Title: "User", Width: 10},
		{Title: "Mode", Width: 13},
		{Title: "Purpose", Width: 10},
		{Title: "Keys/min", Width: 8},
		{Title: "Latency", Width: 8},
		{Title: "Samples", Width: 8},
	}
}

func sessionRows(sessions []model.SessionRecord) []table.Row {
	rows := make([]table.Row, 0, len(sessions))
	// Newest first reads better when scrolling.
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		kpm, lat := stats.SessionMetrics(s)
		rows = append(rows, table.Row{
			s.FinishedAt.Local().Format(timeLayout),
			s.Participant,
			s.Mode.Name(),
			s.Purpose.String(),
			fmt.Sprintf("%.1f", kpm),
			fmt.Sprintf("%.1f", lat),
			strconv.Itoa(s.Samples),
		})
	}
	return rows
}

func keyColumns() []table.Column {
	return []table.Column{
		{Title: "Key", Width: 7},
		{Title: "Avg Latency (ms)", Width: 17},
		{Title: "Intervals", Width: 9},
		{Title: "Presses", Width: 8},
	}
}

func keyRows(aggs []model.KeyAggregate) []table.Row {
	slow := stats.SlowestKeys(aggs, len(aggs))
	rows := make([]table.Row, 0, len(slow))
	for _, agg := range slow {
		lat := 0.0
		if agg.LatencyCount > 0 {
			lat = float64(agg.LatencySumMs) / float64(agg.LatencyCount)
		}
		rows = append(rows, table.Row{
			agg.Char,
			fmt.Sprintf("%.1f", lat),
			strconv.FormatInt(agg.LatencyCount, 10),
			strconv.Itoa(agg.Count),
		})
	}
	return rows
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
