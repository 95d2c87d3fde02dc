package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/monitor"
	"github.com/gwillem/amber/pkg/motion"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Axis colors, reused when there are more axes than colors
var axisColors = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
	"33",  // blue
	"255", // white
}

func axisColor(i int) lipgloss.Color {
	return lipgloss.Color(axisColors[i%len(axisColors)])
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type keyMap struct {
	Pause key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause chart"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// sequence runs a motion sequence in the background.
type sequence struct {
	finished chan struct{}
	state    motion.State
	err      error
}

func runSequence(fn func() (motion.State, error)) *sequence {
	s := &sequence{finished: make(chan struct{})}
	go func() {
		s.state, s.err = fn()
		close(s.finished)
	}()
	return s
}

func (s *sequence) wait() (motion.State, error) {
	<-s.finished
	return s.state, s.err
}

type chartModel struct {
	title    string
	subtitle string
	poller   *monitor.Poller
	labels   []string
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	quitting bool
	latest   monitor.State
	last     []float64 // previous positions, to detect movement
	paused   bool
	help     help.Model

	// Set when the chart follows a sequence.
	seq      *sequence
	stop     func()
	stopping bool
}

// Messages from the poller and the sequence
type stateMsg monitor.State
type logMsg string
type doneMsg struct{}

func waitForState(p *monitor.Poller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-p.States())
	}
}

func waitForLog(p *monitor.Poller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-p.Logs())
	}
}

func waitForDone(s *sequence) tea.Cmd {
	return func() tea.Msg {
		s.wait()
		return doneMsg{}
	}
}

func newChartModel(title string, p *monitor.Poller, labels []string) chartModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)
	for i, name := range labels {
		style := lipgloss.NewStyle().Foreground(axisColor(i))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}
	return chartModel{
		title:    title,
		subtitle: fmt.Sprintf("%d Hz", p.Hz()),
		poller:   p,
		labels:   labels,
		chart:    &chart,
		help:     help.New(),
	}
}

// following makes the chart quit when s finishes. The first quit key calls
// stop and waits for the sequence; the second quits at once.
func (m chartModel) following(s *sequence, stop func()) chartModel {
	m.seq = s
	m.stop = stop
	return m
}

func (m *chartModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any position has changed since the last state
func (m *chartModel) hasMovement(pos []float64) bool {
	if len(m.last) != len(pos) {
		return true
	}
	for i, p := range pos {
		if p != m.last[i] {
			return true
		}
	}
	return false
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *chartModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *chartModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func (m chartModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForState(m.poller), waitForLog(m.poller)}
	if m.seq != nil {
		cmds = append(cmds, waitForDone(m.seq))
	}
	return tea.Batch(cmds...)
}

func (m chartModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Pause):
			m.paused = !m.paused
			return m, nil
		case key.Matches(msg, keys.Quit):
			if m.seq != nil && !m.stopping {
				m.stopping = true
				m.stop()
				m.addLog("Stopping, press q again to quit now")
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := monitor.State(msg)
		m.latest = state
		if !m.paused && state.CVP.Len() > 0 && m.hasMovement(state.CVP.Position) {
			for i, v := range state.Normalized {
				if i < len(m.labels) {
					m.chart.PushDataSet(m.labels[i], v)
				}
			}
			m.chart.DrawAll()
			m.last = append(m.last[:0], state.CVP.Position...)
		}
		return m, waitForState(m.poller)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.poller)

	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m chartModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render(m.title))
	if m.subtitle != "" {
		sb.WriteString(" - " + m.subtitle)
	}
	if m.paused {
		sb.WriteString(statusStyle.Render("  paused"))
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = m.help.View(keys)
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m chartModel) renderLegend() string {
	items := make([]string, 0, len(m.labels))
	for i, name := range m.labels {
		colorStyle := lipgloss.NewStyle().Foreground(axisColor(i)).Bold(true)
		item := colorStyle.Render("━━") + " " + name
		if i < m.latest.CVP.Len() {
			item += statusStyle.Render(fmt.Sprintf(" %.0f", m.latest.CVP.Position[i]))
		}
		if i < len(m.latest.Codes) && m.latest.Codes[i] != actuator.ErrorNone {
			item += " " + errorStyle.Render(m.latest.Codes[i].String())
		}
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

// follow runs the chart until s finishes or the user quits, then waits for
// s and returns its outcome.
func follow(title, subtitle string, p *monitor.Poller, names []string, s *sequence, stop func()) (motion.State, error) {
	model := newChartModel(title, p, names).following(s, stop)
	model.subtitle = subtitle

	prog := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		stop()
		s.wait()
		return motion.Failed, fmt.Errorf("run chart: %w", err)
	}
	stop()
	return s.wait()
}
