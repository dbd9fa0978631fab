// Package tui provides the Bubble Tea data-collection interface.
package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/session"
)

// DefaultTick is the fixed logic step.
const DefaultTick = 10 * time.Millisecond

type tickMsg time.Time

// Model renders a session runtime and feeds it ticks and keys.
type Model struct {
	rt     *session.Runtime
	entry  *Entry
	tick   time.Duration
	logger *slog.Logger

	width  int
	height int

	err     error
	keyErrs int
}

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	cursorStyle      = currentWordStyle.Underline(true)
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	headerStyle      = lipgloss.NewStyle().Bold(true)
	warnStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
)

// NewModel wraps rt. entry must be the TextEntry rt was built with.
func NewModel(rt *session.Runtime, entry *Entry, tick time.Duration, logger *slog.Logger) *Model {
	if tick <= 0 {
		tick = DefaultTick
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Model{rt: rt, entry: entry, tick: tick, logger: logger}
}

// Err returns the error that ended the session, if any.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.tickCmd()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		done, err := m.rt.Tick()
		if err != nil {
			m.err = err
			return m, tea.Quit
		}
		if done {
			return m, tea.Quit
		}
		return m, m.tickCmd()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.rt.Close()
		case tea.KeyEnter:
			m.handleKey(session.Key{Enter: true})
		case tea.KeyRunes:
			for _, r := range msg.Runes {
				m.handleKey(session.Key{Rune: r})
			}
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) handleKey(k session.Key) {
	if err := m.rt.HandleKey(k); err != nil {
		m.keyErrs++
		m.logger.Error("failed to handle key", "error", err)
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	sections := []string{m.renderHeader(), "", m.renderInstruction(), ""}
	if body := m.renderBody(); body != "" {
		sections = append(sections, body, "")
	}
	content := strings.Join(sections, "\n")
	footer := m.renderFooter()
	if m.width == 0 || m.height == 0 {
		return content + "\n" + footer
	}
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderHeader() string {
	entered, total := m.rt.Progress()
	if m.rt.Purpose() == model.PurposePrediction {
		return headerStyle.Render(m.rt.Session().Participant + " Prediction Session")
	}
	return headerStyle.Render(fmt.Sprintf("Passwords Entered: %d / %d", entered, total))
}

func (m *Model) renderInstruction() string {
	switch m.rt.State() {
	case session.StateDisconnected:
		return warnStyle.Render(fmt.Sprintf("Waiting for EEG stream (device: %s)", m.rt.DeviceID()))
	case session.StateRunning:
		if m.rt.Purpose() == model.PurposePrediction {
			return m.rt.Session().Participant + " type your password below, press ENTER when done:"
		}
		return "Type the password below, press ENTER when done:"
	default:
		line := "Finished session. This window will close in a moment."
		switch m.rt.Verdict() {
		case session.VerdictCorrect:
			line += "\n" + correctStyle.Render("Password correct.")
		case session.VerdictIncorrect:
			line += "\n" + incorrectStyle.Render("Password incorrect.")
		}
		return line
	}
}

func (m *Model) renderBody() string {
	if m.rt.State() != session.StateRunning {
		return ""
	}
	var parts []string
	if m.rt.Purpose() == model.PurposeTraining {
		entered, _ := m.rt.Progress()
		target, typed, cursor := passwordStrip(m.rt.Session().Passwords, entered, m.rt.CharIndex())
		styled := buildStyledRunes(target, typed, cursor)
		width := max(int(float64(m.width)*0.70), 1)
		if m.width == 0 {
			width = 0
		}
		parts = append(parts, wrapStyledRunes(styled, width))
	}
	parts = append(parts, m.entry.View())
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderFooter() string {
	return footerStyle.Render(formatFooter(footerStats{
		state:   m.rt.State(),
		samples: m.rt.SampleCount(),
		markers: m.rt.MarkerCount(),
		stream:  m.rt.StreamName(),
		keyErrs: m.keyErrs,
	}))
}

type footerStats struct {
	state   session.State
	samples int
	markers int
	stream  string
	keyErrs int
}

func formatFooter(s footerStats) string {
	segments := []string{s.state.String()}
	if s.stream != "" {
		segments = append(segments, "Stream "+s.stream)
	}
	segments = append(segments,
		fmt.Sprintf("Samples %d", s.samples),
		fmt.Sprintf("Markers %d", s.markers),
	)
	if s.keyErrs > 0 {
		segments = append(segments, fmt.Sprintf("Marker errors %d", s.keyErrs))
	}
	return strings.Join(segments, "  ")
}
