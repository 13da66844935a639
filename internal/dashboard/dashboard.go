package dashboard

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/mutker/boostctl/internal/device"
	"codeberg.org/mutker/boostctl/internal/mode"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Applier applies mode command lists.
type Applier interface {
	Apply(ctx context.Context, m mode.Mode) mode.Report
	Revert(ctx context.Context) mode.Report
}

type (
	readingMsg        device.Reading
	readingsClosedMsg struct{}
	noticeMsg         string
	reportMsg         struct {
		report mode.Report
		revert bool
	}
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	valueStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// Model is the dashboard state. The current mode and the games list live
// here only and are lost when the program exits.
type Model struct {
	ctx      context.Context
	applier  Applier
	readings <-chan device.Reading
	notices  <-chan string

	reading device.Reading
	modes   []mode.Mode
	cursor  int
	current mode.Mode
	status  string
	hasRoot bool
	busy    bool
	notice  string
	failed  bool
	done    bool
	games   []string
}

// New builds a dashboard. notices may be nil.
func New(ctx context.Context, applier Applier, readings <-chan device.Reading, notices <-chan string, hasRoot bool) *Model {
	modes := mode.All()
	cursor := 0
	for i, m := range modes {
		if m == mode.Normal {
			cursor = i
		}
	}

	return &Model{
		ctx:      ctx,
		applier:  applier,
		readings: readings,
		notices:  notices,
		modes:    modes,
		cursor:   cursor,
		current:  mode.Normal,
		status:   mode.Normal.Status(),
		hasRoot:  hasRoot,
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForReading(m.readings)}
	if m.notices != nil {
		cmds = append(cmds, waitForNotice(m.notices))
	}
	if !m.hasRoot {
		m.notice = "Root access not available"
		m.failed = true
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case readingMsg:
		m.reading = device.Reading(msg)
		return m, waitForReading(m.readings)
	case readingsClosedMsg:
		return m, nil
	case noticeMsg:
		m.notice = string(msg)
		m.failed = true
		return m, waitForNotice(m.notices)
	case reportMsg:
		m.handleReport(msg)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.done = true
		return m, tea.Quit
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.modes)) % len(m.modes)
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(m.modes)
	case "enter", " ":
		return m, m.start(m.modes[m.cursor], false)
	case "r":
		return m, m.start(mode.Normal, true)
	case "a":
		m.addGame()
	}

	return m, nil
}

func (m *Model) start(target mode.Mode, revert bool) tea.Cmd {
	if m.busy {
		return nil
	}
	if !m.hasRoot {
		m.notice = "Root access not available"
		m.failed = true
		return nil
	}

	m.busy = true
	ctx, applier := m.ctx, m.applier

	return func() tea.Msg {
		if revert {
			return reportMsg{report: applier.Revert(ctx), revert: true}
		}
		return reportMsg{report: applier.Apply(ctx, target)}
	}
}

func (m *Model) addGame() {
	m.games = append(m.games, fmt.Sprintf("Game %d", len(m.games)+1))
	m.notice = "Add game clicked"
	m.failed = false
}

// Games returns the games added during this session.
func (m *Model) Games() []string {
	return m.games
}

func (m *Model) handleReport(msg reportMsg) {
	m.busy = false
	m.current = msg.report.Mode
	m.status = msg.report.Mode.Status()

	if msg.revert {
		m.notice = "Reverted"
	} else {
		m.notice = "Mode: " + msg.report.Mode.String()
	}

	m.failed = !msg.report.Succeeded()
	if m.failed {
		m.notice += fmt.Sprintf(" (%d of %d commands failed", len(msg.report.Failed()), len(msg.report.Steps))
		if skipped := msg.report.Skipped(); skipped > 0 {
			m.notice += fmt.Sprintf(", %d skipped", skipped)
		}
		m.notice += ")"
	}
}

func (m *Model) View() string {
	if m.done {
		return "Exiting...\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("boostctl") + "\n\n")

	sb.WriteString(fmt.Sprintf("%s %s   %s %s MHz   %s %s°C\n\n",
		labelStyle.Render("Status:"), valueStyle.Render(m.status),
		labelStyle.Render("CPU:"), valueStyle.Render(m.reading.FrequencyString()),
		labelStyle.Render("Temp:"), valueStyle.Render(m.reading.TemperatureString()),
	))

	sb.WriteString(labelStyle.Render("Select Mode") + "\n")
	for i, md := range m.modes {
		prefix := "  "
		line := md.String()
		if md == m.current {
			line += " *"
		}
		if i == m.cursor {
			prefix = "> "
			line = selectedStyle.Render(line)
		}
		sb.WriteString(prefix + line + "\n")
	}

	sb.WriteString("\n" + labelStyle.Render("Your Games") + "\n")
	for _, game := range m.games {
		sb.WriteString("  " + game + "\n")
	}

	sb.WriteString("\n")
	switch {
	case m.busy:
		sb.WriteString(noticeStyle.Render("Applying...") + "\n")
	case m.notice != "" && m.failed:
		sb.WriteString(errorStyle.Render(m.notice) + "\n")
	case m.notice != "":
		sb.WriteString(noticeStyle.Render(m.notice) + "\n")
	default:
		sb.WriteString("\n")
	}

	sb.WriteString("\n" + helpStyle.Render("up/down or j/k to choose, enter to apply, r to revert, a to add a game, q to quit"))

	return sb.String()
}

// Current returns the mode most recently applied from the dashboard.
func (m *Model) Current() mode.Mode {
	return m.current
}

func waitForReading(readings <-chan device.Reading) tea.Cmd {
	return func() tea.Msg {
		reading, ok := <-readings
		if !ok {
			return readingsClosedMsg{}
		}
		return readingMsg(reading)
	}
}

func waitForNotice(notices <-chan string) tea.Cmd {
	return func() tea.Msg {
		notice, ok := <-notices
		if !ok {
			return nil
		}
		return noticeMsg(notice)
	}
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, model *Model) error {
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
