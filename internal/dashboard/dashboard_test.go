package dashboard_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/boostctl/internal/dashboard"
	"codeberg.org/mutker/boostctl/internal/device"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/shell"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	applied  []mode.Mode
	reverted int
	fail     bool
}

func (f *fakeApplier) report(m mode.Mode) mode.Report {
	report := mode.Report{Mode: m}
	for _, command := range m.Commands() {
		result := shell.Success("")
		if f.fail {
			result = shell.Failure(shell.KindLaunchFailed, nil)
		}
		report.Steps = append(report.Steps, mode.Step{Command: command, Result: result})
	}
	return report
}

func (f *fakeApplier) Apply(_ context.Context, m mode.Mode) mode.Report {
	f.applied = append(f.applied, m)
	return f.report(m)
}

func (f *fakeApplier) Revert(_ context.Context) mode.Report {
	f.reverted++
	return f.report(mode.Normal)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// send delivers msg to the model and returns the follow-up command.
func send(t *testing.T, m *dashboard.Model, msg tea.Msg) tea.Cmd {
	t.Helper()

	_, cmd := m.Update(msg)
	return cmd
}

func newModel(applier dashboard.Applier, hasRoot bool) (*dashboard.Model, chan device.Reading) {
	readings := make(chan device.Reading, 1)
	return dashboard.New(context.Background(), applier, readings, nil, hasRoot), readings
}

func TestInitialView(t *testing.T) {
	m, _ := newModel(&fakeApplier{}, true)

	view := m.View()
	assert.Contains(t, view, "NORMAL")
	assert.Contains(t, view, device.Unavailable)
	assert.Equal(t, mode.Normal, m.Current())
}

func TestReadingUpdatesView(t *testing.T) {
	m, readings := newModel(&fakeApplier{}, true)
	cmd := m.Init()
	require.NotNil(t, cmd)

	readings <- device.Reading{CPUFrequencyMHz: 2400, CPUFrequencyOK: true, TemperatureC: 36.5, TemperatureOK: true}
	next := send(t, m, firstMsg(t, cmd))
	assert.NotNil(t, next, "keeps waiting for readings")

	view := m.View()
	assert.Contains(t, view, "2400")
	assert.Contains(t, view, "36.5")
}

func firstMsg(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()

	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		require.NotEmpty(t, batch)
		return batch[0]()
	}
	return msg
}

func TestApplySelectedMode(t *testing.T) {
	applier := &fakeApplier{}
	m, _ := newModel(applier, true)

	// Normal is preselected; Diablo is two rows down.
	send(t, m, key("down"))
	send(t, m, key("j"))
	cmd := send(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Applying...")

	// A second request while busy is ignored.
	assert.Nil(t, send(t, m, key("enter")))

	send(t, m, cmd())
	assert.Equal(t, []mode.Mode{mode.Diablo}, applier.applied)
	assert.Equal(t, mode.Diablo, m.Current())

	view := m.View()
	assert.Contains(t, view, "DIABLO")
	assert.Contains(t, view, "Mode: Diablo")
}

func TestRevert(t *testing.T) {
	applier := &fakeApplier{}
	m, _ := newModel(applier, true)

	send(t, m, key("up"))
	send(t, m, cmdMsg(t, send(t, m, key("enter"))))
	assert.Equal(t, mode.BatterySaver, m.Current())

	send(t, m, cmdMsg(t, send(t, m, key("r"))))
	assert.Equal(t, 1, applier.reverted)
	assert.Equal(t, mode.Normal, m.Current())
	assert.Contains(t, m.View(), "Reverted")
}

func cmdMsg(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	return cmd()
}

func TestFailedStepsAreReported(t *testing.T) {
	applier := &fakeApplier{fail: true}
	m, _ := newModel(applier, true)

	send(t, m, cmdMsg(t, send(t, m, key("r"))))
	assert.Contains(t, m.View(), "(4 of 4 commands failed)")
}

func TestNoRootRefusesToApply(t *testing.T) {
	applier := &fakeApplier{}
	m, _ := newModel(applier, false)
	m.Init()

	assert.Nil(t, send(t, m, key("enter")))
	assert.Nil(t, send(t, m, key("r")))
	assert.Empty(t, applier.applied)
	assert.Zero(t, applier.reverted)
	assert.Contains(t, m.View(), "Root access not available")
}

func TestNotices(t *testing.T) {
	notices := make(chan string, 1)
	readings := make(chan device.Reading)
	m := dashboard.New(context.Background(), &fakeApplier{}, readings, notices, true)

	cmd := m.Init()
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	require.Len(t, batch, 2)

	notices <- "Exec error: permission denied"
	send(t, m, batch[1]())
	assert.Contains(t, m.View(), "Exec error: permission denied")
}

func TestQuit(t *testing.T) {
	m, _ := newModel(&fakeApplier{}, true)

	cmd := send(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Equal(t, "Exiting...\n", m.View())
}

func TestAddGame(t *testing.T) {
	m, _ := newModel(&fakeApplier{}, false)

	assert.Contains(t, m.View(), "Your Games")
	assert.Empty(t, m.Games())

	assert.Nil(t, send(t, m, key("a")))
	send(t, m, key("a"))

	assert.Equal(t, []string{"Game 1", "Game 2"}, m.Games())
	view := m.View()
	assert.Contains(t, view, "Game 1")
	assert.Contains(t, view, "Game 2")
	assert.Contains(t, view, "Add game clicked")
}
