// Package tui implements a live terminal dashboard of the supervisor's
// application and process catalogue: name and state per application
// and per process, refreshed once a second.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apcore/apcore/internal/supervisor"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

type tickMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	sup   *supervisor.Supervisor
	table table.Model
}

// New constructs a dashboard Model over sup.
func New(sup *supervisor.Supervisor) Model {
	columns := []table.Column{
		{Title: "App", Width: 20},
		{Title: "State", Width: 10},
		{Title: "Process", Width: 20},
		{Title: "Proc State", Width: 10},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(true), table.WithHeight(20))
	return Model{sup: sup, table: t}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.table.SetRows(m.rows())
		return m, tick()
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return headerStyle.Render("apcore — application supervisor") + "\n" + m.table.View() + "\n"
}

func (m Model) rows() []table.Row {
	var rows []table.Row
	for _, app := range m.sup.Apps() {
		procs := app.Processes()
		if len(procs) == 0 {
			rows = append(rows, table.Row{app.Name(), styledAppState(app.State().String()), "-", "-"})
			continue
		}
		for i, p := range procs {
			name := app.Name()
			state := app.State().String()
			if i > 0 {
				name, state = "", ""
			}
			rows = append(rows, table.Row{name, styledAppState(state), p.Name, styledProcState(app.ProcState(p.Name).String())})
		}
	}
	return rows
}

func styledAppState(s string) string {
	switch s {
	case "running":
		return runningStyle.Render(s)
	case "":
		return ""
	default:
		return stoppedStyle.Render(s)
	}
}

func styledProcState(s string) string {
	switch s {
	case "running":
		return runningStyle.Render(s)
	case "paused":
		return pausedStyle.Render(s)
	default:
		return stoppedStyle.Render(s)
	}
}

// Run launches the dashboard as a blocking full-screen program.
func Run(sup *supervisor.Supervisor) error {
	p := tea.NewProgram(New(sup), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
