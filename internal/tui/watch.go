// Package tui renders the live watch view: a periodically refreshed table
// of every active ticket's server, database, build, test, and agent state.
//
// The view is strictly a reader. It loads the records other processes
// persist and re-reads them on a timer; it never probes, never mutates,
// and renders explicit staleness badges instead of trusting old data.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ticketdeck/internal/extract"
	"ticketdeck/internal/monitor"
	"ticketdeck/internal/orchestrator"
	"ticketdeck/internal/style"
	"ticketdeck/internal/ticket"
)

// row is one ticket's loaded state.
type row struct {
	ticket   *ticket.Ticket
	snap     *monitor.Snapshot
	sessions []orchestrator.AgentSession
}

type refreshMsg struct {
	rows []row
	err  error
}

type tickMsg time.Time

// Model is the bubbletea model for the watch view.
type Model struct {
	registry *ticket.Registry
	monitor  *monitor.Monitor
	orch     *orchestrator.Orchestrator
	interval time.Duration

	spinner spinner.Model
	rows    []row
	err     error
	loaded  bool
}

// NewModel builds the watch model. interval is how often the records are
// re-read from disk.
func NewModel(reg *ticket.Registry, mon *monitor.Monitor, orch *orchestrator.Orchestrator, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	return Model{
		registry: reg,
		monitor:  mon,
		orch:     orch,
		interval: interval,
		spinner:  sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh)
}

// refresh loads all records in one command so a render never observes a
// half-loaded row set.
func (m Model) refresh() tea.Msg {
	tickets, err := m.registry.ListActive()
	if err != nil {
		return refreshMsg{err: err}
	}

	rows := make([]row, 0, len(tickets))
	for _, t := range tickets {
		r := row{ticket: t}
		if r.snap, err = m.monitor.Snapshot(t); err != nil {
			return refreshMsg{err: err}
		}
		if r.sessions, err = m.orch.ActiveSessions(t); err != nil {
			return refreshMsg{err: err}
		}
		rows = append(rows, r)
	}
	return refreshMsg{rows: rows}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case refreshMsg:
		m.rows = msg.rows
		m.err = msg.err
		m.loaded = true
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })

	case tickMsg:
		return m, m.refresh

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(style.Bold.Render("ticketdeck") + " " + m.spinner.View() + "\n\n")

	if m.err != nil {
		b.WriteString(style.Error.Render("error: "+m.err.Error()) + "\n")
		return b.String()
	}
	if !m.loaded {
		b.WriteString(style.Dim.Render("loading...") + "\n")
		return b.String()
	}
	if len(m.rows) == 0 {
		b.WriteString(style.Dim.Render("no active tickets") + "\n")
		return b.String()
	}

	for _, r := range m.rows {
		b.WriteString(renderRow(r))
	}
	b.WriteString("\n" + style.Dim.Render("q to quit") + "\n")
	return b.String()
}

func renderRow(r row) string {
	var b strings.Builder
	b.WriteString(style.Bold.Render(r.ticket.ID))
	if r.ticket.Title != "" {
		b.WriteString(" " + style.Dim.Render(r.ticket.Title))
	}
	b.WriteString("\n")

	b.WriteString("  " + renderBar(r.snap) + "\n")
	b.WriteString("  " + renderChecks(r.snap) + "\n")

	for _, s := range r.sessions {
		b.WriteString("  " + renderSession(s) + "\n")
	}
	return b.String()
}

func renderBar(snap *monitor.Snapshot) string {
	if snap == nil || snap.Bar == nil {
		return style.Dim.Render("no status yet")
	}
	server := fmt.Sprintf("server %s %s", style.StateSymbol(string(snap.Bar.Server.State)), snap.Bar.Server.State)
	if snap.Bar.Server.Port != 0 {
		server += fmt.Sprintf(" :%d", snap.Bar.Server.Port)
	}
	db := fmt.Sprintf("db %s %s", style.StateSymbol(string(snap.Bar.Database.State)), snap.Bar.Database.State)

	line := server + "  " + db
	if snap.BarMeta.Stale {
		line += "  " + staleBadge(snap.BarMeta.Age)
	}
	return line
}

func renderChecks(snap *monitor.Snapshot) string {
	var parts []string
	if snap != nil && snap.Build != nil {
		sym := style.StateSymbol("passing")
		if !snap.Build.Success {
			sym = style.StateSymbol("failing")
		}
		part := fmt.Sprintf("build %s", sym)
		if snap.BuildMeta.Stale {
			part += " " + staleBadge(snap.BuildMeta.Age)
		}
		parts = append(parts, part)
	}
	if snap != nil && snap.Tests != nil {
		sym := style.StateSymbol("passing")
		if snap.Tests.Failed > 0 {
			sym = style.StateSymbol("failing")
		}
		part := fmt.Sprintf("tests %s %d/%d", sym, snap.Tests.Passed, snap.Tests.Passed+snap.Tests.Failed+snap.Tests.Skipped)
		if snap.TestsMeta.Stale {
			part += " " + staleBadge(snap.TestsMeta.Age)
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return style.Dim.Render("no build or test records")
	}
	return strings.Join(parts, "  ")
}

func renderSession(s orchestrator.AgentSession) string {
	label := s.Title
	if label == "" {
		label = shortID(s.ID)
	}
	line := fmt.Sprintf("%s %s %s", style.StateSymbol(string(s.Status)), label, renderProgress(s.Progress))
	return line
}

// renderProgress renders percent complete, with the unknown sentinel shown
// as a dash rather than 0%.
func renderProgress(pct int) string {
	if pct == extract.ProgressUnknown {
		return style.Dim.Render("--%")
	}
	return fmt.Sprintf("%d%%", pct)
}

func staleBadge(age time.Duration) string {
	return style.Warning.Render(fmt.Sprintf("(stale %s)", age.Round(time.Second)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run starts the watch program on the current terminal.
func Run(reg *ticket.Registry, mon *monitor.Monitor, orch *orchestrator.Orchestrator, interval time.Duration) error {
	p := tea.NewProgram(NewModel(reg, mon, orch, interval))
	_, err := p.Run()
	return err
}
