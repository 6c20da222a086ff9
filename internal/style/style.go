// Package style provides shared lipgloss styles for CLI output.
package style

import "github.com/charmbracelet/lipgloss"

var (
	// Bold highlights primary results ("created", "dispatched").
	Bold = lipgloss.NewStyle().Bold(true)

	// Dim de-emphasizes secondary detail (timestamps, hints).
	Dim = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	// Success renders healthy/passing indicators.
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	// Warning renders stale/degraded indicators.
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	// Error renders unhealthy/error indicators.
	Error = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// StateSymbol maps a service or agent state to a one-rune indicator.
// Degraded states get explicit symbols rather than silently rendering
// the last known value as if fresh.
func StateSymbol(state string) string {
	switch state {
	case "healthy", "completed", "passing", "active":
		return Success.Render("●")
	case "starting", "working":
		return Warning.Render("◐")
	case "unhealthy", "blocked", "failing":
		return Warning.Render("◑")
	case "error":
		return Error.Render("✗")
	case "stopped", "idle", "archived", "unknown":
		return Dim.Render("○")
	default:
		return Dim.Render("?")
	}
}
