package orchestrator

import (
	"path/filepath"
	"time"

	"ticketdeck/internal/constants"
	"ticketdeck/internal/extract"
)

// AgentStatus is the lifecycle state of one agent session.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentWorking   AgentStatus = "working"
	AgentWaiting   AgentStatus = "waiting"
	AgentCompleted AgentStatus = "completed"
	AgentError     AgentStatus = "error"

	// AgentArchived is terminal. Archiving is the only removal path for a
	// session, and an archived session never transitions again; the record
	// stays in the list as history.
	AgentArchived AgentStatus = "archived"
)

// AgentSession is one coding-agent run inside a ticket's tmux session.
// Each session owns a dedicated window named after its id, so archiving a
// session can destroy its window without touching the fixed role windows.
type AgentSession struct {
	// ID is a generated uuid, stable for the life of the session.
	ID string `json:"id"`

	// Ticket is the owning ticket id.
	Ticket string `json:"ticket"`

	// Title is the optional human-readable task description.
	Title string `json:"title,omitempty"`

	// TodoID links the session to a specific TODO entry when it was
	// started for one.
	TodoID string `json:"todo_id,omitempty"`

	// Window is the tmux window this session runs in.
	Window string `json:"window"`

	Status AgentStatus `json:"status"`

	// Todos is the last parsed TODO list from the session's output. Each
	// sample replaces the list wholesale; there is no merging with earlier
	// parses.
	Todos []extract.TodoEntry `json:"todos,omitempty"`

	// Progress is the completion percent derived from Todos, or
	// extract.ProgressUnknown when no TODOs have been parsed.
	Progress int `json:"progress_percent"`

	StartedAt  time.Time `json:"started_at"`
	LastActive time.Time `json:"last_active"`
}

// Archived reports whether the session has reached its terminal state.
func (s *AgentSession) Archived() bool {
	return s.Status == AgentArchived
}

// windowName derives the session's tmux window from its id. Deterministic,
// and distinct from every fixed role window.
func windowName(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "agent-" + short
}

func sessionsPath(ticketDir string) string {
	return filepath.Join(ticketDir, constants.AgentSessionsFile)
}
