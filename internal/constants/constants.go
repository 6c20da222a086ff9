// Package constants defines shared constant values used throughout ticketdeck.
// Centralizing these magic strings and timing defaults keeps the CLI, the
// scheduler, and the monitor agreeing on the same numbers.
package constants

import "time"

// Timing constants for scheduling and health checks. Each of these is a
// compiled-in default; config.Config carries the per-install overrides.
const (
	// PollInterval is the default scheduler tick interval.
	PollInterval = 5 * time.Second

	// ProbeTimeout is the default deadline for a single health probe
	// (HTTP reachability or database dial). A probe that exceeds it is
	// resolved to unhealthy/timeout, never left hanging.
	ProbeTimeout = 2 * time.Second

	// StalenessThreshold is how old a persisted record may be before
	// readers must flag it as stale rather than presenting it as current.
	StalenessThreshold = 10 * time.Second

	// BootGraceWindow is how long after a server start a failed probe is
	// tolerated before the service is demoted from starting to unhealthy.
	// Prevents flapping on slow-booting dev servers.
	BootGraceWindow = 15 * time.Second

	// TmuxTimeout bounds every tmux subprocess invocation. tmux operations
	// are local and fast; anything slower than this is a wedged server.
	TmuxTimeout = 5 * time.Second

	// AgentLaunchDelay is the pause between starting an agent window and
	// sending the initial prompt, giving the agent process time to come up.
	AgentLaunchDelay = 1 * time.Second

	// CaptureLines is how many lines of scrollback SampleAgentOutput reads
	// from an agent window on each scheduler tick.
	CaptureLines = 100
)

// WindowRoles lists the window roles of a ticket session, in creation
// order. The index of a role in this slice is its tmux window index, which
// callers rely on when focusing a window by role.
var WindowRoles = []string{"agent", "server", "tests"}

// SessionPrefix namespaces every tmux session ticketdeck creates, so that
// orphan cleanup and listing never touch a developer's personal sessions.
const SessionPrefix = "td-"

// File names under a ticket's control directory.
const (
	TicketFile        = "ticket.yaml"
	StatusBarFile     = "status-bar.json"
	AgentSessionsFile = "agent-sessions.json"
	BuildStatusFile   = "build-status.json"
	TestStatusFile    = "test-status.json"
)

// ControlDirName is the control tree root under $HOME, unless overridden
// by config or the TICKETDECK_HOME environment variable.
const ControlDirName = ".ticketdeck"
