// Package orchestrator maps tickets to tmux sessions and agent sessions to
// windows, and keeps the shared on-disk records in step with both.
//
// tmux is a shared external system: sessions and windows can vanish behind
// our back. Every operation therefore re-checks what actually exists and
// repairs what it can (a missing role window is recreated, not crashed on),
// and every mutation of the agent session list happens under the record
// lock so concurrent CLI invocations never interleave read-modify-write.
package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ticketdeck/internal/constants"
	"ticketdeck/internal/extract"
	"ticketdeck/internal/store"
	"ticketdeck/internal/ticket"
)

// Common errors.
var (
	ErrDuplicateTicket = errors.New("ticket already exists")
	ErrTicketArchived  = errors.New("ticket is archived")
	ErrSessionNotFound = errors.New("agent session not found")
	ErrUnknownRole     = errors.New("unknown window role")
)

// Multiplexer is the slice of the tmux wrapper the orchestrator needs.
// *tmux.Tmux satisfies it; tests substitute fakes.
type Multiplexer interface {
	NewSession(name, workDir, firstWindow string) error
	HasSession(name string) (bool, error)
	KillSession(name string) error
	EnsureWindows(session, workDir string, names []string) (map[string]string, error)
	NewWindow(session, name, workDir string) error
	KillWindow(session, name string) error
	SelectWindow(session, name string) error
	SendKeys(target, text string) error
	CapturePane(target string, lines int) (string, error)
}

// Worktrees is the slice of the git wrapper the orchestrator needs.
// *git.Git satisfies it. A nil Worktrees disables worktree management,
// leaving tickets bound to whatever directory the caller chose.
type Worktrees interface {
	CreateWorktree(worktreeRoot, branch string) (string, error)
	RemoveWorktree(path string, force bool) error
}

// Options configures ticket and agent session creation.
type Options struct {
	// WorktreeRoot is where per-ticket worktrees are placed.
	WorktreeRoot string

	// AgentCommand launches the coding agent in a session window. The
	// session id is appended as "--session-id <id>". Empty leaves the
	// window as a plain shell.
	AgentCommand string
}

// Orchestrator coordinates tickets, tmux, worktrees, and the persisted
// agent session lists.
type Orchestrator struct {
	registry *ticket.Registry
	store    *store.Store
	mux      Multiplexer
	trees    Worktrees
	parser   *extract.TodoParser
	opts     Options

	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator. The parser may be nil, in which case the
// compiled-in TODO patterns are used.
func New(reg *ticket.Registry, s *store.Store, mux Multiplexer, trees Worktrees, parser *extract.TodoParser, opts Options) *Orchestrator {
	if parser == nil {
		parser = extract.MustTodoParser()
	}
	return &Orchestrator{
		registry: reg,
		store:    s,
		mux:      mux,
		trees:    trees,
		parser:   parser,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateTicket registers a new ticket: a branch worktree when worktree
// management is enabled, a tmux session with the fixed role windows, and
// the persisted ticket record. Creating an id that already has a record is
// an error; tickets are never silently recreated.
func (o *Orchestrator) CreateTicket(id, title, branch string) (*ticket.Ticket, error) {
	if id == "" {
		return nil, errors.New("ticket id is required")
	}
	if o.registry.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTicket, id)
	}
	if branch == "" {
		branch = "feature/" + id
	}

	t := &ticket.Ticket{
		ID:          id,
		Title:       title,
		Branch:      branch,
		TmuxSession: ticket.SessionName(id),
		Status:      ticket.StatusActive,
		CreatedAt:   o.now().UTC(),
	}

	if o.trees != nil {
		path, err := o.trees.CreateWorktree(o.opts.WorktreeRoot, branch)
		if err != nil {
			return nil, fmt.Errorf("creating worktree for %s: %w", id, err)
		}
		t.WorktreePath = path
	}

	if err := o.EnsureTicketSession(t); err != nil {
		return nil, err
	}
	if err := o.registry.Save(t); err != nil {
		return nil, err
	}
	return t, nil
}

// EnsureTicketSession makes the ticket's tmux session exist with all fixed
// role windows present, creating whatever is missing. Extra windows (agent
// session windows, anything the user opened) are left alone.
func (o *Orchestrator) EnsureTicketSession(t *ticket.Ticket) error {
	has, err := o.mux.HasSession(t.TmuxSession)
	if err != nil {
		return err
	}
	if !has {
		if err := o.mux.NewSession(t.TmuxSession, t.WorktreePath, constants.WindowRoles[0]); err != nil {
			return fmt.Errorf("creating session for %s: %w", t.ID, err)
		}
	}
	if _, err := o.mux.EnsureWindows(t.TmuxSession, t.WorktreePath, constants.WindowRoles); err != nil {
		return fmt.Errorf("ensuring windows for %s: %w", t.ID, err)
	}
	return nil
}

// FocusWindow selects one of the fixed role windows. A window someone
// destroyed surfaces as tmux.ErrWindowNotFound; recreating it is the
// caller's decision, made explicit through EnsureTicketSession, never
// something focus does behind their back.
func (o *Orchestrator) FocusWindow(t *ticket.Ticket, role string) error {
	if !validRole(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return o.mux.SelectWindow(t.TmuxSession, role)
}

func validRole(role string) bool {
	for _, r := range constants.WindowRoles {
		if r == role {
			return true
		}
	}
	return false
}

// StartAgentSession launches a new agent in its own window of the ticket's
// tmux session and appends the session record to the persisted list.
func (o *Orchestrator) StartAgentSession(t *ticket.Ticket, title, todoID string) (*AgentSession, error) {
	if t.Status == ticket.StatusArchived {
		return nil, fmt.Errorf("%w: %s", ErrTicketArchived, t.ID)
	}
	if err := o.EnsureTicketSession(t); err != nil {
		return nil, err
	}

	now := o.now().UTC()
	sess := &AgentSession{
		ID:         o.newID(),
		Ticket:     t.ID,
		Title:      title,
		TodoID:     todoID,
		Status:     AgentWorking,
		Progress:   extract.ProgressUnknown,
		StartedAt:  now,
		LastActive: now,
	}
	sess.Window = windowName(sess.ID)

	if err := o.mux.NewWindow(t.TmuxSession, sess.Window, t.WorktreePath); err != nil {
		return nil, fmt.Errorf("creating agent window: %w", err)
	}
	if o.opts.AgentCommand != "" {
		target := t.TmuxSession + ":" + sess.Window
		cmd := fmt.Sprintf("%s --session-id %s", o.opts.AgentCommand, sess.ID)
		if err := o.mux.SendKeys(target, cmd); err != nil {
			return nil, fmt.Errorf("launching agent: %w", err)
		}
	}

	err := o.mutateSessions(t, func(list []AgentSession) ([]AgentSession, error) {
		return append(list, *sess), nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SampleAgentOutput captures the session window's recent output, reparses
// the TODO list from it, and replaces the session's list wholesale. The
// parse is the only source of TODO state; stale entries from a previous
// sample never survive a successful parse.
func (o *Orchestrator) SampleAgentOutput(t *ticket.Ticket, sessionID string) (*AgentSession, error) {
	var updated *AgentSession
	err := o.mutateSessions(t, func(list []AgentSession) ([]AgentSession, error) {
		i := findSession(list, sessionID)
		if i < 0 || list[i].Archived() {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}

		target := t.TmuxSession + ":" + list[i].Window
		out, err := o.mux.CapturePane(target, constants.CaptureLines)
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", target, err)
		}

		todos := o.parser.Parse(out)
		sess := &list[i]
		sess.Todos = todos
		sess.Progress = extract.Progress(todos)
		if len(todos) > 0 {
			sess.LastActive = o.now().UTC()
		}
		if sess.Progress == 100 {
			sess.Status = AgentCompleted
		}

		cp := *sess
		updated = &cp
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ArchiveSession marks an agent session archived and destroys its window.
// Archiving is idempotent and terminal; the record itself is never removed
// from the list.
func (o *Orchestrator) ArchiveSession(t *ticket.Ticket, sessionID string) error {
	return o.mutateSessions(t, func(list []AgentSession) ([]AgentSession, error) {
		i := findSession(list, sessionID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		if list[i].Archived() {
			return list, nil
		}
		// Session windows are namespaced by id, so this can never destroy
		// a fixed role window.
		_ = o.mux.KillWindow(t.TmuxSession, list[i].Window)
		list[i].Status = AgentArchived
		return list, nil
	})
}

// ArchiveTicket marks a ticket archived, tears down its tmux session, and
// optionally removes its worktree. The ticket record and its agent session
// history are retained; archived is terminal, not deleted.
func (o *Orchestrator) ArchiveTicket(t *ticket.Ticket, removeWorktree bool) error {
	if t.Status == ticket.StatusArchived {
		return nil
	}
	t.Status = ticket.StatusArchived
	if err := o.registry.Save(t); err != nil {
		return err
	}

	// The session may already be gone; that is fine.
	_ = o.mux.KillSession(t.TmuxSession)

	if removeWorktree && o.trees != nil && t.WorktreePath != "" {
		if err := o.trees.RemoveWorktree(t.WorktreePath, true); err != nil {
			return fmt.Errorf("removing worktree for %s: %w", t.ID, err)
		}
	}
	return nil
}

// Sessions returns the ticket's full agent session list, archived entries
// included, with the record's freshness.
func (o *Orchestrator) Sessions(t *ticket.Ticket) ([]AgentSession, store.Meta, error) {
	path := sessionsPath(o.registry.Dir(t.ID))
	var list []AgentSession
	meta, err := o.store.Read(path, &list)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.Meta{}, nil
		}
		return nil, store.Meta{}, err
	}
	return list, meta, nil
}

// ActiveSessions returns the non-archived sessions.
func (o *Orchestrator) ActiveSessions(t *ticket.Ticket) ([]AgentSession, error) {
	all, _, err := o.Sessions(t)
	if err != nil {
		return nil, err
	}
	var active []AgentSession
	for _, s := range all {
		if !s.Archived() {
			active = append(active, s)
		}
	}
	return active, nil
}

// mutateSessions runs a read-modify-write of the agent session list under
// the record lock. A corrupt list is treated as empty; the store has
// already preserved the bad file.
func (o *Orchestrator) mutateSessions(t *ticket.Ticket, fn func([]AgentSession) ([]AgentSession, error)) error {
	path := sessionsPath(o.registry.Dir(t.ID))
	return o.store.WithLock(path, func() error {
		var list []AgentSession
		if _, err := o.store.Read(path, &list); err != nil {
			if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrCorrupt) {
				return err
			}
			list = nil
		}
		next, err := fn(list)
		if err != nil {
			return err
		}
		return o.store.Write(path, next)
	})
}

func findSession(list []AgentSession, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
