// Package ticket defines the ticket domain model and its on-disk registry.
//
// A ticket is a unit of work bound to a git branch/worktree and a tmux
// session. Tickets are created by explicit user action and archived only
// by explicit user action; there is no time-based auto-archive.
package ticket

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"ticketdeck/internal/constants"
	"ticketdeck/internal/store"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
	StatusBlocked  Status = "blocked"
	StatusArchived Status = "archived"
)

// ErrNotFound is returned when no ticket record exists for an id.
var ErrNotFound = errors.New("ticket not found")

// Ticket is a development ticket tracked by ticketdeck.
type Ticket struct {
	// ID is the unique identifier, e.g. "IN-413".
	ID string `yaml:"id"`

	// Title is the human-readable summary.
	Title string `yaml:"title"`

	// Branch is the git branch, e.g. "feature/IN-413-add-api".
	Branch string `yaml:"branch"`

	// WorktreePath is the git worktree checkout for the branch.
	WorktreePath string `yaml:"worktree_path"`

	// TmuxSession is the session holding the agent/server/tests windows.
	TmuxSession string `yaml:"tmux_session"`

	Status    Status    `yaml:"status"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// sessionNameSanitizer strips characters tmux session names cannot carry.
var sessionNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SessionName derives the tmux session name for a ticket id.
func SessionName(id string) string {
	return constants.SessionPrefix + sessionNameSanitizer.ReplaceAllString(id, "-")
}

// Registry manages ticket records under the control root. Each ticket owns
// a directory <root>/tickets/<id>/ holding ticket.yaml alongside the
// status and session records other components write there.
type Registry struct {
	root  string
	store *store.Store
}

// NewRegistry creates a registry rooted at the control directory.
func NewRegistry(root string, s *store.Store) *Registry {
	return &Registry{root: root, store: s}
}

// Dir returns the per-ticket control directory.
func (r *Registry) Dir(id string) string {
	return filepath.Join(r.root, "tickets", id)
}

func (r *Registry) ticketPath(id string) string {
	return filepath.Join(r.Dir(id), constants.TicketFile)
}

// Get loads a ticket by id. The staleness of the record is irrelevant for
// tickets (they change only on user action), so only the value is returned.
func (r *Registry) Get(id string) (*Ticket, error) {
	var t Ticket
	if _, err := r.store.Read(r.ticketPath(id), &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &t, nil
}

// Exists reports whether a ticket record exists for id.
func (r *Registry) Exists(id string) bool {
	_, err := r.Get(id)
	return err == nil
}

// Save persists a ticket record, bumping its updated timestamp.
func (r *Registry) Save(t *Ticket) error {
	t.UpdatedAt = time.Now().UTC()
	return r.store.Write(r.ticketPath(t.ID), t)
}

// List returns all tickets sorted by id. Records that fail to load are
// skipped: one corrupt ticket must not take down the listing.
func (r *Registry) List() ([]*Ticket, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "tickets"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickets []*Ticket
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := r.Get(e.Name())
		if err != nil {
			continue
		}
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	return tickets, nil
}

// ListActive returns all tickets except archived ones.
func (r *Registry) ListActive() ([]*Ticket, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	var active []*Ticket
	for _, t := range all {
		if t.Status != StatusArchived {
			active = append(active, t)
		}
	}
	return active, nil
}
