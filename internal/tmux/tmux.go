// Package tmux provides a wrapper for tmux session and window operations
// via subprocess.
//
// The tmux server is an external system of record: any process can attach,
// detach, or destroy sessions behind our back. The wrapper therefore only
// queries and mutates named sessions and windows it is told about, never
// assumes exclusive ownership, and reports a vanished window as a normal,
// recoverable condition rather than a crash.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"ticketdeck/internal/constants"
)

// Common errors.
var (
	ErrTmuxNotInstalled   = errors.New("tmux binary not found in PATH")
	ErrNoServer           = errors.New("no tmux server running")
	ErrSessionExists      = errors.New("session already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrWindowNotFound     = errors.New("window not found")
	ErrInvalidSessionName = errors.New("invalid session name")
)

// validSessionNameRe validates session names to prevent shell injection
// and the cryptic failures tmux produces for names with dots or colons.
var validSessionNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateSessionName(name string) error {
	if name == "" || !validSessionNameRe.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidSessionName, name, validSessionNameRe.String())
	}
	return nil
}

// Tmux wraps tmux operations.
type Tmux struct {
	socketName string // tmux socket name (-L flag), empty = default socket
}

// New creates a Tmux wrapper on the default socket. The tmux binary being
// absent is fatal at construction: nothing downstream can function, so it
// surfaces immediately instead of failing on first use.
func New() (*Tmux, error) {
	if _, err := exec.LookPath("tmux"); err != nil {
		return nil, ErrTmuxNotInstalled
	}
	return &Tmux{}, nil
}

// NewWithSocket creates a Tmux wrapper on a named socket. This targets an
// isolated tmux server, separate from the user's default server. Used in
// tests to prevent session name collisions and keystroke leaks.
func NewWithSocket(socket string) (*Tmux, error) {
	if _, err := exec.LookPath("tmux"); err != nil {
		return nil, ErrTmuxNotInstalled
	}
	return &Tmux{socketName: socket}, nil
}

// run executes a tmux command and returns stdout. Every invocation carries
// the -u flag for UTF-8 support and a short deadline: tmux operations are
// local and fast, so a slow response means a wedged server, not a slow
// command.
func (t *Tmux) run(args ...string) (string, error) {
	allArgs := []string{"-u"}
	if t.socketName != "" {
		allArgs = append(allArgs, "-L", t.socketName)
	}
	allArgs = append(allArgs, args...)

	ctx, cancel := context.WithTimeout(context.Background(), constants.TmuxTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", allArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", t.wrapError(err, stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// wrapError maps tmux stderr to sentinel errors.
func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	if strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "error connecting to") ||
		strings.Contains(stderr, "no current target") ||
		strings.Contains(stderr, "server exited unexpectedly") {
		return ErrNoServer
	}
	if strings.Contains(stderr, "duplicate session") {
		return ErrSessionExists
	}
	if strings.Contains(stderr, "can't find window") ||
		strings.Contains(stderr, "window not found") {
		return ErrWindowNotFound
	}
	if strings.Contains(stderr, "session not found") ||
		strings.Contains(stderr, "can't find session") ||
		strings.Contains(stderr, "can't find pane") {
		return ErrSessionNotFound
	}

	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", args[0], stderr)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// NewSession creates a new detached tmux session whose first window is
// named firstWindow.
func (t *Tmux) NewSession(name, workDir, firstWindow string) error {
	if err := validateSessionName(name); err != nil {
		return err
	}
	args := []string{"new-session", "-d", "-s", name}
	if firstWindow != "" {
		args = append(args, "-n", firstWindow)
	}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	if _, err := t.run(args...); err != nil {
		return err
	}
	// tmux 3.3+ sets window-size=manual on detached sessions, which locks
	// the window at 80x24 even after a client attaches. Override to
	// "latest" so windows resize to the attaching client's terminal.
	_, _ = t.run("set-option", "-wt", name, "window-size", "latest")
	return nil
}

// HasSession checks whether a session exists. A missing server counts as
// "no sessions", not an error.
func (t *Tmux) HasSession(name string) (bool, error) {
	_, err := t.run("has-session", "-t", "="+name)
	if err != nil {
		if errors.Is(err, ErrNoServer) || errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		// has-session reports absence through its exit code with varying
		// messages across tmux versions; treat any stderr mentioning the
		// name as absence.
		if strings.Contains(err.Error(), name) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSessions returns the names of all sessions on this socket.
func (t *Tmux) ListSessions() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// KillSession destroys a session and everything in it.
func (t *Tmux) KillSession(name string) error {
	_, err := t.run("kill-session", "-t", "="+name)
	return err
}

// ListWindows returns the window names of a session in index order.
func (t *Tmux) ListWindows(session string) ([]string, error) {
	out, err := t.run("list-windows", "-t", "="+session, "-F", "#{window_name}")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// NewWindow creates a named window in a session without focusing it.
func (t *Tmux) NewWindow(session, name, workDir string) error {
	args := []string{"new-window", "-d", "-t", "=" + session, "-n", name}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	_, err := t.run(args...)
	return err
}

// EnsureWindows idempotently creates any of the named windows missing from
// the session, in the given order so window indexes stay deterministic.
// Returns the window targets keyed by name.
func (t *Tmux) EnsureWindows(session, workDir string, names []string) (map[string]string, error) {
	existing, err := t.ListWindows(session)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, w := range existing {
		have[w] = true
	}

	targets := make(map[string]string, len(names))
	for _, name := range names {
		if !have[name] {
			if err := t.NewWindow(session, name, workDir); err != nil {
				return nil, fmt.Errorf("creating window %s: %w", name, err)
			}
		}
		targets[name] = session + ":" + name
	}
	return targets, nil
}

// HasWindow checks whether a named window exists in a session.
func (t *Tmux) HasWindow(session, name string) (bool, error) {
	windows, err := t.ListWindows(session)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if w == name {
			return true, nil
		}
	}
	return false, nil
}

// KillWindow destroys a named window.
func (t *Tmux) KillWindow(session, name string) error {
	_, err := t.run("kill-window", "-t", session+":"+name)
	return err
}

// SendKeys sends literal text to a window target followed by Enter.
// Target is "session:window".
func (t *Tmux) SendKeys(target, keys string) error {
	_, err := t.run("send-keys", "-t", target, "-l", keys)
	if err != nil {
		return err
	}
	_, err = t.run("send-keys", "-t", target, "Enter")
	return err
}

// SendKeysRaw sends a key name (e.g. "C-c", "Enter") without literal mode.
func (t *Tmux) SendKeysRaw(target, keys string) error {
	_, err := t.run("send-keys", "-t", target, keys)
	return err
}

// CapturePane returns the last n lines of a window's visible pane plus
// scrollback.
func (t *Tmux) CapturePane(target string, lines int) (string, error) {
	return t.run("capture-pane", "-p", "-t", target, "-S", fmt.Sprintf("-%d", lines))
}

// SelectWindow makes the named window the session's active window.
func (t *Tmux) SelectWindow(session, name string) error {
	ok, err := t.HasWindow(session, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s:%s", ErrWindowNotFound, session, name)
	}
	_, err = t.run("select-window", "-t", session+":"+name)
	return err
}

// Attach replaces the current terminal with the tmux client, focused on
// the given session. Inside an existing tmux client it switches instead,
// since tmux refuses nested attaches.
func (t *Tmux) Attach(session string) error {
	args := []string{"-u"}
	if t.socketName != "" {
		args = append(args, "-L", t.socketName)
	}
	if os.Getenv("TMUX") != "" {
		args = append(args, "switch-client", "-t", "="+session)
	} else {
		args = append(args, "attach-session", "-t", "="+session)
	}

	cmd := exec.Command("tmux", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// PanePID returns the PID of the process running in a window's pane.
func (t *Tmux) PanePID(target string) (int, error) {
	out, err := t.run("display-message", "-p", "-t", target, "#{pane_pid}")
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(out, "%d", &pid); err != nil {
		return 0, fmt.Errorf("parsing pane pid %q: %w", out, err)
	}
	return pid, nil
}

// IsPaneDead reports whether the pane's process has exited (requires
// remain-on-exit; a missing pane also counts as dead).
func (t *Tmux) IsPaneDead(target string) bool {
	out, err := t.run("display-message", "-p", "-t", target, "#{pane_dead}")
	if err != nil {
		return true
	}
	return strings.TrimSpace(out) == "1"
}
