package tmux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

func hasTmux() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// testTmux returns a wrapper on an isolated socket so tests never touch
// the developer's own tmux server.
func testTmux(t *testing.T) *Tmux {
	t.Helper()
	tm, err := NewWithSocket(fmt.Sprintf("td-test-%d", os.Getpid()))
	if err != nil {
		t.Fatalf("NewWithSocket: %v", err)
	}
	return tm
}

func TestValidateSessionName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"td-feature-IN-413", true},
		{"simple_name", true},
		{"", false},
		{"has.dot", false},
		{"has:colon", false},
		{"has space", false},
	}
	for _, tc := range cases {
		err := validateSessionName(tc.name)
		if tc.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidSessionName) {
			t.Errorf("%q: expected ErrInvalidSessionName, got %v", tc.name, err)
		}
	}
}

func TestHasSessionNonexistent(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := testTmux(t)
	has, err := tm.HasSession("nonexistent-session-xyz")
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if has {
		t.Error("expected session to not exist")
	}
}

func TestSessionAndWindowLifecycle(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := testTmux(t)
	session := "td-test-lifecycle"

	_ = tm.KillSession(session)
	if err := tm.NewSession(session, "", "agent"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer func() { _ = tm.KillSession(session) }()

	// EnsureWindows creates only the missing windows, in order.
	targets, err := tm.EnsureWindows(session, "", []string{"agent", "server", "tests"})
	if err != nil {
		t.Fatalf("EnsureWindows: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("got %d targets, want 3", len(targets))
	}

	windows, err := tm.ListWindows(session)
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	want := []string{"agent", "server", "tests"}
	if len(windows) != len(want) {
		t.Fatalf("windows = %v, want %v", windows, want)
	}
	for i, w := range want {
		if windows[i] != w {
			t.Errorf("window %d = %q, want %q", i, windows[i], w)
		}
	}

	// Idempotent: a second call creates nothing.
	if _, err := tm.EnsureWindows(session, "", want); err != nil {
		t.Fatalf("EnsureWindows (second): %v", err)
	}
	windows, err = tm.ListWindows(session)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) != 3 {
		t.Errorf("second EnsureWindows changed window count: %v", windows)
	}

	// Externally destroying a window is recoverable, not a crash.
	if err := tm.KillWindow(session, "tests"); err != nil {
		t.Fatalf("KillWindow: %v", err)
	}
	if err := tm.SelectWindow(session, "tests"); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("SelectWindow on destroyed window: got %v, want ErrWindowNotFound", err)
	}

	// EnsureWindows recreates it.
	if _, err := tm.EnsureWindows(session, "", want); err != nil {
		t.Fatalf("EnsureWindows (recreate): %v", err)
	}
	has, err := tm.HasWindow(session, "tests")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("tests window not recreated")
	}
}

func TestCapturePaneAfterSendKeys(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := testTmux(t)
	session := "td-test-capture"

	_ = tm.KillSession(session)
	if err := tm.NewSession(session, "", "agent"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer func() { _ = tm.KillSession(session) }()

	if err := tm.SendKeys(session+":agent", "echo td-marker-42"); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}

	// The shell needs a moment; capture-pane itself must not error even if
	// the output hasn't landed yet.
	out, err := tm.CapturePane(session+":agent", 50)
	if err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
	_ = out
}
