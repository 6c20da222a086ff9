package monitor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"ticketdeck/internal/store"
	"ticketdeck/internal/ticket"
)

// fakeMux is an in-memory Multiplexer.
type fakeMux struct {
	mu      sync.Mutex
	windows map[string]bool
	capture string
	sent    []string
	err     error
}

func newFakeMux() *fakeMux {
	return &fakeMux{windows: map[string]bool{"server": true}}
}

func (f *fakeMux) HasWindow(session, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[name], f.err
}

func (f *fakeMux) CapturePane(target string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture, f.err
}

func (f *fakeMux) SendKeys(target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func testMonitor(t *testing.T, mux Multiplexer, opts Options) (*Monitor, *ticket.Ticket) {
	t.Helper()
	s := store.New(time.Minute)
	reg := ticket.NewRegistry(t.TempDir(), s)
	tk := &ticket.Ticket{ID: "IN-1", TmuxSession: "td-IN-1", Status: ticket.StatusActive}
	if err := reg.Save(tk); err != nil {
		t.Fatal(err)
	}
	return New(reg, s, mux, nil, opts), tk
}

func TestStartServerRecordsStarting(t *testing.T) {
	mux := newFakeMux()
	m, tk := testMonitor(t, mux, Options{ServerCommand: "npm run dev"})

	if err := m.StartServer(tk); err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	if len(mux.sent) != 1 || mux.sent[0] != "npm run dev" {
		t.Errorf("sent = %v", mux.sent)
	}

	bar := readBar(t, m, tk)
	if bar.Server.State != StateStarting {
		t.Errorf("state = %q, want starting", bar.Server.State)
	}
	if bar.Server.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestStartServerWithoutCommand(t *testing.T) {
	m, tk := testMonitor(t, newFakeMux(), Options{})
	if err := m.StartServer(tk); err == nil {
		t.Error("expected error with no server command")
	}
}

func TestProbeHealthyViaReadyLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	port := serverPort(t, srv)

	mux := newFakeMux()
	mux.capture = strings.Join([]string{
		"> dev",
		fmt.Sprintf("Server listening on http://localhost:%s", port),
	}, "\n")

	m, tk := testMonitor(t, mux, Options{ProbeTimeout: 2 * time.Second})
	st := m.probeServer(context.Background(), tk)

	if st.State != StateHealthy {
		t.Fatalf("state = %q (%s), want healthy", st.State, st.Error)
	}
	if fmt.Sprint(st.Port) != port {
		t.Errorf("port = %d, want %s", st.Port, port)
	}
}

func TestProbeErrorLineWins(t *testing.T) {
	mux := newFakeMux()
	mux.capture = "Server listening on http://localhost:3000\nError: listen EADDRINUSE :::3000"

	m, tk := testMonitor(t, mux, Options{})
	st := m.probeServer(context.Background(), tk)

	if st.State != StateError {
		t.Errorf("state = %q, want error", st.State)
	}
	if st.Error == "" {
		t.Error("expected error detail from the matched line")
	}
}

func TestProbeWindowGoneMeansStopped(t *testing.T) {
	mux := newFakeMux()
	mux.windows = map[string]bool{}

	m, tk := testMonitor(t, mux, Options{})
	st := m.probeServer(context.Background(), tk)
	if st.State != StateStopped {
		t.Errorf("state = %q, want stopped", st.State)
	}
}

func TestProbeTimeoutIsContained(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	mux := newFakeMux()
	m, tk := testMonitor(t, mux, Options{
		ProbeTimeout: 50 * time.Millisecond,
		HealthURL:    srv.URL,
	})

	start := time.Now()
	st := m.probeServer(context.Background(), tk)
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("probe took %v, want bounded by the probe timeout", elapsed)
	}
	if st.State != StateUnhealthy {
		t.Errorf("state = %q, want unhealthy", st.State)
	}
	if st.Error != "timeout" {
		t.Errorf("error = %q, want timeout", st.Error)
	}
}

func TestBootGraceKeepsStarting(t *testing.T) {
	mux := newFakeMux()
	mux.capture = "still compiling..."

	m, tk := testMonitor(t, mux, Options{BootGrace: 15 * time.Second})

	base := time.Now().UTC()
	m.now = func() time.Time { return base }
	if err := m.updateServer(tk, ServiceStatus{
		State:     StateStarting,
		StartedAt: base,
		LastCheck: base,
	}); err != nil {
		t.Fatal(err)
	}

	// Within the grace window a failed probe stays starting.
	m.now = func() time.Time { return base.Add(5 * time.Second) }
	st := m.probeServer(context.Background(), tk)
	if st.State != StateStarting {
		t.Errorf("state inside grace = %q, want starting", st.State)
	}

	// Past the window the same evidence demotes to unhealthy.
	m.now = func() time.Time { return base.Add(20 * time.Second) }
	st = m.probeServer(context.Background(), tk)
	if st.State != StateUnhealthy {
		t.Errorf("state after grace = %q, want unhealthy", st.State)
	}
}

func TestDatabaseProbeUnreachable(t *testing.T) {
	// Grab a port that is definitely closed.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	m, _ := testMonitor(t, newFakeMux(), Options{
		ProbeTimeout: 200 * time.Millisecond,
		DBHost:       "127.0.0.1",
		DBPort:       addr.Port,
	})
	st := m.probeDatabase(context.Background())
	if st.State != StateUnhealthy {
		t.Errorf("state = %q, want unhealthy", st.State)
	}
}

func TestDatabaseProbeNotConfigured(t *testing.T) {
	m, _ := testMonitor(t, newFakeMux(), Options{})
	if st := m.probeDatabase(context.Background()); st.State != StateStopped {
		t.Errorf("state = %q, want stopped", st.State)
	}
}

func TestUpdateBarMergesHalves(t *testing.T) {
	m, tk := testMonitor(t, newFakeMux(), Options{})

	if err := m.updateServer(tk, ServiceStatus{State: StateHealthy}); err != nil {
		t.Fatal(err)
	}
	if err := m.updateDatabase(tk, ServiceStatus{State: StateUnhealthy, Error: "timeout"}); err != nil {
		t.Fatal(err)
	}

	bar := readBar(t, m, tk)
	if bar.Server.State != StateHealthy {
		t.Errorf("server half clobbered: %q", bar.Server.State)
	}
	if bar.Database.State != StateUnhealthy {
		t.Errorf("database half = %q", bar.Database.State)
	}
	if bar.Ticket != tk.ID {
		t.Errorf("ticket = %q", bar.Ticket)
	}
}

func TestSnapshotToleratesMissingRecords(t *testing.T) {
	m, tk := testMonitor(t, newFakeMux(), Options{})

	snap, err := m.Snapshot(tk)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Bar != nil || snap.Build != nil || snap.Tests != nil {
		t.Errorf("expected all-nil snapshot, got %+v", snap)
	}
}

func readBar(t *testing.T, m *Monitor, tk *ticket.Ticket) *StatusBar {
	t.Helper()
	bar, _, err := readOptional[StatusBar](m.store, statusBarPath(m.registry.Dir(tk.ID)))
	if err != nil {
		t.Fatal(err)
	}
	if bar == nil {
		t.Fatal("no status bar record written")
	}
	return bar
}

func serverPort(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u.Port()
}
