// Package monitor probes the health of a ticket's dev server and database
// and persists the results for other processes to render.
//
// Probes are cheap and frequently wrong in boring ways (server still
// booting, database not configured), so every outcome resolves to a
// ServiceState within the probe timeout. A hung endpoint becomes
// unhealthy/timeout; it never wedges the caller.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"ticketdeck/internal/constants"
	"ticketdeck/internal/extract"
	"ticketdeck/internal/store"
	"ticketdeck/internal/ticket"
)

// Multiplexer is the slice of the tmux wrapper the monitor needs.
// *tmux.Tmux satisfies it; tests substitute fakes.
type Multiplexer interface {
	HasWindow(session, name string) (bool, error)
	CapturePane(target string, lines int) (string, error)
	SendKeys(target, text string) error
}

// Options configures probe behavior. Zero durations fall back to the
// compiled-in defaults.
type Options struct {
	ProbeTimeout time.Duration
	BootGrace    time.Duration

	// ServerCommand is sent to the server window by StartServer.
	ServerCommand string

	// HealthURL overrides the URL derived from the server's ready line.
	HealthURL string

	// Database endpoint. Empty host disables the database probe.
	DBHost string
	DBPort int

	// DBDSN enables a driver-level ping on top of the TCP dial.
	DBDSN string
}

// Monitor runs health probes for tickets and records the outcomes through
// the store.
type Monitor struct {
	registry *ticket.Registry
	store    *store.Store
	mux      Multiplexer
	matcher  *extract.LogMatcher
	opts     Options

	client *http.Client

	// now is stubbed in tests to exercise the boot grace boundary.
	now func() time.Time
}

// New creates a Monitor. The matcher may be nil, in which case the
// compiled-in log patterns are used.
func New(reg *ticket.Registry, s *store.Store, mux Multiplexer, matcher *extract.LogMatcher, opts Options) *Monitor {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = constants.ProbeTimeout
	}
	if opts.BootGrace <= 0 {
		opts.BootGrace = constants.BootGraceWindow
	}
	if matcher == nil {
		matcher = extract.MustLogMatcher()
	}
	return &Monitor{
		registry: reg,
		store:    s,
		mux:      mux,
		matcher:  matcher,
		opts:     opts,
		client:   &http.Client{Timeout: opts.ProbeTimeout},
		now:      time.Now,
	}
}

// StartServer launches the configured server command in the ticket's
// server window and records the service as starting. Reaching healthy is
// the probe's job, not StartServer's.
func (m *Monitor) StartServer(t *ticket.Ticket) error {
	if m.opts.ServerCommand == "" {
		return errors.New("no server command configured")
	}
	target := t.TmuxSession + ":server"
	if err := m.mux.SendKeys(target, m.opts.ServerCommand); err != nil {
		return fmt.Errorf("starting server for %s: %w", t.ID, err)
	}

	now := m.now().UTC()
	return m.updateServer(t, ServiceStatus{
		State:     StateStarting,
		StartedAt: now,
		LastCheck: now,
	})
}

// CheckServer probes the ticket's server asynchronously. It returns
// immediately; the probe runs on its own goroutine and records its result
// through the store. A probe that overruns is bounded by the probe
// timeout, so a hung endpoint can never delay the caller's next tick.
func (m *Monitor) CheckServer(ctx context.Context, t *ticket.Ticket) {
	go func() {
		st := m.probeServer(ctx, t)
		_ = m.updateServer(t, st)
	}()
}

// CheckDatabase probes the configured database asynchronously, mirroring
// CheckServer.
func (m *Monitor) CheckDatabase(ctx context.Context, t *ticket.Ticket) {
	go func() {
		st := m.probeDatabase(ctx)
		_ = m.updateDatabase(t, st)
	}()
}

// probeServer runs one synchronous server probe and returns the resulting
// status. Evidence comes from the tmux window first (existence, then log
// output), and only then from the network.
func (m *Monitor) probeServer(ctx context.Context, t *ticket.Ticket) ServiceStatus {
	prev := m.currentServer(t)
	st := ServiceStatus{
		State:     StateStopped,
		StartedAt: prev.StartedAt,
		LastCheck: m.now().UTC(),
	}

	has, err := m.mux.HasWindow(t.TmuxSession, "server")
	if err != nil {
		st.State = StateError
		st.Error = err.Error()
		return st
	}
	if !has {
		return st
	}

	out, err := m.mux.CapturePane(t.TmuxSession+":server", constants.CaptureLines)
	if err != nil {
		st.State = StateError
		st.Error = err.Error()
		return st
	}

	// The most recent classified line in the capture window decides.
	var last extract.Match
	var classified bool
	for _, match := range m.matcher.ScanLines(out) {
		last = match
		classified = true
	}
	if classified && last.Tag == extract.TagError {
		st.State = StateError
		st.Error = last.Value
		return st
	}

	st.Port = prev.Port
	if classified && last.Tag == extract.TagReady {
		if port, err := strconv.Atoi(last.Value); err == nil {
			st.Port = port
		}
	}

	url := m.opts.HealthURL
	if url == "" {
		if st.Port == 0 {
			// No ready line yet and nothing to probe.
			return m.graceOrUnhealthy(prev, st, "no ready line observed")
		}
		url = fmt.Sprintf("http://localhost:%d/", st.Port)
	}
	st.URL = url

	pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, url, nil)
	if err != nil {
		st.State = StateError
		st.Error = err.Error()
		return st
	}
	resp, err := m.client.Do(req)
	if err != nil {
		msg := "connection failed"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			msg = "timeout"
		}
		return m.graceOrUnhealthy(prev, st, msg)
	}
	resp.Body.Close()

	// Any response proves the process is serving. 5xx still counts as
	// unhealthy; a 404 on the probe path does not.
	if resp.StatusCode >= 500 {
		st.State = StateUnhealthy
		st.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return st
	}
	st.State = StateHealthy
	st.StartedAt = time.Time{}
	return st
}

// graceOrUnhealthy resolves a failed reachability probe: within the boot
// grace window after launch the service stays starting, after that it is
// unhealthy.
func (m *Monitor) graceOrUnhealthy(prev, st ServiceStatus, msg string) ServiceStatus {
	booting := prev.State == StateStarting &&
		!prev.StartedAt.IsZero() &&
		m.now().UTC().Sub(prev.StartedAt) < m.opts.BootGrace
	if booting {
		st.State = StateStarting
		return st
	}
	st.State = StateUnhealthy
	st.Error = msg
	return st
}

// probeDatabase checks the configured database endpoint: a TCP dial for
// basic reachability, plus a driver ping when a DSN is configured.
func (m *Monitor) probeDatabase(ctx context.Context) ServiceStatus {
	st := ServiceStatus{State: StateStopped, LastCheck: m.now().UTC()}
	if m.opts.DBHost == "" {
		return st
	}

	addr := net.JoinHostPort(m.opts.DBHost, strconv.Itoa(m.opts.DBPort))
	st.URL = addr

	conn, err := net.DialTimeout("tcp", addr, m.opts.ProbeTimeout)
	if err != nil {
		st.State = StateUnhealthy
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			st.Error = "timeout"
		} else {
			st.Error = err.Error()
		}
		return st
	}
	conn.Close()

	if m.opts.DBDSN != "" {
		if err := m.pingDatabase(ctx); err != nil {
			st.State = StateUnhealthy
			st.Error = err.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				st.Error = "timeout"
			}
			return st
		}
	}

	st.State = StateHealthy
	return st
}

func (m *Monitor) pingDatabase(ctx context.Context) error {
	db, err := sql.Open("mysql", m.opts.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	return db.PingContext(pctx)
}

// currentServer reads the last recorded server status, tolerating a
// missing or corrupt record.
func (m *Monitor) currentServer(t *ticket.Ticket) ServiceStatus {
	bar, _, err := readOptional[StatusBar](m.store, statusBarPath(m.registry.Dir(t.ID)))
	if err != nil || bar == nil {
		return ServiceStatus{State: StateStopped}
	}
	return bar.Server
}

// updateServer merges a new server status into the ticket's status bar
// under the record lock, so concurrent server and database probes never
// clobber each other's halves.
func (m *Monitor) updateServer(t *ticket.Ticket, st ServiceStatus) error {
	return m.updateBar(t, func(bar *StatusBar) { bar.Server = st })
}

func (m *Monitor) updateDatabase(t *ticket.Ticket, st ServiceStatus) error {
	return m.updateBar(t, func(bar *StatusBar) { bar.Database = st })
}

func (m *Monitor) updateBar(t *ticket.Ticket, mutate func(*StatusBar)) error {
	path := statusBarPath(m.registry.Dir(t.ID))
	return m.store.WithLock(path, func() error {
		bar, _, err := readOptional[StatusBar](m.store, path)
		if err != nil {
			return err
		}
		if bar == nil {
			bar = &StatusBar{}
		}
		bar.Ticket = t.ID
		mutate(bar)
		return m.store.Write(path, bar)
	})
}

// Snapshot loads everything renderable for a ticket: the status bar and
// the build and test records external tooling maintains.
func (m *Monitor) Snapshot(t *ticket.Ticket) (*Snapshot, error) {
	dir := m.registry.Dir(t.ID)
	snap := &Snapshot{}
	var err error

	if snap.Bar, snap.BarMeta, err = readOptional[StatusBar](m.store, statusBarPath(dir)); err != nil {
		return nil, err
	}
	if snap.Build, snap.BuildMeta, err = readOptional[BuildStatus](m.store, buildStatusPath(dir)); err != nil {
		return nil, err
	}
	if snap.Tests, snap.TestsMeta, err = readOptional[TestStatus](m.store, testStatusPath(dir)); err != nil {
		return nil, err
	}
	return snap, nil
}
