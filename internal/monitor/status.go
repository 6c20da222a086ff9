package monitor

import (
	"errors"
	"path/filepath"
	"time"

	"ticketdeck/internal/constants"
	"ticketdeck/internal/store"
)

// ServiceState is the lifecycle state of a monitored service.
type ServiceState string

const (
	// StateStopped means the service window is gone or was never started.
	StateStopped ServiceState = "stopped"

	// StateStarting means the service was launched but has not proven
	// reachable yet. Failed probes inside the boot grace window keep the
	// service here instead of demoting it.
	StateStarting ServiceState = "starting"

	// StateHealthy means the last probe succeeded.
	StateHealthy ServiceState = "healthy"

	// StateUnhealthy means the service is running but the last probe
	// failed (timeout, refused connection, 5xx).
	StateUnhealthy ServiceState = "unhealthy"

	// StateError means the service logged a fatal error or the probe
	// machinery itself broke.
	StateError ServiceState = "error"
)

// ServiceStatus is the persisted result of the most recent probe of one
// service.
type ServiceStatus struct {
	State ServiceState `json:"state"`

	// URL is the probed endpoint, when one is known.
	URL string `json:"url,omitempty"`

	// Port is the listen port extracted from the service's ready line.
	Port int `json:"port,omitempty"`

	// Error carries the failure detail for unhealthy and error states.
	Error string `json:"error,omitempty"`

	// StartedAt anchors the boot grace window. Set when the service is
	// launched, cleared when it reaches healthy.
	StartedAt time.Time `json:"started_at,omitempty"`

	LastCheck time.Time `json:"last_check"`
}

// StatusBar is the per-ticket health record, written wholesale to
// status-bar.json so readers never see one service updated and the other
// mid-write.
type StatusBar struct {
	Ticket   string        `json:"ticket"`
	Server   ServiceStatus `json:"server"`
	Database ServiceStatus `json:"database"`
}

// BuildStatus is the record external build tooling writes to
// build-status.json.
type BuildStatus struct {
	Success    bool         `json:"success"`
	DurationMS int64        `json:"duration_ms"`
	Errors     []BuildIssue `json:"errors,omitempty"`
	Warnings   []BuildIssue `json:"warnings,omitempty"`
}

// BuildIssue is one compiler diagnostic.
type BuildIssue struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// TestStatus is the record external test tooling writes to
// test-status.json.
type TestStatus struct {
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	DurationMS int64         `json:"duration_ms"`
	Failures   []TestFailure `json:"failures,omitempty"`
}

// TestFailure is one failed test case.
type TestFailure struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Snapshot bundles everything the status command and the watch UI render
// for one ticket. Missing records leave the pointer nil; stale records are
// returned with Meta.Stale set, for the caller to badge.
type Snapshot struct {
	Bar     *StatusBar
	BarMeta store.Meta

	Build     *BuildStatus
	BuildMeta store.Meta

	Tests     *TestStatus
	TestsMeta store.Meta
}

// readOptional loads a record that may legitimately not exist yet.
// Corrupt records are treated like missing ones here; the store has
// already preserved the file for diagnosis.
func readOptional[T any](s *store.Store, path string) (*T, store.Meta, error) {
	var v T
	meta, err := s.Read(path, &v)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCorrupt) {
			return nil, store.Meta{}, nil
		}
		return nil, store.Meta{}, err
	}
	return &v, meta, nil
}

func statusBarPath(dir string) string {
	return filepath.Join(dir, constants.StatusBarFile)
}

func buildStatusPath(dir string) string {
	return filepath.Join(dir, constants.BuildStatusFile)
}

func testStatusPath(dir string) string {
	return filepath.Join(dir, constants.TestStatusFile)
}
