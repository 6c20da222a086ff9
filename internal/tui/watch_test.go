package tui

import (
	"strings"
	"testing"
	"time"

	"ticketdeck/internal/extract"
	"ticketdeck/internal/monitor"
	"ticketdeck/internal/orchestrator"
)

func TestRenderProgressUnknownIsNotZero(t *testing.T) {
	if got := renderProgress(extract.ProgressUnknown); strings.Contains(got, "0%") {
		t.Errorf("unknown progress rendered as a percentage: %q", got)
	}
	if got := renderProgress(0); !strings.Contains(got, "0%") {
		t.Errorf("zero progress = %q", got)
	}
	if got := renderProgress(100); !strings.Contains(got, "100%") {
		t.Errorf("full progress = %q", got)
	}
}

func TestRenderBarHandlesMissingRecord(t *testing.T) {
	if got := renderBar(nil); got == "" {
		t.Error("nil snapshot rendered empty")
	}
	if got := renderBar(&monitor.Snapshot{}); got == "" {
		t.Error("empty snapshot rendered empty")
	}
}

func TestRenderBarShowsStaleBadge(t *testing.T) {
	snap := &monitor.Snapshot{
		Bar: &monitor.StatusBar{
			Server: monitor.ServiceStatus{State: monitor.StateHealthy, Port: 3000},
		},
	}
	if out := renderBar(snap); strings.Contains(out, "stale") {
		t.Errorf("fresh record badged stale: %q", out)
	}

	snap.BarMeta.Stale = true
	snap.BarMeta.Age = 42 * time.Second
	if out := renderBar(snap); !strings.Contains(out, "stale") {
		t.Errorf("stale record missing badge: %q", out)
	}
}

func TestRenderSessionFallsBackToShortID(t *testing.T) {
	s := orchestrator.AgentSession{
		ID:       "deadbeef-0000-0000-0000-000000000000",
		Status:   orchestrator.AgentWorking,
		Progress: 50,
	}
	out := renderSession(s)
	if !strings.Contains(out, "deadbeef") {
		t.Errorf("untitled session missing short id: %q", out)
	}
	if !strings.Contains(out, "50%") {
		t.Errorf("session missing progress: %q", out)
	}
}
