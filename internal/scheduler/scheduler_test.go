package scheduler

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticketdeck/internal/orchestrator"
	"ticketdeck/internal/ticket"
)

type fakeSource struct {
	ticks   atomic.Int64
	tickets []*ticket.Ticket
}

func (f *fakeSource) ListActive() ([]*ticket.Ticket, error) {
	f.ticks.Add(1)
	return f.tickets, nil
}

// slowProber violates nothing: it returns immediately like the real
// monitor, with the slow part on its own goroutine.
type slowProber struct {
	probes atomic.Int64
}

func (p *slowProber) CheckServer(ctx context.Context, t *ticket.Ticket) {
	go func() {
		time.Sleep(time.Second)
		p.probes.Add(1)
	}()
}

func (p *slowProber) CheckDatabase(ctx context.Context, t *ticket.Ticket) {}

type fakeSampler struct {
	mu       sync.Mutex
	sampled  []string
	sessions []orchestrator.AgentSession

	// delay simulates a slow tmux capture inside sampling.
	delay time.Duration
}

func (f *fakeSampler) ActiveSessions(t *ticket.Ticket) ([]orchestrator.AgentSession, error) {
	return f.sessions, nil
}

func (f *fakeSampler) SampleAgentOutput(t *ticket.Ticket, id string) (*orchestrator.AgentSession, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	f.sampled = append(f.sampled, id)
	f.mu.Unlock()
	return &orchestrator.AgentSession{ID: id}, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRunTicksAtInterval(t *testing.T) {
	src := &fakeSource{tickets: []*ticket.Ticket{{ID: "IN-1"}}}
	sampler := &fakeSampler{}
	s := New(src, &slowProber{}, sampler, 20*time.Millisecond, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	// Immediate first tick plus roughly five interval ticks.
	if got := src.ticks.Load(); got < 3 {
		t.Errorf("got %d ticks in 110ms at 20ms interval, want at least 3", got)
	}
}

func TestSlowWorkNeverDelaysTicks(t *testing.T) {
	src := &fakeSource{tickets: []*ticket.Ticket{{ID: "IN-1"}}}
	sampler := &fakeSampler{
		sessions: []orchestrator.AgentSession{{ID: "a"}},
		delay:    300 * time.Millisecond, // far longer than the interval
	}
	s := New(src, &slowProber{}, sampler, 20*time.Millisecond, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	// Sampling takes 300ms per session, so if ticks waited for work we
	// would see at most one. The fan-out keeps the tick rate intact.
	if got := src.ticks.Load(); got < 3 {
		t.Errorf("got %d ticks, want at least 3 despite slow sampling", got)
	}
}

func TestPollTicketSamplesEveryActiveSession(t *testing.T) {
	src := &fakeSource{}
	sampler := &fakeSampler{
		sessions: []orchestrator.AgentSession{{ID: "a"}, {ID: "b"}},
	}
	s := New(src, &slowProber{}, sampler, time.Second, quietLogger())

	s.pollTicket(context.Background(), &ticket.Ticket{ID: "IN-1"})

	sampler.mu.Lock()
	defer sampler.mu.Unlock()
	if len(sampler.sampled) != 2 {
		t.Errorf("sampled = %v, want both sessions", sampler.sampled)
	}
}
