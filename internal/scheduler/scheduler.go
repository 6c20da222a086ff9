// Package scheduler drives the periodic polling loop: every tick it fans
// out health probes and agent output sampling across the active tickets.
//
// The loop's one invariant is that a tick never waits for the previous
// tick's work. Per-ticket work runs on its own goroutine and every probe
// is internally deadline-bounded, so a wedged server or a hung endpoint
// delays nothing but its own record.
package scheduler

import (
	"context"
	"log"
	"time"

	"ticketdeck/internal/constants"
	"ticketdeck/internal/orchestrator"
	"ticketdeck/internal/ticket"
)

// TicketSource lists the tickets to poll. *ticket.Registry satisfies it.
type TicketSource interface {
	ListActive() ([]*ticket.Ticket, error)
}

// Prober triggers health probes. *monitor.Monitor satisfies it; both
// methods must return without waiting for the probe.
type Prober interface {
	CheckServer(ctx context.Context, t *ticket.Ticket)
	CheckDatabase(ctx context.Context, t *ticket.Ticket)
}

// Sampler reads and updates agent sessions. *orchestrator.Orchestrator
// satisfies it.
type Sampler interface {
	ActiveSessions(t *ticket.Ticket) ([]orchestrator.AgentSession, error)
	SampleAgentOutput(t *ticket.Ticket, sessionID string) (*orchestrator.AgentSession, error)
}

// Scheduler runs the polling loop. All collaborators are explicit
// constructor arguments; nothing here reaches for package-level state.
type Scheduler struct {
	tickets  TicketSource
	prober   Prober
	sampler  Sampler
	interval time.Duration
	logger   *log.Logger
}

// New creates a Scheduler. A non-positive interval falls back to the
// compiled-in default; a nil logger falls back to the standard logger.
func New(tickets TicketSource, prober Prober, sampler Sampler, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = constants.PollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		tickets:  tickets,
		prober:   prober,
		sampler:  sampler,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the context is canceled. The first tick fires
// immediately so a freshly started server command has status within one
// probe, not one interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fans one round of work out across the active tickets and returns
// without waiting for any of it.
func (s *Scheduler) tick(ctx context.Context) {
	tickets, err := s.tickets.ListActive()
	if err != nil {
		s.logger.Printf("scheduler: listing tickets: %v", err)
		return
	}
	for _, t := range tickets {
		go s.pollTicket(ctx, t)
	}
}

func (s *Scheduler) pollTicket(ctx context.Context, t *ticket.Ticket) {
	s.prober.CheckServer(ctx, t)
	s.prober.CheckDatabase(ctx, t)

	sessions, err := s.sampler.ActiveSessions(t)
	if err != nil {
		s.logger.Printf("scheduler: %s: listing sessions: %v", t.ID, err)
		return
	}
	for _, sess := range sessions {
		if _, err := s.sampler.SampleAgentOutput(t, sess.ID); err != nil {
			// A vanished window or a racing archive is routine here.
			s.logger.Printf("scheduler: %s: sampling %s: %v", t.ID, sess.ID, err)
		}
	}
}
