package cmd

import (
	"fmt"
	"log"
	"os"

	"ticketdeck/internal/config"
	"ticketdeck/internal/extract"
	"ticketdeck/internal/git"
	"ticketdeck/internal/monitor"
	"ticketdeck/internal/orchestrator"
	"ticketdeck/internal/store"
	"ticketdeck/internal/ticket"
	"ticketdeck/internal/tmux"
)

// app bundles the wired-up collaborators every command needs. Construction
// happens per invocation; commands are one-shot processes sharing state
// only through the control tree on disk.
type app struct {
	cfg      *config.Config
	store    *store.Store
	registry *ticket.Registry
	tmux     *tmux.Tmux
	monitor  *monitor.Monitor
	orch     *orchestrator.Orchestrator
}

func newApp() (*app, error) {
	root, err := config.ControlRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrCreate(root)
	if err != nil {
		return nil, err
	}

	tm, err := tmux.New()
	if err != nil {
		return nil, err
	}

	matcher, err := extract.NewLogMatcher(cfg.Server.ReadyPatterns, cfg.Server.ErrorPatterns)
	if err != nil {
		return nil, fmt.Errorf("config log patterns: %w", err)
	}
	parser, err := extract.NewTodoParser(extract.TodoFamilies{
		Completed: cfg.Todo.CompletedPatterns,
		Blocked:   cfg.Todo.BlockedPatterns,
		Pending:   cfg.Todo.PendingPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("config todo patterns: %w", err)
	}

	s := store.New(cfg.Staleness())
	reg := ticket.NewRegistry(root, s)

	mon := monitor.New(reg, s, tm, matcher, monitor.Options{
		ProbeTimeout:  cfg.ProbeTimeout(),
		BootGrace:     cfg.BootGrace(),
		ServerCommand: cfg.Server.Command,
		HealthURL:     cfg.Server.HealthURL,
		DBHost:        cfg.Database.Host,
		DBPort:        cfg.Database.Port,
		DBDSN:         cfg.Database.DSN,
	})

	orch := orchestrator.New(reg, s, tm, worktrees(cfg), parser, orchestrator.Options{
		WorktreeRoot: cfg.WorktreeRoot,
		AgentCommand: cfg.Agent.Command,
	})

	return &app{
		cfg:      cfg,
		store:    s,
		registry: reg,
		tmux:     tm,
		monitor:  mon,
		orch:     orch,
	}, nil
}

// worktrees builds the git wrapper, or nil when git is unavailable or no
// repo is configured. Tickets still work without worktree management; they
// just run in whatever directory the session was created from.
func worktrees(cfg *config.Config) orchestrator.Worktrees {
	repoDir := cfg.RepoDir
	if repoDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil
		}
		repoDir = cwd
	}
	g, err := git.New(repoDir)
	if err != nil {
		log.Printf("git unavailable, worktree management disabled: %v", err)
		return nil
	}
	return g
}

// loadTicket resolves a ticket argument to its record.
func (a *app) loadTicket(id string) (*ticket.Ticket, error) {
	return a.registry.Get(id)
}
