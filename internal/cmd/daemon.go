package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ticketdeck/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the polling loop for all active tickets",
	Long: `Run the background polling loop: every interval, probe each active
ticket's server and database and reparse every active agent session's TODO
list. Results are written to the shared records that status and watch read.

Runs until interrupted.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("polling every %s, ctrl-c to stop\n", a.cfg.PollInterval())
	s := scheduler.New(a.registry, a.monitor, a.orch, a.cfg.PollInterval(), log.Default())
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
