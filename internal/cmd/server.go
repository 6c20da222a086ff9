package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ticketdeck/internal/style"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage a ticket's dev server",
}

var serverStartCmd = &cobra.Command{
	Use:   "start <ticket-id>",
	Short: "Start the configured server command in the server window",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerStart,
}

var serverCheckCmd = &cobra.Command{
	Use:   "check <ticket-id>",
	Short: "Probe the ticket's server and database once",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerCheck,
}

func init() {
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverCheckCmd)
	rootCmd.AddCommand(serverCmd)
}

func runServerStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}
	if err := a.orch.EnsureTicketSession(t); err != nil {
		return err
	}
	if err := a.monitor.StartServer(t); err != nil {
		return err
	}
	fmt.Printf("%s %s in %s:server\n", style.Bold.Render("started"), a.cfg.Server.Command, t.TmuxSession)
	return nil
}

func runServerCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a.monitor.CheckServer(ctx, t)
	a.monitor.CheckDatabase(ctx, t)

	// The probes are asynchronous; give them one timeout's worth of time
	// to land before reading the record back for display.
	time.Sleep(a.cfg.ProbeTimeout() + 100*time.Millisecond)
	return printStatus(a, t)
}
