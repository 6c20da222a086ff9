package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ticketdeck/internal/style"
	"ticketdeck/internal/tmux"
)

var attachRepair bool

var attachCmd = &cobra.Command{
	Use:   "attach <ticket-id> [window]",
	Short: "Attach the terminal to a ticket's tmux session",
	Long: `Attach to a ticket's tmux session, optionally focused on one of the
role windows (agent, server, tests).

A role window that was destroyed outside ticketdeck is reported, not
silently recreated; pass --repair to recreate missing role windows before
attaching.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAttach,
}

func init() {
	attachCmd.Flags().BoolVar(&attachRepair, "repair", false, "Recreate missing role windows before attaching")
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("attach requires an interactive terminal")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}

	if attachRepair {
		if err := a.orch.EnsureTicketSession(t); err != nil {
			return err
		}
	}
	if len(args) == 2 {
		if err := a.orch.FocusWindow(t, args[1]); err != nil {
			if errors.Is(err, tmux.ErrWindowNotFound) {
				fmt.Println(style.Warning.Render(fmt.Sprintf("the %s window no longer exists", args[1])))
				fmt.Println(style.Dim.Render(fmt.Sprintf("recreate it with: ticketdeck attach --repair %s %s", t.ID, args[1])))
			}
			return err
		}
	}
	return a.tmux.Attach(t.TmuxSession)
}
