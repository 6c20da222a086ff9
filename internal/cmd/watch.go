package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ticketdeck/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of all active tickets",
	Long: `Render a continuously refreshing view of every active ticket's
server, database, build, test, and agent session state.

The view only reads the persisted records; run "ticketdeck daemon" (or
one-shot "server check" invocations) to keep them fresh.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch requires an interactive terminal")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	return tui.Run(a.registry, a.monitor, a.orch, a.cfg.PollInterval())
}
