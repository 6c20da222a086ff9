// Package cmd implements the ticketdeck CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ticketdeck",
	Short: "Orchestrate ticket-scoped development environments in tmux",
	Long: `ticketdeck maps each development ticket to an isolated environment:
a git worktree on the ticket's branch and a tmux session with dedicated
agent, server, and tests windows.

State lives under ~/.ticketdeck (or $TICKETDECK_HOME) as plain files, so
any number of CLI invocations, watchers, and tooling processes can share
it without a daemon owning the truth.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
