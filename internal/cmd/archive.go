package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticketdeck/internal/style"
)

var archiveRemoveWorktree bool

var archiveCmd = &cobra.Command{
	Use:   "archive <ticket-id>",
	Short: "Archive a ticket and tear down its tmux session",
	Long: `Archive a ticket: the tmux session is destroyed and the ticket is
marked archived. The ticket record and its agent session history remain on
disk; archived is terminal, not deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().BoolVar(&archiveRemoveWorktree, "remove-worktree", false, "Also remove the ticket's git worktree")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}
	if err := a.orch.ArchiveTicket(t, archiveRemoveWorktree); err != nil {
		return err
	}
	fmt.Printf("%s ticket %s\n", style.Bold.Render("archived"), t.ID)
	return nil
}
