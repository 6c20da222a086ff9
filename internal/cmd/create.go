package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticketdeck/internal/style"
)

var (
	createTitle  string
	createBranch string
)

var createCmd = &cobra.Command{
	Use:   "create <ticket-id>",
	Short: "Create a ticket with its worktree and tmux session",
	Long: `Create a ticket: a git worktree on the ticket's branch (when a repo
is available), a tmux session named after the ticket, and the fixed agent,
server, and tests windows.

Creating an id that already exists is an error; archive the old ticket
first if you want to start over.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createTitle, "title", "", "Human-readable ticket title")
	createCmd.Flags().StringVar(&createBranch, "branch", "", "Branch name (default feature/<ticket-id>)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	t, err := a.orch.CreateTicket(args[0], createTitle, createBranch)
	if err != nil {
		return err
	}

	fmt.Printf("%s ticket %s\n", style.Bold.Render("created"), t.ID)
	fmt.Printf("  branch  %s\n", t.Branch)
	if t.WorktreePath != "" {
		fmt.Printf("  worktree %s\n", t.WorktreePath)
	}
	fmt.Printf("  session %s\n", t.TmuxSession)
	fmt.Println(style.Dim.Render(fmt.Sprintf("attach with: ticketdeck attach %s", t.ID)))
	return nil
}
