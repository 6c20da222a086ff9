package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ticketdeck/internal/extract"
	"ticketdeck/internal/style"
)

var (
	agentTitle string
	agentTodo  string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage coding-agent sessions within a ticket",
}

var agentStartCmd = &cobra.Command{
	Use:   "start <ticket-id>",
	Short: "Launch a new agent session in its own window",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentStart,
}

var agentListCmd = &cobra.Command{
	Use:   "list <ticket-id>",
	Short: "List a ticket's agent sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentList,
}

var agentSampleCmd = &cobra.Command{
	Use:   "sample <ticket-id> <session-id>",
	Short: "Reparse a session's TODO list from its window output",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgentSample,
}

var agentArchiveCmd = &cobra.Command{
	Use:   "archive <ticket-id> <session-id>",
	Short: "Archive an agent session and close its window",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgentArchive,
}

func init() {
	agentStartCmd.Flags().StringVar(&agentTitle, "title", "", "Task description for the session")
	agentStartCmd.Flags().StringVar(&agentTodo, "todo", "", "TODO id this session works on")
	agentCmd.AddCommand(agentStartCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentSampleCmd)
	agentCmd.AddCommand(agentArchiveCmd)
	rootCmd.AddCommand(agentCmd)
}

func runAgentStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}

	sess, err := a.orch.StartAgentSession(t, agentTitle, agentTodo)
	if err != nil {
		return err
	}
	fmt.Printf("%s agent session %s in %s:%s\n",
		style.Bold.Render("started"), sess.ID, t.TmuxSession, sess.Window)
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}

	sessions, meta, err := a.orch.Sessions(t)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println(style.Dim.Render("no agent sessions"))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, style.Dim.Render("  SESSION\tSTATUS\tPROGRESS\tTITLE"))
	for _, s := range sessions {
		progress := "--"
		if s.Progress != extract.ProgressUnknown {
			progress = fmt.Sprintf("%d%%", s.Progress)
		}
		fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n",
			style.StateSymbol(string(s.Status)), s.ID, s.Status, progress, s.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if meta.Stale {
		fmt.Println(style.Warning.Render(fmt.Sprintf("record is %s old", meta.Age.Round(time.Second))))
	}
	return nil
}

func runAgentSample(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}

	sess, err := a.orch.SampleAgentOutput(t, args[1])
	if err != nil {
		return err
	}
	if len(sess.Todos) == 0 {
		fmt.Println(style.Dim.Render("no TODOs parsed"))
		return nil
	}
	for _, todo := range sess.Todos {
		mark := "[ ]"
		if todo.Completed {
			mark = "[x]"
		} else if todo.Blocked {
			mark = "[!]"
		}
		fmt.Printf("  %s %s\n", mark, todo.Text)
	}
	fmt.Printf("%d%% complete\n", sess.Progress)
	return nil
}

func runAgentArchive(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}
	if err := a.orch.ArchiveSession(t, args[1]); err != nil {
		return err
	}
	fmt.Printf("%s session %s\n", style.Bold.Render("archived"), args[1])
	return nil
}
