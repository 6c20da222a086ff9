package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ticketdeck/internal/extract"
	"ticketdeck/internal/monitor"
	"ticketdeck/internal/orchestrator"
	"ticketdeck/internal/store"
	"ticketdeck/internal/style"
	"ticketdeck/internal/ticket"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <ticket-id>",
	Short: "Show a ticket's health, build, test, and agent state",
	Long: `Show everything recorded for a ticket: server and database health,
the latest build and test results, and all agent sessions.

Records older than the staleness threshold are badged; stale data is shown,
not hidden, because "last known state, possibly outdated" is more useful
than nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatusCmd,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}

// ticketStatus is the JSON shape of the status command.
type ticketStatus struct {
	Ticket   *ticket.Ticket              `json:"ticket"`
	Bar      *monitor.StatusBar          `json:"status_bar,omitempty"`
	BarStale bool                        `json:"status_bar_stale,omitempty"`
	Build    *monitor.BuildStatus        `json:"build,omitempty"`
	Tests    *monitor.TestStatus         `json:"tests,omitempty"`
	Sessions []orchestrator.AgentSession `json:"sessions,omitempty"`
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	t, err := a.loadTicket(args[0])
	if err != nil {
		return err
	}
	return printStatus(a, t)
}

func printStatus(a *app, t *ticket.Ticket) error {
	snap, err := a.monitor.Snapshot(t)
	if err != nil {
		return err
	}
	sessions, _, err := a.orch.Sessions(t)
	if err != nil {
		return err
	}

	if statusJSON {
		return json.NewEncoder(os.Stdout).Encode(ticketStatus{
			Ticket:   t,
			Bar:      snap.Bar,
			BarStale: snap.BarMeta.Stale,
			Build:    snap.Build,
			Tests:    snap.Tests,
			Sessions: sessions,
		})
	}

	fmt.Printf("%s %s  %s\n", style.StateSymbol(string(t.Status)), style.Bold.Render(t.ID), t.Title)
	fmt.Printf("  branch %s  session %s\n", t.Branch, t.TmuxSession)

	if snap.Bar == nil {
		fmt.Println(style.Dim.Render("  no health records yet"))
	} else {
		printService(" server", snap.Bar.Server, snap.BarMeta)
		printService(" db    ", snap.Bar.Database, snap.BarMeta)
	}

	if snap.Build != nil {
		state := "passing"
		if !snap.Build.Success {
			state = "failing"
		}
		fmt.Printf("  build  %s %s%s\n", style.StateSymbol(state), state, staleSuffix(snap.BuildMeta))
		for _, issue := range snap.Build.Errors {
			fmt.Printf("    %s\n", style.Error.Render(formatIssue(issue.File, issue.Line, issue.Message)))
		}
	}
	if snap.Tests != nil {
		state := "passing"
		if snap.Tests.Failed > 0 {
			state = "failing"
		}
		fmt.Printf("  tests  %s %d passed, %d failed, %d skipped%s\n",
			style.StateSymbol(state), snap.Tests.Passed, snap.Tests.Failed, snap.Tests.Skipped,
			staleSuffix(snap.TestsMeta))
		for _, f := range snap.Tests.Failures {
			fmt.Printf("    %s\n", style.Error.Render(formatIssue(f.File, f.Line, f.Name+": "+f.Message)))
		}
	}

	for _, s := range sessions {
		progress := "--"
		if s.Progress != extract.ProgressUnknown {
			progress = fmt.Sprintf("%d%%", s.Progress)
		}
		fmt.Printf("  agent  %s %s %s %s\n", style.StateSymbol(string(s.Status)), s.ID, s.Status, progress)
	}
	return nil
}

func printService(name string, st monitor.ServiceStatus, meta store.Meta) {
	line := fmt.Sprintf("  %s %s %s", name, style.StateSymbol(string(st.State)), st.State)
	if st.Port != 0 {
		line += fmt.Sprintf(" :%d", st.Port)
	}
	if st.Error != "" {
		line += " " + style.Error.Render(st.Error)
	}
	fmt.Println(line + staleSuffix(meta))
}

func staleSuffix(meta store.Meta) string {
	if !meta.Stale {
		return ""
	}
	return "  " + style.Warning.Render(fmt.Sprintf("(stale %s)", meta.Age.Round(time.Second)))
}

func formatIssue(file string, line int, msg string) string {
	if file == "" {
		return msg
	}
	return fmt.Sprintf("%s:%d: %s", file, line, msg)
}
