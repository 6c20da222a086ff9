package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ticketdeck/internal/style"
	"ticketdeck/internal/ticket"
)

var (
	listAll  bool
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tickets",
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "Include archived tickets")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
}

var titleCaser = cases.Title(language.English)

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	var tickets []*ticket.Ticket
	if listAll {
		tickets, err = a.registry.List()
	} else {
		tickets, err = a.registry.ListActive()
	}
	if err != nil {
		return err
	}

	if listJSON {
		return json.NewEncoder(os.Stdout).Encode(tickets)
	}

	if len(tickets) == 0 {
		fmt.Println(style.Dim.Render("no tickets"))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, style.Dim.Render("  TICKET\tSTATUS\tBRANCH\tTITLE"))
	for _, t := range tickets {
		fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n",
			style.StateSymbol(string(t.Status)),
			t.ID,
			titleCaser.String(string(t.Status)),
			t.Branch,
			t.Title,
		)
	}
	return w.Flush()
}
