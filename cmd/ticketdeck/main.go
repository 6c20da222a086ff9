package main

import (
	"fmt"
	"os"

	"ticketdeck/internal/cmd"
	"ticketdeck/internal/style"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", style.Error.Render("error:"), err)
		os.Exit(1)
	}
}
