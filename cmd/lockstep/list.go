package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/lockstep/internal/simulation"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available simulations",
	Long:  `Shows a list of all simulations a session can run.`,
	Run:   runList,
}

func runList(cmd *cobra.Command, args []string) {
	sims := simulation.List()

	if len(sims) == 0 {
		fmt.Println("No simulations available.")
		return
	}

	fmt.Println("Available simulations:")
	fmt.Println()

	// Calculate column widths
	maxIDLen := 2 // "ID" header
	for _, s := range sims {
		if len(s.ID) > maxIDLen {
			maxIDLen = len(s.ID)
		}
	}

	fmt.Printf("  %-*s  %s\n", maxIDLen, "ID", "Title")
	fmt.Printf("  %-*s  %s\n", maxIDLen, "--", "-----")
	for _, s := range sims {
		marker := ""
		if s.ID == cfg.Session.Simulation {
			marker = "  (configured)"
		}
		fmt.Printf("  %-*s  %s%s\n", maxIDLen, s.ID, s.Title, marker)
	}

	fmt.Println()
	fmt.Println("Set session.simulation in lockstep.yaml to choose one.")
}
