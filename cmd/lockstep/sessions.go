package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var flagSessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show recent sessions and recorded demos",
	Long: `Display the most recent sessions this machine took part in and the
demos recorded from them.

Examples:
  lockstep sessions
  lockstep sessions --limit 50`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&flagSessionsLimit, "limit", 10, "Number of entries to show")
}

func runSessions(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage is disabled (storage.db_path is empty)")
	}
	defer store.Close()

	entries, err := store.RecentSessions(flagSessionsLimit)
	if err != nil {
		return err
	}

	fmt.Println("Recent Sessions")
	fmt.Println()
	if len(entries) == 0 {
		fmt.Println("No sessions recorded yet.")
		fmt.Println()
		fmt.Println("Run 'lockstep host' or 'lockstep join' to play one.")
	} else {
		fmt.Printf("  %-8s  %-6s  %-20s  %6s  %8s  %-24s  %s\n", "Session", "Role", "Rules", "Tics", "Duration", "Ended", "Date")
		fmt.Printf("  %-8s  %-6s  %-20s  %6s  %8s  %-24s  %s\n", "-------", "----", "-----", "----", "--------", "-----", "----")
		for _, e := range entries {
			ended := e.EndReason
			if e.ErrorKind != "" && e.ErrorKind != "none" {
				ended += " (" + e.ErrorKind + ")"
			}
			fmt.Printf("  %08x  %-6s  %-20s  %6d  %8s  %-24s  %s\n",
				e.SessionID, e.Role, e.Ruleset, e.TicsApplied, e.Duration.Round(time.Second),
				ended, e.CreatedAt.Format("2006-01-02 15:04"))
			if len(e.Players) > 0 {
				fmt.Printf("            players: %s\n", strings.Join(e.Players, ", "))
			}
		}
	}

	demos, err := store.RecentDemos(flagSessionsLimit)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("Demos")
	fmt.Println()
	if len(demos) == 0 {
		fmt.Println("No demos recorded yet.")
		return nil
	}
	fmt.Printf("  %-4s  %-8s  %-8s  %-20s  %6s  %-16s  %s\n", "ID", "Session", "Sim", "Rules", "Tics", "Checksum", "Date")
	fmt.Printf("  %-4s  %-8s  %-8s  %-20s  %6s  %-16s  %s\n", "--", "-------", "---", "-----", "----", "--------", "----")
	for _, d := range demos {
		fmt.Printf("  %-4d  %08x  %-8s  %-20s  %6d  %016x  %s\n",
			d.ID, d.SessionID, d.Simulation, d.Ruleset, d.Tics, d.Checksum, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println()
	fmt.Println("Run 'lockstep replay <id>' to verify a demo.")
	return nil
}
