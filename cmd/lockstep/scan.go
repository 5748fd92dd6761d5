package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/platform/tui"
	"github.com/vovakirdan/lockstep/internal/transport"
)

var (
	flagScanListen string
	flagScanWait   time.Duration
	flagScanTUI    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List sessions advertised on the network",
	Long: `Listen for session advertisements and send scan requests, then print
every session found.

Examples:
  lockstep scan
  lockstep scan --wait 5s
  lockstep scan --tui`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&flagScanListen, "listen", ":0", "Local UDP address")
	scanCmd.Flags().DurationVar(&flagScanWait, "wait", 3*time.Second, "How long to listen")
	scanCmd.Flags().BoolVar(&flagScanTUI, "tui", false, "Browse sessions interactively")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if flagScanTUI {
		quietForTUI()
	}

	udpCfg := cfg.UDP()
	udpCfg.Listen = flagScanListen
	medium, err := transport.ListenUDP(udpCfg, logger)
	if err != nil {
		return err
	}
	defer medium.Close()

	clock := core.SystemClock{}
	link := transport.NewClientLink(medium, cfg.ClientLink(), logger)
	defer link.Close()

	if flagScanTUI {
		w, h := termSize()
		rec, ok, err := tui.RunLobby(link, clock, w, h)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("Join with: lockstep join %08x\n", rec.SessionID)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := link.Scan(clock.Now()); err != nil {
		return err
	}
	fmt.Printf("Scanning for %s...\n", flagScanWait)

	deadline := time.NewTimer(flagScanWait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline.C:
			break loop
		case <-ticker.C:
			link.Service(clock.Now())
		}
	}

	sessions := link.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-8s  %-16s  %-22s  %-5s  %s\n", "Session", "Name", "Host", "Slots", "Rules")
	fmt.Printf("  %-8s  %-16s  %-22s  %-5s  %s\n", "-------", "----", "----", "-----", "-----")
	for _, rec := range sessions {
		fmt.Printf("  %s\n", describeRecord(rec))
	}
	fmt.Println()
	fmt.Println("Run 'lockstep join <session>' to join.")
	return nil
}
