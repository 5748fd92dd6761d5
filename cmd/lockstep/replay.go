package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/lockstep/internal/simulation"
)

var replayCmd = &cobra.Command{
	Use:   "replay <demo>",
	Short: "Re-run a recorded demo and verify its checksum",
	Long: `Feed a recorded command stream through a fresh simulation and compare
the final state checksum with the one stored when the demo was recorded.
A mismatch means the simulation is not deterministic for that input.

Examples:
  lockstep sessions        # find the demo id
  lockstep replay 3`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(_ *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid demo id %q", args[0])
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage is disabled (storage.db_path is empty)")
	}
	defer store.Close()

	header, err := store.Demo(id)
	if err != nil {
		return err
	}
	if header == nil {
		return fmt.Errorf("demo %d not found", id)
	}

	sim, err := simulation.Create(header.Simulation)
	if err != nil {
		return err
	}
	frames, err := store.DemoTics(id)
	if err != nil {
		return err
	}

	sim.Reset(header.Runtime, header.Ruleset)
	for _, f := range frames {
		sim.RunTic(f)
	}

	fmt.Printf("Demo %d - %s, session %08x, %s, seed %d\n",
		header.ID, sim.Title(), header.SessionID, header.Ruleset, header.Runtime.Seed)
	fmt.Printf("Replayed %d of %d tics\n", sim.Tics(), header.Tics)
	fmt.Printf("Checksum: %016x\n", sim.Checksum())

	switch {
	case header.Checksum == 0:
		fmt.Println("No recorded checksum to compare.")
	case header.Checksum != sim.Checksum():
		return fmt.Errorf("checksum mismatch: recorded %016x, replayed %016x", header.Checksum, sim.Checksum())
	default:
		fmt.Println("Checksum matches.")
	}
	return nil
}
