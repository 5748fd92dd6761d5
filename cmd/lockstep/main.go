// lockstep runs deterministic lockstep sessions between peers on a LAN.
//
// Usage:
//
//	lockstep host              - Host a session and wait for peers
//	lockstep join [session]    - Join a session by id or name
//	lockstep scan              - List sessions advertised on the network
//	lockstep sim               - Run host and clients in-process over a simulated network
//	lockstep list              - List available simulations
//	lockstep sessions          - Show recent sessions and recorded demos
//	lockstep replay <demo>     - Re-run a recorded demo and verify its checksum
//	lockstep config            - Print the effective configuration
//
// Global flags:
//
//	--config <path>     - Configuration file (default: search order)
//	--db <path>         - Database path (default: ~/.lockstep/lockstep.db)
//	--log-level <lvl>   - Log level (debug, info, warn, error)
//	--log-file <path>   - Write logs to a rotating file instead of stderr
//	--seed <value>      - Session seed (0 = time based)
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/lockstep/internal/config"
	"github.com/vovakirdan/lockstep/internal/logging"
)

var (
	// Global flags
	flagConfig   string
	flagDBPath   string
	flagLogLevel string
	flagLogFile  string
	flagSeed     int64

	cfg    config.Config
	logger *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lockstep",
	Short: "Lockstep - deterministic tic sync for LAN sessions",
	Long: `Lockstep keeps a deterministic simulation identical on up to four
peers. Every peer runs tic N only once it holds every player's command
for tic N, so all simulations see the same input in the same order.

Available commands:
  host      - Host a session and wait for peers
  join      - Join a session by id or name
  scan      - List sessions advertised on the network
  sim       - Run a whole session in-process over a simulated network
  list      - List available simulations
  sessions  - Show recent sessions and recorded demos
  replay    - Re-run a recorded demo
  config    - Print the effective configuration

Examples:
  lockstep host --wait-peers 1 --bot
  lockstep scan
  lockstep join 1a2b3c4d --bot
  lockstep sim --peers 3 --loss 0.1 --tics 700`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to database (\"none\" disables storage)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Log file path")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "Session seed (0 = random based on time)")

	// Add subcommands
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(simCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the configuration, applies flag overrides and builds the logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		c.Storage.DBPath = flagDBPath
	}
	if flags.Changed("log-level") {
		c.Log.Level = flagLogLevel
	}
	if flags.Changed("log-file") {
		c.Log.File = flagLogFile
	}
	if flags.Changed("seed") {
		c.Session.Seed = flagSeed
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(c.Logging())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	cfg, logger = c, l
	return nil
}
