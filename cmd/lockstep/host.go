package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/netsync"
	"github.com/vovakirdan/lockstep/internal/transport"
)

var (
	flagWaitPeers    int
	flagLobbyTimeout time.Duration
	flagHostTics     int
	flagHostBot      bool
	flagHostTUI      bool
	flagHostRecord   bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host a session and wait for peers",
	Long: `Open a session on the configured UDP port, advertise it on the LAN and
start play once enough peers have joined.

The session starts when --wait-peers clients are paired, or when
--lobby-timeout expires with at least the host present. With --tics the
host ends the session after that many tics; otherwise it runs until
interrupted.

Examples:
  lockstep host                          # Wait for one peer, play until Ctrl+C
  lockstep host --wait-peers 3 --bot     # Four player soak with a bot
  lockstep host --tics 3500 --record     # Record a 100 second demo
  lockstep host --tui                    # Play from the terminal`,
	RunE: runHost,
}

func init() {
	hostCmd.Flags().IntVar(&flagWaitPeers, "wait-peers", 1, "Number of clients to wait for before starting")
	hostCmd.Flags().DurationVar(&flagLobbyTimeout, "lobby-timeout", 0, "Start anyway after this long (0 = wait)")
	hostCmd.Flags().IntVar(&flagHostTics, "tics", 0, "End the session after this many tics (0 = run until interrupted)")
	hostCmd.Flags().BoolVar(&flagHostBot, "bot", false, "Let a bot produce the local commands")
	hostCmd.Flags().BoolVar(&flagHostTUI, "tui", false, "Show the session view and read input from the keyboard")
	hostCmd.Flags().BoolVar(&flagHostRecord, "record", true, "Record the session as a demo when storage is enabled")
}

func runHost(cmd *cobra.Command, _ []string) error {
	if flagWaitPeers < 0 || flagWaitPeers > cfg.Transport.MaxPeers {
		return fmt.Errorf("--wait-peers must be between 0 and %d", cfg.Transport.MaxPeers)
	}
	if flagHostTUI {
		quietForTUI()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := newSessionID()
	linkCfg, err := cfg.HostLink(id)
	if err != nil {
		return err
	}
	syncCfg, err := cfg.HostSync(id)
	if err != nil {
		return err
	}

	medium, err := transport.ListenUDP(cfg.UDP(), logger)
	if err != nil {
		return err
	}
	defer medium.Close()

	clock := core.SystemClock{}
	link := transport.NewHostLink(medium, linkCfg, logger)
	if err := link.Open(clock.Now()); err != nil {
		return err
	}
	defer func() {
		if err := link.Close(); err != nil {
			logger.Warn("closing link", "err", err)
		}
	}()

	host := netsync.NewHost(link, syncCfg, logger)

	store, err := openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		host.SetResultSaver(store)
	}

	opts := peerOptions{bot: flagHostBot, tui: flagHostTUI, record: flagHostRecord}
	peer, err := newLocalPeer(host, host.Context(), host.Events(), store, "host", opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Hosting session %08x on %s (%s)\n", id, medium.Addr(), syncCfg.Ruleset)
	fmt.Fprintf(os.Stderr, "Join with: lockstep join %08x\n", id)

	lobbyStart := clock.Now()
	started := false
	step := func(now time.Time) bool {
		if !started {
			peers := len(host.Context().Roster()) - 1
			timedOut := flagLobbyTimeout > 0 && now.Sub(lobbyStart) >= flagLobbyTimeout
			if peers < flagWaitPeers && !timedOut {
				return false
			}
			if err := host.Start(now); err != nil {
				logger.Error("starting session", "err", err)
				return true
			}
			started = true
			return false
		}
		if flagHostTics > 0 && host.Applied() >= flagHostTics {
			host.End(now, netsync.EndCompleted)
			return true
		}
		return false
	}

	err = peer.run(ctx, opts, step)
	host.End(clock.Now(), netsync.EndCompleted)
	if flagHostTUI {
		peer.logEvents()
	}

	stats := host.Stats()
	logger.Info("host stats", "broadcasts", stats.Broadcasts, "stalls", stats.Stalls, "drops", stats.Drops)
	return err
}
