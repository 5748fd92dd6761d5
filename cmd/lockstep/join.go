package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/netsync"
	"github.com/vovakirdan/lockstep/internal/platform/tui"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// pollInterval paces discovery and pairing loops.
const pollInterval = 20 * time.Millisecond

var (
	flagJoinListen string
	flagJoinWait   time.Duration
	flagJoinTics   int
	flagJoinBot    bool
	flagJoinTUI    bool
	flagJoinRecord bool
)

var joinCmd = &cobra.Command{
	Use:   "join [session]",
	Short: "Join a session by id or name",
	Long: `Discover a session on the LAN, pair with its host and play until the
host ends the session.

The session can be given as the 8 digit hex id printed by 'lockstep scan'
or by its advertised name. Without an argument, --tui opens the lobby
browser to pick one.

Examples:
  lockstep join 1a2b3c4d
  lockstep join "friday night" --bot
  lockstep join --tui`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&flagJoinListen, "listen", ":0", "Local UDP address")
	joinCmd.Flags().DurationVar(&flagJoinWait, "wait", 10*time.Second, "How long to search for the session")
	joinCmd.Flags().IntVar(&flagJoinTics, "tics", 0, "Leave after this many tics (0 = stay until the host ends)")
	joinCmd.Flags().BoolVar(&flagJoinBot, "bot", false, "Let a bot produce the local commands")
	joinCmd.Flags().BoolVar(&flagJoinTUI, "tui", false, "Use the lobby browser and session view")
	joinCmd.Flags().BoolVar(&flagJoinRecord, "record", false, "Record the session as a demo when storage is enabled")
}

func runJoin(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !flagJoinTUI {
		return errors.New("a session id or name is required (or use --tui)")
	}
	if flagJoinTUI {
		quietForTUI()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	udpCfg := cfg.UDP()
	udpCfg.Listen = flagJoinListen
	medium, err := transport.ListenUDP(udpCfg, logger)
	if err != nil {
		return err
	}
	defer medium.Close()

	clock := core.SystemClock{}
	link := transport.NewClientLink(medium, cfg.ClientLink(), logger)
	defer link.Close()

	var rec transport.DiscoveryRecord
	if len(args) == 0 {
		w, h := termSize()
		var ok bool
		rec, ok, err = tui.RunLobby(link, clock, w, h)
		if err != nil || !ok {
			return err
		}
	} else {
		if err := link.Scan(clock.Now()); err != nil {
			return err
		}
		rec, err = discover(ctx, link, clock, args[0])
		if err != nil {
			return err
		}
	}

	slot, err := pair(ctx, link, clock, rec.SessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Joined session %08x as slot %d\n", rec.SessionID, slot)

	client, err := netsync.NewClient(link, slot, cfg.ClientSync(rec.SessionID), logger)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		client.SetResultSaver(store)
	}

	opts := peerOptions{bot: flagJoinBot, tui: flagJoinTUI, record: flagJoinRecord}
	peer, err := newLocalPeer(client, client.Context(), client.Events(), store, "client", opts)
	if err != nil {
		return err
	}

	step := func(now time.Time) bool {
		if flagJoinTics > 0 && client.Applied() >= flagJoinTics {
			client.Leave(now)
			return true
		}
		return false
	}
	err = peer.run(ctx, opts, step)
	client.Leave(clock.Now())

	stats := client.Stats()
	logger.Info("client stats", "sends", stats.Sends, "gaps", stats.Gaps, "duplicates", stats.Duplicates, "corrupt", stats.Corrupt)
	if errors.Is(err, netsync.ErrSessionClosed) {
		return nil
	}
	return err
}

// discover waits until a session matching ref (hex id or name) is seen.
func discover(ctx context.Context, link *transport.ClientLink, clock core.Clock, ref string) (transport.DiscoveryRecord, error) {
	id, byID := parseSessionID(ref)
	deadline := clock.Now().Add(flagJoinWait)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return transport.DiscoveryRecord{}, ctx.Err()
		case <-ticker.C:
		}
		now := clock.Now()
		link.Service(now)
		for _, rec := range link.Sessions() {
			if byID && rec.SessionID == id {
				return rec, nil
			}
			if rec.Advert.Name == ref || (rec.Details != nil && rec.Details.SessionName == ref) {
				return rec, nil
			}
		}
		if now.After(deadline) {
			return transport.DiscoveryRecord{}, fmt.Errorf("session %q not found within %s", ref, flagJoinWait)
		}
	}
}

// pair connects to session and waits for the host to assign a slot.
func pair(ctx context.Context, link *transport.ClientLink, clock core.Clock, session uint32) (int, error) {
	if err := link.Connect(session, clock.Now()); err != nil {
		return 0, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
		link.Service(clock.Now())
		for _, ev := range link.Events() {
			switch ev.Kind {
			case transport.EventConnected:
				return ev.Slot, nil
			case transport.EventRejected:
				return 0, fmt.Errorf("host rejected the connection: %s", ev.Reason)
			}
		}
	}
}
