package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/driver"
	"github.com/vovakirdan/lockstep/internal/input"
	"github.com/vovakirdan/lockstep/internal/netsync"
	"github.com/vovakirdan/lockstep/internal/simulation"
	"github.com/vovakirdan/lockstep/internal/transport"
)

var (
	flagSimPeers   int
	flagSimDelay   int
	flagSimLoss    float64
	flagSimCorrupt float64
	flagSimTics    int
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a whole session in-process over a simulated network",
	Long: `Run a host and its clients in one process, connected by an in-memory
network with configurable latency, loss and corruption. Every peer is
driven by a bot and time is stepped one tic per frame. Peers run
concurrently within a frame, but each node draws loss and corruption
from its own stream and datagrams sent in one frame arrive no earlier
than the next, so a run is reproducible for a given --seed.

When every peer has executed --tics tics the state checksums are
compared tic by tic; any difference is reported as an error.

Examples:
  lockstep sim
  lockstep sim --peers 3 --delay 4 --loss 0.1
  lockstep sim --corrupt 0.05 --tics 3500 --seed 42`,
	RunE: runSim,
}

func init() {
	simCmd.Flags().IntVar(&flagSimPeers, "peers", 1, "Number of clients (1-3)")
	simCmd.Flags().IntVar(&flagSimDelay, "delay", 2, "One-way latency in tics (at least 1)")
	simCmd.Flags().Float64Var(&flagSimLoss, "loss", 0, "Datagram loss probability (0-1)")
	simCmd.Flags().Float64Var(&flagSimCorrupt, "corrupt", 0, "Datagram corruption probability (0-1)")
	simCmd.Flags().IntVar(&flagSimTics, "tics", 350, "Tics every peer must execute")
}

// simPeer is one in-process participant. It records the simulation checksum
// after every tic it executes.
type simPeer struct {
	name   string
	sync   driver.Sync
	ctx    *netsync.SessionContext
	events *netsync.EventQueue
	sim    simulation.Simulation
	drv    *driver.Driver
	sums   []uint64
}

func newSimPeer(name string, sync driver.Sync, ctx *netsync.SessionContext, events *netsync.EventQueue, seed uint64) (*simPeer, error) {
	sim, err := simulation.Create(cfg.Session.Simulation)
	if err != nil {
		return nil, err
	}
	p := &simPeer{name: name, sync: sync, ctx: ctx, events: events, sim: sim}
	p.drv = driver.New(sync, p, cfg.Driver(),
		driver.WithSource(input.NewBot(seed, cfg.Session.CompatTurn)),
		driver.WithLogger(logger.WithPrefix(name)),
	)
	return p, nil
}

func (p *simPeer) RunTic(frame core.TicFrame) {
	if frame.Tic == 0 {
		p.sim.Reset(p.ctx.Runtime, p.ctx.Ruleset)
		p.sums = p.sums[:0]
	}
	p.sim.RunTic(frame)
	p.sums = append(p.sums, p.sim.Checksum())
}

func runSim(cmd *cobra.Command, _ []string) error {
	return simulate(cmd.OutOrStdout())
}

// simSessionID derives a non-zero session id from the seed.
func simSessionID(seed int64) uint32 {
	id := uint32(seed) ^ uint32(uint64(seed)>>32)
	if id == 0 {
		id = 1
	}
	return id
}

// simulate runs one in-process session and writes the report to w.
func simulate(w io.Writer) error {
	if flagSimPeers < 1 || flagSimPeers > core.MaxPlayers-1 {
		return fmt.Errorf("--peers must be between 1 and %d", core.MaxPlayers-1)
	}
	if flagSimTics <= 0 {
		return errors.New("--tics must be positive")
	}
	if flagSimDelay < 1 {
		return errors.New("--delay must be at least 1 tic")
	}

	seed := cfg.Session.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg.Session.Seed = seed
	cfg.Transport.MaxPeers = flagSimPeers

	tic := cfg.Runtime().TicDuration()
	clock := core.NewManualClock(time.Unix(0, 0).UTC())
	hub := transport.NewMemoryHub(clock, transport.HubOptions{
		Delay:   time.Duration(flagSimDelay) * tic,
		Loss:    flagSimLoss,
		Corrupt: flagSimCorrupt,
		Seed:    uint64(seed),
	})

	id := simSessionID(seed)
	linkCfg, err := cfg.HostLink(id)
	if err != nil {
		return err
	}
	syncCfg, err := cfg.HostSync(id)
	if err != nil {
		return err
	}

	hostMedium, err := hub.Attach("host")
	if err != nil {
		return err
	}
	hostLink := transport.NewHostLink(hostMedium, linkCfg, logger)
	if err := hostLink.Open(clock.Now()); err != nil {
		return err
	}
	defer hostLink.Close()
	host := netsync.NewHost(hostLink, syncCfg, logger)

	hostPeer, err := newSimPeer("host", host, host.Context(), host.Events(), uint64(seed))
	if err != nil {
		return err
	}
	peers := []*simPeer{hostPeer}

	clients, err := pairSimClients(hub, clock, host, hostMedium.Addr(), id, uint64(seed))
	if err != nil {
		return err
	}
	for _, c := range clients {
		peers = append(peers, c.peer)
	}

	fmt.Fprintf(w, "Session %08x: %d peers, seed %d, delay %d tics, loss %.2f, corrupt %.2f\n",
		id, len(peers), seed, flagSimDelay, flagSimLoss, flagSimCorrupt)

	if err := host.Start(clock.Now()); err != nil {
		return err
	}

	limit := flagSimTics*4 + 10*cfg.Sync.TicRate
	frames := 0
	for minApplied(peers) < flagSimTics {
		if frames >= limit {
			return fmt.Errorf("sim: session stalled at tic %d after %d frames", minApplied(peers), frames)
		}
		now := clock.Now()
		var g errgroup.Group
		for _, p := range peers {
			g.Go(func() error {
				if _, err := p.drv.RunFrame(now); err != nil {
					return fmt.Errorf("%s: %w", p.name, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, p := range peers {
			for _, ev := range p.events.Drain() {
				logger.Debug("event", "peer", p.name, "event", fmt.Sprintf("%T", ev))
			}
		}
		clock.Advance(tic)
		frames++
	}

	host.End(clock.Now(), netsync.EndCompleted)
	for _, c := range clients {
		c.client.Leave(clock.Now())
	}

	printSimStats(w, peers, host, clients, frames)
	return compareChecksums(w, peers)
}

type simClient struct {
	link   *transport.ClientLink
	client *netsync.Client
	peer   *simPeer
}

// pairSimClients attaches one client per requested peer and steps the network
// until the host has assigned every one of them a slot.
func pairSimClients(hub *transport.MemoryHub, clock *core.ManualClock, host *netsync.Host,
	hostAddr transport.Addr, session uint32, seed uint64) ([]*simClient, error) {
	clients := make([]*simClient, flagSimPeers)
	links := make([]*transport.ClientLink, flagSimPeers)
	for i := range links {
		name := fmt.Sprintf("client-%d", i+1)
		medium, err := hub.Attach(name)
		if err != nil {
			return nil, err
		}
		linkCfg := cfg.ClientLink()
		linkCfg.Name = name
		links[i] = transport.NewClientLink(medium, linkCfg, logger)
		if err := links[i].ConnectAddr(session, hostAddr, clock.Now()); err != nil {
			return nil, err
		}
	}

	tic := cfg.Runtime().TicDuration()
	limit := int(cfg.Transport.PairTimeout/tic) * 4
	pending := flagSimPeers
	for frame := 0; pending > 0 || len(host.Context().Roster()) <= flagSimPeers; frame++ {
		if frame > limit {
			return nil, fmt.Errorf("sim: pairing incomplete, %d of %d clients waiting", pending, flagSimPeers)
		}
		now := clock.Now()
		if err := host.Receive(now); err != nil {
			return nil, err
		}
		if err := host.Send(now); err != nil {
			return nil, err
		}
		for i, l := range links {
			if c := clients[i]; c != nil {
				if err := c.client.Receive(now); err != nil {
					return nil, err
				}
				continue
			}
			l.Service(now)
			for _, ev := range l.Events() {
				switch ev.Kind {
				case transport.EventConnected:
					syncCfg := cfg.ClientSync(session)
					syncCfg.Name = fmt.Sprintf("client-%d", i+1)
					client, err := netsync.NewClient(l, ev.Slot, syncCfg, logger)
					if err != nil {
						return nil, err
					}
					peer, err := newSimPeer(syncCfg.Name, client, client.Context(), client.Events(), seed+uint64(ev.Slot))
					if err != nil {
						return nil, err
					}
					clients[i] = &simClient{link: l, client: client, peer: peer}
					pending--
				case transport.EventRejected:
					logger.Warn("pairing rejected, retrying", "client", i+1, "reason", ev.Reason)
					if err := l.ConnectAddr(session, hostAddr, now); err != nil {
						return nil, err
					}
				}
			}
		}
		clock.Advance(tic)
	}
	return clients, nil
}

func minApplied(peers []*simPeer) int {
	lowest := -1
	for _, p := range peers {
		if n := len(p.sums); lowest < 0 || n < lowest {
			lowest = n
		}
	}
	return lowest
}

// compareChecksums checks every tic all peers executed against the host.
func compareChecksums(w io.Writer, peers []*simPeer) error {
	common := minApplied(peers)
	ref := peers[0].sums
	for _, p := range peers[1:] {
		for tic := 0; tic < common; tic++ {
			if p.sums[tic] != ref[tic] {
				return fmt.Errorf("sim: %s diverged from host at tic %d (%016x != %016x)",
					p.name, tic, p.sums[tic], ref[tic])
			}
		}
	}
	fmt.Fprintf(w, "All %d peers agree on %d tics (checksum %016x)\n", len(peers), common, ref[common-1])
	return nil
}

func printSimStats(w io.Writer, peers []*simPeer, host *netsync.Host, clients []*simClient, frames int) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-10s  %6s  %6s  %8s  %7s  %6s\n", "Peer", "Tics", "Frames", "Produced", "Starved", "Stalls")
	fmt.Fprintf(w, "  %-10s  %6s  %6s  %8s  %7s  %6s\n", "----", "----", "------", "--------", "-------", "------")
	for _, p := range peers {
		s := p.drv.Stats()
		fmt.Fprintf(w, "  %-10s  %6d  %6d  %8d  %7d  %6d\n", p.name, len(p.sums), s.Frames, s.Produced, s.Starved, s.StallTicks)
	}
	fmt.Fprintln(w)

	hs := host.Stats()
	fmt.Fprintf(w, "Host: %d broadcasts (%d forced), %d merged, %d corrupt, %d stalls, %d drops\n",
		hs.Broadcasts, hs.Forced, hs.Merged, hs.Corrupt, hs.Stalls, hs.Drops)
	for _, c := range clients {
		cs := c.client.Stats()
		ls := c.link.Stats()
		fmt.Fprintf(w, "%s: %d sends (%d forced), %d gaps, %d duplicates, %d corrupt, %d corrupt frames\n",
			c.peer.name, cs.Sends, cs.Forced, cs.Gaps, cs.Duplicates, cs.Corrupt, ls.Corrupt)
	}
	fmt.Fprintf(w, "%d frames\n\n", frames)
}
