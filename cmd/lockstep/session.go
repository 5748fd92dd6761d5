package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/driver"
	"github.com/vovakirdan/lockstep/internal/input"
	"github.com/vovakirdan/lockstep/internal/logging"
	"github.com/vovakirdan/lockstep/internal/netsync"
	"github.com/vovakirdan/lockstep/internal/platform/tui"
	"github.com/vovakirdan/lockstep/internal/simulation"
	"github.com/vovakirdan/lockstep/internal/storage"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// newSessionID picks a random non-zero session id.
func newSessionID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}

// parseSessionID accepts the 8 digit hex form printed by scan.
func parseSessionID(s string) (uint32, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) == 0 || len(s) > 8 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint32(v), true
}

// openStore opens the configured database. A nil store means storage is off.
func openStore() (*storage.Store, error) {
	path := cfg.Storage.DBPath
	if path == "" || path == "none" {
		return nil, nil
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return store, nil
}

// termSize returns the terminal size, falling back to 80x24.
func termSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 80, 24
	}
	return w, h
}

// quietForTUI stops stderr logging from drawing over the alternate screen.
func quietForTUI() {
	if cfg.Log.File == "" {
		logger = logging.Discard()
	}
}

// sessionSim resets the simulation whenever a session starts at tic 0, so one
// instance follows every session the coordinator runs.
type sessionSim struct {
	sim simulation.Simulation
	ctx *netsync.SessionContext
}

func (s *sessionSim) RunTic(frame core.TicFrame) {
	if frame.Tic == 0 {
		s.sim.Reset(s.ctx.Runtime, s.ctx.Ruleset)
	}
	s.sim.RunTic(frame)
}

// demoSink records each session into its own demo when storage is enabled.
type demoSink struct {
	store *storage.Store
	sim   *sessionSim
	rec   *storage.DemoRecorder
}

func (d *demoSink) RecordTic(frame core.TicFrame) error {
	if frame.Tic == 0 {
		d.finish()
		rec, err := d.store.CreateDemo(storage.DemoHeader{
			SessionID:  d.sim.ctx.SessionID,
			Simulation: d.sim.sim.ID(),
			Runtime:    d.sim.ctx.Runtime,
			Ruleset:    d.sim.ctx.Ruleset,
		})
		if err != nil {
			return err
		}
		d.rec = rec
		logger.Info("recording demo", "demo", rec.ID())
	}
	if d.rec == nil {
		return nil
	}
	return d.rec.RecordTic(frame)
}

// finish closes the current demo with the simulation's final checksum.
func (d *demoSink) finish() {
	if d.rec == nil {
		return
	}
	if err := d.rec.Finish(d.sim.sim.Checksum()); err != nil {
		logger.Warn("finishing demo", "demo", d.rec.ID(), "err", err)
	}
	d.rec = nil
}

// peerOptions are the flags shared by host and join.
type peerOptions struct {
	bot    bool
	tui    bool
	record bool
}

// localPeer wires a coordinator to a simulation, an input source and
// optionally the demo recorder and session view.
type localPeer struct {
	sync     driver.Sync
	ctx      *netsync.SessionContext
	events   *netsync.EventQueue
	sim      *sessionSim
	demo     *demoSink
	producer *input.Producer
	drv      *driver.Driver
	role     string
}

func newLocalPeer(sync driver.Sync, ctx *netsync.SessionContext, events *netsync.EventQueue,
	store *storage.Store, role string, opts peerOptions) (*localPeer, error) {
	sim, err := simulation.Create(cfg.Session.Simulation)
	if err != nil {
		return nil, err
	}
	p := &localPeer{
		sync:     sync,
		ctx:      ctx,
		events:   events,
		sim:      &sessionSim{sim: sim, ctx: ctx},
		producer: input.NewProducer(cfg.Session.CompatTurn),
		role:     role,
	}

	var source driver.Source = p.producer
	if opts.bot {
		source = input.NewBot(uint64(time.Now().UnixNano()), cfg.Session.CompatTurn)
	}
	driverOpts := []driver.Option{driver.WithSource(source), driver.WithLogger(logger)}
	if store != nil && opts.record && cfg.Storage.RecordDemos {
		p.demo = &demoSink{store: store, sim: p.sim}
		driverOpts = append(driverOpts, driver.WithRecorder(p.demo))
	}
	p.drv = driver.New(sync, p.sim, cfg.Driver(), driverOpts...)
	return p, nil
}

func (p *localPeer) status() tui.Status {
	return tui.Status{
		Title:     p.sim.sim.Title(),
		Role:      p.role,
		Active:    p.ctx.Active(),
		Applied:   p.sync.Applied(),
		Consensus: p.sync.Consensus(),
		Slots:     p.ctx.Roster(),
		Local:     p.ctx.Local,
		Checksum:  p.sim.sim.Checksum(),
	}
}

// logEvents drains session events into the log and reports a session end.
func (p *localPeer) logEvents() (netsync.SessionEndedEvent, bool) {
	var (
		end   netsync.SessionEndedEvent
		ended bool
	)
	for _, ev := range p.events.Drain() {
		switch e := ev.(type) {
		case netsync.PeerStalledEvent, netsync.PeerDroppedEvent:
			logger.Warn(tui.DescribeEvent(ev))
		case netsync.SessionEndedEvent:
			logger.Info(tui.DescribeEvent(ev), "checksum", fmt.Sprintf("%016x", p.sim.sim.Checksum()))
			end, ended = e, true
		default:
			logger.Info(tui.DescribeEvent(ev))
		}
	}
	return end, ended
}

// run drives the peer until step reports done or the session ends. step is
// called after every frame and may be nil.
func (p *localPeer) run(ctx context.Context, opts peerOptions, step func(now time.Time) bool) error {
	defer func() {
		if p.demo != nil {
			p.demo.finish()
		}
	}()

	clock := core.SystemClock{}
	if opts.tui {
		frame := func(now time.Time) (int, error) {
			n, err := p.drv.RunFrame(now)
			if err == nil && step != nil {
				step(now)
			}
			return n, err
		}
		model := tui.NewSessionModel(frame, p.status, p.events, p.producer, clock, cfg.Sync.TicRate)
		return tui.RunSession(model)
	}

	var endErr error
	err := p.drv.Run(ctx, clock, 0, func(now time.Time) bool {
		if step != nil && step(now) {
			p.logEvents()
			return true
		}
		if end, ended := p.logEvents(); ended {
			endErr = end.Err
			return true
		}
		return false
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	stats := p.drv.Stats()
	logger.Info("driver stats", "frames", stats.Frames, "tics", stats.TicsRun,
		"produced", stats.Produced, "starved", stats.Starved, "stalls", stats.StallTicks)
	return endErr
}

// describeRecord formats one discovered session as a table row.
func describeRecord(rec transport.DiscoveryRecord) string {
	name := rec.Advert.Name
	if rec.Details != nil && rec.Details.SessionName != "" {
		name = rec.Details.SessionName
	}
	return fmt.Sprintf("%08x  %-16s  %-22s  %d/%d  %s",
		rec.SessionID, name, rec.Addr, rec.Advert.PlayerCount, rec.Advert.Capacity, rec.Advert.Ruleset())
}
