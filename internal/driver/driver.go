// Package driver turns wall-clock frames into simulation tics.
//
// Each RunFrame samples local input for the tics that elapsed since the previous
// frame, exchanges commands through the sync coordinator and then runs as many
// agreed tics as real time allows. The driver owns no network state; everything
// it knows about peers comes through the Sync interface.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/logging"
	"github.com/vovakirdan/lockstep/internal/netsync"
)

const (
	// DefaultLowWater is the number of buffered tics above which the driver
	// holds one back so the buffer drains toward steady state.
	DefaultLowWater = 2

	// DefaultStallFrames is how many tic durations may pass without progress
	// before the UI is ticked anyway.
	DefaultStallFrames = 4
)

// Sync is the slice of a sync coordinator the driver needs.
// netsync.Host, netsync.Client and netsync.Local all satisfy it.
type Sync interface {
	Receive(now time.Time) error
	CanProduce() bool
	Produce(cmd core.Ticcmd) error
	Send(now time.Time) error
	Consensus() int
	Applied() int
	Advance() (core.TicFrame, error)
}

// Simulation executes one tic with every player's command.
type Simulation interface {
	RunTic(frame core.TicFrame)
}

// Source builds the local command for the next tic.
type Source interface {
	Sample() core.Ticcmd
}

// UI is advanced once per executed tic and on stalls.
type UI interface {
	Tick()
}

// Heartbeat is called on frames where nothing could run.
type Heartbeat interface {
	Beat()
}

// Recorder stores executed tics, e.g. for demo playback.
type Recorder interface {
	RecordTic(frame core.TicFrame) error
}

// Config holds the pacing parameters.
type Config struct {
	Runtime     core.RuntimeConfig
	LowWater    int
	StallFrames int
}

// DefaultConfig returns the standard pacing for rt.
func DefaultConfig(rt core.RuntimeConfig) Config {
	return Config{
		Runtime:     rt,
		LowWater:    DefaultLowWater,
		StallFrames: DefaultStallFrames,
	}
}

// Stats counts driver activity.
type Stats struct {
	Frames     int
	TicsRun    int
	Produced   int
	Starved    int // tics of input dropped because the window was full
	IdleFrames int
	StallTicks int
}

// Option configures optional collaborators.
type Option func(*Driver)

// WithSource sets the local input source. Without one the driver only consumes.
func WithSource(s Source) Option {
	return func(d *Driver) { d.source = s }
}

// WithUI sets the UI that is ticked alongside the simulation.
func WithUI(ui UI) Option {
	return func(d *Driver) { d.ui = ui }
}

// WithHeartbeat sets the idle callback.
func WithHeartbeat(h Heartbeat) Option {
	return func(d *Driver) { d.heart = h }
}

// WithRecorder records every executed tic.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// Driver paces the simulation against real time.
type Driver struct {
	cfg    Config
	sync   Sync
	sim    Simulation
	source Source
	ui     UI
	heart  Heartbeat
	rec    Recorder
	logger *log.Logger

	started      bool
	epoch        time.Time
	lastTic      int
	lastProgress time.Time
	stats        Stats
}

// New creates a driver for sync and sim.
func New(sync Sync, sim Simulation, cfg Config, opts ...Option) *Driver {
	if cfg.LowWater <= 0 {
		cfg.LowWater = DefaultLowWater
	}
	if cfg.StallFrames <= 0 {
		cfg.StallFrames = DefaultStallFrames
	}
	d := &Driver{cfg: cfg, sync: sync, sim: sim}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrDiscard(d.logger).WithPrefix("driver")
	return d
}

// Stats returns a snapshot of the counters.
func (d *Driver) Stats() Stats {
	return d.stats
}

// RunFrame performs one frame and returns the number of tics executed.
// The first call only establishes the time base.
func (d *Driver) RunFrame(now time.Time) (int, error) {
	if !d.started {
		d.started = true
		d.epoch = now
		d.lastProgress = now
	}
	d.stats.Frames++

	nowTic := d.cfg.Runtime.TicsSince(now.Sub(d.epoch))
	budget := nowTic - d.lastTic
	d.lastTic = nowTic

	if err := d.sync.Receive(now); err != nil {
		return 0, err
	}
	d.produce(budget)
	if err := d.sync.Send(now); err != nil {
		return 0, err
	}

	runtics := d.sync.Consensus() - d.sync.Applied()
	if budget >= runtics && runtics > d.cfg.LowWater {
		runtics--
	}
	if runtics > budget {
		runtics = budget
	}

	if runtics <= 0 {
		d.idle(now)
		return 0, nil
	}

	for i := range runtics {
		frame, err := d.sync.Advance()
		if err != nil {
			return i, err
		}
		d.sim.RunTic(frame)
		if d.ui != nil {
			d.ui.Tick()
		}
		d.record(frame)
	}
	d.stats.TicsRun += runtics
	d.lastProgress = now

	if err := d.sync.Receive(now); err != nil {
		return runtics, err
	}
	if err := d.sync.Send(now); err != nil {
		return runtics, err
	}
	return runtics, nil
}

func (d *Driver) produce(budget int) {
	if d.source == nil {
		return
	}
	for i := range budget {
		if !d.sync.CanProduce() {
			d.stats.Starved += budget - i
			return
		}
		if err := d.sync.Produce(d.source.Sample()); err != nil {
			if errors.Is(err, netsync.ErrTransportStall) {
				d.stats.Starved += budget - i
				d.logger.Debug("window full", "dropped", budget-i)
				return
			}
			d.logger.Debug("produce skipped", "err", err)
			return
		}
		d.stats.Produced++
	}
}

func (d *Driver) idle(now time.Time) {
	d.stats.IdleFrames++
	if d.heart != nil {
		d.heart.Beat()
	}
	limit := time.Duration(d.cfg.StallFrames) * d.cfg.Runtime.TicDuration()
	if now.Sub(d.lastProgress) > limit {
		d.stats.StallTicks++
		if d.ui != nil {
			d.ui.Tick()
		}
	}
}

func (d *Driver) record(frame core.TicFrame) {
	if d.rec == nil {
		return
	}
	if err := d.rec.RecordTic(frame); err != nil {
		d.logger.Warn("recording disabled", "tic", frame.Tic, "err", err)
		d.rec = nil
	}
}

// Run calls RunFrame every interval until ctx is done, a frame fails or after
// returns true. after may be nil. A zero interval uses one tic duration.
func (d *Driver) Run(ctx context.Context, clock core.Clock, interval time.Duration, after func(now time.Time) bool) error {
	if interval <= 0 {
		interval = d.cfg.Runtime.TicDuration()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := clock.Now()
			if _, err := d.RunFrame(now); err != nil {
				return err
			}
			if after != nil && after(now) {
				return nil
			}
		}
	}
}
