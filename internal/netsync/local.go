package netsync

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/logging"
)

// Local runs a single-player session: every produced tic is immediately
// agreed upon.
type Local struct {
	ctx    *SessionContext
	name   string
	events *EventQueue
	saver  ResultSaver
	logger *log.Logger
}

// NewLocal creates a single-player coordinator.
func NewLocal(rt core.RuntimeConfig, rules core.Ruleset, name string, logger *log.Logger) *Local {
	ctx := NewSessionContext(rt, 0)
	ctx.Ruleset = rules
	ctx.Slots[0].Role = RoleHost
	ctx.Slots[0].Name = name
	return &Local{
		ctx:    ctx,
		name:   name,
		events: NewEventQueue(16),
		logger: logging.OrDiscard(logger).WithPrefix("local"),
	}
}

// SetResultSaver installs an optional session result sink.
func (l *Local) SetResultSaver(s ResultSaver) {
	l.saver = s
}

// Context exposes the session context.
func (l *Local) Context() *SessionContext {
	return l.ctx
}

// Events returns the session event stream.
func (l *Local) Events() *EventQueue {
	return l.events
}

// Start enters active play.
func (l *Local) Start(now time.Time) {
	if l.ctx.Runtime.Seed == 0 {
		l.ctx.Runtime.Seed = now.UnixNano()
	}
	l.ctx.begin(now)
	l.events.Push(SessionStartedEvent{Seed: l.ctx.Runtime.Seed, Local: 0, Players: l.ctx.PlayerNames()})
}

// Active reports whether the session is in active play.
func (l *Local) Active() bool { return l.ctx.Active() }

// Applied returns the applied horizon.
func (l *Local) Applied() int { return l.ctx.Applied() }

// Produced returns the produced horizon.
func (l *Local) Produced() int { return l.ctx.LocalSlot().Produced }

// Consensus equals the produced horizon.
func (l *Local) Consensus() int { return l.Produced() }

// Receive is a no-op.
func (l *Local) Receive(time.Time) error { return nil }

// Send is a no-op.
func (l *Local) Send(time.Time) error { return nil }

// Exchange is a no-op.
func (l *Local) Exchange(time.Time) error { return nil }

// CanProduce reports whether the next tic fits the window.
func (l *Local) CanProduce() bool { return l.ctx.canProduce() }

// Produce stores the next command.
func (l *Local) Produce(cmd core.Ticcmd) error {
	if !l.ctx.Active() {
		return ErrNotActive
	}
	if !l.ctx.canProduce() {
		return ErrTransportStall
	}
	l.ctx.produce(cmd)
	return nil
}

// Advance consumes the next tic.
func (l *Local) Advance() (core.TicFrame, error) {
	return l.ctx.advance(l.Produced())
}

// End finishes the session.
func (l *Local) End(now time.Time) {
	if !l.ctx.Active() {
		return
	}
	l.ctx.end()
	if l.saver != nil {
		if err := l.saver.SaveSessionResult(resultFrom(l.ctx, l.name, l.ctx.Runtime.Seed, EndCompleted, nil, now)); err != nil {
			l.logger.Error("saving session result", "err", err)
		}
	}
	l.events.Push(SessionEndedEvent{Reason: EndCompleted, TicsApplied: l.ctx.Applied()})
}
