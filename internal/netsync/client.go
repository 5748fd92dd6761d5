package netsync

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/logging"
	"github.com/vovakirdan/lockstep/internal/ticwindow"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// ClientLink is the transport surface the client coordinator drives.
type ClientLink interface {
	Service(now time.Time)
	Recv() ([]byte, bool)
	Send(payload []byte) error
	Events() []transport.Event
	Close()
}

// ClientConfig configures the client coordinator.
type ClientConfig struct {
	Name        string
	SessionID   uint32
	ResendGuard int
}

// ClientStats counts coordinator activity.
type ClientStats struct {
	Corrupt    int
	Gaps       int
	Duplicates int
	Sends      int
	Forced     int
}

type sendKey struct {
	received int
	produced int
}

// Client follows the host: it contributes its own commands and executes only
// what the host reports every peer has received.
type Client struct {
	link   ClientLink
	cfg    ClientConfig
	ctx    *SessionContext
	events *EventQueue
	saver  ResultSaver
	logger *log.Logger

	maxRBA   int
	last     sendKey
	sentOnce bool
	quiet    int
	closed   bool

	stats ClientStats
}

// NewClient creates a client coordinator for a link that has been assigned
// slot by the host. Slot 0 belongs to the host.
func NewClient(link ClientLink, slot int, cfg ClientConfig, logger *log.Logger) (*Client, error) {
	if slot <= 0 || slot >= core.MaxPlayers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	if cfg.ResendGuard <= 0 {
		cfg.ResendGuard = DefaultHostConfig().ResendGuard
	}
	ctx := NewSessionContext(core.DefaultConfig(), slot)
	ctx.SessionID = cfg.SessionID
	ctx.Slots[slot].Role = RoleClient
	ctx.Slots[slot].Name = cfg.Name
	ctx.Slots[slot].State = transport.StateConnected

	return &Client{
		link:   link,
		cfg:    cfg,
		ctx:    ctx,
		events: NewEventQueue(64),
		logger: logging.OrDiscard(logger).WithPrefix("client"),
	}, nil
}

// SetResultSaver installs an optional session result sink.
func (c *Client) SetResultSaver(s ResultSaver) {
	c.saver = s
}

// Context exposes the session context.
func (c *Client) Context() *SessionContext {
	return c.ctx
}

// Events returns the session event stream.
func (c *Client) Events() *EventQueue {
	return c.events
}

// Stats returns activity counters.
func (c *Client) Stats() ClientStats {
	return c.stats
}

// Active reports whether the session is in active play.
func (c *Client) Active() bool {
	return c.ctx.Active()
}

// Closed reports whether the session was torn down.
func (c *Client) Closed() bool {
	return c.closed
}

// Applied returns the applied horizon.
func (c *Client) Applied() int {
	return c.ctx.Applied()
}

// Produced returns the local produced horizon.
func (c *Client) Produced() int {
	return c.ctx.LocalSlot().Produced
}

// Received returns the confirmed horizon: every other slot's commands are
// held up to here.
func (c *Client) Received() int {
	return c.ctx.LocalSlot().Received
}

// Consensus returns the highest tic index the client may execute up to.
func (c *Client) Consensus() int {
	return min(c.maxRBA, c.Received())
}

// Receive processes every pending host message. A detected desync or a lost
// link tears the session down and is returned as an error.
func (c *Client) Receive(now time.Time) error {
	if c.closed {
		return ErrSessionClosed
	}
	c.link.Service(now)

	for _, ev := range c.link.Events() {
		if ev.Kind == transport.EventDisconnected {
			return c.fail(now, EndLinkLost, fmt.Errorf("%w: %s", ErrSessionClosed, ev.Reason))
		}
	}

	for {
		payload, ok := c.link.Recv()
		if !ok {
			return nil
		}
		typ, body, err := unseal(payload)
		if err != nil {
			c.stats.Corrupt++
			c.logger.Debug("dropping message", "err", err)
			continue
		}

		switch typ {
		case MsgRoster:
			r, err := decodeRoster(body)
			if err != nil {
				c.stats.Corrupt++
				continue
			}
			c.applyRoster(r)

		case MsgStartSession:
			start, err := decodeStartSession(body)
			if err != nil {
				c.stats.Corrupt++
				continue
			}
			if c.ctx.Active() && start.Seed == c.ctx.Runtime.Seed {
				continue
			}
			c.begin(start, now)

		case MsgHostTics:
			if !c.ctx.Active() {
				continue
			}
			msg, err := decodeHostToClient(body)
			if err != nil {
				c.stats.Corrupt++
				c.logger.Debug("dropping message", "err", err)
				continue
			}
			if err := c.merge(msg, now); err != nil {
				return err
			}

		case MsgEndSession:
			if c.ctx.Active() {
				c.finish(now, EndHostClosed, nil)
			}
		}
	}
}

// CanProduce reports whether the next local tic fits the window.
func (c *Client) CanProduce() bool {
	return c.ctx.canProduce()
}

// Produce stores the next local command.
func (c *Client) Produce(cmd core.Ticcmd) error {
	if !c.ctx.Active() {
		return ErrNotActive
	}
	if !c.ctx.canProduce() {
		return fmt.Errorf("%w: window full at tic %d", ErrTransportStall, c.Produced())
	}
	c.ctx.produce(cmd)
	return nil
}

// Send reports the confirmed horizon and the unacknowledged local commands.
// Unchanged state is not resent until the resend guard expires.
func (c *Client) Send(now time.Time) error {
	if c.closed {
		return ErrSessionClosed
	}
	if !c.ctx.Active() {
		return nil
	}

	local := c.ctx.LocalSlot()
	key := sendKey{local.Received, local.Produced}
	c.quiet++
	if c.sentOnce && key == c.last && c.quiet < c.cfg.ResendGuard {
		return nil
	}
	if c.sentOnce && key == c.last {
		c.stats.Forced++
	}

	n := min(local.Produced-local.Received, c.ctx.window.Depth(), MaxTicsPerMessage)
	msg := ClientToHost{ReceivedHorizon: int32(local.Received), Tics: make([]core.Ticcmd, max(n, 0))}
	for i := range msg.Tics {
		msg.Tics[i] = c.ctx.window.Get(c.ctx.Local, local.Received+i)
	}
	if err := c.link.Send(msg.Encode()); err != nil {
		return c.fail(now, EndLinkLost, fmt.Errorf("%w: %v", ErrSessionClosed, err))
	}

	c.last = key
	c.sentOnce = true
	c.quiet = 0
	c.stats.Sends++
	return nil
}

// Exchange runs Receive followed by Send.
func (c *Client) Exchange(now time.Time) error {
	if err := c.Receive(now); err != nil {
		return err
	}
	return c.Send(now)
}

// Advance consumes the next consensus tic.
func (c *Client) Advance() (core.TicFrame, error) {
	return c.ctx.advance(c.Consensus())
}

// Leave ends the session locally and disconnects from the host.
func (c *Client) Leave(now time.Time) {
	if c.closed {
		return
	}
	if c.ctx.Active() {
		c.finish(now, EndCompleted, nil)
	}
	c.link.Close()
	c.closed = true
	c.events.Close()
}

func (c *Client) applyRoster(r SetPlayerRoster) {
	if c.ctx.Active() {
		return
	}
	c.ctx.Local = int(r.LocalPlayerIndex)
	for i := range c.ctx.Slots {
		s := &c.ctx.Slots[i]
		if r.InGameMask&(1<<i) == 0 {
			*s = PlayerSlot{Index: i}
			continue
		}
		s.Role = RoleClient
		s.Name = r.PeerNames[i]
		if i == int(r.HostIndex) {
			s.Role = RoleHost
			s.Name = r.HostName
		}
		s.State = transport.StateConnected
	}
	c.events.Push(RosterChangedEvent{Slots: c.ctx.Roster()})
}

func (c *Client) begin(start StartSession, now time.Time) {
	depth := int(start.BackupTics)
	if depth <= 0 {
		depth = core.DefaultBackupTics
	}
	if depth != c.ctx.window.Depth() {
		c.ctx.window = ticwindow.New(core.MaxPlayers, depth)
	}
	c.ctx.Runtime = core.RuntimeConfig{TicRate: int(start.TicRate), BackupTics: depth, Seed: start.Seed}
	c.ctx.Ruleset = start.Ruleset

	for i := range c.ctx.Slots {
		s := &c.ctx.Slots[i]
		if start.InGameMask&(1<<i) == 0 {
			if i != c.ctx.Local {
				*s = PlayerSlot{Index: i}
			}
			continue
		}
		if s.Role == RoleUnused {
			s.Role = RoleClient
		}
	}
	if start.InGameMask&(1<<c.ctx.Local) == 0 {
		c.logger.Warn("start mask does not include local slot", "slot", c.ctx.Local, "mask", start.InGameMask)
	}

	c.ctx.begin(now)
	c.maxRBA = 0
	c.sentOnce, c.quiet = false, 0

	c.logger.Info("session started", "seed", start.Seed, "slot", c.ctx.Local, "rules", start.Ruleset)
	c.events.Push(SessionStartedEvent{SessionID: c.ctx.SessionID, Seed: start.Seed, Local: c.ctx.Local, Players: c.ctx.PlayerNames()})
}

func (c *Client) merge(m HostToClient, now time.Time) error {
	rba := int(m.ReceivedByAll)
	if rba < c.ctx.Applied() {
		err := fmt.Errorf("%w: host horizon %d below applied %d", ErrProtocolDesync, rba, c.ctx.Applied())
		return c.fail(now, EndDesync, err)
	}

	local := c.ctx.LocalSlot()
	start := int(m.StartTic)
	end := start + int(m.NumNewTics)

	switch {
	case start > local.Received:
		c.stats.Gaps++
	case end <= local.Received:
		if m.NumNewTics > 0 {
			c.stats.Duplicates++
		}
	default:
		for i := 0; i < int(m.NumNewTics); i++ {
			tic := start + i
			if tic < local.Received {
				continue
			}
			if tic >= local.Produced || !c.ctx.window.Writable(tic, c.ctx.Applied()) {
				break
			}
			for k, idx := range m.PeerPlayerIndex {
				if int(idx) == c.ctx.Local {
					continue
				}
				c.ctx.window.Put(int(idx), tic, m.Tics[k][i])
			}
			local.Received = tic + 1
		}
	}
	if rba > c.maxRBA {
		c.maxRBA = rba
	}

	for i := range c.ctx.Slots {
		s := &c.ctx.Slots[i]
		if i == c.ctx.Local || !s.InGame() {
			continue
		}
		s.Produced = local.Received
		if m.ConnectivityMask&(1<<i) == 0 && !s.Departed {
			s.Departed = true
			s.DepartedAt = local.Received
			s.State = transport.StateClosing
			c.logger.Info("peer left session", "slot", i, "name", s.Name)
			c.events.Push(PeerDroppedEvent{Slot: i, Name: s.Name, DepartedAt: s.DepartedAt, Reason: "left"})
		}
	}
	return nil
}

// finish leaves active play but keeps the link, ready for another StartSession.
func (c *Client) finish(now time.Time, reason EndReason, err error) {
	c.ctx.end()
	c.save(now, reason, err)
	c.events.Push(SessionEndedEvent{Reason: reason, Err: err, TicsApplied: c.ctx.Applied()})
	c.logger.Info("session ended", "reason", reason, "tics", c.ctx.Applied())
}

// fail tears the session down: close the link and return to pre-game.
func (c *Client) fail(now time.Time, reason EndReason, err error) error {
	if c.closed {
		return err
	}
	c.logger.Error("session torn down", "reason", reason, "err", err)
	if c.ctx.Active() {
		c.finish(now, reason, err)
	} else {
		c.events.Push(SessionEndedEvent{Reason: reason, Err: err, TicsApplied: c.ctx.Applied()})
	}
	c.link.Close()
	c.closed = true
	return err
}

func (c *Client) save(now time.Time, reason EndReason, err error) {
	if c.saver == nil {
		return
	}
	res := resultFrom(c.ctx, c.cfg.Name, c.ctx.Runtime.Seed, reason, err, now)
	if serr := c.saver.SaveSessionResult(res); serr != nil {
		c.logger.Error("saving session result", "err", serr)
	}
}
