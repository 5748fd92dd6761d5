package transport

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/lockstep/internal/logging"
)

// ClientConfig configures the client side of the link.
type ClientConfig struct {
	Name string

	ScanInterval      time.Duration
	DiscoveryTimeout  time.Duration
	DiscoveryCapacity int

	// PairRetry is how often a connect request is repeated while pairing.
	PairRetry time.Duration
	// PairTimeout gives up on a host that never answers.
	PairTimeout time.Duration

	// HostTimeout declares the host gone after this much silence.
	HostTimeout       time.Duration
	KeepaliveInterval time.Duration
}

// ClientStats counts link-level traffic.
type ClientStats struct {
	Received int
	Corrupt  int
}

// ClientLink is the client endpoint: it scans for sessions, pairs with one
// host and moves data payloads to and from it.
type ClientLink struct {
	medium Medium
	cfg    ClientConfig
	sm     StateMachine
	table  *DiscoveryTable

	session  uint32
	host     Addr
	slot     int
	capacity int

	lastScan    time.Time
	pairStarted time.Time
	lastAttempt time.Time
	hostSeen    time.Time
	lastSent    time.Time
	sent        bool

	inbox  [][]byte
	events eventQueue
	stats  ClientStats
	logger *log.Logger
}

// NewClientLink creates a client endpoint on medium.
func NewClientLink(medium Medium, cfg ClientConfig, logger *log.Logger) *ClientLink {
	return &ClientLink{
		medium: medium,
		cfg:    cfg,
		table:  NewDiscoveryTable(cfg.DiscoveryCapacity, cfg.DiscoveryTimeout),
		slot:   -1,
		logger: logging.OrDiscard(logger).WithPrefix("client-link"),
	}
}

// State returns the link state.
func (c *ClientLink) State() ConnState {
	return c.sm.State()
}

// Sessions lists discovered sessions.
func (c *ClientLink) Sessions() []DiscoveryRecord {
	return c.table.List()
}

// Slot returns the player slot the host assigned, once connected.
func (c *ClientLink) Slot() (int, bool) {
	if c.sm.State() != StateConnected {
		return -1, false
	}
	return c.slot, true
}

// Stats returns traffic counters.
func (c *ClientLink) Stats() ClientStats {
	return c.stats
}

// SessionID returns the session being joined or played.
func (c *ClientLink) SessionID() uint32 {
	return c.session
}

// Scan starts discovery and sends an active scan request.
func (c *ClientLink) Scan(now time.Time) error {
	if err := c.sm.To(StateDiscovering); err != nil {
		return err
	}
	c.sendScan(now)
	return nil
}

// Connect pairs with a discovered session.
func (c *ClientLink) Connect(session uint32, now time.Time) error {
	rec, ok := c.table.Lookup(session)
	if !ok {
		return fmt.Errorf("%w: %08x", ErrUnknownSession, session)
	}
	return c.connect(session, rec.Addr, now)
}

// ConnectAddr pairs with a host at a known address, skipping discovery.
func (c *ClientLink) ConnectAddr(session uint32, addr Addr, now time.Time) error {
	return c.connect(session, addr, now)
}

func (c *ClientLink) connect(session uint32, addr Addr, now time.Time) error {
	if err := c.sm.To(StatePairing); err != nil {
		return err
	}
	c.session = session
	c.host = addr
	c.pairStarted = now
	c.sendConnect(now)
	c.logger.Info("pairing", "session", fmt.Sprintf("%08x", session), "addr", addr)
	return nil
}

// Service processes inbound datagrams and drives scan, pairing and keepalive
// timers. It never blocks.
func (c *ClientLink) Service(now time.Time) {
	if c.sm.State() == StateIdle {
		return
	}
	for {
		d, ok := c.medium.Poll()
		if !ok {
			break
		}
		c.handle(d, now)
	}

	switch c.sm.State() {
	case StateDiscovering:
		for _, id := range c.table.Expire(now) {
			c.events.push(Event{Kind: EventSessionLost, Session: id})
		}
		if now.Sub(c.lastScan) >= c.cfg.ScanInterval {
			c.sendScan(now)
		}

	case StatePairing:
		if c.cfg.PairTimeout > 0 && now.Sub(c.pairStarted) > c.cfg.PairTimeout {
			c.logger.Warn("pairing timed out", "session", fmt.Sprintf("%08x", c.session))
			_ = c.sm.To(StateDiscovering)
			c.events.push(Event{Kind: EventRejected, Session: c.session, Reason: "timeout"})
			return
		}
		if now.Sub(c.lastAttempt) >= c.cfg.PairRetry {
			c.sendConnect(now)
		}

	case StateConnected:
		if c.cfg.HostTimeout > 0 && now.Sub(c.hostSeen) > c.cfg.HostTimeout {
			c.logger.Warn("host timed out", "silent", now.Sub(c.hostSeen))
			c.lose("timeout")
			return
		}
		if c.sent {
			c.lastSent, c.sent = now, false
		} else if c.cfg.KeepaliveInterval > 0 && now.Sub(c.lastSent) >= c.cfg.KeepaliveInterval {
			_ = c.medium.SendTo(c.host, EncodeFrame(KindPing, c.session, nil))
			c.lastSent = now
		}
	}
}

// Recv returns the next data payload from the host.
func (c *ClientLink) Recv() ([]byte, bool) {
	if len(c.inbox) == 0 {
		return nil, false
	}
	p := c.inbox[0]
	c.inbox[0] = nil
	c.inbox = c.inbox[1:]
	return p, true
}

// Send delivers payload to the host.
func (c *ClientLink) Send(payload []byte) error {
	if c.sm.State() != StateConnected {
		return ErrNotConnected
	}
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	if err := c.medium.SendTo(c.host, EncodeFrame(KindData, c.session, payload)); err != nil {
		return err
	}
	c.sent = true
	return nil
}

// Events drains queued link events.
func (c *ClientLink) Events() []Event {
	return c.events.drain()
}

// Close leaves the session and returns to idle.
func (c *ClientLink) Close() {
	state := c.sm.State()
	if state == StateIdle {
		return
	}
	if state == StateConnected || state == StatePairing {
		_ = c.medium.SendTo(c.host, EncodeFrame(KindDisconnect, c.session, nil))
	}
	_ = c.sm.To(StateClosing)
	_ = c.sm.To(StateIdle)
	c.inbox = nil
	c.slot = -1
}

func (c *ClientLink) handle(d Datagram, now time.Time) {
	f, err := DecodeFrame(d.Data)
	if err != nil {
		c.stats.Corrupt++
		return
	}
	c.stats.Received++
	state := c.sm.State()

	switch f.Kind {
	case KindAdvertise:
		if state != StateDiscovering {
			return
		}
		var adv Advertisement
		if err := adv.UnmarshalBinary(f.Body); err != nil {
			return
		}
		if c.table.Observe(f.Session, d.From, adv, now) {
			c.logger.Debug("session discovered", "session", fmt.Sprintf("%08x", f.Session), "name", adv.Name)
		}
		if c.table.needsDetails(f.Session) {
			_ = c.medium.SendTo(d.From, EncodeFrame(KindScanRequest, f.Session, nil))
		}

	case KindScanResponse:
		if state != StateDiscovering {
			return
		}
		details, err := DecodeScanDetails(f.Body)
		if err != nil {
			return
		}
		c.table.SetDetails(f.Session, details, now)

	case KindConnectAccept:
		if state != StatePairing || f.Session != c.session || d.From != c.host {
			return
		}
		acc, err := decodeConnectAccept(f.Body)
		if err != nil {
			c.stats.Corrupt++
			c.logger.Warn("ignoring connect accept", "err", err)
			return
		}
		_ = c.sm.To(StateConnected)
		c.slot = int(acc.Slot)
		c.capacity = int(acc.Capacity)
		c.hostSeen = now
		c.lastSent = now
		c.events.push(Event{Kind: EventConnected, Session: c.session, Slot: c.slot})
		c.logger.Info("paired", "session", fmt.Sprintf("%08x", c.session), "slot", c.slot)

	case KindConnectReject:
		if state != StatePairing || f.Session != c.session {
			return
		}
		reason := RejectReason(0)
		if len(f.Body) == 1 {
			reason = RejectReason(f.Body[0])
		}
		_ = c.sm.To(StateDiscovering)
		c.events.push(Event{Kind: EventRejected, Session: c.session, Reason: reason.String()})
		c.logger.Info("pairing rejected", "reason", reason)

	case KindDisconnect:
		if (state == StateConnected || state == StatePairing) && d.From == c.host && f.Session == c.session {
			c.lose("host disconnected")
		}

	case KindPing:
		if state == StateConnected && d.From == c.host {
			c.hostSeen = now
		}

	case KindData:
		if state == StateConnected && d.From == c.host && f.Session == c.session {
			c.hostSeen = now
			c.inbox = append(c.inbox, append([]byte(nil), f.Body...))
		}
	}
}

func (c *ClientLink) lose(reason string) {
	_ = c.sm.To(StateClosing)
	_ = c.sm.To(StateIdle)
	c.slot = -1
	c.events.push(Event{Kind: EventDisconnected, Session: c.session, Reason: reason})
}

func (c *ClientLink) sendScan(now time.Time) {
	if err := c.medium.Broadcast(EncodeFrame(KindScanRequest, 0, nil)); err != nil {
		c.logger.Debug("scan failed", "err", err)
	}
	c.lastScan = now
}

func (c *ClientLink) sendConnect(now time.Time) {
	req := connectRequest{Version: ProtocolVersion, Name: c.cfg.Name}
	_ = c.medium.SendTo(c.host, EncodeFrame(KindConnectRequest, c.session, req.encode()))
	c.lastAttempt = now
}
