package netsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/logging"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// HostLink is the transport surface the host coordinator drives.
type HostLink interface {
	Service(now time.Time)
	SetAssigner(fn transport.AssignFunc)
	SetAccepting(accept bool)
	Recv() (transport.Packet, bool)
	Send(peer transport.PeerID, payload []byte) error
	Drop(peer transport.PeerID)
	Events() []transport.Event
}

// HostConfig configures the host coordinator.
type HostConfig struct {
	Runtime     core.RuntimeConfig
	Ruleset     core.Ruleset
	SessionID   uint32
	SessionName string
	HostName    string

	// MaxPeers is the number of client slots offered (1..3).
	MaxPeers int

	// ResendGuard forces a broadcast after this many unchanged frames.
	ResendGuard int

	// ControlResend is the frame interval for repeating roster and
	// StartSession to clients that have not confirmed them.
	ControlResend int

	// StallTimeout marks a silent peer stalled; DropTimeout removes it.
	StallTimeout time.Duration
	DropTimeout  time.Duration
}

// DefaultHostConfig returns the stock host settings.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Runtime:       core.DefaultConfig(),
		SessionName:   "lockstep",
		HostName:      "host",
		MaxPeers:      core.MaxPlayers - 1,
		ResendGuard:   250,
		ControlResend: core.DefaultTicRate,
		StallTimeout:  time.Second,
		DropTimeout:   5 * time.Second,
	}
}

// HostStats counts coordinator activity.
type HostStats struct {
	Corrupt    int
	Merged     int
	Broadcasts int
	Forced     int
	Stalls     int
	Drops      int
}

type broadcastKey struct {
	minProduced int
	minReceived int
	mask        uint8
}

// Host is the authoritative coordinator. It merges every client's commands,
// computes the consensus horizon and relays each client the commands of all
// other slots.
type Host struct {
	link   HostLink
	cfg    HostConfig
	ctx    *SessionContext
	events *EventQueue
	saver  ResultSaver
	logger *log.Logger

	peers map[transport.PeerID]int

	minProduced int
	minReceived int

	last          broadcastKey
	sentOnce      bool
	quiet         int
	controlFrame  int
	rosterDirty   bool
	stallReported bool

	stats HostStats
}

// NewHost creates a host coordinator in the pre-game phase.
func NewHost(link HostLink, cfg HostConfig, logger *log.Logger) *Host {
	def := DefaultHostConfig()
	if cfg.MaxPeers <= 0 || cfg.MaxPeers > core.MaxPlayers-1 {
		cfg.MaxPeers = def.MaxPeers
	}
	if cfg.ResendGuard <= 0 {
		cfg.ResendGuard = def.ResendGuard
	}
	if cfg.ControlResend <= 0 {
		cfg.ControlResend = def.ControlResend
	}

	ctx := NewSessionContext(cfg.Runtime, 0)
	ctx.SessionID = cfg.SessionID
	ctx.Ruleset = cfg.Ruleset
	ctx.Slots[0].Role = RoleHost
	ctx.Slots[0].Name = cfg.HostName
	ctx.Slots[0].State = transport.StateConnected

	h := &Host{
		link:   link,
		cfg:    cfg,
		ctx:    ctx,
		events: NewEventQueue(64),
		logger: logging.OrDiscard(logger).WithPrefix("host"),
		peers:  make(map[transport.PeerID]int),
	}
	link.SetAssigner(h.assignSlot)
	return h
}

// SetResultSaver installs an optional session result sink.
func (h *Host) SetResultSaver(s ResultSaver) {
	h.saver = s
}

// Context exposes the session context.
func (h *Host) Context() *SessionContext {
	return h.ctx
}

// Events returns the session event stream.
func (h *Host) Events() *EventQueue {
	return h.events
}

// Stats returns activity counters.
func (h *Host) Stats() HostStats {
	return h.stats
}

// Active reports whether the session is in active play.
func (h *Host) Active() bool {
	return h.ctx.Active()
}

// Applied returns the applied horizon.
func (h *Host) Applied() int {
	return h.ctx.Applied()
}

// Produced returns the host's own produced horizon.
func (h *Host) Produced() int {
	return h.ctx.LocalSlot().Produced
}

// Consensus returns minReceivedByAll, the horizon every peer holds.
func (h *Host) Consensus() int {
	return h.minReceived
}

// MinProduced returns minProducedByAll.
func (h *Host) MinProduced() int {
	return h.minProduced
}

func (h *Host) assignSlot(peer transport.PeerID, name string) (int, error) {
	if h.ctx.Active() {
		return -1, ErrSessionInProgress
	}
	if len(h.peers) >= h.cfg.MaxPeers {
		return -1, ErrCapacityExceeded
	}
	for i := range h.ctx.Slots {
		s := &h.ctx.Slots[i]
		if s.Role != RoleUnused {
			continue
		}
		s.Role = RoleClient
		s.Name = name
		s.Peer = peer
		s.State = transport.StatePairing
		h.peers[peer] = i
		return i, nil
	}
	return -1, ErrCapacityExceeded
}

// Start seeds the session and moves every paired client into active play.
func (h *Host) Start(now time.Time) error {
	if h.ctx.Active() {
		return ErrSessionInProgress
	}
	h.drainLinkEvents(now)

	seed := h.cfg.Runtime.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	h.ctx.Runtime.Seed = seed
	h.link.SetAccepting(false)
	h.ctx.begin(now)

	h.minProduced, h.minReceived = 0, 0
	h.sentOnce, h.quiet, h.controlFrame = false, 0, 0
	h.stallReported = false

	for _, s := range h.clientSlots() {
		h.sendControl(s)
	}

	h.logger.Info("session started", "session", fmt.Sprintf("%08x", h.cfg.SessionID), "seed", seed, "players", h.ctx.PlayerNames())
	h.events.Push(SessionStartedEvent{SessionID: h.cfg.SessionID, Seed: seed, Local: h.ctx.Local, Players: h.ctx.PlayerNames()})
	return nil
}

// Receive drains link events and every pending client message, then
// recomputes the consensus horizons.
func (h *Host) Receive(now time.Time) error {
	h.link.Service(now)
	h.drainLinkEvents(now)

	for {
		pkt, ok := h.link.Recv()
		if !ok {
			break
		}
		idx, ok := h.peers[pkt.Peer]
		if !ok {
			continue
		}
		typ, body, err := unseal(pkt.Data)
		if err != nil {
			h.stats.Corrupt++
			h.logger.Debug("dropping message", "slot", idx, "err", err)
			continue
		}
		if typ != MsgClientTics || !h.ctx.Active() {
			continue
		}
		msg, err := decodeClientToHost(body)
		if err != nil {
			h.stats.Corrupt++
			h.logger.Debug("dropping message", "slot", idx, "err", err)
			continue
		}
		h.merge(&h.ctx.Slots[idx], msg, now)
	}

	if h.ctx.Active() {
		h.checkStalls(now)
		h.recompute()
	}
	return nil
}

// CanProduce reports whether the host may produce its next tic without
// overwriting an unapplied window entry.
func (h *Host) CanProduce() bool {
	return h.ctx.canProduce()
}

// Produce stores the host's next command. When the window is full it returns
// ErrTransportStall and the command is discarded.
func (h *Host) Produce(cmd core.Ticcmd) error {
	if !h.ctx.Active() {
		return ErrNotActive
	}
	if !h.ctx.canProduce() {
		return h.windowStall()
	}
	h.stallReported = false
	h.ctx.produce(cmd)

	tic := h.Produced() - 1
	for i := range h.ctx.Slots {
		s := &h.ctx.Slots[i]
		if s.InGame() && s.Departed {
			h.ctx.window.Put(i, tic, core.Ticcmd{})
			s.Produced = tic + 1
		}
	}
	return nil
}

// Send relays new commands to each client when the broadcast tuple changed
// or the resend guard expired. In the pre-game phase it refreshes rosters.
func (h *Host) Send(now time.Time) error {
	h.controlFrame++

	if !h.ctx.Active() {
		if h.rosterDirty || h.controlFrame%h.cfg.ControlResend == 0 {
			for _, s := range h.clientSlots() {
				h.sendRoster(s)
			}
			h.rosterDirty = false
		}
		return nil
	}

	if h.controlFrame%h.cfg.ControlResend == 0 {
		for _, s := range h.clientSlots() {
			if !s.startAcked {
				h.sendControl(s)
			}
		}
	}

	key := broadcastKey{h.minProduced, h.minReceived, h.ctx.ConnectivityMask()}
	h.quiet++
	if h.sentOnce && key == h.last && h.quiet < h.cfg.ResendGuard {
		return nil
	}
	if h.sentOnce && key == h.last {
		h.stats.Forced++
	}

	for _, s := range h.clientSlots() {
		h.sendTics(s, key.mask)
	}
	h.last = key
	h.sentOnce = true
	h.quiet = 0
	h.stats.Broadcasts++
	return nil
}

// Exchange runs Receive followed by Send.
func (h *Host) Exchange(now time.Time) error {
	if err := h.Receive(now); err != nil {
		return err
	}
	return h.Send(now)
}

// Advance consumes the next consensus tic.
func (h *Host) Advance() (core.TicFrame, error) {
	return h.ctx.advance(h.minReceived)
}

// End finishes active play, tells every client and records the result.
// Connected clients stay paired for another Start.
func (h *Host) End(now time.Time, reason EndReason) {
	if !h.ctx.Active() {
		return
	}
	for _, s := range h.clientSlots() {
		h.send(s, EndSession{Reason: uint8(reason)}.Encode())
	}
	h.ctx.end()
	h.save(now, reason, nil)
	h.events.Push(SessionEndedEvent{Reason: reason, TicsApplied: h.ctx.Applied()})
	h.logger.Info("session ended", "reason", reason, "tics", h.ctx.Applied())

	for i := range h.ctx.Slots {
		s := &h.ctx.Slots[i]
		if s.Role == RoleClient && s.Departed {
			*s = PlayerSlot{Index: i}
		}
	}
	h.rosterDirty = true
	h.link.SetAccepting(true)
}

func (h *Host) drainLinkEvents(now time.Time) {
	for _, ev := range h.link.Events() {
		idx, ok := h.peers[ev.Peer]
		if !ok {
			continue
		}
		s := &h.ctx.Slots[idx]
		switch ev.Kind {
		case transport.EventPeerJoined:
			s.State = transport.StateConnected
			s.LastHeard = now
			h.rosterDirty = true
			h.events.Push(RosterChangedEvent{Slots: h.ctx.Roster()})

		case transport.EventPeerLeft:
			if h.ctx.Active() {
				h.depart(s, ev.Reason)
				continue
			}
			delete(h.peers, ev.Peer)
			*s = PlayerSlot{Index: idx}
			h.rosterDirty = true
			h.events.Push(RosterChangedEvent{Slots: h.ctx.Roster()})
		}
	}
}

func (h *Host) merge(s *PlayerSlot, msg ClientToHost, now time.Time) {
	if s.Departed {
		return
	}
	s.LastHeard = now
	s.startAcked = true
	if s.Stalled {
		s.Stalled = false
		h.logger.Info("peer recovered", "slot", s.Index)
		h.events.Push(PeerRecoveredEvent{Slot: s.Index})
	}

	start := int(msg.ReceivedHorizon)
	if start > s.Produced {
		h.stats.Corrupt++
		h.logger.Debug("client horizon ahead of its own commands", "slot", s.Index, "received", start, "produced", s.Produced)
		return
	}

	for i, cmd := range msg.Tics {
		tic := start + i
		if tic < s.Produced {
			continue
		}
		if !h.ctx.window.Writable(tic, h.ctx.applied) {
			break
		}
		h.ctx.window.Put(s.Index, tic, cmd)
		s.Produced = tic + 1
		h.stats.Merged++
	}
	if start > s.Received {
		s.Received = start
	}
}

// recompute derives minProducedByAll and minReceivedByAll. Both only move
// forward; departed slots contribute the host's own horizon.
func (h *Host) recompute() {
	minProd := h.Produced()
	for _, s := range h.ctx.Slots {
		if s.Role == RoleClient && s.Connected() && s.Produced < minProd {
			minProd = s.Produced
		}
	}
	minRecv := minProd
	for _, s := range h.ctx.Slots {
		if s.Role == RoleClient && s.Connected() && s.Received < minRecv {
			minRecv = s.Received
		}
	}

	if minProd > h.minProduced {
		h.minProduced = minProd
	}
	if minRecv > h.minProduced {
		minRecv = h.minProduced
	}
	if minRecv > h.minReceived {
		h.minReceived = minRecv
	}
}

func (h *Host) checkStalls(now time.Time) {
	for _, s := range h.clientSlots() {
		silent := now.Sub(s.LastHeard)
		if !s.Stalled && h.cfg.StallTimeout > 0 && silent > h.cfg.StallTimeout {
			s.Stalled = true
			h.stats.Stalls++
			err := fmt.Errorf("%w: slot %d silent for %s", ErrTransportStall, s.Index, silent)
			h.logger.Warn("peer stalled", "slot", s.Index, "name", s.Name, "silent", silent)
			h.events.Push(PeerStalledEvent{Slot: s.Index, Name: s.Name, Err: err})
		}
		if h.cfg.DropTimeout > 0 && silent > h.cfg.DropTimeout {
			h.link.Drop(s.Peer)
			h.depart(s, "stall timeout")
		}
	}
}

// depart removes a peer from active play. Its slot is fed empty commands
// from its produced horizon onward so the others continue without it.
func (h *Host) depart(s *PlayerSlot, reason string) {
	if s.Departed {
		return
	}
	s.Departed = true
	s.DepartedAt = s.Produced
	s.State = transport.StateClosing
	s.Stalled = false
	delete(h.peers, s.Peer)

	for tic := s.Produced; tic < h.Produced(); tic++ {
		h.ctx.window.Put(s.Index, tic, core.Ticcmd{})
	}
	if h.Produced() > s.Produced {
		s.Produced = h.Produced()
	}
	h.stats.Drops++

	h.logger.Warn("peer dropped", "slot", s.Index, "name", s.Name, "departed_at", s.DepartedAt, "reason", reason)
	h.events.Push(PeerDroppedEvent{Slot: s.Index, Name: s.Name, DepartedAt: s.DepartedAt, Reason: reason})
	h.recompute()
}

// windowStall reports a full window once per episode: some peer is holding
// the consensus back by a whole window depth.
func (h *Host) windowStall() error {
	err := fmt.Errorf("%w: window full at tic %d (applied %d)", ErrTransportStall, h.Produced(), h.ctx.Applied())
	if h.stallReported {
		return err
	}
	h.stallReported = true
	for _, s := range h.clientSlots() {
		if s.Received == h.minReceived {
			h.logger.Warn("window full, waiting on peer", "slot", s.Index, "name", s.Name, "received", s.Received)
			h.events.Push(PeerStalledEvent{Slot: s.Index, Name: s.Name, Err: err})
		}
	}
	return err
}

func (h *Host) sendTics(c *PlayerSlot, mask uint8) {
	start := c.Received
	n := h.minProduced - start
	if n < 0 {
		n = 0
	}
	if n > MaxTicsPerMessage {
		n = MaxTicsPerMessage
	}

	msg := HostToClient{
		ReceivedByAll:    int32(h.minReceived),
		StartTic:         int32(start),
		NumNewTics:       int32(n),
		ConnectivityMask: mask,
	}
	for i, s := range h.ctx.Slots {
		if !s.InGame() || i == c.Index {
			continue
		}
		tics := make([]core.Ticcmd, n)
		for t := range tics {
			tics[t] = h.ctx.window.Get(i, start+t)
		}
		msg.PeerPlayerIndex = append(msg.PeerPlayerIndex, uint8(i))
		msg.Tics = append(msg.Tics, tics)
	}
	h.send(c, msg.Encode())
}

func (h *Host) sendControl(s *PlayerSlot) {
	h.sendRoster(s)
	h.send(s, StartSession{
		Ruleset:    h.ctx.Ruleset,
		Seed:       h.ctx.Runtime.Seed,
		TicRate:    uint16(h.ctx.Runtime.TicRate),
		BackupTics: uint16(h.ctx.Runtime.BackupTics),
		InGameMask: h.ctx.InGameMask(),
	}.Encode())
}

func (h *Host) sendRoster(s *PlayerSlot) {
	r := SetPlayerRoster{
		LocalPlayerIndex: uint8(s.Index),
		HostIndex:        uint8(h.ctx.Local),
		HostName:         h.ctx.LocalSlot().Name,
		InGameMask:       h.ctx.InGameMask(),
	}
	for i, p := range h.ctx.Slots {
		r.PeerNames[i] = p.Name
	}
	h.send(s, r.Encode())
}

func (h *Host) send(s *PlayerSlot, payload []byte) {
	if err := h.link.Send(s.Peer, payload); err != nil && !errors.Is(err, transport.ErrUnknownPeer) {
		h.logger.Debug("send failed", "slot", s.Index, "err", err)
	}
}

// clientSlots returns the connected client slots in slot order.
func (h *Host) clientSlots() []*PlayerSlot {
	var out []*PlayerSlot
	for i := range h.ctx.Slots {
		s := &h.ctx.Slots[i]
		if s.Role == RoleClient && s.Connected() {
			out = append(out, s)
		}
	}
	return out
}

func (h *Host) save(now time.Time, reason EndReason, err error) {
	if h.saver == nil {
		return
	}
	res := resultFrom(h.ctx, h.cfg.SessionName, h.ctx.Runtime.Seed, reason, err, now)
	if serr := h.saver.SaveSessionResult(res); serr != nil {
		h.logger.Error("saving session result", "err", serr)
	}
}
