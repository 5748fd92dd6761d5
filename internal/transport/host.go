package transport

import (
	"errors"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/logging"
)

// AssignFunc picks a player slot for a newly paired peer. Returning an error
// rejects the peer.
type AssignFunc func(peer PeerID, name string) (slot int, err error)

// HostConfig configures the host side of the link.
type HostConfig struct {
	SessionID   uint32
	SessionName string
	HostName    string

	// Capacity is the number of remote peers accepted, at most core.MaxPlayers-1.
	Capacity int

	Ruleset core.Ruleset
	Runtime core.RuntimeConfig

	AdvertiseInterval time.Duration
	KeepaliveInterval time.Duration

	// PeerTimeout drops a peer that has been silent this long.
	PeerTimeout time.Duration
}

// HostStats counts link-level traffic.
type HostStats struct {
	Received  int
	Corrupt   int
	Rejected  int
	Timeouts  int
	Adverts   int
	Overflows int
}

type hostPeer struct {
	id       PeerID
	addr     Addr
	name     string
	slot     int
	lastSeen time.Time
	lastSent time.Time
	sent     bool // something went out since the last Service pass
}

const maxInbox = 1024

// HostLink is the host endpoint: it advertises while it has room, pairs
// clients, tracks their liveness and moves data payloads.
type HostLink struct {
	medium    Medium
	cfg       HostConfig
	sm        StateMachine
	assign    AssignFunc
	accepting bool

	peers  map[PeerID]*hostPeer
	byAddr map[Addr]PeerID
	nextID PeerID

	inbox      []Packet
	events     eventQueue
	lastAdvert time.Time
	stats      HostStats
	logger     *log.Logger
}

// NewHostLink creates a host endpoint on medium.
func NewHostLink(medium Medium, cfg HostConfig, logger *log.Logger) *HostLink {
	if cfg.Capacity <= 0 || cfg.Capacity > core.MaxPlayers-1 {
		cfg.Capacity = core.MaxPlayers - 1
	}
	return &HostLink{
		medium:    medium,
		cfg:       cfg,
		accepting: true,
		peers:     make(map[PeerID]*hostPeer),
		byAddr:    make(map[Addr]PeerID),
		nextID:    1,
		logger:    logging.OrDiscard(logger).WithPrefix("host-link"),
	}
}

// SetAssigner installs the slot assignment callback.
func (h *HostLink) SetAssigner(fn AssignFunc) {
	h.assign = fn
}

// SetAccepting controls whether new peers may pair. A host that is not
// accepting stops advertising.
func (h *HostLink) SetAccepting(accept bool) {
	h.accepting = accept
}

// Open starts advertising.
func (h *HostLink) Open(now time.Time) error {
	if err := h.sm.To(StateDiscovering); err != nil {
		return err
	}
	h.advertise(now)
	h.logger.Info("advertising session", "session", h.cfg.SessionID, "name", h.cfg.SessionName)
	return nil
}

// State returns the link state.
func (h *HostLink) State() ConnState {
	return h.sm.State()
}

// Stats returns traffic counters.
func (h *HostLink) Stats() HostStats {
	return h.stats
}

// PeerCount returns the number of paired peers.
func (h *HostLink) PeerCount() int {
	return len(h.peers)
}

// Service processes inbound datagrams, expires silent peers, sends keepalives
// and advertisements. It never blocks.
func (h *HostLink) Service(now time.Time) {
	if h.sm.State() == StateIdle {
		return
	}
	for {
		d, ok := h.medium.Poll()
		if !ok {
			break
		}
		h.handle(d, now)
	}

	for _, p := range h.sortedPeers() {
		if h.cfg.PeerTimeout > 0 && now.Sub(p.lastSeen) > h.cfg.PeerTimeout {
			h.stats.Timeouts++
			h.logger.Warn("peer timed out", "peer", p.id, "slot", p.slot, "silent", now.Sub(p.lastSeen))
			h.remove(p, "timeout", true)
			continue
		}
		if p.sent {
			p.lastSent, p.sent = now, false
		} else if h.cfg.KeepaliveInterval > 0 && now.Sub(p.lastSent) >= h.cfg.KeepaliveInterval {
			_ = h.sendFrame(p, KindPing, nil)
			p.lastSent, p.sent = now, false
		}
	}

	h.updateState()
	if h.sm.State() == StateDiscovering && now.Sub(h.lastAdvert) >= h.cfg.AdvertiseInterval {
		h.advertise(now)
	}
}

// Recv returns the next data payload.
func (h *HostLink) Recv() (Packet, bool) {
	if len(h.inbox) == 0 {
		return Packet{}, false
	}
	p := h.inbox[0]
	h.inbox[0] = Packet{}
	h.inbox = h.inbox[1:]
	return p, true
}

// Send delivers payload to one peer.
func (h *HostLink) Send(peer PeerID, payload []byte) error {
	p, ok := h.peers[peer]
	if !ok {
		return ErrUnknownPeer
	}
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	return h.sendFrame(p, KindData, payload)
}

// Drop disconnects a peer on the owner's request. No event is queued.
func (h *HostLink) Drop(peer PeerID) {
	if p, ok := h.peers[peer]; ok {
		h.remove(p, "dropped", false)
	}
}

// Events drains queued link events.
func (h *HostLink) Events() []Event {
	return h.events.drain()
}

// Close disconnects every peer and stops advertising.
func (h *HostLink) Close() error {
	if h.sm.State() == StateIdle {
		return nil
	}
	for _, p := range h.sortedPeers() {
		h.remove(p, "host closed", false)
	}
	if err := h.sm.To(StateClosing); err != nil {
		return err
	}
	return h.sm.To(StateIdle)
}

func (h *HostLink) handle(d Datagram, now time.Time) {
	f, err := DecodeFrame(d.Data)
	if err != nil {
		h.stats.Corrupt++
		return
	}
	h.stats.Received++

	if f.Kind == KindScanRequest {
		if f.Session == 0 || f.Session == h.cfg.SessionID {
			h.answerScan(d.From)
		}
		return
	}
	if f.Session != h.cfg.SessionID {
		return
	}

	if f.Kind == KindConnectRequest {
		h.handleConnect(d.From, f.Body, now)
		return
	}

	id, ok := h.byAddr[d.From]
	if !ok {
		return
	}
	p := h.peers[id]
	p.lastSeen = now

	switch f.Kind {
	case KindDisconnect:
		h.logger.Info("peer left", "peer", p.id, "slot", p.slot)
		h.remove(p, "left", true)
	case KindData:
		if len(h.inbox) >= maxInbox {
			h.inbox = h.inbox[1:]
			h.stats.Overflows++
		}
		h.inbox = append(h.inbox, Packet{Peer: id, Data: append([]byte(nil), f.Body...)})
	}
}

func (h *HostLink) handleConnect(from Addr, body []byte, now time.Time) {
	req, err := decodeConnectRequest(body)
	if err != nil {
		h.stats.Corrupt++
		return
	}

	// A retried request from a paired address gets the same answer.
	if id, ok := h.byAddr[from]; ok {
		p := h.peers[id]
		p.lastSeen = now
		_ = h.sendFrame(p, KindConnectAccept, connectAccept{Slot: uint8(p.slot), Capacity: uint8(h.cfg.Capacity + 1)}.encode())
		return
	}

	reject := func(reason RejectReason) {
		h.stats.Rejected++
		h.logger.Info("rejecting peer", "addr", from, "name", req.Name, "reason", reason)
		_ = h.medium.SendTo(from, EncodeFrame(KindConnectReject, h.cfg.SessionID, []byte{byte(reason)}))
	}

	switch {
	case req.Version != ProtocolVersion:
		reject(RejectVersion)
		return
	case !h.accepting:
		reject(RejectInProgress)
		return
	case len(h.peers) >= h.cfg.Capacity:
		reject(RejectFull)
		return
	}

	id := h.nextID
	slot := len(h.peers) + 1
	if h.assign != nil {
		s, err := h.assign(id, req.Name)
		if err != nil {
			reject(RejectFull)
			return
		}
		slot = s
	}
	h.nextID++

	p := &hostPeer{id: id, addr: from, name: req.Name, slot: slot, lastSeen: now, lastSent: now}
	h.peers[id] = p
	h.byAddr[from] = id
	_ = h.sendFrame(p, KindConnectAccept, connectAccept{Slot: uint8(slot), Capacity: uint8(h.cfg.Capacity + 1)}.encode())
	h.events.push(Event{Kind: EventPeerJoined, Peer: id, Slot: slot, Name: req.Name})
	h.logger.Info("peer joined", "peer", id, "slot", slot, "name", req.Name, "addr", from)

	h.updateState()
}

func (h *HostLink) remove(p *hostPeer, reason string, notify bool) {
	_ = h.medium.SendTo(p.addr, EncodeFrame(KindDisconnect, h.cfg.SessionID, nil))
	delete(h.peers, p.id)
	delete(h.byAddr, p.addr)
	if notify {
		h.events.push(Event{Kind: EventPeerLeft, Peer: p.id, Slot: p.slot, Name: p.name, Reason: reason})
	}
	h.updateState()
}

func (h *HostLink) sendFrame(p *hostPeer, kind Kind, body []byte) error {
	if err := h.medium.SendTo(p.addr, EncodeFrame(kind, h.cfg.SessionID, body)); err != nil {
		return err
	}
	p.sent = true
	return nil
}

// updateState keeps the link advertising exactly while it has room.
func (h *HostLink) updateState() {
	state := h.sm.State()
	if state != StateDiscovering && state != StateConnected {
		return
	}
	full := !h.accepting || len(h.peers) >= h.cfg.Capacity
	switch {
	case full && state == StateDiscovering:
		_ = h.sm.To(StateConnected)
	case !full && state == StateConnected:
		_ = h.sm.To(StateDiscovering)
	}
}

func (h *HostLink) advertise(now time.Time) {
	adv, _ := h.advert().MarshalBinary()
	if err := h.medium.Broadcast(EncodeFrame(KindAdvertise, h.cfg.SessionID, adv)); err != nil && !errors.Is(err, ErrClosed) {
		h.logger.Debug("advertise failed", "err", err)
	}
	h.lastAdvert = now
	h.stats.Adverts++
}

func (h *HostLink) advert() Advertisement {
	return Advertisement{
		Flags:       h.cfg.Ruleset.PackFlags(),
		Map:         h.cfg.Ruleset.Map,
		PlayerCount: uint8(len(h.peers) + 1),
		Capacity:    uint8(h.cfg.Capacity + 1),
		Version:     ProtocolVersion,
		Name:        h.cfg.SessionName,
	}
}

func (h *HostLink) answerScan(to Addr) {
	adv, _ := h.advert().MarshalBinary()
	_ = h.medium.SendTo(to, EncodeFrame(KindAdvertise, h.cfg.SessionID, adv))

	players := []string{h.cfg.HostName}
	for _, p := range h.sortedPeers() {
		players = append(players, p.name)
	}
	body, err := EncodeScanDetails(ScanDetails{
		Version:     ProtocolVersion,
		SessionName: h.cfg.SessionName,
		HostName:    h.cfg.HostName,
		Ruleset:     h.cfg.Ruleset,
		TicRate:     h.cfg.Runtime.TicRate,
		BackupTics:  h.cfg.Runtime.BackupTics,
		Players:     players,
	})
	if err != nil {
		h.logger.Error("scan response", "err", err)
		return
	}
	_ = h.medium.SendTo(to, EncodeFrame(KindScanResponse, h.cfg.SessionID, body))
}

func (h *HostLink) sortedPeers() []*hostPeer {
	out := make([]*hostPeer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
