package netsync

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// fakeNet is a frame-stepped network between one host and its clients.
// Everything sent during frame f is delivered from frame f+delay on.
type fakeNet struct {
	frame    int
	delay    int
	loss     float64
	rng      *rand.Rand
	toHost   []flight
	toClient map[transport.PeerID][]flight
	silent   map[transport.PeerID]bool
	host     *fakeHostLink
	nextPeer transport.PeerID
}

type flight struct {
	at   int
	peer transport.PeerID
	data []byte
}

func newFakeNet(delay int) *fakeNet {
	n := &fakeNet{
		delay:    delay,
		rng:      rand.New(rand.NewPCG(1, 2)),
		toClient: make(map[transport.PeerID][]flight),
		silent:   make(map[transport.PeerID]bool),
		nextPeer: 1,
	}
	n.host = &fakeHostLink{net: n, accepting: true}
	return n
}

func (n *fakeNet) step() {
	n.frame++
}

func (n *fakeNet) lost() bool {
	return n.loss > 0 && n.rng.Float64() < n.loss
}

// join pairs a new client the way the real host link would.
func (n *fakeNet) join(t *testing.T, name string) (*fakeClientLink, int) {
	t.Helper()
	peer := n.nextPeer
	n.nextPeer++
	slot, err := n.host.assign(peer, name)
	if err != nil {
		t.Fatalf("assign(%q) failed: %v", name, err)
	}
	n.host.events = append(n.host.events, transport.Event{Kind: transport.EventPeerJoined, Peer: peer, Slot: slot, Name: name})
	return &fakeClientLink{net: n, peer: peer}, slot
}

// inject queues a raw payload for the host as if peer sent it this frame.
func (n *fakeNet) inject(peer transport.PeerID, data []byte) {
	n.toHost = append(n.toHost, flight{at: n.frame, peer: peer, data: data})
}

// injectClient queues a raw payload for a client, deliverable this frame.
func (n *fakeNet) injectClient(peer transport.PeerID, data []byte) {
	n.toClient[peer] = append(n.toClient[peer], flight{at: n.frame, peer: peer, data: data})
}

type fakeHostLink struct {
	net       *fakeNet
	assign    transport.AssignFunc
	accepting bool
	events    []transport.Event
	dropped   []transport.PeerID
}

func (l *fakeHostLink) Service(time.Time)                  {}
func (l *fakeHostLink) SetAssigner(fn transport.AssignFunc) { l.assign = fn }
func (l *fakeHostLink) SetAccepting(accept bool)            { l.accepting = accept }

func (l *fakeHostLink) Recv() (transport.Packet, bool) {
	q := l.net.toHost
	if len(q) == 0 || q[0].at > l.net.frame {
		return transport.Packet{}, false
	}
	l.net.toHost = q[1:]
	return transport.Packet{Peer: q[0].peer, Data: q[0].data}, true
}

func (l *fakeHostLink) Send(peer transport.PeerID, payload []byte) error {
	if l.net.silent[peer] || l.net.lost() {
		return nil
	}
	l.net.toClient[peer] = append(l.net.toClient[peer], flight{
		at:   l.net.frame + l.net.delay,
		peer: peer,
		data: append([]byte(nil), payload...),
	})
	return nil
}

func (l *fakeHostLink) Drop(peer transport.PeerID) {
	l.dropped = append(l.dropped, peer)
	l.net.silent[peer] = true
}

func (l *fakeHostLink) Events() []transport.Event {
	out := l.events
	l.events = nil
	return out
}

type fakeClientLink struct {
	net    *fakeNet
	peer   transport.PeerID
	closed bool
	events []transport.Event
}

func (l *fakeClientLink) Service(time.Time) {}

func (l *fakeClientLink) Recv() ([]byte, bool) {
	q := l.net.toClient[l.peer]
	if l.closed || len(q) == 0 || q[0].at > l.net.frame {
		return nil, false
	}
	l.net.toClient[l.peer] = q[1:]
	return q[0].data, true
}

func (l *fakeClientLink) Send(payload []byte) error {
	if l.closed {
		return transport.ErrNotConnected
	}
	if l.net.silent[l.peer] || l.net.lost() {
		return nil
	}
	l.net.toHost = append(l.net.toHost, flight{
		at:   l.net.frame + l.net.delay,
		peer: l.peer,
		data: append([]byte(nil), payload...),
	})
	return nil
}

func (l *fakeClientLink) Events() []transport.Event {
	out := l.events
	l.events = nil
	return out
}

func (l *fakeClientLink) Close() {
	l.closed = true
}

// cmdFor is a recognisable command for (slot, tic).
func mustClient(t *testing.T, link ClientLink, slot int, cfg ClientConfig) *Client {
	t.Helper()
	c, err := NewClient(link, slot, cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return c
}

func cmdFor(slot, tic int) core.Ticcmd {
	return core.Ticcmd{ForwardMove: int8(slot + 1), SideMove: int8(tic % 100), AngleTurn: int16(tic), Buttons: uint8(slot)}
}

var testEpoch = time.Unix(1_700_000_000, 0)

func testRuntime() core.RuntimeConfig {
	return core.RuntimeConfig{TicRate: 35, BackupTics: 32, Seed: 42}
}

func testHostConfig(maxPeers int) HostConfig {
	cfg := DefaultHostConfig()
	cfg.Runtime = testRuntime()
	cfg.SessionID = 0xBEEF
	cfg.HostName = "host"
	cfg.MaxPeers = maxPeers
	cfg.StallTimeout = time.Hour
	cfg.DropTimeout = 0
	return cfg
}

func transportLeft(peer transport.PeerID) transport.Event {
	return transport.Event{Kind: transport.EventPeerLeft, Peer: peer, Reason: "left"}
}
