package transport

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
)

// HubOptions shapes the behaviour of an in-memory network.
type HubOptions struct {
	// Delay is the one-way latency applied to every datagram.
	Delay time.Duration

	// Loss is the probability in [0,1] that a datagram is silently dropped.
	Loss float64

	// Corrupt is the probability in [0,1] that one byte of a datagram is flipped.
	Corrupt float64

	// Seed makes loss and corruption reproducible. Each node draws from its
	// own stream, so the outcome does not depend on which sender runs first.
	Seed uint64
}

// MemoryHub is an in-process datagram network. Delivery is governed by the
// hub's clock, so a manual clock steps the whole network deterministically.
// Datagrams due at the same instant are delivered in sender attach order.
type MemoryHub struct {
	mu    sync.Mutex
	clock core.Clock
	opts  HubOptions
	nodes map[Addr]*MemoryMedium
	order []Addr
}

type pending struct {
	deliverAt time.Time
	sender    int
	dgram     Datagram
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub(clock core.Clock, opts HubOptions) *MemoryHub {
	return &MemoryHub{
		clock: clock,
		opts:  opts,
		nodes: make(map[Addr]*MemoryMedium),
	}
}

// Attach adds a node named name to the hub.
func (h *MemoryHub) Attach(name string) (*MemoryMedium, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr := Addr(name)
	if _, exists := h.nodes[addr]; exists {
		return nil, fmt.Errorf("transport: address %q already attached", name)
	}
	index := len(h.order)
	stream := h.opts.Seed ^ 0x9e3779b97f4a7c15 ^ uint64(index+1)*0xbf58476d1ce4e5b9
	m := &MemoryMedium{hub: h, addr: addr, index: index, rng: rand.New(rand.NewPCG(h.opts.Seed, stream))}
	h.nodes[addr] = m
	h.order = append(h.order, addr)
	return m, nil
}

// SetLoss changes the loss probability at runtime.
func (h *MemoryHub) SetLoss(p float64) {
	h.mu.Lock()
	h.opts.Loss = p
	h.mu.Unlock()
}

func (h *MemoryHub) deliver(src *MemoryMedium, to Addr, data []byte) {
	dst, ok := h.nodes[to]
	if !ok || dst.closed || dst.down {
		return
	}
	if h.opts.Loss > 0 && src.rng.Float64() < h.opts.Loss {
		return
	}
	buf := append([]byte(nil), data...)
	if h.opts.Corrupt > 0 && len(buf) > 0 && src.rng.Float64() < h.opts.Corrupt {
		buf[src.rng.IntN(len(buf))] ^= byte(1 + src.rng.IntN(255))
	}
	p := pending{
		deliverAt: h.clock.Now().Add(h.opts.Delay),
		sender:    src.index,
		dgram:     Datagram{From: src.addr, Data: buf},
	}

	// Keep the queue ordered by (deliverAt, sender); one sender stays FIFO.
	i := len(dst.queue)
	for i > 0 {
		q := dst.queue[i-1]
		if q.deliverAt.Before(p.deliverAt) || (q.deliverAt.Equal(p.deliverAt) && q.sender <= p.sender) {
			break
		}
		i--
	}
	dst.queue = slices.Insert(dst.queue, i, p)
}

// MemoryMedium is one node attached to a MemoryHub.
type MemoryMedium struct {
	hub    *MemoryHub
	addr   Addr
	index  int
	rng    *rand.Rand
	queue  []pending
	down   bool
	closed bool
}

// Addr returns the node's address.
func (m *MemoryMedium) Addr() Addr {
	return m.addr
}

// SetDown makes the node go silent: it neither sends nor receives while down.
func (m *MemoryMedium) SetDown(down bool) {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	m.down = down
	if down {
		m.queue = nil
	}
}

// Broadcast sends data to every other node on the hub.
func (m *MemoryMedium) Broadcast(data []byte) error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.down {
		return nil
	}
	for _, addr := range m.hub.order {
		if addr != m.addr {
			m.hub.deliver(m, addr, data)
		}
	}
	return nil
}

// SendTo sends data to one node. Unknown destinations are silently dropped.
func (m *MemoryMedium) SendTo(to Addr, data []byte) error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.down {
		return nil
	}
	m.hub.deliver(m, to, data)
	return nil
}

// Poll returns the next datagram whose delivery time has come.
func (m *MemoryMedium) Poll() (Datagram, bool) {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()

	if m.closed || len(m.queue) == 0 {
		return Datagram{}, false
	}
	if m.queue[0].deliverAt.After(m.hub.clock.Now()) {
		return Datagram{}, false
	}
	d := m.queue[0].dgram
	m.queue[0] = pending{}
	m.queue = m.queue[1:]
	return d, true
}

// Close detaches the node.
func (m *MemoryMedium) Close() error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	m.closed = true
	m.queue = nil
	return nil
}
