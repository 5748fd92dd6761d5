package transport

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/lockstep/internal/logging"
)

// Every UDP datagram starts with a two-byte magic and the sender's instance
// nonce, so a node can discard its own broadcasts.
const (
	udpMagic0     = 'L'
	udpMagic1     = 'S'
	udpHeaderSize = 6
	udpMaxPacket  = 1500
)

// UDPConfig configures a UDP medium.
type UDPConfig struct {
	// Listen is the local address, e.g. ":5029".
	Listen string

	// BroadcastAddr is where Broadcast sends, e.g. "255.255.255.255:5029".
	BroadcastAddr string

	// QueueSize bounds received datagrams waiting for Poll.
	QueueSize int
}

// UDPMedium is a Medium over a UDP socket with broadcast enabled. A reader
// goroutine feeds a bounded queue; when it is full the oldest datagram is
// dropped, which the protocol above tolerates like any other loss.
type UDPMedium struct {
	conn      *net.UDPConn
	broadcast *net.UDPAddr
	nonce     uint32
	queue     chan Datagram
	closed    atomic.Bool
	wg        sync.WaitGroup
	logger    *log.Logger
}

// ListenUDP opens the socket and starts the reader.
func ListenUDP(cfg UDPConfig, logger *log.Logger) (*UDPMedium, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	bcast, err := net.ResolveUDPAddr("udp4", cfg.BroadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: bad broadcast address %q: %w", cfg.BroadcastAddr, err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(context.Background(), "udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("transport: cannot listen on %q: %w", cfg.Listen, err)
	}

	var nb [4]byte
	if _, err := rand.Read(nb[:]); err != nil {
		pc.Close()
		return nil, fmt.Errorf("transport: cannot create nonce: %w", err)
	}

	m := &UDPMedium{
		conn:      pc.(*net.UDPConn),
		broadcast: bcast,
		nonce:     binary.LittleEndian.Uint32(nb[:]),
		queue:     make(chan Datagram, cfg.QueueSize),
		logger:    logging.OrDiscard(logger),
	}

	m.wg.Add(1)
	go m.readLoop()

	m.logger.Debug("udp medium listening", "addr", m.conn.LocalAddr(), "broadcast", bcast)
	return m, nil
}

// Addr returns the local socket address.
func (m *UDPMedium) Addr() Addr {
	return Addr(m.conn.LocalAddr().String())
}

// Broadcast sends data to the broadcast address.
func (m *UDPMedium) Broadcast(data []byte) error {
	return m.write(m.broadcast, data)
}

// SendTo sends data to a single address.
func (m *UDPMedium) SendTo(to Addr, data []byte) error {
	addr, err := net.ResolveUDPAddr("udp4", string(to))
	if err != nil {
		return fmt.Errorf("transport: bad address %q: %w", to, err)
	}
	return m.write(addr, data)
}

func (m *UDPMedium) write(addr *net.UDPAddr, data []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(data)+udpHeaderSize > udpMaxPacket {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, udpHeaderSize, udpHeaderSize+len(data))
	buf[0], buf[1] = udpMagic0, udpMagic1
	binary.LittleEndian.PutUint32(buf[2:], m.nonce)
	buf = append(buf, data...)
	_, err := m.conn.WriteToUDP(buf, addr)
	return err
}

// Poll returns a queued datagram without blocking.
func (m *UDPMedium) Poll() (Datagram, bool) {
	select {
	case d := <-m.queue:
		return d, true
	default:
		return Datagram{}, false
	}
}

// Close stops the reader and closes the socket.
func (m *UDPMedium) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	err := m.conn.Close()
	m.wg.Wait()
	return err
}

func (m *UDPMedium) readLoop() {
	defer m.wg.Done()

	buf := make([]byte, udpMaxPacket)
	for {
		n, from, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if m.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			m.logger.Debug("udp read failed", "err", err)
			continue
		}
		if n < udpHeaderSize || buf[0] != udpMagic0 || buf[1] != udpMagic1 {
			continue
		}
		if binary.LittleEndian.Uint32(buf[2:]) == m.nonce {
			continue
		}

		d := Datagram{From: Addr(from.String()), Data: append([]byte(nil), buf[udpHeaderSize:n]...)}
		select {
		case m.queue <- d:
		default:
			select {
			case <-m.queue:
			default:
			}
			select {
			case m.queue <- d:
			default:
			}
		}
	}
}
