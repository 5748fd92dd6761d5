// Package transport carries unreliable, unordered datagrams between one host
// and up to three clients. It handles discovery, pairing and peer liveness;
// everything above a data payload belongs to netsync.
package transport

import "errors"

// Addr identifies an endpoint on a medium.
type Addr string

// Datagram is one received datagram.
type Datagram struct {
	From Addr
	Data []byte
}

// Medium is a best-effort datagram medium with broadcast. Poll never blocks.
type Medium interface {
	Addr() Addr
	Broadcast(data []byte) error
	SendTo(to Addr, data []byte) error
	Poll() (Datagram, bool)
	Close() error
}

var (
	// ErrClosed is returned when using a closed medium or link.
	ErrClosed = errors.New("transport: closed")

	// ErrUnknownPeer is returned when addressing a peer that is not paired.
	ErrUnknownPeer = errors.New("transport: unknown peer")

	// ErrUnknownSession is returned when connecting to a session that was never discovered.
	ErrUnknownSession = errors.New("transport: unknown session")

	// ErrNotConnected is returned when sending before pairing completed.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrPayloadTooLarge is returned for payloads over MaxPayload.
	ErrPayloadTooLarge = errors.New("transport: payload too large")
)
