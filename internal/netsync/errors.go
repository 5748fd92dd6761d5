package netsync

import (
	"errors"

	"github.com/vovakirdan/lockstep/internal/transport"
)

// Error taxonomy. None of these is process-fatal: each degrades to dropping a
// message, a peer or the session.
var (
	// ErrTransportCorruption: a message failed its integrity check and was dropped.
	ErrTransportCorruption = errors.New("netsync: transport corruption")

	// ErrTransportStall: a peer stopped responding; its horizon is frozen.
	ErrTransportStall = errors.New("netsync: transport stall")

	// ErrProtocolDesync: the host's horizon regressed below what was applied.
	ErrProtocolDesync = errors.New("netsync: protocol desync")

	// ErrCapacityExceeded: no free player slot.
	ErrCapacityExceeded = errors.New("netsync: capacity exceeded")

	// ErrSessionClosed: the session ended or the link to the host was lost.
	ErrSessionClosed = errors.New("netsync: session closed")

	// ErrSessionInProgress: the operation requires the pre-game phase.
	ErrSessionInProgress = errors.New("netsync: session in progress")

	// ErrNotActive: the operation requires active play.
	ErrNotActive = errors.New("netsync: session not active")

	// ErrInvalidSlot: a slot assignment outside the client range.
	ErrInvalidSlot = errors.New("netsync: invalid player slot")

	// ErrNothingToRun: Advance was called with no consensus tic available.
	ErrNothingToRun = errors.New("netsync: no tic ready")
)

// ErrorKind classifies an error for logging and session records.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindCorruption
	KindStall
	KindDesync
	KindCapacity
	KindClosed
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCorruption:
		return "transport_corruption"
	case KindStall:
		return "transport_stall"
	case KindDesync:
		return "protocol_desync"
	case KindCapacity:
		return "capacity_exceeded"
	case KindClosed:
		return "session_closed"
	default:
		return "other"
	}
}

// Kind maps err onto the taxonomy.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransportCorruption):
		return KindCorruption
	case errors.Is(err, ErrTransportStall):
		return KindStall
	case errors.Is(err, ErrProtocolDesync):
		return KindDesync
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacity
	case errors.Is(err, ErrSessionClosed), errors.Is(err, transport.ErrNotConnected), errors.Is(err, transport.ErrClosed):
		return KindClosed
	default:
		return KindOther
	}
}
