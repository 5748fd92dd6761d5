package transport

// PeerID identifies a paired peer on the host side.
type PeerID uint32

// Packet is a data payload received from a paired peer.
type Packet struct {
	Peer PeerID
	Data []byte
}

// EventKind tags a link event.
type EventKind uint8

const (
	// EventPeerJoined: host accepted a client.
	EventPeerJoined EventKind = iota + 1
	// EventPeerLeft: a client disconnected or timed out on the host.
	EventPeerLeft
	// EventConnected: client pairing succeeded.
	EventConnected
	// EventRejected: client pairing failed.
	EventRejected
	// EventDisconnected: client lost its host.
	EventDisconnected
	// EventSessionLost: a discovered session stopped advertising.
	EventSessionLost
)

func (k EventKind) String() string {
	switch k {
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventConnected:
		return "connected"
	case EventRejected:
		return "rejected"
	case EventDisconnected:
		return "disconnected"
	case EventSessionLost:
		return "session-lost"
	default:
		return "unknown"
	}
}

// Event is a link lifecycle notification. Links queue events during Service
// and the owner drains them with Events.
type Event struct {
	Kind    EventKind
	Peer    PeerID
	Session uint32
	Slot    int
	Name    string
	Reason  string
}

type eventQueue struct {
	events []Event
}

func (q *eventQueue) push(e Event) {
	q.events = append(q.events, e)
}

// drain returns and clears queued events.
func (q *eventQueue) drain() []Event {
	out := q.events
	q.events = nil
	return out
}
