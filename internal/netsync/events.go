package netsync

import "sync"

// Event is a session notification for the UI or CLI layer.
type Event interface {
	sessionEvent()
}

// SessionStartedEvent is sent when active play begins.
type SessionStartedEvent struct {
	SessionID uint32
	Seed      int64
	Local     int
	Players   []string
}

func (SessionStartedEvent) sessionEvent() {}

// RosterChangedEvent is sent whenever the slot table changes in the pre-game phase.
type RosterChangedEvent struct {
	Slots []PlayerSlot
}

func (RosterChangedEvent) sessionEvent() {}

// PeerStalledEvent reports a peer that went silent past the stall threshold.
// Err wraps ErrTransportStall.
type PeerStalledEvent struct {
	Slot int
	Name string
	Err  error
}

func (PeerStalledEvent) sessionEvent() {}

// PeerRecoveredEvent reports a stalled peer that was heard from again.
type PeerRecoveredEvent struct {
	Slot int
}

func (PeerRecoveredEvent) sessionEvent() {}

// PeerDroppedEvent reports a slot that left active play.
type PeerDroppedEvent struct {
	Slot       int
	Name       string
	DepartedAt int
	Reason     string
}

func (PeerDroppedEvent) sessionEvent() {}

// SessionEndedEvent is sent when the session leaves active play.
type SessionEndedEvent struct {
	Reason      EndReason
	Err         error
	TicsApplied int
}

func (SessionEndedEvent) sessionEvent() {}

// EndReason describes why a session ended.
type EndReason int

const (
	EndCompleted  EndReason = iota // local side finished normally
	EndHostClosed                  // host ended the session
	EndLinkLost                    // link to the host was lost
	EndDesync                      // protocol desync detected
	EndCancelled                   // session never reached active play
)

func (r EndReason) String() string {
	switch r {
	case EndCompleted:
		return "Session completed"
	case EndHostClosed:
		return "Host ended session"
	case EndLinkLost:
		return "Lost connection to host"
	case EndDesync:
		return "Protocol desync"
	case EndCancelled:
		return "Session cancelled"
	default:
		return "Unknown"
	}
}

// EventQueue delivers events without ever blocking the frame loop. When the
// buffer is full the oldest event is dropped.
type EventQueue struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventQueue creates a queue holding up to size events.
func NewEventQueue(size int) *EventQueue {
	if size < 1 {
		size = 64
	}
	return &EventQueue{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Push enqueues evt, dropping the oldest event if the buffer is full.
func (q *EventQueue) Push(evt Event) {
	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.events <- evt:
	default:
		select {
		case <-q.events:
		default:
		}
		select {
		case q.events <- evt:
		default:
		}
	}
}

// Events returns the receive side of the queue.
func (q *EventQueue) Events() <-chan Event {
	return q.events
}

// Drain returns every queued event without blocking.
func (q *EventQueue) Drain() []Event {
	var out []Event
	for {
		select {
		case evt := <-q.events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

// Close stops accepting events. Safe to call multiple times.
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
