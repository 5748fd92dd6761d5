// Package netsync keeps every peer of a session executing the same tic with the
// same commands. A Host, Client or Local coordinator owns a SessionContext and
// advances three horizons per player slot: produced, received and applied.
package netsync

import (
	"fmt"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/ticwindow"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// Role states how a slot participates in the session.
type Role uint8

const (
	RoleUnused Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "unused"
	}
}

// PlayerSlot is one entry of the slot assignment table.
type PlayerSlot struct {
	Index int
	Role  Role
	Name  string
	State transport.ConnState
	Peer  transport.PeerID

	// Produced is the produced horizon: tics [0, Produced) of this slot are
	// in the window.
	Produced int

	// Received is the client's confirmed horizon as last reported to the host
	// (host side) or the merged horizon of every other slot (client side).
	Received int

	LastHeard time.Time
	Stalled   bool

	// Departed slots are fed empty commands from DepartedAt onward.
	Departed   bool
	DepartedAt int

	startAcked bool
}

// InGame reports whether the slot takes part in the simulation.
func (p PlayerSlot) InGame() bool {
	return p.Role != RoleUnused
}

// Connected reports whether the slot is in game and still has a live peer.
func (p PlayerSlot) Connected() bool {
	return p.InGame() && !p.Departed
}

// SessionContext is the explicit state of one session: the slot table, the
// tic window and the applied horizon. It is owned by a single coordinator.
type SessionContext struct {
	SessionID uint32
	Runtime   core.RuntimeConfig
	Ruleset   core.Ruleset
	Slots     [core.MaxPlayers]PlayerSlot
	Local     int

	window    *ticwindow.Window
	applied   int
	active    bool
	startedAt time.Time
}

// NewSessionContext creates a context for the given local slot.
func NewSessionContext(rt core.RuntimeConfig, local int) *SessionContext {
	if rt.BackupTics <= 0 {
		rt.BackupTics = core.DefaultBackupTics
	}
	if rt.TicRate <= 0 {
		rt.TicRate = core.DefaultTicRate
	}
	s := &SessionContext{
		Runtime: rt,
		Local:   local,
		window:  ticwindow.New(core.MaxPlayers, rt.BackupTics),
	}
	for i := range s.Slots {
		s.Slots[i].Index = i
	}
	return s
}

// Window exposes the tic window.
func (s *SessionContext) Window() *ticwindow.Window {
	return s.window
}

// Applied returns the applied horizon.
func (s *SessionContext) Applied() int {
	return s.applied
}

// Active reports whether the session is in active play.
func (s *SessionContext) Active() bool {
	return s.active
}

// StartedAt returns when active play began.
func (s *SessionContext) StartedAt() time.Time {
	return s.startedAt
}

// LocalSlot returns the slot driven by local input.
func (s *SessionContext) LocalSlot() *PlayerSlot {
	return &s.Slots[s.Local]
}

// InGameMask has bit i set for every slot taking part in the game.
func (s *SessionContext) InGameMask() uint8 {
	var m uint8
	for i, p := range s.Slots {
		if p.InGame() {
			m |= 1 << i
		}
	}
	return m
}

// ConnectivityMask has bit i set for every in-game slot that has not departed.
func (s *SessionContext) ConnectivityMask() uint8 {
	var m uint8
	for i, p := range s.Slots {
		if p.Connected() {
			m |= 1 << i
		}
	}
	return m
}

// Roster returns a copy of the in-game slots.
func (s *SessionContext) Roster() []PlayerSlot {
	var out []PlayerSlot
	for _, p := range s.Slots {
		if p.InGame() {
			out = append(out, p)
		}
	}
	return out
}

// PlayerNames returns the names of in-game slots in slot order.
func (s *SessionContext) PlayerNames() []string {
	var out []string
	for _, p := range s.Slots {
		if p.InGame() {
			out = append(out, p.Name)
		}
	}
	return out
}

// begin resets the window and every horizon and enters active play.
func (s *SessionContext) begin(now time.Time) {
	s.window.Reset()
	s.applied = 0
	s.active = true
	s.startedAt = now
	for i := range s.Slots {
		p := &s.Slots[i]
		p.Produced = 0
		p.Received = 0
		p.Stalled = false
		p.Departed = false
		p.DepartedAt = 0
		p.LastHeard = now
		p.startAcked = false
	}
}

// end leaves active play. Horizons are kept for inspection.
func (s *SessionContext) end() {
	s.active = false
}

func (s *SessionContext) canProduce() bool {
	return s.active && s.window.Writable(s.LocalSlot().Produced, s.applied)
}

// produce stores the next local command. Callers check canProduce first.
func (s *SessionContext) produce(cmd core.Ticcmd) {
	p := s.LocalSlot()
	s.window.Put(s.Local, p.Produced, cmd)
	p.Produced++
}

// advance consumes one tic for every in-game slot. limit is the consensus
// horizon.
func (s *SessionContext) advance(limit int) (core.TicFrame, error) {
	if !s.active {
		return core.TicFrame{}, ErrNotActive
	}
	if s.applied >= limit {
		return core.TicFrame{}, fmt.Errorf("%w: applied %d, consensus %d", ErrNothingToRun, s.applied, limit)
	}
	frame := core.TicFrame{Tic: s.applied}
	for i, p := range s.Slots {
		if !p.InGame() {
			continue
		}
		frame.InGame[i] = true
		frame.Cmds[i] = s.window.Get(i, s.applied)
	}
	s.applied++
	return frame, nil
}
