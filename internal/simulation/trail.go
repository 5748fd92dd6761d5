package simulation

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"

	"github.com/vovakirdan/lockstep/internal/core"
)

// Arena dimensions in fixed-point units; positions wrap at the edges.
const (
	ArenaSize  = 1 << 16
	spawnInset = 1 << 12
)

// Unit direction vectors for the 8 compass octants of a 16-bit angle.
var (
	dirX = [8]int32{1, 1, 0, -1, -1, -1, 0, 1}
	dirY = [8]int32{0, 1, 1, 1, 0, -1, -1, -1}
)

// Body is one player's state in the trail simulation.
type Body struct {
	X, Y   int32
	Angle  uint16
	Shots  int
	Uses   int
	Weapon int
	Moved  int // distance travelled, in arena units
}

// Trail is a small deterministic simulation: each in-game slot steers a body
// around a wrapping arena, and every tic is folded into a running FNV-64a hash.
// Two peers that execute the same tic frames report the same Checksum.
type Trail struct {
	rules  core.Ruleset
	rng    *rand.Rand
	bodies [core.MaxPlayers]Body
	wind   int32
	tics   int
	sum    uint64
	buf    []byte
}

// NewTrail creates an unseeded trail simulation; call Reset before use.
func NewTrail() *Trail {
	return &Trail{}
}

func init() {
	Register("trail", func() Simulation {
		return NewTrail()
	})
}

// ID implements Simulation.
func (t *Trail) ID() string { return "trail" }

// Title implements Simulation.
func (t *Trail) Title() string { return "Trail" }

// Reset places every body from the session seed.
func (t *Trail) Reset(rt core.RuntimeConfig, rules core.Ruleset) {
	t.rules = rules
	t.rng = rand.New(rand.NewPCG(uint64(rt.Seed), uint64(rules.PackFlags())<<8|uint64(rules.Map)))
	for i := range t.bodies {
		t.bodies[i] = Body{
			X:     int32(spawnInset + t.rng.IntN(ArenaSize-2*spawnInset)),
			Y:     int32(spawnInset + t.rng.IntN(ArenaSize-2*spawnInset)),
			Angle: uint16(t.rng.Uint32()),
		}
	}
	t.wind = 0
	t.tics = 0
	h := fnv.New64a()
	t.sum = h.Sum64()
}

// RunTic applies one frame of commands.
func (t *Trail) RunTic(frame core.TicFrame) {
	if !t.rules.NoMonsters {
		t.wind += int32(t.rng.IntN(3) - 1)
	}
	speed := int32(1)
	if t.rules.Fast {
		speed = 2
	}

	for i := range t.bodies {
		if !frame.InGame[i] {
			continue
		}
		cmd := frame.Cmds[i]
		b := &t.bodies[i]

		b.Angle += uint16(cmd.AngleTurn)
		oct := b.Angle >> 13
		side := (oct + 2) & 7

		dx := dirX[oct]*int32(cmd.ForwardMove) + dirX[side]*int32(cmd.SideMove)
		dy := dirY[oct]*int32(cmd.ForwardMove) + dirY[side]*int32(cmd.SideMove)
		dx = dx*speed + t.wind

		b.X = wrap(b.X + dx)
		b.Y = wrap(b.Y + dy)
		b.Moved += int(abs(dx) + abs(dy))

		if cmd.Buttons&core.BTSpecial != 0 {
			continue
		}
		if cmd.Buttons&core.BTAttack != 0 {
			b.Shots++
		}
		if cmd.Buttons&core.BTUse != 0 {
			b.Uses++
		}
		if w, ok := cmd.Weapon(); ok {
			b.Weapon = w
		}
	}

	t.tics++
	t.fold(frame)
}

func (t *Trail) fold(frame core.TicFrame) {
	b := t.buf[:0]
	b = binary.LittleEndian.AppendUint64(b, t.sum)
	b = binary.LittleEndian.AppendUint32(b, uint32(frame.Tic))
	b = binary.LittleEndian.AppendUint32(b, uint32(t.wind))
	for i := range t.bodies {
		body := &t.bodies[i]
		b = binary.LittleEndian.AppendUint32(b, uint32(body.X))
		b = binary.LittleEndian.AppendUint32(b, uint32(body.Y))
		b = binary.LittleEndian.AppendUint16(b, body.Angle)
		b = binary.LittleEndian.AppendUint32(b, uint32(body.Shots))
		b = append(b, byte(body.Weapon))
	}
	t.buf = b

	h := fnv.New64a()
	h.Write(b)
	t.sum = h.Sum64()
}

// Tics implements Simulation.
func (t *Trail) Tics() int { return t.tics }

// Checksum implements Simulation.
func (t *Trail) Checksum() uint64 { return t.sum }

// Bodies returns a copy of the player state.
func (t *Trail) Bodies() [core.MaxPlayers]Body { return t.bodies }

func wrap(v int32) int32 {
	v %= ArenaSize
	if v < 0 {
		v += ArenaSize
	}
	return v
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
