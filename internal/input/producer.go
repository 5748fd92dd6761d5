package input

import (
	"github.com/vovakirdan/lockstep/internal/core"
)

// Movement tables, indexed by speed (0 = walk, 1 = run, 2 = slow turn).
var (
	forwardMove = [2]int{0x19, 0x32}
	sideMove    = [2]int{0x18, 0x28}
	angleTurn   = [3]int{640, 1280, 320}
)

const (
	// MaxPlayerMove clamps forward and side movement.
	MaxPlayerMove = 0x32

	// slowTurnTics is how long a turn key must be held before turning at full speed.
	slowTurnTics = 6

	// mouseTurnScale converts horizontal mouse delta into angle turn units.
	mouseTurnScale = 0x8

	// btsPause is the special-button code for pause (with core.BTSpecial set).
	btsPause uint8 = 1
)

// Producer samples local input into one core.Ticcmd per tic.
//
// Held actions persist until released. Pressed actions are edge-triggered: a
// press that happened since the previous Sample counts for exactly one command,
// even if the key was released before the tic was built. Analog deltas accumulate
// between samples.
//
// Sample must be called at most once per tic; the producer does not guard
// against double invocation.
type Producer struct {
	held    Frame
	pressed Frame

	mouseX int
	mouseY int
	weapon int // 1-based pending weapon selection, 0 = none

	turnHeld int

	// lowResTurn enables the legacy angle quantization ("fudge") so recorded
	// command streams match the old demo format bit for bit.
	lowResTurn bool
	carry      int
}

// NewProducer creates a producer. lowResTurn selects the compatibility quantization.
func NewProducer(lowResTurn bool) *Producer {
	return &Producer{
		held:       NewFrame(),
		pressed:    NewFrame(),
		lowResTurn: lowResTurn,
	}
}

// Hold marks an action as held down until Release.
func (p *Producer) Hold(a Action) {
	p.held.Set(a)
	p.pressed.Set(a)
}

// Release lifts a held action.
func (p *Producer) Release(a Action) {
	p.held.Unset(a)
}

// Press registers a single key press that counts for the next command only.
// Terminals report presses without releases, so the platform layer uses this.
func (p *Producer) Press(a Action) {
	p.pressed.Set(a)
}

// AddMouse accumulates analog motion since the previous sample.
func (p *Producer) AddMouse(dx, dy int) {
	p.mouseX += dx
	p.mouseY += dy
}

// SelectWeapon requests a weapon change (1-based slot number) on the next command.
func (p *Producer) SelectWeapon(n int) {
	if n < 1 || n > 8 {
		return
	}
	p.weapon = n
}

// Reset clears all input state, including the quantization carry.
func (p *Producer) Reset() {
	p.held.Clear()
	p.pressed.Clear()
	p.mouseX, p.mouseY = 0, 0
	p.weapon = 0
	p.turnHeld = 0
	p.carry = 0
}

func (p *Producer) active(a Action) bool {
	return p.held.Has(a) || p.pressed.Has(a)
}

// Sample builds the command for the next tic and clears edge-triggered state.
func (p *Producer) Sample() core.Ticcmd {
	var cmd core.Ticcmd

	speed := 0
	if p.active(ActionRun) {
		speed = 1
	}
	strafe := p.active(ActionStrafe)

	turning := p.active(ActionTurnLeft) || p.active(ActionTurnRight)
	if turning {
		p.turnHeld++
	} else {
		p.turnHeld = 0
	}
	tspeed := speed
	if p.turnHeld < slowTurnTics {
		tspeed = 2
	}

	forward, side, angle := 0, 0, 0

	if strafe {
		if p.active(ActionTurnRight) {
			side += sideMove[speed]
		}
		if p.active(ActionTurnLeft) {
			side -= sideMove[speed]
		}
	} else {
		if p.active(ActionTurnRight) {
			angle -= angleTurn[tspeed]
		}
		if p.active(ActionTurnLeft) {
			angle += angleTurn[tspeed]
		}
	}

	if p.active(ActionForward) {
		forward += forwardMove[speed]
	}
	if p.active(ActionBack) {
		forward -= forwardMove[speed]
	}
	if p.active(ActionStrafeRight) {
		side += sideMove[speed]
	}
	if p.active(ActionStrafeLeft) {
		side -= sideMove[speed]
	}

	if p.active(ActionFire) {
		cmd.Buttons |= core.BTAttack
	}
	if p.active(ActionUse) {
		cmd.Buttons |= core.BTUse
	}
	if p.weapon > 0 {
		cmd.Buttons |= core.BTChange
		cmd.Buttons |= uint8(p.weapon-1) << core.BTWeaponShift
		p.weapon = 0
	}

	forward += p.mouseY
	if strafe {
		side += p.mouseX * 2
	} else {
		angle -= p.mouseX * mouseTurnScale
	}
	p.mouseX, p.mouseY = 0, 0

	cmd.ForwardMove = int8(clamp(forward, -MaxPlayerMove, MaxPlayerMove))
	cmd.SideMove = int8(clamp(side, -MaxPlayerMove, MaxPlayerMove))
	cmd.AngleTurn = p.quantizeTurn(clamp(angle, -32768, 32767))

	if p.pressed.Has(ActionPause) {
		cmd.Buttons = core.BTSpecial | btsPause
	}

	p.pressed.Clear()
	return cmd
}

// quantizeTurn applies the low-resolution turn fudge: the turn is rounded to
// the high byte and the rounding error is carried into the next tic, so the
// long-run turn rate is preserved while every command stays demo-compatible.
func (p *Producer) quantizeTurn(angle int) int16 {
	if !p.lowResTurn {
		return int16(angle)
	}
	// Saturate so rounding up cannot wrap past the largest left turn.
	desired := clamp(angle+p.carry, -32768, 32767-128)
	q := int(int16((desired + 128) & 0xff00))
	p.carry = desired - q
	return int16(q)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
