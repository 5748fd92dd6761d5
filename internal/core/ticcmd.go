// Package core holds the value types shared by every layer of the lockstep core:
// the per-tic input command, session rulesets, and runtime timing parameters.
package core

import (
	"encoding/binary"
	"fmt"
)

// TiccmdSize is the encoded size of a Ticcmd on the wire.
const TiccmdSize = 5

// Button bits carried in Ticcmd.Buttons.
const (
	BTAttack  uint8 = 1 << 0
	BTUse     uint8 = 1 << 1
	BTChange  uint8 = 1 << 2 // weapon change pending, weapon number in BTWeaponMask
	BTSpecial uint8 = 1 << 7 // special action (pause), other bits reinterpreted

	BTWeaponMask  uint8 = 8 + 16 + 32
	BTWeaponShift       = 3
)

// Ticcmd is one player's input for exactly one tic.
// It is a plain value: copied across the transport boundary and never mutated
// after it has been produced.
type Ticcmd struct {
	ForwardMove int8  // *2048 for move
	SideMove    int8  // *2048 for move
	AngleTurn   int16 // <<16 for angle delta
	Buttons     uint8
}

// IsZero reports whether the command carries no input.
func (c Ticcmd) IsZero() bool {
	return c == Ticcmd{}
}

// Weapon returns the requested weapon when BTChange is set.
func (c Ticcmd) Weapon() (int, bool) {
	if c.Buttons&BTSpecial != 0 || c.Buttons&BTChange == 0 {
		return 0, false
	}
	return int((c.Buttons & BTWeaponMask) >> BTWeaponShift), true
}

// Append appends the little-endian wire form of the command to dst.
func (c Ticcmd) Append(dst []byte) []byte {
	dst = append(dst, byte(c.ForwardMove), byte(c.SideMove))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(c.AngleTurn))
	return append(dst, c.Buttons)
}

// DecodeTiccmd reads one command from the front of src.
func DecodeTiccmd(src []byte) (Ticcmd, error) {
	if len(src) < TiccmdSize {
		return Ticcmd{}, fmt.Errorf("core: short ticcmd: %d bytes", len(src))
	}
	return Ticcmd{
		ForwardMove: int8(src[0]),
		SideMove:    int8(src[1]),
		AngleTurn:   int16(binary.LittleEndian.Uint16(src[2:4])),
		Buttons:     src[4],
	}, nil
}

// String returns a compact representation for logs.
func (c Ticcmd) String() string {
	return fmt.Sprintf("fwd=%d side=%d turn=%d btn=%#02x", c.ForwardMove, c.SideMove, c.AngleTurn, c.Buttons)
}
