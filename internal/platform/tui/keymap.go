package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/lockstep/internal/input"
)

// KeyMapper translates Bubble Tea key messages to player actions.
// This centralizes key bindings and makes them testable.
type KeyMapper struct{}

// NewKeyMapper creates a new key mapper with default bindings.
func NewKeyMapper() *KeyMapper {
	return &KeyMapper{}
}

// MapKey translates a key message to a player action.
// Returns the action (may be ActionNone) and whether it's a quit request.
func (km *KeyMapper) MapKey(msg tea.KeyMsg) (action input.Action, isQuit bool) {
	key := msg.String()

	// Global quit keys
	switch key {
	case "ctrl+c", "q":
		return input.ActionNone, true
	}

	switch key {
	case "w", "up":
		return input.ActionForward, false
	case "s", "down":
		return input.ActionBack, false
	case "left":
		return input.ActionTurnLeft, false
	case "right":
		return input.ActionTurnRight, false
	case "a":
		return input.ActionStrafeLeft, false
	case "d":
		return input.ActionStrafeRight, false
	case "shift+left", "shift+right":
		return input.ActionRun, false
	case " ", "ctrl+@":
		return input.ActionFire, false
	case "e", "enter":
		return input.ActionUse, false
	case "p":
		return input.ActionPause, false
	}

	return input.ActionNone, false
}

// Apply feeds a key message into the producer.
// Terminals report presses without releases, so every key is edge-triggered.
// Returns true if the key was a quit request.
func (km *KeyMapper) Apply(msg tea.KeyMsg, p *input.Producer) bool {
	if n, ok := weaponKey(msg); ok {
		p.SelectWeapon(n)
		return false
	}
	action, isQuit := km.MapKey(msg)
	if isQuit {
		return true
	}
	switch msg.String() {
	case "shift+left":
		p.Press(input.ActionTurnLeft)
	case "shift+right":
		p.Press(input.ActionTurnRight)
	}
	if action != input.ActionNone {
		p.Press(action)
	}
	return false
}

func weaponKey(msg tea.KeyMsg) (int, bool) {
	s := msg.String()
	if len(s) == 1 && s[0] >= '1' && s[0] <= '7' {
		return int(s[0] - '0'), true
	}
	return 0, false
}

// MenuAction represents a menu-specific action derived from input.
type MenuAction int

const (
	MenuActionNone MenuAction = iota
	MenuActionUp
	MenuActionDown
	MenuActionSelect
	MenuActionBack
	MenuActionQuit
)

// MapKeyToMenuAction translates a key to a menu action.
func (km *KeyMapper) MapKeyToMenuAction(msg tea.KeyMsg) MenuAction {
	key := msg.String()

	switch key {
	case "ctrl+c", "q":
		return MenuActionQuit
	case "w", "up", "k": // vim-style k for up
		return MenuActionUp
	case "s", "down", "j": // vim-style j for down
		return MenuActionDown
	case "enter", " ":
		return MenuActionSelect
	case "b", "esc":
		return MenuActionBack
	}

	return MenuActionNone
}
