// Package input turns local player input into exactly one tic command per tic.
//
// Physical key handling lives in the platform layer; this package only knows
// semantic actions and accumulated analog deltas, which keeps command building
// deterministic for a given input history.
package input

// Action represents a semantic player action, abstracted from physical key presses.
type Action int

const (
	ActionNone        Action = iota
	ActionForward            // W, Up arrow
	ActionBack               // S, Down arrow
	ActionTurnLeft           // Left arrow
	ActionTurnRight          // Right arrow
	ActionStrafeLeft         // A
	ActionStrafeRight        // D
	ActionStrafe             // Alt - turn keys strafe while held
	ActionRun                // Shift
	ActionFire               // Ctrl, Space
	ActionUse                // E, Enter
	ActionPause              // P
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionForward:
		return "Forward"
	case ActionBack:
		return "Back"
	case ActionTurnLeft:
		return "TurnLeft"
	case ActionTurnRight:
		return "TurnRight"
	case ActionStrafeLeft:
		return "StrafeLeft"
	case ActionStrafeRight:
		return "StrafeRight"
	case ActionStrafe:
		return "Strafe"
	case ActionRun:
		return "Run"
	case ActionFire:
		return "Fire"
	case ActionUse:
		return "Use"
	case ActionPause:
		return "Pause"
	default:
		return "Unknown"
	}
}

// Frame is the set of actions active during one tic.
type Frame struct {
	// Actions maps action types to whether they are active this tic.
	Actions map[Action]bool
}

// NewFrame creates an empty frame.
func NewFrame() Frame {
	return Frame{
		Actions: make(map[Action]bool),
	}
}

// Set marks an action as active.
func (f *Frame) Set(a Action) {
	if f.Actions == nil {
		f.Actions = make(map[Action]bool)
	}
	f.Actions[a] = true
}

// Unset marks an action as inactive.
func (f *Frame) Unset(a Action) {
	delete(f.Actions, a)
}

// Has returns true if the given action is active.
func (f Frame) Has(a Action) bool {
	if f.Actions == nil {
		return false
	}
	return f.Actions[a]
}

// Clear resets all actions.
func (f *Frame) Clear() {
	clear(f.Actions)
}
