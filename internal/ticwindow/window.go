// Package ticwindow provides the fixed-depth ring buffer that holds every player
// slot's tic commands between the moment they are produced (or received) and the
// moment the simulation consumes them.
//
// The window has no internal synchronization. Each slot has exactly one writer
// (the local input path or that slot's remote-read path) and one reader (the
// simulation driver), all running on the frame loop goroutine.
package ticwindow

import "github.com/vovakirdan/lockstep/internal/core"

// Window stores depth commands per slot, indexed by tic mod depth.
type Window struct {
	depth int
	slots [][]core.Ticcmd
}

// New creates a window for numSlots player slots with the given depth.
func New(numSlots, depth int) *Window {
	if numSlots < 1 {
		numSlots = 1
	}
	if depth < 1 {
		depth = core.DefaultBackupTics
	}
	w := &Window{
		depth: depth,
		slots: make([][]core.Ticcmd, numSlots),
	}
	for i := range w.slots {
		w.slots[i] = make([]core.Ticcmd, depth)
	}
	return w
}

// Depth returns the ring depth (BACKUPTICS).
func (w *Window) Depth() int {
	return w.depth
}

// Slots returns the number of player slots.
func (w *Window) Slots() int {
	return len(w.slots)
}

// Put stores cmd for (slot, tic), unconditionally overwriting whatever was there.
// Callers check Writable first; an unread entry overwritten here is lost.
func (w *Window) Put(slot, tic int, cmd core.Ticcmd) {
	w.slots[slot][w.index(tic)] = cmd
}

// Get returns the command stored for (slot, tic).
// Only tics in [applied, produced) that are not older than produced-depth are meaningful.
func (w *Window) Get(slot, tic int) core.Ticcmd {
	return w.slots[slot][w.index(tic)]
}

// Writable reports whether writing tic leaves every unconsumed entry intact,
// i.e. the entry it replaces (tic-depth) has already been applied.
func (w *Window) Writable(tic, applied int) bool {
	return tic >= 0 && tic < applied+w.depth
}

// Reset clears every slot.
func (w *Window) Reset() {
	for i := range w.slots {
		clear(w.slots[i])
	}
}

func (w *Window) index(tic int) int {
	i := tic % w.depth
	if i < 0 {
		i += w.depth
	}
	return i
}
