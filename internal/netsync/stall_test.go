package netsync

import (
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
)

func TestStalledClientFreezesConsensus(t *testing.T) {
	r := newRig(t, 1, 1, func(c *HostConfig) { c.StallTimeout = 100 * time.Millisecond })
	r.run(10)
	r.host.Events().Drain()

	r.paused[0] = true
	r.run(2)
	frozen := r.host.Consensus()
	clientProduced := r.host.Context().Slots[1].Produced

	for i := 0; i < 80; i++ {
		r.frame()
		if r.host.Consensus() != frozen {
			t.Fatalf("frame %d: consensus moved from %d to %d while the client is silent", i, frozen, r.host.Consensus())
		}
		if r.host.Produced() > r.host.Applied()+testRuntime().BackupTics {
			t.Fatalf("frame %d: produced %d overran the window (applied %d)", i, r.host.Produced(), r.host.Applied())
		}
	}

	if r.host.Applied() != frozen {
		t.Errorf("Applied() = %d, expected frozen consensus %d", r.host.Applied(), frozen)
	}
	if r.host.Produced() != frozen+testRuntime().BackupTics {
		t.Errorf("Produced() = %d, expected host to run ahead to the window edge %d", r.host.Produced(), frozen+testRuntime().BackupTics)
	}

	var stallErrs int
	for _, err := range r.hostErrs {
		if errors.Is(err, ErrTransportStall) {
			stallErrs++
		}
	}
	if stallErrs == 0 {
		t.Error("full window never surfaced as ErrTransportStall")
	}

	var stalled int
	for _, ev := range r.host.Events().Drain() {
		if e, ok := ev.(PeerStalledEvent); ok {
			if e.Slot != 1 || !errors.Is(e.Err, ErrTransportStall) {
				t.Errorf("unexpected stall event %+v", e)
			}
			stalled++
		}
	}
	if stalled == 0 {
		t.Error("no PeerStalledEvent")
	}
	if !r.host.Context().Slots[1].Stalled {
		t.Error("slot 1 not marked stalled")
	}

	// Nothing unread was overwritten.
	w := r.host.Context().Window()
	for tic := r.host.Applied(); tic < r.host.Produced(); tic++ {
		if got := w.Get(0, tic); got != cmdFor(0, tic) {
			t.Fatalf("host tic %d = %+v, overwritten", tic, got)
		}
	}
	for tic := r.host.Applied(); tic < clientProduced; tic++ {
		if got := w.Get(1, tic); got != cmdFor(1, tic) {
			t.Fatalf("client tic %d = %+v, overwritten", tic, got)
		}
	}
}

func TestStalledClientRecovers(t *testing.T) {
	r := newRig(t, 1, 1, func(c *HostConfig) { c.StallTimeout = 100 * time.Millisecond })
	r.run(10)
	r.paused[0] = true
	r.run(10)
	if !r.host.Context().Slots[1].Stalled {
		t.Fatal("slot 1 not stalled")
	}

	r.paused[0] = false
	r.run(20)
	if r.host.Context().Slots[1].Stalled {
		t.Error("slot 1 still stalled after traffic resumed")
	}

	var recovered bool
	for _, ev := range r.host.Events().Drain() {
		if _, ok := ev.(PeerRecoveredEvent); ok {
			recovered = true
		}
	}
	if !recovered {
		t.Error("no PeerRecoveredEvent")
	}
	if r.host.Applied() <= 20 {
		t.Errorf("session did not resume: applied %d", r.host.Applied())
	}
}

func TestSilentClientDroppedAndReplacedWithEmptyCommands(t *testing.T) {
	r := newRig(t, 1, 1, func(c *HostConfig) {
		c.StallTimeout = 100 * time.Millisecond
		c.DropTimeout = 300 * time.Millisecond
	})
	r.run(10)
	r.paused[0] = true
	r.run(80)

	slot := r.host.Context().Slots[1]
	if !slot.Departed {
		t.Fatal("silent client was not dropped")
	}
	if len(r.net.host.dropped) != 1 || r.net.host.dropped[0] != r.links[0].peer {
		t.Errorf("link drops = %v", r.net.host.dropped)
	}
	if mask := r.host.Context().ConnectivityMask(); mask != 0b01 {
		t.Errorf("ConnectivityMask() = %04b, expected 0001", mask)
	}
	if r.host.Stats().Drops != 1 {
		t.Errorf("Drops = %d", r.host.Stats().Drops)
	}

	// The host carries on alone.
	if r.host.Applied() < 80 {
		t.Errorf("host stuck at %d after drop", r.host.Applied())
	}

	for _, f := range r.hostFrames {
		if !f.InGame[1] {
			t.Fatalf("tic %d: departed slot left the game mask", f.Tic)
		}
		want := cmdFor(1, f.Tic)
		if f.Tic >= slot.DepartedAt {
			want = core.Ticcmd{}
		}
		if f.Cmds[1] != want {
			t.Fatalf("tic %d slot 1 = %+v, expected %+v (departed at %d)", f.Tic, f.Cmds[1], want, slot.DepartedAt)
		}
	}

	var dropped bool
	for _, ev := range r.host.Events().Drain() {
		if e, ok := ev.(PeerDroppedEvent); ok && e.Slot == 1 && e.DepartedAt == slot.DepartedAt {
			dropped = true
		}
	}
	if !dropped {
		t.Error("no PeerDroppedEvent")
	}
}

func TestDepartedPeerSeenByRemainingClient(t *testing.T) {
	r := newRig(t, 1, 2, func(c *HostConfig) {
		c.StallTimeout = 100 * time.Millisecond
		c.DropTimeout = 300 * time.Millisecond
	})
	r.run(10)
	r.paused[1] = true
	r.run(60)

	other := r.clients[0]
	dep := other.Context().Slots[2]
	if !dep.Departed {
		t.Fatal("remaining client did not mark slot 2 departed")
	}
	if other.Applied() < 40 {
		t.Errorf("remaining client stuck at %d", other.Applied())
	}
	n := min(len(r.clientFrames[0]), len(r.hostFrames))
	for tic := 0; tic < n; tic++ {
		if r.clientFrames[0][tic] != r.hostFrames[tic] {
			t.Fatalf("remaining client diverged at tic %d", tic)
		}
	}
}
