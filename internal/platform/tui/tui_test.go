package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/input"
	"github.com/vovakirdan/lockstep/internal/netsync"
	"github.com/vovakirdan/lockstep/internal/transport"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMapKey(t *testing.T) {
	km := NewKeyMapper()
	tests := []struct {
		msg      tea.KeyMsg
		expected input.Action
		quit     bool
	}{
		{runes("w"), input.ActionForward, false},
		{tea.KeyMsg{Type: tea.KeyUp}, input.ActionForward, false},
		{tea.KeyMsg{Type: tea.KeyLeft}, input.ActionTurnLeft, false},
		{runes("d"), input.ActionStrafeRight, false},
		{tea.KeyMsg{Type: tea.KeySpace}, input.ActionFire, false},
		{tea.KeyMsg{Type: tea.KeyEnter}, input.ActionUse, false},
		{runes("q"), input.ActionNone, true},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, input.ActionNone, true},
		{runes("x"), input.ActionNone, false},
	}
	for _, tc := range tests {
		action, quit := km.MapKey(tc.msg)
		if action != tc.expected || quit != tc.quit {
			t.Errorf("MapKey(%q) = %v, %v, expected %v, %v", tc.msg.String(), action, quit, tc.expected, tc.quit)
		}
	}
}

func TestApplyFeedsProducer(t *testing.T) {
	km := NewKeyMapper()
	p := input.NewProducer(false)

	km.Apply(tea.KeyMsg{Type: tea.KeySpace}, p)
	km.Apply(runes("w"), p)
	km.Apply(runes("3"), p)

	cmd := p.Sample()
	if cmd.Buttons&core.BTAttack == 0 {
		t.Errorf("cmd %v missing attack", cmd)
	}
	if cmd.ForwardMove <= 0 {
		t.Errorf("cmd %v has no forward move", cmd)
	}
	if w, ok := cmd.Weapon(); !ok || w != 2 {
		t.Errorf("Weapon() = %d, %v, expected slot 3 (index 2)", w, ok)
	}

	if next := p.Sample(); !next.IsZero() {
		t.Errorf("presses leaked into the next tic: %v", next)
	}
	if !km.Apply(runes("q"), p) {
		t.Error("Apply(q) should report quit")
	}
}

func TestMenuActions(t *testing.T) {
	km := NewKeyMapper()
	if km.MapKeyToMenuAction(runes("k")) != MenuActionUp {
		t.Error("k should move up")
	}
	if km.MapKeyToMenuAction(tea.KeyMsg{Type: tea.KeyEnter}) != MenuActionSelect {
		t.Error("enter should select")
	}
	if km.MapKeyToMenuAction(tea.KeyMsg{Type: tea.KeyEsc}) != MenuActionBack {
		t.Error("esc should go back")
	}
}

type fakeBrowser struct {
	scans    int
	services int
	records  []transport.DiscoveryRecord
}

func (b *fakeBrowser) Scan(time.Time) error                  { b.scans++; return nil }
func (b *fakeBrowser) Service(time.Time)                     { b.services++ }
func (b *fakeBrowser) Sessions() []transport.DiscoveryRecord { return b.records }

func TestLobbySelectsSession(t *testing.T) {
	b := &fakeBrowser{records: []transport.DiscoveryRecord{
		{SessionID: 0xA1, Advert: transport.Advertisement{Name: "alpha", PlayerCount: 1, Capacity: 4}},
		{SessionID: 0xB2, Advert: transport.Advertisement{Name: "beta", PlayerCount: 4, Capacity: 4},
			Details: &transport.ScanDetails{SessionName: "beta game", HostName: "bob"}},
	}}
	clock := core.NewManualClock(time.Unix(0, 0))

	var m tea.Model = NewLobbyModel(b, clock, 100, 30)
	m.Init()
	if b.scans != 1 {
		t.Errorf("Init() scanned %d times, expected 1", b.scans)
	}

	m, _ = m.Update(TickMsg(time.Unix(0, 0)))
	if b.services != 1 {
		t.Errorf("tick serviced the link %d times, expected 1", b.services)
	}
	view := m.View()
	for _, want := range []string{"LAN SESSIONS (2)", "alpha", "beta game", "bob", "4/4 full"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("join should quit the lobby")
	}
	rec, ok := m.(LobbyModel).Selected()
	if !ok || rec.SessionID != 0xB2 {
		t.Errorf("Selected() = %x, %v, expected b2", rec.SessionID, ok)
	}
}

func TestLobbyEmpty(t *testing.T) {
	m := NewLobbyModel(&fakeBrowser{}, core.SystemClock{}, 80, 24)
	if !strings.Contains(m.View(), "No sessions found") {
		t.Error("empty lobby should say no sessions were found")
	}
	if _, ok := m.Selected(); ok {
		t.Error("Selected() on a fresh lobby should be false")
	}
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := updated.(LobbyModel).Selected(); ok {
		t.Error("enter with no sessions should not select anything")
	}
}

func TestSessionModelRunsFrames(t *testing.T) {
	frames := 0
	events := netsync.NewEventQueue(8)
	status := func() Status {
		return Status{
			Title:     "friday",
			Role:      "host",
			Active:    true,
			Applied:   frames,
			Consensus: frames + 1,
			Local:     0,
			Slots: []netsync.PlayerSlot{
				{Index: 0, Role: netsync.RoleHost, Name: "alice", State: transport.StateConnected},
				{Index: 1, Role: netsync.RoleClient, Name: "bob", Stalled: true},
			},
		}
	}
	run := func(time.Time) (int, error) { frames++; return 1, nil }
	clock := core.NewManualClock(time.Unix(0, 0))

	var m tea.Model = NewSessionModel(run, status, events, input.NewProducer(false), clock, 35)
	m, _ = m.Update(TickMsg(time.Unix(0, 0)))
	events.Push(netsync.PeerStalledEvent{Slot: 1, Name: "bob"})
	m, _ = m.Update(TickMsg(time.Unix(0, 0)))

	if frames != 2 {
		t.Errorf("ran %d frames, expected 2", frames)
	}
	view := m.View()
	for _, want := range []string{"friday [host]", "alice *", "stalled", "slot 1 (bob) stalled"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	events.Push(netsync.SessionEndedEvent{Reason: netsync.EndHostClosed, TicsApplied: 2})
	m, cmd := m.Update(TickMsg(time.Unix(0, 0)))
	if cmd == nil || !m.(SessionModel).Ended() {
		t.Error("session end should stop the view")
	}
}

func TestSessionModelStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	run := func(time.Time) (int, error) { return 0, boom }
	status := func() Status { return Status{} }

	var m tea.Model = NewSessionModel(run, status, nil, input.NewProducer(false), core.SystemClock{}, 35)
	m, _ = m.Update(TickMsg(time.Now()))
	if !errors.Is(m.(SessionModel).Err(), boom) {
		t.Errorf("Err() = %v, expected boom", m.(SessionModel).Err())
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		ev   netsync.Event
		want string
	}{
		{netsync.SessionStartedEvent{Seed: 5, Players: []string{"a", "b"}}, "seed 5, players a, b"},
		{netsync.PeerDroppedEvent{Slot: 2, Name: "c", DepartedAt: 40, Reason: "timeout"}, "dropped at tic 40: timeout"},
		{netsync.PeerRecoveredEvent{Slot: 1}, "slot 1 recovered"},
		{netsync.SessionEndedEvent{Reason: netsync.EndDesync, Err: netsync.ErrProtocolDesync, TicsApplied: 9}, "after 9 tics"},
	}
	for _, tc := range tests {
		if got := DescribeEvent(tc.ev); !strings.Contains(got, tc.want) {
			t.Errorf("DescribeEvent(%T) = %q, expected to contain %q", tc.ev, got, tc.want)
		}
	}
}
