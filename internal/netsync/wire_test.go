package netsync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
)

func TestSealRejectsChecksumMismatch(t *testing.T) {
	good := seal(MsgClientTics, []byte{1, 2, 3})

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"checksumA", func(b []byte) []byte { b[0] ^= 0x01; return b }},
		{"checksumB", func(b []byte) []byte { b[len(b)-1] ^= 0x80; return b }},
		{"body", func(b []byte) []byte { b[5] ^= 0x04; return b }},
		{"type", func(b []byte) []byte { b[4] = MsgHostTics; return b }},
		{"truncated", func(b []byte) []byte { return b[:6] }},
	}

	if _, _, err := unseal(good); err != nil {
		t.Fatalf("unseal(good) failed: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.mutate(append([]byte(nil), good...))
			if _, _, err := unseal(b); !errors.Is(err, ErrTransportCorruption) {
				t.Errorf("unseal() = %v, expected ErrTransportCorruption", err)
			}
		})
	}
}

func TestChecksumPairLayout(t *testing.T) {
	b := ClientToHost{ReceivedHorizon: 5}.Encode()
	a := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	n := len(b)
	bb := uint32(b[n-4]) | uint32(b[n-3])<<8 | uint32(b[n-2])<<16 | uint32(b[n-1])<<24
	if bb != ^a {
		t.Errorf("checksumB = %08x, expected ^%08x", bb, a)
	}
	if b[4] != MsgClientTics {
		t.Errorf("type byte = %d, expected %d after checksumA", b[4], MsgClientTics)
	}
	// checksumA + type + receivedHorizon + numNewTics + checksumB
	if n != 1+4+4+4+4 {
		t.Errorf("empty ClientToHost is %d bytes", n)
	}
}

func TestClientToHostRoundTrip(t *testing.T) {
	in := ClientToHost{ReceivedHorizon: 17, Tics: []core.Ticcmd{cmdFor(1, 17), cmdFor(1, 18)}}
	typ, body, err := unseal(in.Encode())
	if err != nil || typ != MsgClientTics {
		t.Fatalf("unseal() = %d, %v", typ, err)
	}
	out, err := decodeClientToHost(body)
	if err != nil {
		t.Fatalf("decodeClientToHost() failed: %v", err)
	}
	if out.ReceivedHorizon != 17 || len(out.Tics) != 2 || out.Tics[1] != cmdFor(1, 18) {
		t.Errorf("round trip = %+v", out)
	}
}

func TestHostToClientRoundTrip(t *testing.T) {
	in := HostToClient{
		ReceivedByAll:    40,
		StartTic:         41,
		NumNewTics:       2,
		PeerPlayerIndex:  []uint8{0, 2, 3},
		ConnectivityMask: 0b1011,
	}
	for _, p := range in.PeerPlayerIndex {
		in.Tics = append(in.Tics, []core.Ticcmd{cmdFor(int(p), 41), cmdFor(int(p), 42)})
	}

	_, body, err := unseal(in.Encode())
	if err != nil {
		t.Fatalf("unseal() failed: %v", err)
	}
	out, err := decodeHostToClient(body)
	if err != nil {
		t.Fatalf("decodeHostToClient() failed: %v", err)
	}
	if out.ReceivedByAll != 40 || out.StartTic != 41 || out.NumNewTics != 2 || out.ConnectivityMask != 0b1011 {
		t.Errorf("header = %+v", out)
	}
	if fmt.Sprint(out.PeerPlayerIndex) != "[0 2 3]" {
		t.Errorf("peers = %v", out.PeerPlayerIndex)
	}
	if out.Tics[2][1] != cmdFor(3, 42) {
		t.Errorf("tics[2][1] = %+v", out.Tics[2][1])
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	tooMany := ClientToHost{Tics: make([]core.Ticcmd, MaxTicsPerMessage+1)}
	_, body, _ := unseal(tooMany.Encode())
	if _, err := decodeClientToHost(body); !errors.Is(err, ErrTransportCorruption) {
		t.Errorf("oversized client message error = %v", err)
	}

	short := ClientToHost{Tics: []core.Ticcmd{{}}}
	_, body, _ = unseal(short.Encode())
	if _, err := decodeClientToHost(body[:len(body)-1]); !errors.Is(err, ErrTransportCorruption) {
		t.Errorf("truncated client message error = %v", err)
	}

	badPeer := HostToClient{PeerPlayerIndex: []uint8{7}, Tics: [][]core.Ticcmd{{}}}
	_, body, _ = unseal(badPeer.Encode())
	if _, err := decodeHostToClient(body); !errors.Is(err, ErrTransportCorruption) {
		t.Errorf("bad peer index error = %v", err)
	}
}

func TestControlMessagesRoundTrip(t *testing.T) {
	start := StartSession{
		Ruleset:    core.Ruleset{Mode: core.ModeAltDeath, Skill: core.SkillNightmare, Episode: 3, Map: 9, Respawn: true, TimeLimit: 20},
		Seed:       -123456789,
		TicRate:    35,
		BackupTics: 32,
		InGameMask: 0b0111,
	}
	_, body, err := unseal(start.Encode())
	if err != nil {
		t.Fatalf("unseal() failed: %v", err)
	}
	gotStart, err := decodeStartSession(body)
	if err != nil || gotStart != start {
		t.Errorf("StartSession round trip = %+v, %v", gotStart, err)
	}

	roster := SetPlayerRoster{LocalPlayerIndex: 2, HostIndex: 0, HostName: "alice", InGameMask: 0b101}
	roster.PeerNames[0] = "alice"
	roster.PeerNames[2] = "carol"
	_, body, _ = unseal(roster.Encode())
	gotRoster, err := decodeRoster(body)
	if err != nil || gotRoster != roster {
		t.Errorf("roster round trip = %+v, %v", gotRoster, err)
	}
	if _, err := decodeRoster(body[:len(body)-1]); err == nil {
		t.Error("truncated roster decoded")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("wrap: %w", ErrTransportCorruption), KindCorruption},
		{fmt.Errorf("wrap: %w", ErrTransportStall), KindStall},
		{ErrProtocolDesync, KindDesync},
		{ErrCapacityExceeded, KindCapacity},
		{ErrSessionClosed, KindClosed},
		{errors.New("boom"), KindOther},
	}
	for _, tc := range tests {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %s, expected %s", tc.err, got, tc.want)
		}
	}
}

func TestEventQueueDropsOldest(t *testing.T) {
	q := NewEventQueue(2)
	q.Push(PeerRecoveredEvent{Slot: 1})
	q.Push(PeerRecoveredEvent{Slot: 2})
	q.Push(PeerRecoveredEvent{Slot: 3})

	got := q.Drain()
	if len(got) != 2 || got[0].(PeerRecoveredEvent).Slot != 2 || got[1].(PeerRecoveredEvent).Slot != 3 {
		t.Errorf("Drain() = %+v", got)
	}

	q.Close()
	q.Close()
	q.Push(PeerRecoveredEvent{Slot: 4})
	if len(q.Drain()) != 0 {
		t.Error("closed queue accepted an event")
	}
}

type memorySaver struct {
	results []SessionResult
}

func (m *memorySaver) SaveSessionResult(r SessionResult) error {
	m.results = append(m.results, r)
	return nil
}

func TestLocalSession(t *testing.T) {
	rt := core.RuntimeConfig{TicRate: 35, BackupTics: 4, Seed: 5}
	l := NewLocal(rt, core.Ruleset{Map: 1}, "solo", nil)
	saver := &memorySaver{}
	l.SetResultSaver(saver)

	if err := l.Produce(core.Ticcmd{}); !errors.Is(err, ErrNotActive) {
		t.Errorf("Produce before Start = %v", err)
	}
	l.Start(testEpoch)

	for i := 0; i < 4; i++ {
		if err := l.Produce(cmdFor(0, i)); err != nil {
			t.Fatalf("Produce(%d) failed: %v", i, err)
		}
	}
	if err := l.Produce(core.Ticcmd{}); !errors.Is(err, ErrTransportStall) {
		t.Errorf("Produce into full window = %v, expected ErrTransportStall", err)
	}
	if l.Consensus() != 4 {
		t.Errorf("Consensus() = %d, expected 4", l.Consensus())
	}

	f, err := l.Advance()
	if err != nil || f.Tic != 0 || f.Cmds[0] != cmdFor(0, 0) || !f.InGame[0] || f.InGame[1] {
		t.Errorf("Advance() = %+v, %v", f, err)
	}
	if !l.CanProduce() {
		t.Error("CanProduce() false after advancing")
	}

	l.End(testEpoch.Add(2 * time.Second))
	if len(saver.results) != 1 {
		t.Fatalf("saved %d results", len(saver.results))
	}
	res := saver.results[0]
	if res.TicsApplied != 1 || res.Role != RoleHost || res.Duration != 2*time.Second || res.Seed != 5 {
		t.Errorf("result = %+v", res)
	}
}

func TestHostEndSavesResult(t *testing.T) {
	r := newRig(t, 1, 1, nil)
	saver := &memorySaver{}
	r.host.SetResultSaver(saver)
	r.clients[0].SetResultSaver(saver)
	r.run(10)

	r.host.End(r.now, EndCompleted)
	r.run(2)

	if r.host.Active() || r.clients[0].Active() {
		t.Error("session still active after End")
	}
	if len(saver.results) != 2 {
		t.Fatalf("saved %d results, expected host and client", len(saver.results))
	}
	if saver.results[0].Role != RoleHost || saver.results[1].Role != RoleClient {
		t.Errorf("roles = %s, %s", saver.results[0].Role, saver.results[1].Role)
	}
	if saver.results[1].EndReason != EndHostClosed.String() {
		t.Errorf("client end reason = %q", saver.results[1].EndReason)
	}
	if len(saver.results[0].Players) != 2 {
		t.Errorf("players = %v", saver.results[0].Players)
	}
}
