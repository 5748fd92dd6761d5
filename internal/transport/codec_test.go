package transport

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
)

func TestFrameDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Frame
		wantErr bool
	}{
		{"short", []byte{1, 2}, Frame{}, true},
		{"header only", []byte{byte(KindPing), 0, 0, 0, 0}, Frame{}, true},
		{"unknown kind", make([]byte, FrameHeaderSize), Frame{}, true},
		{"kind past range", append([]byte{byte(KindData) + 1}, make([]byte, FrameHeaderSize-1)...), Frame{}, true},
		{"zero check", append([]byte{byte(KindPing)}, make([]byte, FrameHeaderSize-1)...), Frame{}, true},
		{"ping", EncodeFrame(KindPing, 0x01020304, nil), Frame{Kind: KindPing, Session: 0x01020304, Body: []byte{}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeFrame(tc.data)
			if (err != nil) != tc.wantErr {
				t.Fatalf("DecodeFrame() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("error %v does not wrap ErrMalformed", err)
				}
				return
			}
			if got.Kind != tc.want.Kind || got.Session != tc.want.Session || len(got.Body) != 0 {
				t.Errorf("DecodeFrame() = %+v, expected %+v", got, tc.want)
			}
		})
	}
}

func TestFrameLayout(t *testing.T) {
	b := EncodeFrame(KindData, 0xAABBCCDD, []byte{9})
	head := []byte{byte(KindData), 0xDD, 0xCC, 0xBB, 0xAA}
	if len(b) != FrameHeaderSize+1 || string(b[:5]) != string(head) || b[FrameHeaderSize] != 9 {
		t.Fatalf("EncodeFrame() = % x", b)
	}
	want := crc32.Update(crc32.ChecksumIEEE(head), crc32.IEEETable, []byte{9})
	if got := binary.LittleEndian.Uint32(b[5:9]); got != want {
		t.Errorf("frame check = %08x, expected %08x", got, want)
	}
}

func TestFrameCheckRejectsEveryByteFlip(t *testing.T) {
	good := EncodeFrame(KindConnectAccept, testSession, connectAccept{Slot: 1, Capacity: 4}.encode())
	for i := range good {
		b := append([]byte(nil), good...)
		b[i] ^= 0xee
		if _, err := DecodeFrame(b); !errors.Is(err, ErrMalformed) {
			t.Errorf("flip at byte %d: DecodeFrame() = %v, expected ErrMalformed", i, err)
		}
	}
}

func TestConnectAcceptCodec(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		wantErr bool
	}{
		{"client slot", connectAccept{Slot: 1, Capacity: 2}.encode(), false},
		{"last slot", connectAccept{Slot: 3, Capacity: 4}.encode(), false},
		{"host slot", []byte{0, 4}, true},
		{"slot past range", []byte{0xee, 4}, true},
		{"slot max players", []byte{byte(core.MaxPlayers), 4}, true},
		{"capacity too big", []byte{1, 9}, true},
		{"capacity too small", []byte{1, 1}, true},
		{"short", []byte{1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeConnectAccept(tc.body)
			if (err != nil) != tc.wantErr {
				t.Fatalf("decodeConnectAccept(% x) error = %v, wantErr %v", tc.body, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformed) {
				t.Errorf("error %v does not wrap ErrMalformed", err)
			}
		})
	}
}

func TestAdvertisement(t *testing.T) {
	rules := core.Ruleset{Mode: core.ModeDeathmatch, Skill: core.SkillHard, Episode: 2, Map: 7, Fast: true}
	adv := Advertisement{
		Flags:       rules.PackFlags(),
		Map:         rules.Map,
		PlayerCount: 2,
		Capacity:    4,
		Version:     ProtocolVersion,
		Name:        "a name longer than sixteen bytes",
	}

	b, err := adv.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() failed: %v", err)
	}
	if len(b) != AdvertSize {
		t.Fatalf("advert is %d bytes, expected %d", len(b), AdvertSize)
	}

	var got Advertisement
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() failed: %v", err)
	}
	if got.Name != "a name longer th" {
		t.Errorf("Name = %q, expected clipped name", got.Name)
	}
	if got.Ruleset() != rules {
		t.Errorf("Ruleset() = %+v, expected %+v", got.Ruleset(), rules)
	}
	if !got.Open() {
		t.Error("2 of 4 should be open")
	}

	if err := got.UnmarshalBinary(b[:5]); err == nil {
		t.Error("expected error for truncated advert")
	}
}

func TestScanDetailsMsgpack(t *testing.T) {
	in := ScanDetails{
		Version:     ProtocolVersion,
		SessionName: "friday",
		HostName:    "alice",
		Ruleset:     core.Ruleset{Mode: core.ModeCoop, Episode: 1, Map: 3},
		TicRate:     35,
		BackupTics:  32,
		Players:     []string{"alice", "bob"},
	}
	b, err := EncodeScanDetails(in)
	if err != nil {
		t.Fatalf("EncodeScanDetails() failed: %v", err)
	}
	out, err := DecodeScanDetails(b)
	if err != nil {
		t.Fatalf("DecodeScanDetails() failed: %v", err)
	}
	if out.HostName != "alice" || out.Ruleset != in.Ruleset || len(out.Players) != 2 || out.Players[1] != "bob" {
		t.Errorf("round trip mismatch: %+v", out)
	}

	if _, err := DecodeScanDetails([]byte{0xc1}); !errors.Is(err, ErrMalformed) {
		t.Errorf("garbage scan response error = %v, expected ErrMalformed", err)
	}
}

func TestConnectRequestCodec(t *testing.T) {
	req := connectRequest{Version: ProtocolVersion, Name: "bob"}
	got, err := decodeConnectRequest(req.encode())
	if err != nil || got != req {
		t.Errorf("round trip = %+v, %v", got, err)
	}
	if _, err := decodeConnectRequest([]byte{1, 5, 'a'}); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestDiscoveryTableExpire(t *testing.T) {
	now := time.Unix(100, 0)
	table := NewDiscoveryTable(4, 5*time.Second)

	if !table.Observe(1, "a", Advertisement{Name: "one"}, now) {
		t.Error("first sighting should be new")
	}
	if table.Observe(1, "a", Advertisement{Name: "one"}, now.Add(time.Second)) {
		t.Error("second sighting should not be new")
	}
	table.Observe(2, "b", Advertisement{Name: "two"}, now)

	gone := table.Expire(now.Add(5500 * time.Millisecond))
	if len(gone) != 1 || gone[0] != 2 {
		t.Errorf("Expire() = %v, expected [2]", gone)
	}
	if _, ok := table.Lookup(1); !ok {
		t.Error("refreshed record was expired")
	}
}

func TestDiscoveryTableEvictsStalest(t *testing.T) {
	now := time.Unix(100, 0)
	table := NewDiscoveryTable(2, time.Minute)

	table.Observe(1, "a", Advertisement{}, now)
	table.Observe(2, "b", Advertisement{}, now.Add(time.Second))
	table.Observe(1, "a", Advertisement{}, now.Add(2*time.Second))
	table.Observe(3, "c", Advertisement{}, now.Add(3*time.Second))

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, expected 2", table.Len())
	}
	if _, ok := table.Lookup(2); ok {
		t.Error("stalest record 2 should have been evicted")
	}

	list := table.List()
	if list[0].SessionID != 1 || list[1].SessionID != 3 {
		t.Errorf("List() order = %d,%d expected 1,3", list[0].SessionID, list[1].SessionID)
	}

	if table.SetDetails(9, ScanDetails{}, now) {
		t.Error("SetDetails on unknown session should fail")
	}
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		from, to ConnState
		ok       bool
	}{
		{StateIdle, StateDiscovering, true},
		{StateIdle, StateConnected, false},
		{StateDiscovering, StatePairing, true},
		{StatePairing, StateConnected, true},
		{StatePairing, StateIdle, false},
		{StateConnected, StateDiscovering, true},
		{StateConnected, StatePairing, false},
		{StateClosing, StateIdle, true},
		{StateClosing, StateConnected, false},
	}

	for _, tc := range tests {
		m := StateMachine{state: tc.from}
		err := m.To(tc.to)
		if (err == nil) != tc.ok {
			t.Errorf("%s -> %s: err = %v, expected ok=%v", tc.from, tc.to, err, tc.ok)
		}
		if tc.ok && m.State() != tc.to {
			t.Errorf("%s -> %s: state = %s", tc.from, tc.to, m.State())
		}
		if !tc.ok && m.State() != tc.from {
			t.Errorf("%s -> %s: state changed on illegal transition", tc.from, tc.to)
		}
	}

	var m StateMachine
	if err := m.To(StateIdle); err != nil {
		t.Errorf("self transition should be a no-op, got %v", err)
	}
}
