package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/netsync"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	// Check that the file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := store.SaveSessionResult(netsync.SessionResult{SessionID: 1, Role: netsync.RoleHost, EndReason: "completed"}); err != nil {
		t.Fatalf("SaveSessionResult() failed: %v", err)
	}
	store.Close()

	store, err = Open(dbPath)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer store.Close()

	entries, err := store.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 session after reopen, got %d", len(entries))
	}
}

func TestSaveAndListSessions(t *testing.T) {
	store := openTestStore(t)

	results := []netsync.SessionResult{
		{
			SessionID:   0xBEEF,
			Role:        netsync.RoleHost,
			SessionName: "friday",
			Ruleset:     "coop E1M1 skill 2",
			Seed:        -12,
			Players:     []string{"alice", "bob"},
			TicsApplied: 350,
			EndReason:   "completed",
			ErrorKind:   "none",
			Duration:    10 * time.Second,
		},
		{
			SessionID:   0xBEEF,
			Role:        netsync.RoleClient,
			SessionName: "friday",
			TicsApplied: 120,
			EndReason:   "desync",
			ErrorKind:   "protocol_desync",
			Duration:    1500 * time.Millisecond,
		},
		{
			SessionID: 7,
			Role:      netsync.RoleHost,
			EndReason: "cancelled",
		},
	}
	for _, r := range results {
		if err := store.SaveSessionResult(r); err != nil {
			t.Fatalf("SaveSessionResult() failed: %v", err)
		}
	}

	recent, err := store.RecentSessions(2)
	if err != nil {
		t.Fatalf("RecentSessions() failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(recent))
	}
	if recent[0].SessionID != 7 || recent[1].EndReason != "desync" {
		t.Errorf("RecentSessions() not newest first: %+v", recent)
	}

	history, err := store.SessionHistory(0xBEEF)
	if err != nil {
		t.Fatalf("SessionHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(history))
	}

	first := history[0]
	if first.Role != "host" || first.Name != "friday" || first.Seed != -12 {
		t.Errorf("first record = %+v", first)
	}
	if len(first.Players) != 2 || first.Players[1] != "bob" {
		t.Errorf("Players = %v, expected [alice bob]", first.Players)
	}
	if first.Duration != 10*time.Second || first.TicsApplied != 350 {
		t.Errorf("Duration/Tics = %s/%d", first.Duration, first.TicsApplied)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if history[1].ErrorKind != "protocol_desync" || history[1].Players != nil {
		t.Errorf("second record = %+v", history[1])
	}
}

func TestDemoRoundTrip(t *testing.T) {
	store := openTestStore(t)

	header := DemoHeader{
		SessionID:  42,
		Simulation: "trail",
		Runtime:    core.RuntimeConfig{TicRate: 35, BackupTics: 16, Seed: 1234},
		Ruleset: core.Ruleset{
			Mode:      core.ModeDeathmatch,
			Skill:     core.SkillHard,
			Episode:   2,
			Map:       7,
			Fast:      true,
			TimeLimit: 20,
		},
	}
	rec, err := store.CreateDemo(header)
	if err != nil {
		t.Fatalf("CreateDemo() failed: %v", err)
	}

	var frames []core.TicFrame
	for tic := range 5 {
		f := core.TicFrame{Tic: tic}
		f.InGame[0] = true
		f.InGame[2] = tic < 3
		f.Cmds[0] = core.Ticcmd{ForwardMove: int8(tic), AngleTurn: -640}
		f.Cmds[2] = core.Ticcmd{SideMove: -24, Buttons: core.BTAttack}
		if !f.InGame[2] {
			f.Cmds[2] = core.Ticcmd{}
		}
		frames = append(frames, f)
		if err := rec.RecordTic(f); err != nil {
			t.Fatalf("RecordTic() failed: %v", err)
		}
	}
	if err := rec.Finish(0xFEEDFACECAFEBEEF); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	got, err := store.Demo(rec.ID())
	if err != nil {
		t.Fatalf("Demo() failed: %v", err)
	}
	if got == nil {
		t.Fatal("Demo() returned nil")
	}
	if got.Runtime != header.Runtime || got.Ruleset != header.Ruleset {
		t.Errorf("header = %+v, expected %+v", got, header)
	}
	if got.Tics != 5 || got.Checksum != 0xFEEDFACECAFEBEEF || got.Simulation != "trail" {
		t.Errorf("Tics/Checksum/Simulation = %d/%x/%s", got.Tics, got.Checksum, got.Simulation)
	}

	tics, err := store.DemoTics(rec.ID())
	if err != nil {
		t.Fatalf("DemoTics() failed: %v", err)
	}
	if len(tics) != len(frames) {
		t.Fatalf("DemoTics() returned %d frames, expected %d", len(tics), len(frames))
	}
	for i := range frames {
		if tics[i] != frames[i] {
			t.Errorf("frame %d = %+v, expected %+v", i, tics[i], frames[i])
		}
	}

	list, err := store.RecentDemos(0)
	if err != nil {
		t.Fatalf("RecentDemos() failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID() {
		t.Errorf("RecentDemos() = %+v", list)
	}
}

func TestDemoNotFound(t *testing.T) {
	store := openTestStore(t)

	h, err := store.Demo(99)
	if err != nil {
		t.Fatalf("Demo() failed: %v", err)
	}
	if h != nil {
		t.Errorf("Demo(99) = %+v, expected nil", h)
	}
	tics, err := store.DemoTics(99)
	if err != nil || len(tics) != 0 {
		t.Errorf("DemoTics(99) = %v, %v", tics, err)
	}
}
