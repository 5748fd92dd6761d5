package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/vovakirdan/lockstep/internal/config"
	"github.com/vovakirdan/lockstep/internal/logging"
)

func TestParseSessionID(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"1a2b3c4d", 0x1a2b3c4d, true},
		{"0x1A2B3C4D", 0x1a2b3c4d, true},
		{"ff", 0xff, true},
		{"", 0, false},
		{"0", 0, false},
		{"123456789", 0, false},
		{"lan party", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseSessionID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseSessionID(%q) = %x, %v; want %x, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCompareChecksums(t *testing.T) {
	host := &simPeer{name: "host", sums: []uint64{1, 2, 3, 4}}
	same := &simPeer{name: "client-1", sums: []uint64{1, 2, 3}}
	if err := compareChecksums(io.Discard, []*simPeer{host, same}); err != nil {
		t.Fatalf("compareChecksums() failed: %v", err)
	}

	diverged := &simPeer{name: "client-2", sums: []uint64{1, 9, 3}}
	err := compareChecksums(io.Discard, []*simPeer{host, same, diverged})
	if err == nil {
		t.Fatal("expected divergence error")
	}
	if !strings.Contains(err.Error(), "client-2") || !strings.Contains(err.Error(), "tic 1") {
		t.Errorf("unexpected error: %v", err)
	}
}

// setupSim resets the globals a sim run reads.
func setupSim(seed int64, peers, delay, tics int, loss, corrupt float64) {
	cfg = config.DefaultConfig()
	cfg.Session.Seed = seed
	logger = logging.Discard()

	flagSimPeers, flagSimDelay, flagSimTics = peers, delay, tics
	flagSimLoss, flagSimCorrupt = loss, corrupt
}

func TestSimSessionAgrees(t *testing.T) {
	setupSim(7, 2, 1, 105, 0, 0)
	if err := simulate(io.Discard); err != nil {
		t.Fatalf("simulate() failed: %v", err)
	}
}

func TestSimSessionSurvivesLoss(t *testing.T) {
	setupSim(11, 3, 2, 105, 0.05, 0)
	if err := simulate(io.Discard); err != nil {
		t.Fatalf("simulate() failed: %v", err)
	}
}

func TestSimSessionSurvivesCorruption(t *testing.T) {
	// Corruption hits pairing traffic as well as tic messages.
	setupSim(42, 3, 2, 105, 0.1, 0.05)
	var out bytes.Buffer
	if err := simulate(&out); err != nil {
		t.Fatalf("simulate() failed: %v", err)
	}
	if !strings.Contains(out.String(), "All 4 peers agree") {
		t.Errorf("unexpected report:\n%s", out.String())
	}
}

func TestSimSessionReproducible(t *testing.T) {
	run := func() string {
		setupSim(42, 3, 2, 105, 0.2, 0.02)
		var out bytes.Buffer
		if err := simulate(&out); err != nil {
			t.Fatalf("simulate() failed: %v", err)
		}
		return out.String()
	}

	first := run()
	for i := 0; i < 3; i++ {
		if again := run(); again != first {
			t.Fatalf("run %d differs:\n%s\nvs\n%s", i+2, again, first)
		}
	}
}

func TestSimRejectsZeroDelay(t *testing.T) {
	setupSim(1, 1, 0, 35, 0, 0)
	if err := simulate(io.Discard); err == nil {
		t.Error("expected an error for --delay 0")
	}
}

func TestSimSessionID(t *testing.T) {
	if simSessionID(42) != simSessionID(42) {
		t.Error("session id is not stable for a seed")
	}
	if simSessionID(0) == 0 {
		t.Error("session id must be non-zero")
	}
}
