package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/lockstep/internal/core"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

func TestEmbeddedMatchesDefault(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("embedded defaults differ from DefaultConfig():\n%+v\n%+v", cfg, DefaultConfig())
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestLoadCustomKeepsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
sync:
  backup_tics: 16
transport:
  stall_timeout: 500ms
session:
  skill: nightmare
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Sync.BackupTics != 16 {
		t.Errorf("BackupTics = %d, expected 16", cfg.Sync.BackupTics)
	}
	if cfg.Sync.TicRate != 35 {
		t.Errorf("TicRate = %d, expected default 35", cfg.Sync.TicRate)
	}
	if cfg.Transport.StallTimeout != 500*time.Millisecond {
		t.Errorf("StallTimeout = %s, expected 500ms", cfg.Transport.StallTimeout)
	}
	rules, err := cfg.Ruleset()
	if err != nil {
		t.Fatalf("Ruleset() failed: %v", err)
	}
	if rules.Skill != core.SkillNightmare {
		t.Errorf("Skill = %d, expected nightmare", rules.Skill)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", filepath.Join(dir, "nope.yaml"), "failed to read"},
		{"syntax", writeConfig(t, filepath.Join(dir, "a"), "sync: [\n"), "failed to parse"},
		{"invalid", writeConfig(t, filepath.Join(dir, "b"), "transport:\n  max_peers: 5\n"), "max_peers"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() = %v, expected error containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadSearchOrder(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(work)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Error("Load() without files should return the embedded defaults")
	}

	writeConfig(t, filepath.Join(work, "configs"), "session:\n  name: local\n")
	cfg, _ = Load("")
	if cfg.Session.Name != "local" {
		t.Errorf("Session.Name = %q, expected local", cfg.Session.Name)
	}

	writeConfig(t, filepath.Join(home, ".lockstep"), "session:\n  name: home\n")
	cfg, _ = Load("")
	if cfg.Session.Name != "home" {
		t.Errorf("Session.Name = %q, expected home", cfg.Session.Name)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero backup tics", func(c *Config) { c.Sync.BackupTics = 0 }, "backup_tics"},
		{"huge backup tics", func(c *Config) { c.Sync.BackupTics = 65 }, "backup_tics"},
		{"zero tic rate", func(c *Config) { c.Sync.TicRate = 0 }, "tic_rate"},
		{"no peers", func(c *Config) { c.Transport.MaxPeers = 0 }, "max_peers"},
		{"zero timeout", func(c *Config) { c.Transport.PairTimeout = 0 }, "pair_timeout"},
		{"stall after disconnect", func(c *Config) { c.Transport.StallTimeout = time.Minute }, "stall_timeout"},
		{"bad mode", func(c *Config) { c.Session.Mode = "ctf" }, "session.mode"},
		{"bad skill", func(c *Config) { c.Session.Skill = "impossible" }, "unknown skill"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "unknown level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, expected error containing %q", err, tc.want)
			}
		})
	}
}

func TestParseSkill(t *testing.T) {
	tests := []struct {
		in       string
		expected core.Skill
		wantErr  bool
	}{
		{"", core.SkillMedium, false},
		{"baby", core.SkillBaby, false},
		{"hard", core.SkillHard, false},
		{"4", core.SkillNightmare, false},
		{"5", 0, true},
		{"Hard", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseSkill(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseSkill(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseSkill(%q) = %d, expected %d", tc.in, got, tc.expected)
		}
	}
	if SkillName(core.SkillEasy) != "easy" {
		t.Errorf("SkillName(easy) = %q", SkillName(core.SkillEasy))
	}
}

func TestConverters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Seed = 99
	cfg.Transport.MaxPeers = 2

	hs, err := cfg.HostSync(7)
	if err != nil {
		t.Fatalf("HostSync() failed: %v", err)
	}
	if hs.SessionID != 7 || hs.MaxPeers != 2 || hs.Runtime.Seed != 99 {
		t.Errorf("HostSync() = %+v", hs)
	}
	if hs.DropTimeout != cfg.Transport.DisconnectTimeout || hs.StallTimeout != cfg.Transport.StallTimeout {
		t.Errorf("HostSync() timeouts = %s/%s", hs.StallTimeout, hs.DropTimeout)
	}

	hl, err := cfg.HostLink(7)
	if err != nil {
		t.Fatalf("HostLink() failed: %v", err)
	}
	if hl.Capacity != 2 || hl.Runtime != hs.Runtime {
		t.Errorf("HostLink() = %+v", hl)
	}

	cl := cfg.ClientLink()
	if cl.DiscoveryCapacity != 16 || cl.HostTimeout != cfg.Transport.DisconnectTimeout {
		t.Errorf("ClientLink() = %+v", cl)
	}
	if cs := cfg.ClientSync(7); cs.ResendGuard != 250 || cs.SessionID != 7 {
		t.Errorf("ClientSync() = %+v", cs)
	}
	if d := cfg.Driver(); d.LowWater != 2 || d.StallFrames != 4 {
		t.Errorf("Driver() = %+v", d)
	}
	if u := cfg.UDP(); u.Listen != ":5029" {
		t.Errorf("UDP() = %+v", u)
	}
}
