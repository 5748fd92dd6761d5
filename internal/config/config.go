// Package config provides YAML-based configuration for lockstep sessions:
// sync pacing, transport timeouts, session rules, storage and logging.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	Sync      SyncConfig      `yaml:"sync"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// SyncConfig defines the lockstep timing shared by all peers.
type SyncConfig struct {
	TicRate       int `yaml:"tic_rate"`
	BackupTics    int `yaml:"backup_tics"`
	ResendGuard   int `yaml:"resend_guard"`
	ControlResend int `yaml:"control_resend"`
	LowWater      int `yaml:"low_water"`
	StallFrames   int `yaml:"stall_frames"`
}

// TransportConfig defines the datagram link.
type TransportConfig struct {
	Listen    string `yaml:"listen"`
	Broadcast string `yaml:"broadcast"`
	QueueSize int    `yaml:"queue_size"`

	AdvertiseInterval time.Duration `yaml:"advertise_interval"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	ScanInterval      time.Duration `yaml:"scan_interval"`
	DiscoveryTimeout  time.Duration `yaml:"discovery_timeout"`
	DiscoveryCapacity int           `yaml:"discovery_capacity"`
	PairRetry         time.Duration `yaml:"pair_retry"`
	PairTimeout       time.Duration `yaml:"pair_timeout"`
	StallTimeout      time.Duration `yaml:"stall_timeout"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`

	MaxPeers int `yaml:"max_peers"`
}

// SessionConfig defines what a hosted session plays.
type SessionConfig struct {
	Name       string `yaml:"name"`
	PlayerName string `yaml:"player_name"`
	Simulation string `yaml:"simulation"`
	Mode       string `yaml:"mode"`
	Skill      string `yaml:"skill"`
	Episode    uint8  `yaml:"episode"`
	Map        uint8  `yaml:"map"`
	NoMonsters bool   `yaml:"no_monsters"`
	Respawn    bool   `yaml:"respawn"`
	Fast       bool   `yaml:"fast"`
	TimeLimit  uint16 `yaml:"time_limit"`
	Seed       int64  `yaml:"seed"`
	CompatTurn bool   `yaml:"compat_turn"`
}

// StorageConfig defines the session history database.
type StorageConfig struct {
	DBPath      string `yaml:"db_path"`
	RecordDemos bool   `yaml:"record_demos"`
}

// LogConfig defines logger output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
