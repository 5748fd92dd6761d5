package config

import (
	_ "embed"
	"time"
)

//go:embed defaults/lockstep.yaml
var defaultYAML []byte

// DefaultConfig returns the hardcoded configuration used when no YAML is available.
func DefaultConfig() Config {
	return Config{
		Sync: SyncConfig{
			TicRate:       35,
			BackupTics:    32,
			ResendGuard:   250,
			ControlResend: 35,
			LowWater:      2,
			StallFrames:   4,
		},
		Transport: TransportConfig{
			Listen:            ":5029",
			Broadcast:         "255.255.255.255:5029",
			QueueSize:         256,
			AdvertiseInterval: time.Second,
			KeepaliveInterval: 250 * time.Millisecond,
			ScanInterval:      time.Second,
			DiscoveryTimeout:  5 * time.Second,
			DiscoveryCapacity: 16,
			PairRetry:         250 * time.Millisecond,
			PairTimeout:       5 * time.Second,
			StallTimeout:      time.Second,
			DisconnectTimeout: 10 * time.Second,
			MaxPeers:          3,
		},
		Session: SessionConfig{
			Name:       "lockstep",
			PlayerName: "player",
			Simulation: "trail",
			Mode:       "coop",
			Skill:      "medium",
			Episode:    1,
			Map:        1,
		},
		Storage: StorageConfig{
			DBPath: "~/.lockstep/lockstep.db",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}
