package config

import (
	"fmt"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/driver"
	"github.com/vovakirdan/lockstep/internal/logging"
	"github.com/vovakirdan/lockstep/internal/netsync"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// Runtime returns the timing parameters every peer must share.
func (c Config) Runtime() core.RuntimeConfig {
	return core.RuntimeConfig{
		TicRate:    c.Sync.TicRate,
		BackupTics: c.Sync.BackupTics,
		Seed:       c.Session.Seed,
	}
}

// Ruleset parses the session rules.
func (c Config) Ruleset() (core.Ruleset, error) {
	mode, err := core.ParseGameMode(c.Session.Mode)
	if err != nil {
		return core.Ruleset{}, fmt.Errorf("config: session.mode: %w", err)
	}
	skill, err := ParseSkill(c.Session.Skill)
	if err != nil {
		return core.Ruleset{}, err
	}
	return core.Ruleset{
		Mode:       mode,
		Skill:      skill,
		Episode:    c.Session.Episode,
		Map:        c.Session.Map,
		NoMonsters: c.Session.NoMonsters,
		Respawn:    c.Session.Respawn,
		Fast:       c.Session.Fast,
		TimeLimit:  c.Session.TimeLimit,
	}, nil
}

// HostSync builds the host coordinator settings.
func (c Config) HostSync(sessionID uint32) (netsync.HostConfig, error) {
	rules, err := c.Ruleset()
	if err != nil {
		return netsync.HostConfig{}, err
	}
	return netsync.HostConfig{
		Runtime:       c.Runtime(),
		Ruleset:       rules,
		SessionID:     sessionID,
		SessionName:   c.Session.Name,
		HostName:      c.Session.PlayerName,
		MaxPeers:      c.Transport.MaxPeers,
		ResendGuard:   c.Sync.ResendGuard,
		ControlResend: c.Sync.ControlResend,
		StallTimeout:  c.Transport.StallTimeout,
		DropTimeout:   c.Transport.DisconnectTimeout,
	}, nil
}

// ClientSync builds the client coordinator settings.
func (c Config) ClientSync(sessionID uint32) netsync.ClientConfig {
	return netsync.ClientConfig{
		Name:        c.Session.PlayerName,
		SessionID:   sessionID,
		ResendGuard: c.Sync.ResendGuard,
	}
}

// HostLink builds the host transport settings.
func (c Config) HostLink(sessionID uint32) (transport.HostConfig, error) {
	rules, err := c.Ruleset()
	if err != nil {
		return transport.HostConfig{}, err
	}
	return transport.HostConfig{
		SessionID:         sessionID,
		SessionName:       c.Session.Name,
		HostName:          c.Session.PlayerName,
		Capacity:          c.Transport.MaxPeers,
		Ruleset:           rules,
		Runtime:           c.Runtime(),
		AdvertiseInterval: c.Transport.AdvertiseInterval,
		KeepaliveInterval: c.Transport.KeepaliveInterval,
		PeerTimeout:       c.Transport.DisconnectTimeout,
	}, nil
}

// ClientLink builds the client transport settings.
func (c Config) ClientLink() transport.ClientConfig {
	return transport.ClientConfig{
		Name:              c.Session.PlayerName,
		ScanInterval:      c.Transport.ScanInterval,
		DiscoveryTimeout:  c.Transport.DiscoveryTimeout,
		DiscoveryCapacity: c.Transport.DiscoveryCapacity,
		PairRetry:         c.Transport.PairRetry,
		PairTimeout:       c.Transport.PairTimeout,
		HostTimeout:       c.Transport.DisconnectTimeout,
		KeepaliveInterval: c.Transport.KeepaliveInterval,
	}
}

// UDP builds the socket settings.
func (c Config) UDP() transport.UDPConfig {
	return transport.UDPConfig{
		Listen:        c.Transport.Listen,
		BroadcastAddr: c.Transport.Broadcast,
		QueueSize:     c.Transport.QueueSize,
	}
}

// Driver builds the frame pacing settings.
func (c Config) Driver() driver.Config {
	return driver.Config{
		Runtime:     c.Runtime(),
		LowWater:    c.Sync.LowWater,
		StallFrames: c.Sync.StallFrames,
	}
}

// Logging builds the logger options.
func (c Config) Logging() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Prefix:     "lockstep",
	}
}
