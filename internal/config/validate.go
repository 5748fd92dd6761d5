package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/logging"
	"github.com/vovakirdan/lockstep/internal/netsync"
)

// Validate rejects values no session could run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Sync
	check(s.TicRate > 0 && s.TicRate <= 1000, "sync.tic_rate must be in 1..1000, got %d", s.TicRate)
	check(s.BackupTics > 0 && s.BackupTics <= netsync.MaxTicsPerMessage,
		"sync.backup_tics must be in 1..%d, got %d", netsync.MaxTicsPerMessage, s.BackupTics)
	check(s.ResendGuard > 0, "sync.resend_guard must be positive, got %d", s.ResendGuard)
	check(s.ControlResend > 0, "sync.control_resend must be positive, got %d", s.ControlResend)
	check(s.LowWater > 0, "sync.low_water must be positive, got %d", s.LowWater)
	check(s.StallFrames > 0, "sync.stall_frames must be positive, got %d", s.StallFrames)

	t := c.Transport
	check(t.MaxPeers >= 1 && t.MaxPeers <= core.MaxPlayers-1,
		"transport.max_peers must be in 1..%d, got %d", core.MaxPlayers-1, t.MaxPeers)
	check(t.DiscoveryCapacity > 0, "transport.discovery_capacity must be positive, got %d", t.DiscoveryCapacity)
	for name, d := range map[string]time.Duration{
		"advertise_interval": t.AdvertiseInterval,
		"keepalive_interval": t.KeepaliveInterval,
		"scan_interval":      t.ScanInterval,
		"discovery_timeout":  t.DiscoveryTimeout,
		"pair_retry":         t.PairRetry,
		"pair_timeout":       t.PairTimeout,
		"stall_timeout":      t.StallTimeout,
		"disconnect_timeout": t.DisconnectTimeout,
	} {
		check(d > 0, "transport.%s must be positive, got %s", name, d)
	}
	check(t.StallTimeout < t.DisconnectTimeout,
		"transport.stall_timeout (%s) must be shorter than disconnect_timeout (%s)", t.StallTimeout, t.DisconnectTimeout)

	if _, err := c.Ruleset(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
