package core

import "time"

const (
	// MaxPlayers is the number of player slots in a session (one host, up to three clients).
	MaxPlayers = 4

	// DefaultBackupTics is the default TickWindow depth.
	DefaultBackupTics = 32

	// DefaultTicRate is the simulation rate in tics per second.
	DefaultTicRate = 35
)

// RuntimeConfig contains the timing parameters shared by every peer of a session.
// All peers must agree on these values or the schedules diverge.
type RuntimeConfig struct {
	TicRate    int   // Simulation tics per second (default 35)
	BackupTics int   // Ring buffer depth, bounds in-flight tic lag
	Seed       int64 // RNG seed handed to the simulation at session start
}

// DefaultConfig returns a RuntimeConfig with sensible defaults.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		TicRate:    DefaultTicRate,
		BackupTics: DefaultBackupTics,
		Seed:       0, // 0 means the host picks one at session start
	}
}

// TicDuration returns the wall-clock length of one tic.
func (c RuntimeConfig) TicDuration() time.Duration {
	rate := c.TicRate
	if rate <= 0 {
		rate = DefaultTicRate
	}
	return time.Second / time.Duration(rate)
}

// TicsSince converts an elapsed duration into whole tics.
func (c RuntimeConfig) TicsSince(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / c.TicDuration())
}
