package netsync

import "time"

// ResultSaver persists a summary of each finished session.
// This lets coordinators record sessions without depending on storage.
type ResultSaver interface {
	SaveSessionResult(result SessionResult) error
}

// SessionResult is the persisted summary of a session.
type SessionResult struct {
	SessionID   uint32
	Role        Role
	SessionName string
	Ruleset     string
	Seed        int64
	Players     []string
	TicsApplied int
	EndReason   string
	ErrorKind   string
	Duration    time.Duration
}

func resultFrom(ctx *SessionContext, name string, seed int64, reason EndReason, err error, now time.Time) SessionResult {
	role := RoleClient
	if ctx.LocalSlot().Role == RoleHost {
		role = RoleHost
	}
	var dur time.Duration
	if !ctx.StartedAt().IsZero() {
		dur = now.Sub(ctx.StartedAt())
	}
	return SessionResult{
		SessionID:   ctx.SessionID,
		Role:        role,
		SessionName: name,
		Ruleset:     ctx.Ruleset.String(),
		Seed:        seed,
		Players:     ctx.PlayerNames(),
		TicsApplied: ctx.Applied(),
		EndReason:   reason.String(),
		ErrorKind:   Kind(err).String(),
		Duration:    dur,
	}
}
