package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/vovakirdan/lockstep/internal/core"
)

// DemoHeader is everything needed to replay a recorded command stream.
type DemoHeader struct {
	ID         int64
	SessionID  uint32
	Simulation string
	Runtime    core.RuntimeConfig
	Ruleset    core.Ruleset
	Tics       int
	Checksum   uint64 // final simulation checksum, 0 if unknown
	CreatedAt  time.Time
}

// DemoRecorder appends executed tics to one demo. It satisfies driver.Recorder.
type DemoRecorder struct {
	store *Store
	id    int64
	stmt  *sql.Stmt
	tics  int
}

// CreateDemo starts a new demo and returns its recorder.
func (s *Store) CreateDemo(h DemoHeader) (*DemoRecorder, error) {
	res, err := s.db.Exec(
		`INSERT INTO demos
		 (session_id, simulation, seed, tic_rate, backup_tics, mode, skill, episode, map, flags, time_limit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(h.SessionID),
		h.Simulation,
		h.Runtime.Seed,
		h.Runtime.TicRate,
		h.Runtime.BackupTics,
		int(h.Ruleset.Mode),
		int(h.Ruleset.Skill),
		int(h.Ruleset.Episode),
		int(h.Ruleset.Map),
		int(h.Ruleset.PackFlags()),
		int(h.Ruleset.TimeLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot create demo: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}

	stmt, err := s.db.Prepare(
		`INSERT INTO demo_tics (demo_id, tic, slot, forward, side, angle, buttons)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot prepare demo insert: %w", err)
	}

	return &DemoRecorder{store: s, id: id, stmt: stmt}, nil
}

// ID returns the demo ID.
func (r *DemoRecorder) ID() int64 {
	return r.id
}

// RecordTic stores the commands of every in-game slot for one tic.
func (r *DemoRecorder) RecordTic(frame core.TicFrame) error {
	for slot, in := range frame.InGame {
		if !in {
			continue
		}
		cmd := frame.Cmds[slot]
		if _, err := r.stmt.Exec(r.id, frame.Tic, slot,
			int(cmd.ForwardMove), int(cmd.SideMove), int(cmd.AngleTurn), int(cmd.Buttons)); err != nil {
			return fmt.Errorf("storage: cannot record tic %d: %w", frame.Tic, err)
		}
	}
	r.tics++
	return nil
}

// Finish stores the tic count and final checksum and releases the statement.
func (r *DemoRecorder) Finish(checksum uint64) error {
	defer r.stmt.Close()

	_, err := r.store.db.Exec(
		"UPDATE demos SET tics = ?, checksum = ? WHERE id = ?",
		r.tics, strconv.FormatUint(checksum, 16), r.id,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot finish demo: %w", err)
	}
	return nil
}

const demoColumns = `id, session_id, simulation, seed, tic_rate, backup_tics,
	mode, skill, episode, map, flags, time_limit, tics, checksum, created_at`

// Demo retrieves a demo header by ID. Returns nil if it does not exist.
func (s *Store) Demo(id int64) (*DemoHeader, error) {
	row := s.db.QueryRow("SELECT "+demoColumns+" FROM demos WHERE id = ?", id)
	h, err := scanDemo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query demo: %w", err)
	}
	return &h, nil
}

// RecentDemos lists the most recent demos.
func (s *Store) RecentDemos(limit int) ([]DemoHeader, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query("SELECT "+demoColumns+" FROM demos ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query demos: %w", err)
	}
	defer rows.Close()

	var out []DemoHeader
	for rows.Next() {
		h, err := scanDemo(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDemo(row scanner) (DemoHeader, error) {
	var h DemoHeader
	var sessionID int64
	var mode, skill, episode, mapNum, flags, timeLimit int
	var checksum string
	var createdAt any

	if err := row.Scan(
		&h.ID,
		&sessionID,
		&h.Simulation,
		&h.Runtime.Seed,
		&h.Runtime.TicRate,
		&h.Runtime.BackupTics,
		&mode,
		&skill,
		&episode,
		&mapNum,
		&flags,
		&timeLimit,
		&h.Tics,
		&checksum,
		&createdAt,
	); err != nil {
		return h, err
	}

	h.SessionID = uint32(sessionID)
	h.Ruleset = core.UnpackRuleset(uint16(flags), uint8(mapNum))
	h.Ruleset.Mode = core.GameMode(mode)
	h.Ruleset.Skill = core.Skill(skill)
	h.Ruleset.Episode = uint8(episode)
	h.Ruleset.TimeLimit = uint16(timeLimit)
	if checksum != "" {
		h.Checksum, _ = strconv.ParseUint(checksum, 16, 64)
	}
	h.CreatedAt = parseTime(createdAt)
	return h, nil
}

// DemoTics rebuilds the recorded tic frames in order.
func (s *Store) DemoTics(id int64) ([]core.TicFrame, error) {
	rows, err := s.db.Query(
		`SELECT tic, slot, forward, side, angle, buttons
		 FROM demo_tics
		 WHERE demo_id = ?
		 ORDER BY tic, slot`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query demo tics: %w", err)
	}
	defer rows.Close()

	var frames []core.TicFrame
	for rows.Next() {
		var tic, slot, forward, side, angle, buttons int
		if err := rows.Scan(&tic, &slot, &forward, &side, &angle, &buttons); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		if slot < 0 || slot >= core.MaxPlayers {
			return nil, fmt.Errorf("storage: demo %d tic %d has bad slot %d", id, tic, slot)
		}
		if n := len(frames); n == 0 || frames[n-1].Tic != tic {
			frames = append(frames, core.TicFrame{Tic: tic})
		}
		f := &frames[len(frames)-1]
		f.InGame[slot] = true
		f.Cmds[slot] = core.Ticcmd{
			ForwardMove: int8(forward),
			SideMove:    int8(side),
			AngleTurn:   int16(angle),
			Buttons:     uint8(buttons),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return frames, nil
}
