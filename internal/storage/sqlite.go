// Package storage provides SQLite-based persistence for session history and
// recorded demos. Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/lockstep/internal/netsync"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

var _ netsync.ResultSaver = (*Store)(nil)

// SessionEntry is one finished session as seen by the local peer.
type SessionEntry struct {
	ID          int64
	SessionID   uint32
	Role        string
	Name        string
	Ruleset     string
	Seed        int64
	Players     []string
	TicsApplied int
	EndReason   string // e.g. "Session completed"
	ErrorKind   string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	// Create parent directories
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			ruleset TEXT NOT NULL DEFAULT '',
			seed INTEGER NOT NULL DEFAULT 0,
			players TEXT NOT NULL DEFAULT '',
			tics_applied INTEGER NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id);

		CREATE TABLE IF NOT EXISTS demos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			simulation TEXT NOT NULL,
			seed INTEGER NOT NULL,
			tic_rate INTEGER NOT NULL,
			backup_tics INTEGER NOT NULL,
			mode INTEGER NOT NULL DEFAULT 0,
			skill INTEGER NOT NULL DEFAULT 0,
			episode INTEGER NOT NULL DEFAULT 0,
			map INTEGER NOT NULL DEFAULT 0,
			flags INTEGER NOT NULL DEFAULT 0,
			time_limit INTEGER NOT NULL DEFAULT 0,
			tics INTEGER NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_demos_session_id ON demos(session_id);

		CREATE TABLE IF NOT EXISTS demo_tics (
			demo_id INTEGER NOT NULL,
			tic INTEGER NOT NULL,
			slot INTEGER NOT NULL,
			forward INTEGER NOT NULL,
			side INTEGER NOT NULL,
			angle INTEGER NOT NULL,
			buttons INTEGER NOT NULL,
			PRIMARY KEY (demo_id, tic, slot)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveSessionResult implements netsync.ResultSaver.
// This adapter allows the coordinators to record sessions without a direct storage dependency.
func (s *Store) SaveSessionResult(r netsync.SessionResult) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions
		 (session_id, role, name, ruleset, seed, players, tics_applied, end_reason, error_kind, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.SessionID),
		r.Role.String(),
		r.SessionName,
		r.Ruleset,
		r.Seed,
		strings.Join(r.Players, ","),
		r.TicsApplied,
		r.EndReason,
		r.ErrorKind,
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save session: %w", err)
	}
	return nil
}

// RecentSessions retrieves the most recently finished sessions.
func (s *Store) RecentSessions(limit int) ([]SessionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.querySessions(
		`SELECT id, session_id, role, name, ruleset, seed, players, tics_applied,
		        end_reason, error_kind, duration_ms, created_at
		 FROM sessions
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
}

// SessionHistory retrieves every record of one session ID, oldest first.
func (s *Store) SessionHistory(sessionID uint32) ([]SessionEntry, error) {
	return s.querySessions(
		`SELECT id, session_id, role, name, ruleset, seed, players, tics_applied,
		        end_reason, error_kind, duration_ms, created_at
		 FROM sessions
		 WHERE session_id = ?
		 ORDER BY id`,
		int64(sessionID),
	)
}

func (s *Store) querySessions(query string, args ...any) ([]SessionEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query sessions: %w", err)
	}
	defer rows.Close()

	var entries []SessionEntry
	for rows.Next() {
		var e SessionEntry
		var sessionID, durationMS int64
		var players string
		var createdAt any

		if err := rows.Scan(
			&e.ID,
			&sessionID,
			&e.Role,
			&e.Name,
			&e.Ruleset,
			&e.Seed,
			&players,
			&e.TicsApplied,
			&e.EndReason,
			&e.ErrorKind,
			&durationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}

		e.SessionID = uint32(sessionID)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if players != "" {
			e.Players = strings.Split(players, ",")
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return entries, nil
}

// parseTime handles both time.Time and string datetimes from the driver.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
