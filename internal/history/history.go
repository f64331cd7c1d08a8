// Package history records a best-effort audit trail of session
// membership events (joins, departures, session start/end) to a local
// SQLite database, for later inspection. A failure to record an event
// never disrupts the hub or client link that generated it.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Kind enumerates the session_events.kind values this package writes.
type Kind string

const (
	KindSessionStarted Kind = "session_started"
	KindSessionEnded   Kind = "session_ended"
	KindMemberJoined   Kind = "member_joined"
	KindMemberLeft     Kind = "member_left"
	KindTick           Kind = "tick"
)

// Recorder appends rows to the session_events table. All its methods are
// safe for concurrent use by multiple goroutines.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file (and its parent directory) at path if
// necessary, and ensures the session_events table exists.
func Open(path string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at DATETIME DEFAULT CURRENT_TIMESTAMP,
		kind TEXT NOT NULL,
		uuid INTEGER,
		callsign TEXT,
		active_members INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}

	return &Recorder{db: db, logger: logger}, nil
}

// RecordMember logs a member_joined or member_left event for one UUID.
// Errors are logged and swallowed: a history-recording failure must
// never interrupt membership processing.
func (r *Recorder) RecordMember(kind Kind, uuid uint32, callsign string, activeMembers int) {
	var callsignArg interface{}
	if callsign != "" {
		callsignArg = callsign
	}
	if _, err := r.db.Exec(
		`INSERT INTO session_events (kind, uuid, callsign, active_members) VALUES (?, ?, ?, ?)`,
		string(kind), uuid, callsignArg, activeMembers,
	); err != nil {
		r.logger.Warn("history: record member event failed", "kind", kind, "uuid", uuid, "error", err)
	}
}

// RecordSession logs a session_started or session_ended event, with no
// associated member UUID.
func (r *Recorder) RecordSession(kind Kind, activeMembers int) {
	if _, err := r.db.Exec(
		`INSERT INTO session_events (kind, uuid, callsign, active_members) VALUES (?, NULL, NULL, ?)`,
		string(kind), activeMembers,
	); err != nil {
		r.logger.Warn("history: record session event failed", "kind", kind, "error", err)
	}
}

// Close closes the underlying database connection.
func (r *Recorder) Close() error {
	return r.db.Close()
}
