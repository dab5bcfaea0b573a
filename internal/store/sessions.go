package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Sessions maps instrument ids to resumable session ids.
type Sessions struct {
	db *sql.DB
}

// Open opens or creates the resume database at the given path.
func Open(dbPath string) (*Sessions, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Sessions{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Sessions) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resume_sessions (
		instrument  TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);`

	_, err := s.db.Exec(schema)
	return err
}

// Lookup returns the persisted session id for an instrument, if any.
func (s *Sessions) Lookup(instrument string) (string, bool, error) {
	var sessionID string
	err := s.db.QueryRow(
		`SELECT session_id FROM resume_sessions WHERE instrument = ?`, instrument,
	).Scan(&sessionID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup session: %w", err)
	}

	return sessionID, true, nil
}

// Save records a session id for an instrument, replacing any previous one.
// It is called only after the backend confirmed session creation.
func (s *Sessions) Save(instrument, sessionID string) error {
	if instrument == "" || sessionID == "" {
		return fmt.Errorf("instrument and session id cannot be empty")
	}

	_, err := s.db.Exec(
		`INSERT INTO resume_sessions (instrument, session_id, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(instrument) DO UPDATE SET
		   session_id = excluded.session_id,
		   updated_at = excluded.updated_at`,
		instrument, sessionID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// Clear removes the persisted session id for an instrument. Clearing a
// missing entry is not an error.
func (s *Sessions) Clear(instrument string) error {
	if _, err := s.db.Exec(
		`DELETE FROM resume_sessions WHERE instrument = ?`, instrument,
	); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Sessions) Close() error {
	return s.db.Close()
}
