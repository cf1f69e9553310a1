// Package store persists sessions to a local SQLite database so an
// investigation transcript and its findings survive process restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"incidentd/internal/logging"
	"incidentd/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	state_json  TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS session_findings (
	session_id   TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	resource_key TEXT NOT NULL,
	observation  TEXT NOT NULL,
	confidence   REAL NOT NULL,
	author       TEXT NOT NULL,
	recorded_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_findings_key ON session_findings(session_id, resource_key);
`

// SessionRecord is one persisted session.
type SessionRecord struct {
	ID        string
	State     types.WorkflowState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStore persists sessions and their blackboard findings.
type SessionStore struct {
	db   *sql.DB
	path string
}

// Open creates or opens the session database at path, applying the schema.
func Open(path string) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply store schema: %w", err)
	}
	logging.Store("session store opened at %s", path)
	return &SessionStore{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// SaveSession upserts a session's durable state.
func (s *SessionStore) SaveSession(ctx context.Context, id string, state types.WorkflowState) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveSession")
	defer timer.Stop()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, status, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		id, string(state.Status), string(stateJSON), now, now)
	if err != nil {
		logging.StoreError("SaveSession %s failed: %v", id, err)
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

// LoadSession fetches one session by ID. Returns sql.ErrNoRows via the
// wrapped error when the session does not exist.
func (s *SessionStore) LoadSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, state_json, created_at, updated_at FROM sessions WHERE id = ?`, id)

	var rec SessionRecord
	var stateJSON string
	if err := row.Scan(&rec.ID, &stateJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return nil, fmt.Errorf("failed to decode session %s state: %w", id, err)
	}
	return &rec, nil
}

// ListSessions returns session IDs with status, newest first.
func (s *SessionStore) ListSessions(ctx context.Context) (map[string]types.WorkflowStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := map[string]types.WorkflowStatus{}
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out[id] = types.WorkflowStatus(status)
	}
	return out, rows.Err()
}

// SaveFindings replaces the persisted findings for a session. Findings are
// append-only in memory, so a full rewrite keeps ordering trivially
// consistent.
func (s *SessionStore) SaveFindings(ctx context.Context, sessionID string, findings []types.Finding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin findings tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_findings WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear findings for %s: %w", sessionID, err)
	}
	for i, f := range findings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_findings
				(session_id, seq, resource_key, observation, confidence, author, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, i, f.ResourceKey, f.Observation, f.Confidence, f.Author, f.RecordedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert finding %d for %s: %w", i, sessionID, err)
		}
	}
	return tx.Commit()
}

// LoadFindings returns a session's persisted findings in recording order.
func (s *SessionStore) LoadFindings(ctx context.Context, sessionID string) ([]types.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_key, observation, confidence, author, recorded_at
		FROM session_findings WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load findings for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []types.Finding
	for rows.Next() {
		var f types.Finding
		if err := rows.Scan(&f.ResourceKey, &f.Observation, &f.Confidence, &f.Author, &f.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
