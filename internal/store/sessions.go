// ABOUTME: Session ledger methods: session start/end, rejected connections, and listings
// ABOUTME: Implements agent.Recorder on top of the SQLite store

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/debug-agent/internal/agent"
)

// RecordSessionStart inserts a row for a newly attached session.
func (s *SQLiteStore) RecordSessionStart(ctx context.Context, info agent.SessionInfo) error {
	query := `
		INSERT INTO sessions (id, agent_name, remote_addr, started_at, messages_in, messages_out)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		info.ID,
		info.AgentName,
		info.RemoteAddr,
		info.StartedAt.UTC().Format(time.RFC3339),
		info.MessagesIn,
		info.MessagesOut,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("recorded session start", "id", info.ID, "remote_addr", info.RemoteAddr)
	return nil
}

// RecordSessionEnd closes the session's row with its final counters. A
// session whose start was never recorded is inserted whole.
func (s *SQLiteStore) RecordSessionEnd(ctx context.Context, info agent.SessionInfo, reason agent.CloseReason) error {
	query := `
		INSERT INTO sessions (id, agent_name, remote_addr, started_at, ended_at, close_reason, messages_in, messages_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			close_reason = excluded.close_reason,
			messages_in = excluded.messages_in,
			messages_out = excluded.messages_out
	`

	_, err := s.db.ExecContext(ctx, query,
		info.ID,
		info.AgentName,
		info.RemoteAddr,
		info.StartedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		nullString(string(reason)),
		info.MessagesIn,
		info.MessagesOut,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	s.logger.Debug("recorded session end", "id", info.ID, "reason", string(reason))
	return nil
}

// RecordRejection notes a connection refused while a session was attached.
func (s *SQLiteStore) RecordRejection(ctx context.Context, agentName, remoteAddr string) error {
	query := `
		INSERT INTO rejections (id, agent_name, remote_addr, rejected_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		agentName,
		remoteAddr,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting rejection: %w", err)
	}
	return nil
}

const sessionColumns = `id, agent_name, remote_addr, started_at, ended_at, close_reason, messages_in, messages_out`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var startedAtStr string
	var endedAt, closeReason sql.NullString

	if err := row.Scan(
		&rec.ID,
		&rec.AgentName,
		&rec.RemoteAddr,
		&startedAtStr,
		&endedAt,
		&closeReason,
		&rec.MessagesIn,
		&rec.MessagesOut,
	); err != nil {
		return nil, err
	}

	var err error
	rec.StartedAt, err = time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}

	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		rec.EndedAt = &t
	}
	rec.CloseReason = closeReason.String

	return &rec, nil
}

// GetSession retrieves a session by ID.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	rec, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return rec, nil
}

// ListSessions retrieves sessions, most recently started first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}

// ListRejections retrieves rejected connections, newest first.
func (s *SQLiteStore) ListRejections(ctx context.Context, limit int) ([]*Rejection, error) {
	query := `
		SELECT id, agent_name, remote_addr, rejected_at
		FROM rejections
		ORDER BY rejected_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying rejections: %w", err)
	}
	defer rows.Close()

	var rejections []*Rejection
	for rows.Next() {
		var r Rejection
		var rejectedAtStr string
		if err := rows.Scan(&r.ID, &r.AgentName, &r.RemoteAddr, &rejectedAtStr); err != nil {
			return nil, fmt.Errorf("scanning rejection row: %w", err)
		}
		r.RejectedAt, err = time.Parse(time.RFC3339, rejectedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing rejected_at: %w", err)
		}
		rejections = append(rejections, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rejection rows: %w", err)
	}

	return rejections, nil
}

// CountRejections returns the total number of rejected connections.
func (s *SQLiteStore) CountRejections(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rejections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rejections: %w", err)
	}
	return n, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
