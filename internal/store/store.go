// ABOUTME: Store interface and data types for the debug session ledger
// ABOUTME: Defines SessionRecord and Rejection plus the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/debug-agent/internal/agent"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// SessionRecord is one debugger session as kept in the ledger.
// EndedAt is nil while the session is still attached.
type SessionRecord struct {
	ID          string     `json:"id"`
	AgentName   string     `json:"agent_name"`
	RemoteAddr  string     `json:"remote_addr"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
	MessagesIn  int64      `json:"messages_in"`
	MessagesOut int64      `json:"messages_out"`
}

// Rejection is a connection refused because a session was already attached.
type Rejection struct {
	ID         string    `json:"id"`
	AgentName  string    `json:"agent_name"`
	RemoteAddr string    `json:"remote_addr"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Store is the session ledger. It satisfies agent.Recorder.
type Store interface {
	agent.Recorder

	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// ListSessions returns sessions newest first. A limit of 0 or less
	// means the default of 100.
	ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error)

	ListRejections(ctx context.Context, limit int) ([]*Rejection, error)
	CountRejections(ctx context.Context) (int, error)

	Close() error
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
