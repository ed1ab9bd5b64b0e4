// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/debug-agent/internal/agent"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	sessions   map[string]*SessionRecord // keyed by session ID
	order      []string                  // session IDs in insertion order
	rejections []*Rejection
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*SessionRecord),
	}
}

// RecordSessionStart stores a new session.
func (m *MockStore) RecordSessionStart(ctx context.Context, info agent.SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(info)
	return nil
}

// RecordSessionEnd marks a session finished, inserting it if unknown.
func (m *MockStore) RecordSessionEnd(ctx context.Context, info agent.SessionInfo, reason agent.CloseReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.put(info)
	now := time.Now().UTC()
	rec.EndedAt = &now
	rec.CloseReason = string(reason)
	return nil
}

func (m *MockStore) put(info agent.SessionInfo) *SessionRecord {
	rec, ok := m.sessions[info.ID]
	if !ok {
		rec = &SessionRecord{
			ID:         info.ID,
			AgentName:  info.AgentName,
			RemoteAddr: info.RemoteAddr,
			StartedAt:  info.StartedAt.UTC(),
		}
		m.sessions[info.ID] = rec
		m.order = append(m.order, info.ID)
	}
	rec.MessagesIn = info.MessagesIn
	rec.MessagesOut = info.MessagesOut
	return rec
}

// RecordRejection stores a rejected connection.
func (m *MockStore) RecordRejection(ctx context.Context, agentName, remoteAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rejections = append(m.rejections, &Rejection{
		ID:         uuid.New().String(),
		AgentName:  agentName,
		RemoteAddr: remoteAddr,
		RejectedAt: time.Now().UTC(),
	})
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *rec
	return &result, nil
}

// ListSessions returns sessions newest first.
func (m *MockStore) ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*SessionRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := *m.sessions[m.order[i]]
		result = append(result, &rec)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if limit = clampLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListRejections returns rejected connections newest first.
func (m *MockStore) ListRejections(ctx context.Context, limit int) ([]*Rejection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Rejection, 0, len(m.rejections))
	for i := len(m.rejections) - 1; i >= 0; i-- {
		r := *m.rejections[i]
		result = append(result, &r)
	}

	if limit = clampLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountRejections returns the number of rejected connections.
func (m *MockStore) CountRejections(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rejections), nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
