// ABOUTME: Behavioural tests run against every Store implementation
// ABOUTME: Ensures MockStore and SQLiteStore agree on session and rejection semantics

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/debug-agent/internal/agent"
)

func storeImplementations(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"mock": func(t *testing.T) Store {
			return NewMockStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func sessionInfo(id string, started time.Time) agent.SessionInfo {
	return agent.SessionInfo{
		ID:         id,
		AgentName:  "node",
		RemoteAddr: "127.0.0.1:40000",
		StartedAt:  started,
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			started := time.Now().UTC().Truncate(time.Second)

			info := sessionInfo("session-1", started)
			require.NoError(t, s.RecordSessionStart(ctx, info))

			rec, err := s.GetSession(ctx, "session-1")
			require.NoError(t, err)
			assert.Equal(t, "node", rec.AgentName)
			assert.Equal(t, "127.0.0.1:40000", rec.RemoteAddr)
			assert.True(t, rec.StartedAt.Equal(started))
			assert.Nil(t, rec.EndedAt, "open session has no end")
			assert.Empty(t, rec.CloseReason)

			info.MessagesIn = 12
			info.MessagesOut = 30
			require.NoError(t, s.RecordSessionEnd(ctx, info, agent.CloseDisconnectRequest))

			rec, err = s.GetSession(ctx, "session-1")
			require.NoError(t, err)
			require.NotNil(t, rec.EndedAt)
			assert.False(t, rec.EndedAt.Before(started))
			assert.Equal(t, string(agent.CloseDisconnectRequest), rec.CloseReason)
			assert.Equal(t, int64(12), rec.MessagesIn)
			assert.Equal(t, int64(30), rec.MessagesOut)
		})
	}
}

func TestStore_EndWithoutStart(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			info := sessionInfo("orphan", time.Now())
			require.NoError(t, s.RecordSessionEnd(ctx, info, agent.CloseHandshakeFailed))

			rec, err := s.GetSession(ctx, "orphan")
			require.NoError(t, err)
			assert.Equal(t, string(agent.CloseHandshakeFailed), rec.CloseReason)
			assert.NotNil(t, rec.EndedAt)
		})
	}
}

func TestStore_GetSession_NotFound(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := open(t).GetSession(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ListSessions(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

			for i := 0; i < 5; i++ {
				info := sessionInfo(fmt.Sprintf("session-%d", i), base.Add(time.Duration(i)*time.Minute))
				require.NoError(t, s.RecordSessionStart(ctx, info))
			}

			all, err := s.ListSessions(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "session-4", all[0].ID, "newest first")
			assert.Equal(t, "session-0", all[4].ID)

			limited, err := s.ListSessions(ctx, 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "session-4", limited[0].ID)
			assert.Equal(t, "session-3", limited[1].ID)
		})
	}
}

func TestStore_Rejections(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			n, err := s.CountRejections(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			require.NoError(t, s.RecordRejection(ctx, "node", "10.0.0.1:1000"))
			require.NoError(t, s.RecordRejection(ctx, "node", "10.0.0.2:2000"))

			n, err = s.CountRejections(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			list, err := s.ListRejections(ctx, 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "10.0.0.2:2000", list[0].RemoteAddr, "newest first")
			assert.NotEmpty(t, list[0].ID)
			assert.NotEqual(t, list[0].ID, list[1].ID)
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxListLimit, clampLimit(maxListLimit+1))
}
