// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers database creation, in-memory mode, persistence across reopen, and agent integration

package store

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/2389/debug-agent/internal/agent"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordRejection(ctx, "node", "127.0.0.1:1"); err != nil {
		t.Fatalf("RecordRejection failed: %v", err)
	}

	n, err := store.CountRejections(ctx)
	if err != nil {
		t.Fatalf("CountRejections failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountRejections = %d, want 1", n)
	}

	if _, err := os.Stat(MemoryPath); !os.IsNotExist(err) {
		t.Error("in-memory store must not create a file")
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	info := agent.SessionInfo{
		ID:         "persisted",
		AgentName:  "node",
		RemoteAddr: "127.0.0.1:5000",
		StartedAt:  time.Now(),
	}
	if err := store.RecordSessionStart(ctx, info); err != nil {
		t.Fatalf("RecordSessionStart failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer reopened.Close()

	rec, err := reopened.GetSession(ctx, "persisted")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.RemoteAddr != "127.0.0.1:5000" {
		t.Errorf("RemoteAddr = %q, want %q", rec.RemoteAddr, "127.0.0.1:5000")
	}
}

// nopEngine satisfies agent.Engine without producing output.
type nopEngine struct{}

func (nopEngine) SendCommand([]uint16) {}

func (nopEngine) SetMessageHandler(func([]uint16)) {}

func (nopEngine) Version() string { return "test" }

func TestSQLiteStore_RecordsAgentSessions(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	a, err := agent.New(agent.Options{
		Name:     "ledger-test",
		Host:     "127.0.0.1",
		Engine:   nopEngine{},
		Recorder: store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("agent.New failed: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.WaitUntilListening(ctx); err != nil {
		t.Fatalf("WaitUntilListening failed: %v", err)
	}

	first, err := net.Dial("tcp", a.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()
	// Wait for the handshake so the session is installed before the second dial.
	if _, err := first.Read(make([]byte, 1)); err != nil {
		t.Fatalf("reading handshake failed: %v", err)
	}

	second, err := net.Dial("tcp", a.Addr().String())
	if err != nil {
		t.Fatalf("second dial failed: %v", err)
	}
	_, _ = io.ReadAll(second)
	second.Close()

	a.Shutdown()

	sessions, err := store.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("ListSessions returned %d sessions, want 1", len(sessions))
	}
	if sessions[0].AgentName != "ledger-test" {
		t.Errorf("AgentName = %q, want %q", sessions[0].AgentName, "ledger-test")
	}
	if sessions[0].CloseReason != string(agent.CloseShutdown) {
		t.Errorf("CloseReason = %q, want %q", sessions[0].CloseReason, agent.CloseShutdown)
	}

	n, err := store.CountRejections(ctx)
	if err != nil {
		t.Fatalf("CountRejections failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountRejections = %d, want 1", n)
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
