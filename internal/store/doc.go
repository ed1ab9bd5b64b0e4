// Package store keeps a ledger of debugger sessions using SQLite.
//
// # Architecture
//
// Store extends agent.Recorder with read access for the status API.
// SQLiteStore persists to a database file (or ":memory:"); MockStore keeps
// everything in memory for tests.
//
//	s, err := store.NewSQLiteStore("/var/lib/debug-agent/sessions.db")
//	a, err := agent.New(agent.Options{Recorder: s, ...})
//
// # Schema
//
//	sessions(id, agent_name, remote_addr, started_at, ended_at,
//	         close_reason, messages_in, messages_out)
//	rejections(id, agent_name, remote_addr, rejected_at)
//
// A session row is written when the debugger attaches and completed when it
// detaches. Timestamps are stored as RFC 3339 text in UTC.
//
// # Thread Safety
//
// Both implementations are safe for concurrent use.
package store
