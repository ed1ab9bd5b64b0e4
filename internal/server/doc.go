// Package server runs the debug-agent host.
//
// # Overview
//
// Server wires the built-in echo engine to an agent.Agent, optionally
// records sessions in a SQLite ledger, and optionally exposes HTTP status
// endpoints:
//
//   - GET /health - Liveness check
//   - GET /health/ready - 200 while a debugger is attached, 503 otherwise
//   - GET /api/status - Agent name, state, address and attached session
//   - GET /api/sessions - Session history from the ledger (404 without one)
//   - GET /api/rejections - Connections refused while a session was attached
//
// # Lifecycle
//
//	srv, err := server.New(cfg, logger)
//	err = srv.Run(ctx) // blocks until ctx is canceled
//
// Shutdown order is HTTP server, agent, engine, store.
package server
