// Package agent serves the remote debugging port for a script engine.
//
// # Overview
//
// An Agent listens on one TCP port and admits at most one debugger
// front-end at a time. Each admitted connection becomes a Session that owns
// a worker goroutine reading Content-Length frames and forwarding them to the
// engine. Output from the engine travels back through the Agent to whichever
// session is installed, or is dropped when none is.
//
//	a, err := agent.New(agent.Options{
//	    Name:   "node",
//	    Host:   "127.0.0.1",
//	    Port:   5858,
//	    Engine: engine,
//	    Logger: logger,
//	})
//	if err := a.Start(); err != nil { ... }
//	defer a.Shutdown()
//
// # Lifecycle
//
// The listener goroutine moves the agent through
//
//	Created -> Binding -> Listening -> Terminating -> Terminated
//
// Binding retries once per second until the port can be opened or Shutdown
// is called. Shutdown is synchronous: when it returns no goroutine started by
// the agent is still running and the port is closed.
//
// # Single session
//
// A second connection while a session is installed receives
//
//	Remote debugging session already active\r\n
//
// and is closed. A session ends when the front-end sends a disconnect
// request, when its connection fails, or when the agent closes it. In every
// case the engine sees a disconnect request so it can resume execution.
//
// # Thread Safety
//
// The session slot is guarded by one mutex. Every write to the installed
// session's connection happens while holding it, so engine output and
// session teardown never interleave. Shutdown returns only after every
// session goroutine has exited, including one that detached itself.
package agent
