// ABOUTME: Represents one attached debugger front-end and the goroutine serving it.
// ABOUTME: Reads framed requests into the engine and writes engine output back.

package agent

import (
	"bufio"
	"bytes"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/debug-agent/internal/wire"
)

// DisconnectCommand is forwarded to the engine when the connection ends
// without the front-end asking to disconnect.
const DisconnectCommand = `{"seq":1,"type":"request","command":"disconnect"}`

// disconnectMarker identifies a disconnect request from the front-end.
var disconnectMarker = []byte(`"type":"request","command":"disconnect"}`)

// halfCloser is implemented by *net.TCPConn.
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Session is one attached debugger.
type Session struct {
	id         string
	remoteAddr string
	startedAt  time.Time

	agent  *Agent
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	// handshake is closed once the connect message has been written, or
	// failed to be.
	handshake chan struct{}
	done      chan struct{}

	shutdownOnce sync.Once
	closeOnce    sync.Once

	messagesIn  atomic.Int64
	messagesOut atomic.Int64

	reasonMu sync.Mutex
	reason   CloseReason
}

func newSession(a *Agent, conn net.Conn) *Session {
	id := uuid.New().String()
	remote := conn.RemoteAddr().String()
	return &Session{
		id:         id,
		remoteAddr: remote,
		startedAt:  time.Now(),
		agent:      a,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		logger:     a.logger.With("session_id", id, "remote_addr", remote),
		handshake:  make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Info returns a snapshot of the session for reporting.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.id,
		AgentName:   s.agent.name,
		RemoteAddr:  s.remoteAddr,
		StartedAt:   s.startedAt,
		MessagesIn:  s.messagesIn.Load(),
		MessagesOut: s.messagesOut.Load(),
	}
}

// CloseReason returns why the session ended, or "" while it is running.
func (s *Session) CloseReason() CloseReason {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.reason
}

// setCloseReason keeps the first reason given.
func (s *Session) setCloseReason(r CloseReason) {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	if s.reason == "" {
		s.reason = r
	}
}

// start launches the session goroutine. Callers hold the agent's slot lock.
func (s *Session) start() {
	s.agent.workers.Add(1)
	go s.run()
}

func (s *Session) run() {
	defer s.agent.workers.Done()
	defer close(s.done)

	err := wire.SendConnectMessage(s.conn, s.agent.engine.Version(), s.agent.embeddingHost)
	close(s.handshake)
	if err != nil {
		s.logger.Warn("failed to send connect message", "error", err)
		s.setCloseReason(CloseHandshakeFailed)
		s.agent.OnSessionClosed(s)
		return
	}

	for {
		body, err := wire.ReceiveMessage(s.reader, s.logger)
		closing := false
		if err != nil {
			s.setCloseReason(closeReasonFor(err))
			if wire.IsExpectedClose(err) {
				s.logger.Debug("debugger connection ended", "error", err)
			} else {
				s.logger.Warn("debugger connection failed", "error", err)
			}
			body = []byte(DisconnectCommand)
			closing = true
		} else {
			s.messagesIn.Add(1)
			if bytes.Contains(body, disconnectMarker) {
				s.setCloseReason(CloseDisconnectRequest)
				closing = true
			}
		}

		command := wire.DecodeUTF8(body)
		s.agent.events.DebugEvent(DirectionReceive, command)
		s.agent.engine.SendCommand(command)

		if closing {
			s.agent.OnSessionClosed(s)
			return
		}
	}
}

// DebuggerMessage writes engine output to the front-end. Callers serialize
// through the agent's slot lock. Write failures are logged and the message
// is dropped; the read side notices the broken connection.
func (s *Session) DebuggerMessage(text []uint16) {
	<-s.handshake

	s.agent.events.DebugEvent(DirectionSend, text)
	if err := wire.SendMessage(s.conn, text); err != nil {
		s.logger.Debug("dropping message for debugger", "error", err)
		return
	}
	s.messagesOut.Add(1)
}

// Shutdown interrupts the session's blocking reads and writes. The
// connection itself stays open until the agent releases the session.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		now := time.Now()
		_ = s.conn.SetDeadline(now)

		if hc, ok := s.conn.(halfCloser); ok {
			_ = hc.CloseRead()
			_ = hc.CloseWrite()
			return
		}
		_ = s.conn.Close()
	})
}

// Join waits for the session goroutine to exit.
func (s *Session) Join() {
	<-s.done
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("closing debugger connection", "error", err)
		}
	})
}

func closeReasonFor(err error) CloseReason {
	switch {
	case errors.Is(err, wire.ErrMalformedHeader):
		return CloseMalformedFrame
	case errors.Is(err, wire.ErrNoBody):
		return CloseMalformedFrame
	default:
		return CloseConnectionLost
	}
}
