// ABOUTME: Interfaces the agent uses to talk to the script engine and optional ledgers
// ABOUTME: Includes the default slog-backed event logger

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/debug-agent/internal/wire"
)

// Engine is the script engine being debugged.
type Engine interface {
	// SendCommand delivers a decoded request from the front-end.
	SendCommand(command []uint16)

	// SetMessageHandler registers the sink for engine output. A later
	// registration replaces an earlier one.
	SetMessageHandler(handler func(message []uint16))

	// Version is advertised in the connect handshake.
	Version() string
}

// Directions passed to EventLogger.
const (
	DirectionReceive = "receive"
	DirectionSend    = "send"
)

// EventLogger observes every message crossing the debug channel.
type EventLogger interface {
	DebugEvent(direction string, text []uint16)
}

// SessionInfo describes a session for status reporting and the ledger.
type SessionInfo struct {
	ID          string    `json:"id"`
	AgentName   string    `json:"agent_name"`
	RemoteAddr  string    `json:"remote_addr"`
	StartedAt   time.Time `json:"started_at"`
	MessagesIn  int64     `json:"messages_in"`
	MessagesOut int64     `json:"messages_out"`
}

// Recorder persists session history. Errors are logged and never affect the
// debug channel.
type Recorder interface {
	RecordSessionStart(ctx context.Context, info SessionInfo) error
	RecordSessionEnd(ctx context.Context, info SessionInfo, reason CloseReason) error
	RecordRejection(ctx context.Context, agentName, remoteAddr string) error
}

// slogEvents is the EventLogger used when none is configured.
type slogEvents struct {
	logger *slog.Logger
}

func (e slogEvents) DebugEvent(direction string, text []uint16) {
	if !e.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	e.logger.Debug("debug message", "direction", direction, "text", wire.String(text))
}
