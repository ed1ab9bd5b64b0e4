// ABOUTME: Agent lifecycle states and session close reasons
// ABOUTME: States are stored atomically so status endpoints can read them without locking

package agent

// State is a phase of the agent lifecycle.
type State int32

const (
	StateCreated State = iota
	StateBinding
	StateListening
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBinding:
		return "binding"
	case StateListening:
		return "listening"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CloseReason records why a session ended.
type CloseReason string

const (
	CloseDisconnectRequest CloseReason = "disconnect_request"
	CloseConnectionLost    CloseReason = "connection_lost"
	CloseMalformedFrame    CloseReason = "malformed_frame"
	CloseHandshakeFailed   CloseReason = "handshake_failed"
	CloseShutdown          CloseReason = "shutdown"
)
