// ABOUTME: Owns the debugger port, admits one session at a time, and routes engine output to it.
// ABOUTME: Central coordinator for the debug channel lifecycle from bind to shutdown.

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SessionActiveMessage is written to a connection refused because another
// session is installed.
const SessionActiveMessage = "Remote debugging session already active\r\n"

// DefaultBindRetryInterval is the pause between failed attempts to open the port.
const DefaultBindRetryInterval = time.Second

const (
	acceptRetryDelay = 50 * time.Millisecond
	recordTimeout    = 5 * time.Second
)

// ErrAlreadyStarted indicates Start was called more than once.
var ErrAlreadyStarted = errors.New("agent already started")

// ErrTerminated indicates the agent shut down before it ever listened.
var ErrTerminated = errors.New("agent terminated")

// ErrNoEngine indicates Options.Engine was not set.
var ErrNoEngine = errors.New("engine is required")

// Options configures an Agent.
type Options struct {
	// Name identifies the agent in logs and the session ledger.
	Name string

	// Host and Port form the listen address. Port 0 picks a free port.
	Host string
	Port int

	// EmbeddingHost is advertised in the handshake when non-empty.
	EmbeddingHost string

	// BindRetryInterval defaults to DefaultBindRetryInterval.
	BindRetryInterval time.Duration

	Engine   Engine
	Events   EventLogger
	Recorder Recorder
	Logger   *slog.Logger
}

// Agent serves the debugger port.
type Agent struct {
	name          string
	address       string
	embeddingHost string
	retryInterval time.Duration

	engine   Engine
	events   EventLogger
	recorder Recorder
	logger   *slog.Logger

	state       atomic.Int32
	terminating atomic.Bool
	started     atomic.Bool

	// ctx is cancelled by Shutdown to interrupt a pending bind retry.
	ctx    context.Context
	cancel context.CancelFunc

	listening     chan struct{}
	listeningOnce sync.Once
	done          chan struct{}
	terminated    chan struct{}
	shutdownOnce  sync.Once

	lnMu     sync.Mutex
	listener net.Listener

	mu      sync.Mutex
	session *Session

	// current mirrors session so Shutdown can interrupt a write that holds mu.
	current atomic.Pointer[Session]

	// workers counts session goroutines, including ones that detached
	// themselves and are still finishing up. Add happens under mu.
	workers sync.WaitGroup
}

// New validates opts and returns an agent in the Created state.
func New(opts Options) (*Agent, error) {
	if opts.Engine == nil {
		return nil, ErrNoEngine
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", opts.Port)
	}
	if opts.BindRetryInterval < 0 {
		return nil, fmt.Errorf("invalid bind retry interval %s", opts.BindRetryInterval)
	}

	name := opts.Name
	if name == "" {
		name = "debug-agent"
	}
	retry := opts.BindRetryInterval
	if retry == 0 {
		retry = DefaultBindRetryInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent", name)

	events := opts.Events
	if events == nil {
		events = slogEvents{logger: logger}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		name:          name,
		address:       net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		embeddingHost: opts.EmbeddingHost,
		retryInterval: retry,
		engine:        opts.Engine,
		events:        events,
		recorder:      opts.Recorder,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		listening:     make(chan struct{}),
		done:          make(chan struct{}),
		terminated:    make(chan struct{}),
	}
	a.state.Store(int32(StateCreated))
	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return a.name
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Addr returns the bound address, or nil before the port is open.
func (a *Agent) Addr() net.Addr {
	a.lnMu.Lock()
	defer a.lnMu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Start launches the listener goroutine.
func (a *Agent) Start() error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go a.run()
	return nil
}

// WaitUntilListening blocks until the agent accepts connections. It returns
// ErrTerminated if the agent shut down first.
func (a *Agent) WaitUntilListening(ctx context.Context) error {
	select {
	case <-a.listening:
		return nil
	case <-a.terminated:
		select {
		case <-a.listening:
			return nil
		default:
			return ErrTerminated
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) run() {
	defer close(a.done)
	if a.terminating.Load() {
		return
	}

	ln, err := a.bind()
	if err != nil {
		a.logger.Debug("stopped binding debugger port", "error", err)
		return
	}

	a.lnMu.Lock()
	if a.terminating.Load() {
		a.lnMu.Unlock()
		_ = ln.Close()
		return
	}
	a.listener = ln
	a.lnMu.Unlock()

	a.state.CompareAndSwap(int32(StateBinding), int32(StateListening))
	a.logger.Info("debugger port open", "addr", ln.Addr().String())

	for !a.terminating.Load() {
		a.listeningOnce.Do(func() { close(a.listening) })

		conn, err := ln.Accept()
		if err != nil {
			if a.terminating.Load() || errors.Is(err, net.ErrClosed) {
				break
			}
			a.logger.Warn("accept failed", "error", err)
			select {
			case <-a.ctx.Done():
			case <-time.After(acceptRetryDelay):
			}
			continue
		}
		a.CreateSession(conn)
	}
	a.logger.Debug("listener stopped")
}

func (a *Agent) bind() (net.Listener, error) {
	a.state.CompareAndSwap(int32(StateCreated), int32(StateBinding))

	lc := net.ListenConfig{Control: reuseAddrControl}
	listen := func() (net.Listener, error) {
		return lc.Listen(a.ctx, "tcp", a.address)
	}
	notify := func(err error, wait time.Duration) {
		a.logger.Warn("failed to open debugger port, retrying",
			"addr", a.address,
			"error", err,
			"retry_in", wait,
		)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(a.retryInterval), a.ctx)
	return backoff.RetryNotifyWithData(listen, b, notify)
}

// Shutdown stops accepting, closes any session and waits for every goroutine
// the agent started. It is safe to call more than once and from several
// goroutines; all callers return once the agent is Terminated.
func (a *Agent) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down debugger agent")
		a.terminating.Store(true)
		a.state.Store(int32(StateTerminating))
		a.cancel()

		a.lnMu.Lock()
		if a.listener != nil {
			if err := a.listener.Close(); err != nil {
				a.logger.Debug("closing listener", "error", err)
			}
		}
		a.lnMu.Unlock()

		if a.started.Load() {
			<-a.done
		}

		if s := a.current.Load(); s != nil {
			s.setCloseReason(CloseShutdown)
			s.Shutdown()
		}
		a.CloseSession()

		// A session that cleared the slot itself may still be logging or
		// recording its end.
		a.workers.Wait()

		a.state.Store(int32(StateTerminated))
		close(a.terminated)
	})
	<-a.terminated
}

// CreateSession installs a session for conn, or refuses conn when one is
// already installed.
func (a *Agent) CreateSession(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()

	remote := conn.RemoteAddr().String()

	if a.terminating.Load() {
		_ = conn.Close()
		return
	}

	if a.session != nil {
		a.logger.Warn("rejecting debugger connection, session already active",
			"remote_addr", remote,
			"active_session", a.session.ID(),
		)
		if _, err := io.WriteString(conn, SessionActiveMessage); err != nil {
			a.logger.Debug("failed to notify rejected debugger", "remote_addr", remote, "error", err)
		}
		_ = conn.Close()
		a.record("rejection", func(ctx context.Context, r Recorder) error {
			return r.RecordRejection(ctx, a.name, remote)
		})
		return
	}

	s := newSession(a, conn)
	a.engine.SetMessageHandler(a.DispatchEngineMessage)
	a.session = s
	a.current.Store(s)

	a.logger.Info("=== DEBUGGER ATTACHED ===",
		"session_id", s.ID(),
		"remote_addr", remote,
	)
	info := s.Info()
	a.record("session start", func(ctx context.Context, r Recorder) error {
		return r.RecordSessionStart(ctx, info)
	})

	s.start()
}

// CloseSession shuts down the installed session, if any, and waits for its
// goroutine to exit. The slot is cleared before waiting so the session's own
// close notification finds nothing to do.
func (a *Agent) CloseSession() {
	a.mu.Lock()
	s := a.session
	a.session = nil
	a.current.Store(nil)
	a.mu.Unlock()

	if s == nil {
		return
	}

	s.setCloseReason(CloseShutdown)
	s.Shutdown()
	s.Join()
	a.finishSession(s)
}

// OnSessionClosed is called by a session whose worker is about to exit.
func (a *Agent) OnSessionClosed(s *Session) {
	if a.terminating.Load() {
		return
	}

	a.mu.Lock()
	if a.session != s {
		a.mu.Unlock()
		return
	}
	a.session = nil
	a.current.Store(nil)
	a.mu.Unlock()

	s.Shutdown()
	a.finishSession(s)
}

// DispatchEngineMessage forwards engine output to the installed session.
// Output produced while no debugger is attached is dropped.
func (a *Agent) DispatchEngineMessage(text []uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		a.logger.Debug("dropping engine message, no debugger attached", "units", len(text))
		return
	}
	a.session.DebuggerMessage(text)
}

// ActiveSession reports the installed session.
func (a *Agent) ActiveSession() (SessionInfo, bool) {
	s := a.current.Load()
	if s == nil {
		return SessionInfo{}, false
	}
	return s.Info(), true
}

func (a *Agent) finishSession(s *Session) {
	s.close()
	info := s.Info()
	reason := s.CloseReason()

	a.logger.Info("=== DEBUGGER DETACHED ===",
		"session_id", info.ID,
		"remote_addr", info.RemoteAddr,
		"reason", string(reason),
		"messages_in", info.MessagesIn,
		"messages_out", info.MessagesOut,
		"duration", time.Since(info.StartedAt).Round(time.Millisecond),
	)
	a.record("session end", func(ctx context.Context, r Recorder) error {
		return r.RecordSessionEnd(ctx, info, reason)
	})
}

func (a *Agent) record(event string, fn func(ctx context.Context, r Recorder) error) {
	if a.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := fn(ctx, a.recorder); err != nil {
		a.logger.Warn("failed to record session event", "event", event, "error", err)
	}
}
