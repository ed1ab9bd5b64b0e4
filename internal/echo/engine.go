// ABOUTME: Reference script engine that answers debugger requests from its own goroutine
// ABOUTME: Parses requests with gjson and builds responses and events with sjson

// Package echo provides a minimal engine for the debug agent. It understands
// just enough of the request/response envelope to answer every request and
// to pretend to suspend and resume execution.
package echo

import (
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/2389/debug-agent/internal/wire"
)

const queueSize = 64

// Engine implements agent.Engine.
type Engine struct {
	version string
	logger  *slog.Logger

	commands chan []uint16
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	handler func([]uint16)

	// Owned by the worker goroutine.
	seq     int64
	running bool
}

// New starts an engine reporting version in the handshake.
func New(version string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		version:  version,
		logger:   logger,
		commands: make(chan []uint16, queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		running:  true,
	}
	go e.loop()
	return e
}

// Version returns the engine version string.
func (e *Engine) Version() string {
	return e.version
}

// SetMessageHandler registers the sink for responses and events.
func (e *Engine) SetMessageHandler(handler func([]uint16)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// SendCommand queues a request for the engine goroutine. Commands sent after
// Close are dropped.
func (e *Engine) SendCommand(command []uint16) {
	cmd := append([]uint16(nil), command...)
	select {
	case e.commands <- cmd:
	case <-e.stop:
		e.logger.Debug("engine stopped, dropping command")
	}
}

// Close stops the engine goroutine and waits for it to exit.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		case cmd := <-e.commands:
			for _, out := range e.handle([]byte(wire.String(cmd))) {
				e.emit(out)
			}
		}
	}
}

func (e *Engine) emit(msg string) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h == nil {
		return
	}
	h(wire.EncodeString(msg))
}

func (e *Engine) nextSeq() int64 {
	e.seq++
	return e.seq
}

// handle returns the messages produced in answer to one request.
func (e *Engine) handle(raw []byte) []string {
	if !gjson.ValidBytes(raw) {
		e.logger.Debug("malformed request", "raw", string(raw))
		return []string{e.failure(0, "", "invalid JSON request")}
	}

	req := gjson.ParseBytes(raw)
	if req.Get("type").String() != "request" {
		e.logger.Debug("ignoring non-request message", "type", req.Get("type").String())
		return nil
	}

	reqSeq := req.Get("seq").Int()
	command := req.Get("command").String()
	if command == "" {
		return []string{e.failure(reqSeq, "", "missing command")}
	}

	var out []string
	resp := e.response(reqSeq, command)

	switch command {
	case "version":
		resp = e.set(resp, "body.V8Version", e.version)
	case "continue", "disconnect":
		e.running = true
	case "suspend":
		e.running = false
	case "evaluate":
		expr := req.Get("arguments.expression")
		if !expr.Exists() {
			return []string{e.failure(reqSeq, command, "missing arguments.expression")}
		}
		resp = e.set(resp, "body.type", "string")
		resp = e.set(resp, "body.text", expr.String())
	}

	resp = e.set(resp, "running", e.running)
	out = append(out, resp)

	if command == "suspend" {
		out = append(out, e.breakEvent())
	}
	return out
}

// set applies one sjson edit. A failed edit is logged and leaves doc as it was.
func (e *Engine) set(doc, path string, value any) string {
	out, err := sjson.Set(doc, path, value)
	if err != nil {
		e.logger.Warn("failed to build message", "path", path, "error", err)
		return doc
	}
	return out
}

func (e *Engine) response(reqSeq int64, command string) string {
	resp := `{}`
	resp = e.set(resp, "seq", e.nextSeq())
	resp = e.set(resp, "type", "response")
	resp = e.set(resp, "request_seq", reqSeq)
	resp = e.set(resp, "command", command)
	resp = e.set(resp, "success", true)
	return resp
}

func (e *Engine) failure(reqSeq int64, command, message string) string {
	resp := e.response(reqSeq, command)
	resp = e.set(resp, "success", false)
	resp = e.set(resp, "message", message)
	resp = e.set(resp, "running", e.running)
	return resp
}

func (e *Engine) breakEvent() string {
	ev := `{}`
	ev = e.set(ev, "seq", e.nextSeq())
	ev = e.set(ev, "type", "event")
	ev = e.set(ev, "event", "break")
	ev = e.set(ev, "body.invocationText", "#<Object>")
	return ev
}
