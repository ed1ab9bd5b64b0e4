// ABOUTME: HTTP handlers for health checks and the read-only status API
// ABOUTME: Reports the agent state, the attached debugger and the session ledger as JSON

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/2389/debug-agent/internal/agent"
	"github.com/2389/debug-agent/internal/store"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Name          string             `json:"name"`
	State         string             `json:"state"`
	Address       string             `json:"address"`
	EngineVersion string             `json:"engine_version"`
	Session       *agent.SessionInfo `json:"session,omitempty"`
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK while a debugger is attached.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	info, ok := s.agent.ActiveSession()
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no debugger attached"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "attached %s", info.RemoteAddr)
}

// handleStatus handles GET /api/status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Name:          s.agent.Name(),
		State:         s.agent.State().String(),
		Address:       s.config.Agent.Addr(),
		EngineVersion: s.engine.Version(),
	}
	if addr := s.agent.Addr(); addr != nil {
		resp.Address = addr.String()
	}
	if info, ok := s.agent.ActiveSession(); ok {
		resp.Session = &info
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// handleSessions handles GET /api/sessions?limit=N requests.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.sendJSONError(w, http.StatusNotFound, "session ledger is not configured")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.SessionRecord{}
	}

	s.sendJSON(w, http.StatusOK, sessions)
}

// handleRejections handles GET /api/rejections?limit=N requests.
func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.sendJSONError(w, http.StatusNotFound, "session ledger is not configured")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rejections, err := s.store.ListRejections(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list rejections", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to list rejections")
		return
	}
	if rejections == nil {
		rejections = []*store.Rejection{}
	}

	s.sendJSON(w, http.StatusOK, rejections)
}

var errBadLimit = errors.New("limit must be a positive integer")

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return n, nil
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
