package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/eventbus"
	"github.com/provisor-ai/deskbot/internal/orchestrator"
	"github.com/provisor-ai/deskbot/internal/registry"
	"github.com/provisor-ai/deskbot/internal/session"
)

type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Store
	Log          *convlog.Log
	Registry     *registry.Registry
	Bus          *eventbus.Bus
	DeleteUser   func(userID string) error
	StartedAt    time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionItem)
	mux.HandleFunc("/api/streams/ws", s.handleStreamWS)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
		"uptime": time.Since(s.StartedAt).Round(time.Second).String(),
	}
	if s.Sessions != nil {
		payload["sessions"] = s.Sessions.Stats()
	}
	if s.Bus != nil {
		payload["subscribers"] = s.Bus.SubscriberCount()
	}
	writeJSON(w, http.StatusOK, payload)
}

type messageRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Text   string `json:"text"`
}

type messageResponse struct {
	Reply string `json:"reply"`
	Agent string `json:"agent"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req messageRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, errBadRequest("user_id and text are required"))
		return
	}
	reply := s.Orchestrator.HandleMessage(r.Context(), req.UserID, req.Name, req.Text)
	agent := ""
	if s.Sessions != nil {
		if sess, ok := s.Sessions.Get(req.UserID); ok {
			agent = string(sess.CurrentAgent)
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Reply: reply, Agent: agent})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	type agentInfo struct {
		Identity    string   `json:"identity"`
		Description string   `json:"description"`
		Operations  []string `json:"operations,omitempty"`
		Handoffs    []string `json:"handoffs,omitempty"`
		Default     bool     `json:"default,omitempty"`
	}
	var out []agentInfo
	for _, id := range s.Registry.Identities() {
		desc, err := s.Registry.Resolve(id)
		if err != nil {
			continue
		}
		info := agentInfo{
			Identity:    string(desc.Identity),
			Description: desc.Description,
			Operations:  desc.Operations,
			Default:     desc.Identity == s.Registry.Default(),
		}
		for _, h := range desc.Handoffs {
			info.Handoffs = append(info.Handoffs, string(h))
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	type sessionInfo struct {
		UserID       string    `json:"user_id"`
		CurrentAgent string    `json:"current_agent"`
		LastActivity time.Time `json:"last_activity"`
		TurnCount    int       `json:"turn_count"`
	}
	var out []sessionInfo
	for userID := range s.Sessions.All() {
		sess, ok := s.Sessions.Get(userID)
		if !ok {
			continue
		}
		out = append(out, sessionInfo{
			UserID:       sess.UserID,
			CurrentAgent: string(sess.CurrentAgent),
			LastActivity: sess.LastActivity,
			TurnCount:    sess.TurnCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if userID == "" {
		writeError(w, http.StatusNotFound, errNotFound("session"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		sess, ok := s.Sessions.Get(userID)
		if !ok {
			writeError(w, http.StatusNotFound, errNotFound("session"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":       sess.UserID,
			"current_agent": string(sess.CurrentAgent),
			"last_activity": sess.LastActivity,
			"turn_count":    sess.TurnCount,
			"history_len":   s.Log.Len(userID),
		})
	case http.MethodDelete:
		s.Sessions.Clear(userID)
		s.Log.Clear(userID)
		if s.DeleteUser != nil {
			if err := s.DeleteUser(userID); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func decodeJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

type apiError struct {
	msg string
}

func (e apiError) Error() string { return e.msg }

func errNotFound(target string) error {
	return apiError{msg: target + " not found"}
}

func errBadRequest(msg string) error {
	return apiError{msg: msg}
}
