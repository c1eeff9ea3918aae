package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jmercer/sprintdesk/internal/agent"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

// handleChat runs one turn and streams its events as NDJSON. Validation
// failures are plain JSON errors; once streaming starts, failures travel on
// the stream itself.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.ExecuteConfirmedAction != nil {
		events := s.loop.ExecuteConfirmed(r.Context(), *req.ExecuteConfirmedAction,
			req.SessionCredential, req.ConfigID)
		res, err := WriteEventStream(w, events)
		if err != nil {
			s.logger.Printf("chat stream aborted: %v", err)
		}
		// The cached result set is stale only once a write actually landed;
		// a rejected action or all-failed batch leaves it usable.
		if s.store != nil && req.ConfigID != "" && res.WriteSucceeded {
			s.store.Delete(req.ConfigID)
		}
		return
	}

	if len(req.ConversationHistory) == 0 {
		writeError(w, http.StatusBadRequest, "conversation_history is required")
		return
	}

	in := agent.RunInput{
		History:      req.ConversationHistory,
		Tabular:      req.SideChannel,
		Credential:   req.SessionCredential,
		ConfigID:     req.ConfigID,
		AuditEnabled: req.AuditEnabled,
	}
	if s.store != nil && req.ConfigID != "" {
		if cached, ok := s.store.Get(req.ConfigID); ok {
			in.Cached = &cached
		}
	}

	events := s.loop.Run(r.Context(), in)
	res, err := WriteEventStream(w, events)
	if err != nil {
		s.logger.Printf("chat stream aborted: %v", err)
	}

	// The last issue set fetched during the turn becomes the session's
	// cached result set for follow-up questions.
	if s.store != nil && req.ConfigID != "" && len(res.IssuePayloads) > 0 {
		last := res.IssuePayloads[len(res.IssuePayloads)-1]
		s.store.Set(req.ConfigID, agent.CachedData{
			Label:     last.Label,
			Issues:    last.Issues,
			FetchedAt: time.Now().UTC(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
