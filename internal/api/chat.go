package api

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/resilience"
	"github.com/sells-group/hscore/internal/store"
	"github.com/sells-group/hscore/pkg/anthropic"
)

type chatRequest struct {
	Messages []anthropic.Message `json:"messages"`
	Stream   bool                `json:"stream"`
}

type chatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// handleChat answers POST /api/chat. Replies are never streamed; a
// stream flag is accepted and ignored.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	reply, err := s.assistant.Chat(r.Context(), req.Messages)
	if err != nil {
		s.assistantError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Content: reply.Content, Model: reply.Model})
}

type insightRequest struct {
	Subzone  string `json:"subzone"`
	Snapshot string `json:"snapshot"`
}

type insightResponse struct {
	Subzone string `json:"subzone"`
	Content string `json:"content"`
	Model   string `json:"model"`
}

// handleInsight answers POST /api/chat/subzone-insight for one subzone of
// a snapshot.
func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var req insightRequest
	if !decodeBody(w, r, &req) {
		return
	}
	code := strings.TrimSpace(req.Subzone)
	if code == "" {
		writeError(w, http.StatusBadRequest, "subzone is required")
		return
	}

	snap, err := s.resolveSnapshot(r.Context(), req.Snapshot)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		s.serverError(w, "api: resolve snapshot", err)
		return
	}
	rows, err := s.store.ListSubzones(r.Context(), snap.ID, store.SubzoneFilter{})
	if err != nil {
		s.serverError(w, "api: list subzones", err)
		return
	}

	for _, sz := range rows {
		if !strings.EqualFold(sz.Subzone, code) {
			continue
		}
		reply, err := s.assistant.Insight(r.Context(), sz, snap.Subzones)
		if err != nil {
			s.assistantError(w, "insight", err)
			return
		}
		writeJSON(w, http.StatusOK, insightResponse{Subzone: sz.Subzone, Content: reply.Content, Model: reply.Model})
		return
	}
	writeError(w, http.StatusNotFound, "subzone not found")
}

// assistantError maps an assistant failure to a response. An open circuit
// is a 503 with a retry hint; anything else is a bad gateway.
func (s *Server) assistantError(w http.ResponseWriter, op string, err error) {
	if eris.Is(err, resilience.ErrOpen) {
		s.log.Warn("api: " + op + " rejected, language model circuit open")
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "assistant temporarily unavailable")
		return
	}
	s.log.Error("api: "+op+" failed", zap.Error(err))
	writeError(w, http.StatusBadGateway, op+" failed")
}
