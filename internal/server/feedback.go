package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/raggpt-go/internal/history"
	"github.com/54b3r/raggpt-go/internal/logging"
)

// handleFeedback handles POST /api/feedback: a like or dislike on one bot
// response.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	fb, err := s.sessions.Feedback(r.Context(), req.SessionID, req.Index, req.Liked)
	switch {
	case errors.Is(err, history.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, history.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error("feedback failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not record feedback")
		return
	}

	vote, msg := "down", "You downvoted this response"
	if fb.Liked {
		vote, msg = "up", "You upvoted this response"
	}
	s.metrics.feedbackTotal.WithLabelValues(vote).Inc()

	writeJSON(w, log, http.StatusOK, feedbackResponse{
		SessionID: fb.Session,
		Index:     fb.Index,
		Liked:     fb.Liked,
		Message:   msg,
	})
}

// handleHistory handles GET /api/history?sessionId=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	exchanges, err := s.sessions.Snapshot(r.Context(), id)
	if err != nil {
		log.Error("history load failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	if exchanges == nil {
		exchanges = []history.Exchange{}
	}
	writeJSON(w, log, http.StatusOK, historyResponse{SessionID: id, History: exchanges})
}

// handleHistoryReset handles DELETE /api/history?sessionId=.
func (s *Server) handleHistoryReset(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if err := s.sessions.Reset(r.Context(), id); err != nil {
		logging.FromContext(r.Context()).Error("history reset failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not reset history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
