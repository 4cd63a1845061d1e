package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clt-platform/daily-match/internal/announcements"
	"github.com/clt-platform/daily-match/internal/puzzle"
	"github.com/clt-platform/daily-match/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"uptime_seconds":  int(time.Since(s.startTime).Seconds()),
		"active_sessions": active,
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	// The progress store is best-effort by design, so readiness only
	// requires the process itself to be serving.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleDailyPuzzle returns today's deterministic puzzle for a topic
// without creating a session.
func (s *Server) handleDailyPuzzle(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	s.writeJSON(w, http.StatusOK, puzzle.Generate(time.Now(), topic))
}

type createSessionRequest struct {
	Topic string `json:"topic"`
}

// sessionResponse pairs the registry id with the state snapshot.
type sessionResponse struct {
	ID string `json:"id"`
	session.Snapshot
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	sess := session.New(req.Topic, s.sessionOpts)
	id := uuid.New()

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, sessionResponse{ID: id.String(), Snapshot: sess.Snapshot()})
}

// sessionFromRequest resolves the {id} route param to a live session.
func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session.Session, uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, uuid.Nil, false
	}
	sess, ok := s.lookupSession(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return nil, uuid.Nil, false
	}
	return sess, id, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{ID: id.String(), Snapshot: sess.Snapshot()})
}

type flipRequest struct {
	Index int `json:"index"`
}

// handleFlip applies a flip intent. Illegal flips are no-ops by the
// state machine's rules, so the handler always answers with the
// resulting snapshot rather than an error.
func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req flipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess.Flip(req.Index)
	s.writeJSON(w, http.StatusOK, sessionResponse{ID: id.String(), Snapshot: sess.Snapshot()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	sess.Reset()
	s.writeJSON(w, http.StatusOK, sessionResponse{ID: id.String(), Snapshot: sess.Snapshot()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	sess.Close()
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	p, err := s.progressStore.Load(r.Context(), topic)
	if err != nil {
		// Best-effort store: report empty progress, log for operators.
		s.logger.Printf("progress load failed for %q: %v", topic, err)
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) requireAnnouncements(w http.ResponseWriter) bool {
	if s.annStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, "announcements store unavailable")
		return false
	}
	return true
}

func (s *Server) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	if !s.requireAnnouncements(w) {
		return
	}
	list, err := s.annStore.List(r.Context())
	if err != nil {
		s.logger.Printf("announcements list failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list announcements")
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	if !s.requireAnnouncements(w) {
		return
	}
	var fields announcements.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := s.annStore.Create(r.Context(), fields)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	if !s.requireAnnouncements(w) {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid announcement id")
		return
	}
	var fields announcements.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := s.annStore.Update(r.Context(), id, fields)
	if errors.Is(err, announcements.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "announcement not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	if !s.requireAnnouncements(w) {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid announcement id")
		return
	}
	if err := s.annStore.Delete(r.Context(), id); err != nil {
		if errors.Is(err, announcements.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "announcement not found")
			return
		}
		s.logger.Printf("announcement delete failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete announcement")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
