// Package api exposes the daily puzzle, game sessions, progress, and
// the announcements record store over HTTP. It is the display-surface
// boundary: handlers translate HTTP requests into flip/reset intents
// and return state snapshots, nothing more.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clt-platform/daily-match/internal/announcements"
	"github.com/clt-platform/daily-match/internal/progress"
	"github.com/clt-platform/daily-match/internal/session"
)

// Server handles HTTP requests and owns the in-memory session
// registry. One session owns one topic's progress at a time; the
// registry does not try to deduplicate topics across clients.
type Server struct {
	progressStore progress.Store
	annStore      *announcements.Store
	logger        *log.Logger
	startTime     time.Time

	// sessionOpts seeds every created session; tests shorten the
	// resolution delays through it.
	sessionOpts session.Options

	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
}

// NewServer creates an API server over the given stores. annStore may
// be nil, in which case the announcements endpoints report the store
// as unavailable.
func NewServer(progressStore progress.Store, annStore *announcements.Store) *Server {
	logger := log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	return &Server{
		progressStore: progressStore,
		annStore:      annStore,
		logger:        logger,
		startTime:     time.Now(),
		sessionOpts:   session.Options{Store: progressStore, Logger: logger},
		sessions:      make(map[uuid.UUID]*session.Session),
	}
}

// Routes sets up the HTTP routes with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/puzzle", s.handleDailyPuzzle)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/flip", s.handleFlip)
			r.Post("/reset", s.handleReset)
			r.Delete("/", s.handleDeleteSession)
		})

		r.Get("/progress/{topic}", s.handleGetProgress)

		r.Get("/announcements", s.handleListAnnouncements)
		r.Post("/announcements", s.handleCreateAnnouncement)
		r.Put("/announcements/{id}", s.handleUpdateAnnouncement)
		r.Delete("/announcements/{id}", s.handleDeleteAnnouncement)
	})

	return r
}

// Shutdown closes every live session, cancelling their timers.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
}

func (s *Server) lookupSession(id uuid.UUID) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// writeJSON writes a JSON response with proper headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes a structured error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
