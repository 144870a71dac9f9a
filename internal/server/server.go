// Package server exposes the pipeline's read-only status surface: the
// citation ledger, the active-session cache, and Prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/publish"
)

// Server holds the handler dependencies. Everything it serves is derived
// from files the reconciliation cycle owns; it never writes.
type Server struct {
	ledger         *ledger.Ledger
	sessionsPath   string
	metricsHandler http.Handler
	log            *zap.Logger
}

// New creates a Server. metricsHandler is typically promhttp.Handler().
func New(ldg *ledger.Ledger, sessionsPath string, metricsHandler http.Handler) *Server {
	return &Server{
		ledger:         ldg,
		sessionsPath:   sessionsPath,
		metricsHandler: metricsHandler,
		log:            zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi router. The static site fetches the citation list
// cross-origin, so CORS allows any origin for the GET surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/citations", s.handleCitations)
	r.Get("/citations.txt", s.handleCitationsText)
	r.Get("/api/sessions", s.handleSessions)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "ok",
		"citations": s.ledger.Len(),
	})
}

func (s *Server) handleCitations(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.ledger.Records())
}

// handleCitationsText serves the same quoted line format the static site's
// script consumes, so the site can point here instead of at the FTP copy.
func (s *Server) handleCitationsText(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(publish.Render(s.ledger))
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions, err := ledger.ReadSessions(s.sessionsPath)
	if err != nil {
		s.log.Error("server: read session cache", zap.Error(err))
		http.Error(w, `{"error":"session cache unavailable"}`, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, sessions)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("server: encode response", zap.Error(err))
	}
}
