// Package api is the daemon's HTTP surface. POST /api/v1/sync is the
// toolbar-and-keyboard analog: both user-facing triggers land here with
// identical semantics.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/weftlabs/calbridge/internal/router"
	"github.com/weftlabs/calbridge/internal/store"
)

type Server struct {
	router   *chi.Mux
	port     int
	bridge   *router.Router
	history  *store.Store // nil when no database is configured
	strategy string
}

func NewServer(port int, rt *router.Router, history *store.Store, strategy string) *Server {
	mux := chi.NewRouter()
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)

	s := &Server{
		router:   mux,
		port:     port,
		bridge:   rt,
		history:  history,
		strategy: strategy,
	}

	mux.Get("/health", s.health)
	mux.Get("/api/v1/bridge/status", s.status)
	mux.Post("/api/v1/sync", s.sync)
	mux.Get("/api/v1/history", s.listHistory)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":     "calbridge",
		"strategy":  s.strategy,
		"consumers": s.bridge.Registry().Len(),
		"history":   s.history != nil,
	})
}

// sync is the manual trigger. A missing consumer tab is reported here, on
// the surface that invoked the trigger, rather than swallowed.
func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.ManualTrigger(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history store not configured"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		slog.Error("history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"})
		return
	}
	if rows == nil {
		rows = []store.SyncRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"syncs": rows})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
