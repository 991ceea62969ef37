package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ldi/cadence/internal/db"
	"github.com/ldi/cadence/internal/planner"
)

type Server struct {
	db      *db.DB
	planner *planner.Planner
	server  *http.Server
}

func NewServer(database *db.DB, p *planner.Planner) *Server {
	return &Server{db: database, planner: p}
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	return s.server.ListenAndServe()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/exclusions", s.handleExclusions)
	mux.HandleFunc("GET /api/agenda", s.handleAgenda)
	mux.HandleFunc("POST /api/schedule", s.handleSchedule)

	return mux
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.db.ListTasks(r.Context(), nil, nil)
	s.respond(w, tasks, err)
}

func (s *Server) handleExclusions(w http.ResponseWriter, r *http.Request) {
	rules, err := s.db.ListExclusions(r.Context(), false)
	s.respond(w, rules, err)
}

func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	agenda, err := s.planner.Agenda(r.Context())
	s.respond(w, agenda, err)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	summary, err := s.planner.Run(r.Context())
	s.respond(w, summary, err)
}

func (s *Server) respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
