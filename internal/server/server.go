package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/yourorg/ollamabench/internal/config"
	"github.com/yourorg/ollamabench/internal/prompts"
	"github.com/yourorg/ollamabench/internal/report"
	"github.com/yourorg/ollamabench/internal/store"
	"github.com/yourorg/ollamabench/pkg/types"
)

// Server exposes the run history over a read-only HTTP API.
type Server struct {
	cfg    *config.Config
	store  store.Store
	mux    *http.ServeMux
	logger *slog.Logger
}

// New constructs a new Server with routes registered.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	srv := &Server{
		cfg:    cfg,
		store:  st,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// ListenAndServe starts the server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("history server listening", "addr", addr)
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/runs/", s.handleRunRoutes)
	s.mux.HandleFunc("/api/prompts", s.handlePrompts)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, tail, ok := splitPath(r.URL.Path, "/api/runs/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}
	switch tail {
	case "":
		s.handleRunDetail(w, id)
	case "report":
		s.handleRunReport(w, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) loadRun(w http.ResponseWriter, id string) (*types.Run, []types.PromptResult, bool) {
	run, err := s.store.GetRun(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		s.internalError(w, err)
		return nil, nil, false
	}
	results, err := s.store.GetResults(id)
	if err != nil {
		s.internalError(w, err)
		return nil, nil, false
	}
	return run, results, true
}

func (s *Server) handleRunDetail(w http.ResponseWriter, id string) {
	run, results, ok := s.loadRun(w, id)
	if !ok {
		return
	}
	resp := struct {
		Run     *types.Run           `json:"run"`
		Results []types.PromptResult `json:"results"`
	}{
		Run:     run,
		Results: results,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunReport(w http.ResponseWriter, id string) {
	run, results, ok := s.loadRun(w, id)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if err := report.RenderRun(w, run, results); err != nil {
		s.logger.Warn("render run report", "run", id, "error", err)
	}
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, prompts.Default())
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
