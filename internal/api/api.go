// Package api provides the thin net/http boundary for:
// command endpoints that decode a request and delegate immediately to
// internal/taskengine, and read endpoints that reuse internal/store's
// windowed-query helpers for pagination. No router dependency beyond
// net/http.ServeMux, using Go 1.22's method+pattern ServeMux in place of
// a third-party router or a hand-rolled path-switch.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/basket/taskorc/internal/store"
	"github.com/basket/taskorc/internal/taskengine"
)

// Config wires a Server's collaborators.
type Config struct {
	Store     *store.Store
	Engine    *taskengine.Engine
	Logger    *slog.Logger
	AuthToken string // empty disables bearer-token auth (e.g. behind a trusted proxy)

	// AllowOrigins controls accepted Origin headers for browser callers.
	// Empty means same-origin only.
	AllowOrigins []string
}

// Server is the orchestrator's HTTP command/query surface.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// NewServer builds a Server. Call Routes to obtain the http.Handler to mount.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Routes assembles the full handler chain: CORS, request size limit, auth,
// then the method+pattern mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /v1/tasks/{id}/chat", s.handleChat)
	mux.HandleFunc("POST /v1/tasks/{id}/refactor", s.handleRefactor)
	mux.HandleFunc("POST /v1/tasks/{id}/run", s.handleRunSoon)
	mux.HandleFunc("GET /v1/tasks/{id}/audits", s.handleListAudits)
	mux.HandleFunc("GET /v1/tasks/{id}/units", s.handleListUnits)

	var handler http.Handler = mux
	handler = RequestSizeLimitMiddleware(2 << 20)(handler) // 2MiB, generous for PRD/chat text
	handler = NewAuthMiddleware(s.cfg.AuthToken).Wrap(handler)
	handler = NewCORSMiddleware(s.cfg.AllowOrigins)(handler)
	handler = TraceMiddleware(s.logger)(handler)
	return handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}
