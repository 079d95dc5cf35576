// Package coordinator implements the coordinator's HTTP surface (spec
// component C5): the six agent-facing endpoints, bearer-token
// authentication, and the uniform envelope wire protocol, grounded on the
// pack's mux.Router-based Server/setupRoutes shape.
package coordinator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/crater-dist/crater/internal/agents"
	"github.com/crater-dist/crater/internal/assign"
	"github.com/crater-dist/crater/internal/auth"
	"github.com/crater-dist/crater/internal/store"
)

// Server is the coordinator's HTTP surface.
type Server struct {
	httpServer *http.Server
	router     *mux.Router

	engine   *assign.Engine
	registry *agents.Registry
	db       *store.DB
	tokens   *auth.Store
	log      *slog.Logger

	serverHeader string
}

// Config configures the coordinator's listener and dependencies.
type Config struct {
	Addr         string
	ServerHeader string // e.g. "crater/abc1234" (spec §6)
}

func New(cfg Config, engine *assign.Engine, registry *agents.Registry, db *store.DB, tokens *auth.Store, log *slog.Logger) *Server {
	s := &Server{
		engine:       engine,
		registry:     registry,
		db:           db,
		tokens:       tokens,
		log:          log,
		serverHeader: cfg.ServerHeader,
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.serverHeaderMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info("coordinator listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
