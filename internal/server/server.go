// Package server exposes the workflow execution protocol over HTTP: a
// websocket stream carrying the client event and action envelopes, plus a
// small REST surface for lifecycle queries and token issuance.
package server

import (
	"context"
	"net/http"

	"github.com/neopilot-ai/neopilot/internal/config"
	"github.com/neopilot-ai/neopilot/internal/controlplane"
	"github.com/neopilot-ai/neopilot/internal/log"
	"github.com/neopilot-ai/neopilot/internal/session"
	"github.com/neopilot-ai/neopilot/internal/token"
	"github.com/neopilot-ai/neopilot/internal/workflow"
)

// PlannerFactory builds the planner that drives a newly started session.
// When nil, sessions are created but not driven; an embedder is expected to
// run them.
type PlannerFactory func(s *session.Session) session.Planner

// Config carries the server's collaborators.
type Config struct {
	Server   config.ServerConfig
	Manager  *session.Manager
	Registry *workflow.Registry
	Issuer   *token.Issuer
	// Monitor enriches status responses with liveness. Optional.
	Monitor controlplane.Monitor
	// Planner drives sessions started over the stream. Optional.
	Planner PlannerFactory
}

// Server is the HTTP front of the workflow service.
type Server struct {
	cfg      config.ServerConfig
	manager  *session.Manager
	registry *workflow.Registry
	issuer   *token.Issuer
	monitor  controlplane.Monitor
	planner  PlannerFactory

	mux  *http.ServeMux
	http *http.Server
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		cfg:      cfg.Server,
		manager:  cfg.Manager,
		registry: cfg.Registry,
		issuer:   cfg.Issuer,
		monitor:  cfg.Monitor,
		planner:  cfg.Planner,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	s.http = &http.Server{Addr: cfg.Server.Addr, Handler: s.mux}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.logged(s.handleHealth))

	// Websocket handshakes are GET requests by protocol.
	s.mux.HandleFunc("GET /v1/workflows/execute", s.logged(s.handleExecute))

	s.mux.HandleFunc("GET /v1/workflows", s.logged(s.handleListWorkflows))
	s.mux.HandleFunc("GET /v1/workflows/{id}", s.logged(s.handleGetWorkflow))
	s.mux.HandleFunc("POST /v1/workflows/{id}/cancel", s.logged(s.handleCancelWorkflow))

	s.mux.HandleFunc("GET /v1/definitions", s.logged(s.handleListDefinitions))
	s.mux.HandleFunc("POST /v1/tokens", s.logged(s.handleIssueToken))
}

// Handler returns the route handler, primarily for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks serving requests until the listener fails or
// Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Info(log.CatServer, "Server listening", "addr", s.cfg.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
