// Package ipc exposes scout to a UI process over HTTP and a websocket. It is
// the transport of the streaming bridge: the websocket carries runQuery and
// cancel messages in and session events out, and JSON endpoints cover the
// browser and working directory channels.
package ipc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/agent"
	"github.com/entrhq/scout/pkg/bridge"
	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/security/workspace"
)

// Config controls the HTTP listener.
type Config struct {
	Addr              string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
}

// Deps are the process-wide resources the server exposes.
type Deps struct {
	Sessions *agent.Manager
	Bridge   *bridge.Bridge
	Browser  *browser.Controller
	Sandbox  *workspace.Sandbox
}

// Server hosts the JSON/HTTP + websocket API for a UI process.
type Server struct {
	cfg        Config
	deps       Deps
	hub        *Hub
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer constructs a server. It does not listen until Start.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7420"
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		hub:    NewHub(),
		logger: logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.corsMiddleware)
	router.Use(s.securityHeadersMiddleware)
	router.Use(s.logRequests)

	router.Get("/healthz", s.handleHealthz)
	router.Handle("/metrics", observability.Handler())
	router.Get("/ws", s.handleWebSocket)

	router.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Delete("/query/{requestID}", s.handleCancel)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{requestID}", s.handleSessionDetail)

		r.Route("/browser", func(r chi.Router) {
			r.Post("/navigate", s.handleNavigate)
			r.Get("/state", s.handleBrowserState)
		})

		r.Route("/directory", func(r chi.Router) {
			r.Get("/", s.handleGetDirectory)
			r.Post("/select", s.handleSelectDirectory)
			r.Get("/list", s.handleListDirectory)
		})

		r.Get("/files", s.handleReadFile)
		r.Put("/files", s.handleWriteFile)
	})
	return router
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving IPC", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.deps.Sessions.Active()),
		"clients":  s.hub.Len(),
	})
}
