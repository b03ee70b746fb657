// Package api provides the HTTP Client Control API described in spec §6:
// a thin Echo v5 adapter with no business logic of its own. Every handler
// calls into pkg/orchestrator or pkg/store and translates apperrors.Kind
// into an HTTP status, the same separation TARSy's pkg/api/server.go keeps
// between transport and its services package.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/orchestrator"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

// maxRequestBodyBytes bounds a CreateProject request's embedded spec text.
const maxRequestBodyBytes = 2 * 1024 * 1024

// Server is the HTTP API server.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	orch        *orchestrator.Orchestrator
	store       *store.Store
	connManager *events.ConnectionManager
}

// NewServer creates a new API server with Echo v5, wired directly to the
// Session Orchestrator facade and the event Connection Manager.
func NewServer(orch *orchestrator.Orchestrator, st *store.Store, connManager *events.ConnectionManager) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		orch:        orch,
		store:       st,
		connManager: connManager,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(maxRequestBodyBytes))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/projects", s.createProjectHandler)
	v1.POST("/projects/:id/initialize", s.initializeHandler)
	v1.POST("/projects/:id/start", s.startCodingHandler)
	v1.POST("/projects/:id/stop-after-current", s.stopAfterCurrentHandler)
	v1.DELETE("/projects/:id", s.deleteProjectHandler)
	v1.GET("/projects/:id/progress", s.getProgressHandler)
	v1.POST("/projects/:id/completion-review", s.triggerCompletionReviewHandler)

	v1.GET("/interventions", s.listInterventionsHandler)
	v1.POST("/sessions/:id/pause", s.pauseSessionHandler)
	v1.POST("/sessions/:id/resume", s.resumeSessionHandler)

	// Real-time event streaming (spec §6's event-stream records), one
	// connection per watching client, fanned out from the in-process Bus.
	v1.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
