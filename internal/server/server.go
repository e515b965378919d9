// Package server exposes the graph views and edits over HTTP for the
// explorer front-end, together with the LTI launch entry point, health,
// metrics and MCP endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hardtochooseaname/kg-lti/internal/lti"
	"github.com/hardtochooseaname/kg-lti/models"
)

// Projections is implemented by *kglti.Projector.
type Projections interface {
	InitialView(ctx context.Context) (*models.ProjectionResult, error)
	FullView(ctx context.Context) (*models.ProjectionResult, error)
	Search(ctx context.Context, label, keyword string) (*models.ProjectionResult, error)
	Expand(ctx context.Context, nodeID string) (*models.ProjectionResult, error)
}

// Mutations is implemented by *kglti.Repository.
type Mutations interface {
	GetNode(ctx context.Context, id string) (*models.WireNode, error)
	CreateNode(ctx context.Context, label string, props map[string]any) (*models.WireNode, error)
	UpdateNode(ctx context.Context, id string, props map[string]any) (*models.WireNode, error)
	DeleteNode(ctx context.Context, id string) error
	CreateRelationship(ctx context.Context, source, target, relType string, props map[string]any) (*models.WireEdge, error)
	DeleteRelationship(ctx context.Context, id string) error
	Labels(ctx context.Context) ([]string, error)
}

// HealthChecker is implemented by *kglti.Neo4jExecutor.
type HealthChecker interface {
	Verify(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr        string
	FrontendURL string
	UnknownRole lti.UnknownRolePolicy

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string
	// MCPPath mounts MCPHandler. Both must be set to enable MCP.
	MCPPath    string
	MCPHandler http.Handler
}

// Server holds the HTTP interface and the graph services behind it.
type Server struct {
	projections Projections
	mutations   Mutations
	health      HealthChecker
	opts        Options

	handler    http.Handler
	httpServer *http.Server
}

// NewServer wires the routes and the middleware chain.
func NewServer(projections Projections, mutations Mutations, health HealthChecker, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		projections: projections,
		mutations:   mutations,
		health:      health,
		opts:        opts,
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> Logging -> CORS -> Mux
	// Recovery must be outer-most to catch everything.
	var handler http.Handler = mux
	handler = s.CORSMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/expand/{nodeId}", s.handleExpand)
	mux.HandleFunc("GET /api/schema/labels", s.handleLabels)

	mux.HandleFunc("POST /api/nodes", s.handleCreateNode)
	mux.HandleFunc("GET /api/nodes/{id}", s.handleGetNode)
	mux.HandleFunc("PUT /api/nodes/{id}", s.handleUpdateNode)
	mux.HandleFunc("DELETE /api/nodes/{id}", s.handleDeleteNode)

	mux.HandleFunc("POST /api/relationships", s.handleCreateRelationship)
	mux.HandleFunc("DELETE /api/relationships/{id}", s.handleDeleteRelationship)

	mux.HandleFunc("POST /lti_launch", s.handleLTILaunch)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.opts.MetricsPath != "" {
		mux.Handle("GET "+s.opts.MetricsPath, promhttp.Handler())
	}
	if s.opts.MCPPath != "" && s.opts.MCPHandler != nil {
		mux.Handle(s.opts.MCPPath, s.opts.MCPHandler)
	}
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Starting graceful shutdown of HTTP server")

	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}
