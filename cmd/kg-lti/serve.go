package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	kglti "github.com/hardtochooseaname/kg-lti"
	"github.com/hardtochooseaname/kg-lti/internal/config"
	"github.com/hardtochooseaname/kg-lti/internal/lti"
	"github.com/hardtochooseaname/kg-lti/internal/mcptools"
	"github.com/hardtochooseaname/kg-lti/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the graph API, the LTI launch endpoint and, when enabled,
the Prometheus and MCP endpoints. The server stops gracefully on
SIGINT or SIGTERM.`,
	RunE: runServe,
}

func newExecutor(nc config.Neo4jConfig) (*kglti.Neo4jExecutor, error) {
	return kglti.NewNeo4jExecutorWithConfig(kglti.Config{
		URI:                          nc.URI,
		Username:                     nc.Username,
		Password:                     nc.Password,
		Database:                     nc.Database,
		MaxConnectionPoolSize:        nc.MaxConnectionPoolSize,
		ConnectionAcquisitionTimeout: nc.ConnectionAcquisitionTimeout,
		MaxTransactionRetryTime:      nc.MaxTransactionRetryTime,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// 1. Connect to the store.
	if cfg.UsesDefaultPassword() {
		slog.Warn("Neo4j password is the development default; set KG_NEO4J_PASSWORD in production")
	}
	executor, err := newExecutor(cfg.Neo4j)
	if err != nil {
		return fmt.Errorf("failed to create neo4j executor: %w", err)
	}
	defer closeDriver(executor.Close)

	if cfg.Neo4j.VerifyOnStart {
		if err := executor.Verify(ctx); err != nil {
			return fmt.Errorf("neo4j is not reachable at %s: %w", cfg.Neo4j.URI, err)
		}
		slog.Info("Connected to Neo4j", "uri", cfg.Neo4j.URI, "database", cfg.Neo4j.Database)
	}

	// 2. Build the projection and mutation services over a traced runner.
	runner := kglti.NewTracedRunner(executor, otel.Tracer("github.com/hardtochooseaname/kg-lti"))
	opts := []kglti.Option{
		kglti.WithSearchPolicy(kglti.NewSearchPolicy(cfg.Projection.SearchableProperties, cfg.Projection.DefaultSearchProperty)),
		kglti.WithQueryTimeout(cfg.Projection.QueryTimeout),
	}
	projector := kglti.NewProjector(runner, opts...)
	repository := kglti.NewRepository(runner, opts...)

	policy, err := lti.ParsePolicy(cfg.LTI.UnknownRole)
	if err != nil {
		return err
	}

	// 3. Assemble the HTTP server.
	srvOpts := server.Options{
		Addr:            cfg.Server.Addr,
		FrontendURL:     cfg.Server.FrontendURL,
		UnknownRole:     policy,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}
	if cfg.Metrics.Enabled {
		srvOpts.MetricsPath = cfg.Metrics.Path
	}
	if cfg.MCP.Enabled {
		mcpServer := mcptools.New(projector, repository, Version)
		srvOpts.MCPPath = cfg.MCP.Path
		srvOpts.MCPHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return mcpServer
		}, nil)
	}
	srv := server.NewServer(projector, repository, executor, srvOpts)

	// 4. Run until the context is cancelled, then drain.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		start := time.Now()
		// The signal context is already done; drain on a detached one.
		if err := srv.Shutdown(context.WithoutCancel(gctx)); err != nil {
			return err
		}
		slog.Info("HTTP server stopped", "drain", time.Since(start).String())
		return nil
	})
	return g.Wait()
}
