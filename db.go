// Package kglti projects a Neo4j property graph into the node/edge element
// format consumed by interactive graph explorers, and applies the small set
// of edits such an explorer needs.
//
// The package is built around three pieces:
//   - DBRunner, the query interface to the database (Neo4jExecutor in production),
//   - Projector, which materializes client views (initial, full, search, expand),
//   - Repository, which creates, patches and deletes nodes and relationships.
package kglti

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DBRunner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests. Read statements may be routed to followers; Write statements
// always go to the leader.
type DBRunner interface {
	// Read executes a read-only Cypher query and returns a fully-buffered result.
	Read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)

	// Write executes a Cypher query that may modify the graph and returns a fully-buffered result.
	Write(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

//---

// Config holds the connection settings of a Neo4jExecutor.
type Config struct {
	URI      string
	Username string
	Password string
	// Database is the target database. Empty uses the server default.
	Database string

	// MaxConnectionPoolSize limits the driver pool. Zero keeps the driver default.
	MaxConnectionPoolSize int
	// ConnectionAcquisitionTimeout bounds the wait for a pooled connection.
	ConnectionAcquisitionTimeout time.Duration
	// MaxTransactionRetryTime bounds the driver's retries of transient failures.
	MaxTransactionRetryTime time.Duration
}

// Neo4jExecutor is a concrete implementation of the DBRunner interface that uses the
// official Neo4j Go driver. It manages the driver instance and the target database name.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewNeo4jExecutor creates and initializes a new Neo4jExecutor with the driver's
// default pool settings.
//
// Parameters:
//   - uri: The connection URI for the Neo4j instance (e.g., "bolt://localhost:7687").
//   - username: The username for authentication.
//   - password: The password for authentication.
//   - dbName: The name of the database to connect to. Empty selects the server default.
//
// Returns:
//
//	A pointer to the newly created Neo4jExecutor or an error if the driver creation fails.
func NewNeo4jExecutor(uri, username, password, dbName string) (*Neo4jExecutor, error) {
	return NewNeo4jExecutorWithConfig(Config{
		URI:      uri,
		Username: username,
		Password: password,
		Database: dbName,
	})
}

// NewNeo4jExecutorWithConfig creates a Neo4jExecutor from a full Config.
// The driver connects lazily: an unreachable server is reported by Verify or by
// the first query, not here.
func NewNeo4jExecutorWithConfig(cfg Config) (*Neo4jExecutor, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("could not create Neo4j driver: empty URI")
	}
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.ConnectionAcquisitionTimeout > 0 {
				c.ConnectionAcquisitionTimeout = cfg.ConnectionAcquisitionTimeout
			}
			if cfg.MaxTransactionRetryTime > 0 {
				c.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Neo4jExecutor{Driver: driver, DBName: cfg.Database}, nil
}

// Verify checks the connectivity to the Neo4j database.
//
// Returns:
//
//	An error of kind KindConnectionUnavailable if the server cannot be reached.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	if err := e.Driver.VerifyConnectivity(ctx); err != nil {
		return &Error{Kind: KindConnectionUnavailable, Op: "verify", Message: "database connection error", Err: err}
	}
	return nil
}

// Close releases the driver and every pooled connection.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// Read executes a read query routed to any cluster member able to serve reads.
func (e *Neo4jExecutor) Read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return e.run(ctx, query, params, neo4j.ExecuteQueryWithReadersRouting())
}

// Write executes a query routed to the cluster leader.
func (e *Neo4jExecutor) Write(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return e.run(ctx, query, params, neo4j.ExecuteQueryWithWritersRouting())
}

// run executes a Cypher query using the ExecuteQuery function, which acquires a
// session for the duration of the call and releases it on every exit path.
//
// Parameters:
//   - ctx: The context for the query execution. Its deadline bounds the query.
//   - query: The Cypher query string to execute.
//   - params: A map of parameters to be used in the query.
//   - routing: The routing option selecting readers or writers.
//
// Returns:
//
//	An EagerResult containing all buffered records from the query, or an error if
//	the execution fails. Connectivity failures are returned as KindConnectionUnavailable.
func (e *Neo4jExecutor) run(ctx context.Context, query string, params map[string]any, routing neo4j.ExecuteQueryConfigurationOption) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
		routing,
	)
	if err != nil {
		if isConnectivityError(err) {
			return nil, &Error{Kind: KindConnectionUnavailable, Message: "database connection error", Err: err}
		}
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}

	return result, nil
}
