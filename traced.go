package kglti

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names emitted by TracedRunner.
const (
	SpanStoreRead  = "kglti.store.read"
	SpanStoreWrite = "kglti.store.write"
)

// TracedRunner wraps a DBRunner with OpenTelemetry tracing.
// Every Read and Write opens a client span carrying the statement and the
// number of records returned. Safe for concurrent use when the inner runner is.
type TracedRunner struct {
	inner  DBRunner
	tracer trace.Tracer
}

// NewTracedRunner wraps inner so each query is recorded as a span.
//
// Parameters:
//   - inner: The DBRunner actually executing the queries.
//   - tracer: The tracer creating the spans (e.g. otel.Tracer("kg-lti")).
//
// Returns:
//
//	A *TracedRunner ready for use as a DBRunner.
func NewTracedRunner(inner DBRunner, tracer trace.Tracer) *TracedRunner {
	return &TracedRunner{inner: inner, tracer: tracer}
}

// Read traces and delegates a read query.
func (t *TracedRunner) Read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return t.traced(ctx, SpanStoreRead, query, params, t.inner.Read)
}

// Write traces and delegates a write query.
func (t *TracedRunner) Write(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return t.traced(ctx, SpanStoreWrite, query, params, t.inner.Write)
}

type runFunc func(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)

func (t *TracedRunner) traced(ctx context.Context, name, query string, params map[string]any, run runFunc) (*neo4j.EagerResult, error) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("db.statement", query),
		attribute.Int("db.params", len(params)),
	)

	result, err := run(ctx, query, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("kglti.error.kind", KindOf(err).String()))
		return nil, err
	}

	records := 0
	if result != nil {
		records = len(result.Records)
	}
	span.SetAttributes(attribute.Int("db.records", records))
	span.SetStatus(codes.Ok, "")
	return result, nil
}
