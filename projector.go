package kglti

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hardtochooseaname/kg-lti/internal/metrics"
	"github.com/hardtochooseaname/kg-lti/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultQueryTimeout bounds every projection when no other timeout is configured.
const DefaultQueryTimeout = 15 * time.Second

// Operation names used in errors, logs and metrics.
const (
	OpInitialView = "initial_view"
	OpFullView    = "full_view"
	OpSearch      = "search"
	OpExpand      = "expand"
)

type options struct {
	policy  SearchPolicy
	timeout time.Duration
}

// Option configures a Projector or a Repository.
type Option func(*options)

// WithSearchPolicy replaces the default searchable-property policy.
func WithSearchPolicy(policy SearchPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithQueryTimeout sets the deadline applied to each operation. Zero or a
// negative value disables it, leaving only the caller's deadline.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

func buildOptions(opts []Option) options {
	o := options{
		policy:  DefaultSearchPolicy(),
		timeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Projector materializes the client views of the graph. Each call builds its
// own Tracker, so a Projector is safe for concurrent use.
type Projector struct {
	runner DBRunner
	opts   options
}

// NewProjector creates a new Projector.
//
// Parameters:
//   - runner: An instance of DBRunner used to execute the read queries.
//   - opts: Optional settings such as WithSearchPolicy and WithQueryTimeout.
//
// Returns:
//
//	A pointer to a new Projector instance.
func NewProjector(runner DBRunner, opts ...Option) *Projector {
	return &Projector{runner: runner, opts: buildOptions(opts)}
}

// SearchPolicy returns the policy used by Search.
func (p *Projector) SearchPolicy() SearchPolicy {
	return p.opts.policy
}

// InitialView returns the nodes flagged with a truthy `init` property, their
// 1-hop neighbors and the connecting relationships. It is the default view.
func (p *Projector) InitialView(ctx context.Context) (*models.ProjectionResult, error) {
	return p.project(ctx, OpInitialView, initSeedQuery, nil, projectMode{includeSeeds: true})
}

// FullView returns every node together with its relationships.
func (p *Projector) FullView(ctx context.Context) (*models.ProjectionResult, error) {
	return p.project(ctx, OpFullView, fullSeedQuery, nil, projectMode{includeSeeds: true})
}

// Search finds the nodes of label whose searchable property contains keyword,
// ignoring case, and returns them with their 1-hop neighborhood. The matched
// nodes are listed in CenterIDs.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - label: The node label to search. It must be a valid identifier.
//   - keyword: The substring to look for. Surrounding whitespace is ignored.
//
// Returns:
//   - The projected subgraph. CenterIDs is non-nil, and empty when nothing matched.
//   - A BadRequest error when label or keyword is blank or label is invalid.
//   - A ConnectionUnavailable or internal error when the store fails.
func (p *Projector) Search(ctx context.Context, label, keyword string) (*models.ProjectionResult, error) {
	label = strings.TrimSpace(label)
	keyword = strings.TrimSpace(keyword)
	if label == "" || keyword == "" {
		return nil, badRequest(OpSearch, "label and keyword parameters are required")
	}
	if !ValidIdentifier(label) {
		return nil, badRequest(OpSearch, "invalid label %q", label)
	}

	params := map[string]any{
		"label":    label,
		"property": p.opts.policy.PropertyFor(label),
		"keyword":  keyword,
	}
	return p.project(ctx, OpSearch, searchSeedQuery, params, projectMode{includeSeeds: true, centers: true})
}

// Expand returns the 1-hop frontier of the node with nodeID: its neighbors and
// the relationships linking them to it. The expanded node itself is not part of
// the result since the client already shows it. An unknown id yields an empty result.
func (p *Projector) Expand(ctx context.Context, nodeID string) (*models.ProjectionResult, error) {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, badRequest(OpExpand, "node id is required")
	}
	return p.project(ctx, OpExpand, nodeByIDQuery, map[string]any{"id": nodeID}, projectMode{})
}

type projectMode struct {
	// includeSeeds adds the seed nodes to the result.
	includeSeeds bool
	// centers reports the seed ids as CenterIDs.
	centers bool
}

// project runs the seed-then-neighborhood pattern shared by every view.
func (p *Projector) project(ctx context.Context, op, seedQuery string, params map[string]any, mode projectMode) (*models.ProjectionResult, error) {
	if p.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.timeout)
		defer cancel()
	}

	// 1. Resolve the seed set.
	seedResult, err := p.runner.Read(ctx, seedQuery, params)
	if err != nil {
		return nil, p.fail(op, params, err)
	}

	tracker := NewTracker()
	seeds := make(map[string]struct{}, len(seedResult.Records))
	seedIDs := make([]string, 0, len(seedResult.Records))
	for _, record := range seedResult.Records {
		node, err := recordNode(record, "n")
		if err != nil {
			return nil, p.fail(op, params, err)
		}
		wire := SerializeNode(node)
		if wire == nil {
			continue
		}
		if _, dup := seeds[wire.ID()]; dup {
			continue
		}
		seeds[wire.ID()] = struct{}{}
		seedIDs = append(seedIDs, wire.ID())
		if mode.includeSeeds {
			tracker.AddNodeIfAbsent(wire)
		}
	}

	// 2. Nothing matched: skip the neighborhood query entirely.
	if len(seedIDs) == 0 {
		return p.finish(op, tracker, seedIDs, mode), nil
	}

	// 3. Fetch the whole 1-hop neighborhood in one round trip.
	neighborResult, err := p.runner.Read(ctx, neighborQuery, map[string]any{"ids": seedIDs})
	if err != nil {
		return nil, p.fail(op, params, err)
	}

	// 4. Register both endpoints, then emit each relationship once.
	for _, record := range neighborResult.Records {
		if err := p.absorb(op, record, tracker, seeds, mode); err != nil {
			return nil, p.fail(op, params, err)
		}
	}

	return p.finish(op, tracker, seedIDs, mode), nil
}

// absorb adds one `a, r, b` row of the neighborhood query to tracker.
func (p *Projector) absorb(op string, record *neo4j.Record, tracker *Tracker, seeds map[string]struct{}, mode projectMode) error {
	endpoints := make(map[string]struct{}, 2)
	for _, key := range []string{"a", "b"} {
		node, err := recordNode(record, key)
		if err != nil {
			return err
		}
		if node == nil {
			return integrityError(op, "neighborhood row is missing node %q", key)
		}
		endpoints[node.ElementId] = struct{}{}
		if _, isSeed := seeds[node.ElementId]; isSeed && !mode.includeSeeds {
			continue
		}
		tracker.AddNodeIfAbsent(SerializeNode(node))
	}

	rel, err := recordRelationship(record, "r")
	if err != nil {
		return err
	}
	edge, err := SerializeRelationship(rel)
	if err != nil {
		return err
	}
	for _, id := range []string{edge.Data.Source, edge.Data.Target} {
		if _, ok := endpoints[id]; !ok {
			return integrityError(op, "relationship %q references node %q outside its row", edge.ID(), id)
		}
	}
	if tracker.ShouldEmitEdge(edge.ID()) {
		tracker.AddEdge(edge)
	}
	return nil
}

func (p *Projector) finish(op string, tracker *Tracker, seedIDs []string, mode projectMode) *models.ProjectionResult {
	result := tracker.Result()
	if mode.centers {
		result.CenterIDs = seedIDs
	}
	metrics.ProjectionElements.WithLabelValues(op, "nodes").Observe(float64(len(result.Nodes)))
	metrics.ProjectionElements.WithLabelValues(op, "edges").Observe(float64(len(result.Edges)))
	slog.Info("projection completed",
		"operation", op,
		"nodes", len(result.Nodes),
		"edges", len(result.Edges),
	)
	return result
}

// fail classifies err, logs it once and counts it.
func (p *Projector) fail(op string, params map[string]any, err error) error {
	classified := classifyStoreError(op, err)
	metrics.StoreErrors.WithLabelValues(op, classified.Kind.String()).Inc()
	slog.Error("projection failed",
		"operation", op,
		"params", params,
		"kind", classified.Kind.String(),
		"error", err,
	)
	return classified
}
