package kglti

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hardtochooseaname/kg-lti/internal/metrics"
	"github.com/hardtochooseaname/kg-lti/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// Mutation operation names used in errors, logs and metrics.
const (
	OpGetNode            = "get_node"
	OpCreateNode         = "create_node"
	OpUpdateNode         = "update_node"
	OpDeleteNode         = "delete_node"
	OpCreateRelationship = "create_relationship"
	OpDeleteRelationship = "delete_relationship"
	OpLabels             = "labels"
)

// Repository applies the edits a graph explorer can make: creating, patching
// and deleting nodes, linking and unlinking them, and listing the labels in use.
// Nodes and relationships are addressed by their element id.
type Repository struct {
	runner DBRunner
	opts   options
}

// NewRepository creates a new Repository.
//
// Parameters:
//   - runner: An instance of DBRunner, used to execute all Cypher queries.
//   - opts: Optional settings. Only WithQueryTimeout applies to mutations.
//
// Returns:
//
//	A pointer to a new Repository instance.
func NewRepository(runner DBRunner, opts ...Option) *Repository {
	return &Repository{runner: runner, opts: buildOptions(opts)}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.timeout > 0 {
		return context.WithTimeout(ctx, r.opts.timeout)
	}
	return ctx, func() {}
}

// GetNode retrieves a single node by element id.
//
// Returns:
//
//	The serialized node, a NotFound error if no node has this id, or another
//	error if the query fails.
func (r *Repository) GetNode(ctx context.Context, id string) (*models.WireNode, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, badRequest(OpGetNode, "node id is required")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.runner.Read(ctx, nodeByIDQuery, map[string]any{"id": id})
	if err != nil {
		return nil, r.fail(OpGetNode, id, err)
	}
	node, err := singleNode(result)
	if err != nil {
		return nil, r.fail(OpGetNode, id, err)
	}
	if node == nil {
		return nil, notFound(OpGetNode, "node %s not found", id)
	}
	return node, nil
}

// CreateNode creates a node carrying label and props.
//
// A blank label defaults to "Node". When props has neither a non-empty `name`
// nor a non-empty `title`, `name` is set to "New <label>" so the node can be
// displayed.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - label: The label of the new node. It must be a valid identifier.
//   - props: The initial properties. Values are bound as query parameters.
//
// Returns:
//
//	The serialized node as stored, or an error.
func (r *Repository) CreateNode(ctx context.Context, label string, props map[string]any) (*models.WireNode, error) {
	// 1. Validate the input before touching the store.
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultNodeLabel
	}
	if !ValidIdentifier(label) {
		return nil, badRequest(OpCreateNode, "invalid label %q", label)
	}
	clean, err := sanitizeProperties(OpCreateNode, props)
	if err != nil {
		return nil, err
	}
	if !nonEmptyString(clean["name"]) && !nonEmptyString(clean["title"]) {
		clean["name"] = "New " + label
	}

	// 2. Build the CREATE statement; properties become parameters.
	query, params, err := gocypher.NewQueryBuilder().
		Create(gocypher.N("n", label).WithProperties(clean)).
		Return("n").
		Build()
	if err != nil {
		return nil, fmt.Errorf("could not build create query: %w", err)
	}

	// 3. Execute and serialize what the store returned.
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.runner.Write(ctx, query, params)
	if err != nil {
		return nil, r.fail(OpCreateNode, label, err)
	}
	node, err := singleNode(result)
	if err != nil {
		return nil, r.fail(OpCreateNode, label, err)
	}
	if node == nil {
		return nil, r.fail(OpCreateNode, label, fmt.Errorf("create returned no node"))
	}
	slog.Info("node created", "id", node.ID(), "label", label)
	return node, nil
}

// UpdateNode merges props into the properties of the node with id. Keys not
// in props are left untouched; a nil value removes the property.
func (r *Repository) UpdateNode(ctx context.Context, id string, props map[string]any) (*models.WireNode, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, badRequest(OpUpdateNode, "node id is required")
	}
	if len(props) == 0 {
		return nil, badRequest(OpUpdateNode, "no properties provided for update")
	}
	clean, err := sanitizeProperties(OpUpdateNode, props)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.runner.Write(ctx, updateNodeQuery, map[string]any{"id": id, "props": clean})
	if err != nil {
		return nil, r.fail(OpUpdateNode, id, err)
	}
	node, err := singleNode(result)
	if err != nil {
		return nil, r.fail(OpUpdateNode, id, err)
	}
	if node == nil {
		return nil, notFound(OpUpdateNode, "node %s not found", id)
	}
	return node, nil
}

// DeleteNode removes the node with id together with all its relationships.
// Deleting a node that does not exist succeeds.
func (r *Repository) DeleteNode(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return badRequest(OpDeleteNode, "node id is required")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.runner.Write(ctx, deleteNodeQuery, map[string]any{"id": id}); err != nil {
		return r.fail(OpDeleteNode, id, err)
	}
	slog.Info("node deleted", "id", id)
	return nil
}

// CreateRelationship links the node source to the node target.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - source: The element id of the start node.
//   - target: The element id of the end node.
//   - relType: The relationship type. It is trimmed and upper-cased; blank means "RELATED_TO".
//   - props: The relationship properties.
//
// Returns:
//   - The serialized relationship.
//   - A NotFound error naming the missing endpoint when source or target does
//     not exist. Nothing is created in that case.
//   - A BadRequest error for blank endpoints, an invalid type or invalid properties.
func (r *Repository) CreateRelationship(ctx context.Context, source, target, relType string, props map[string]any) (*models.WireEdge, error) {
	// 1. Validate the input.
	source = strings.TrimSpace(source)
	target = strings.TrimSpace(target)
	if source == "" || target == "" {
		return nil, badRequest(OpCreateRelationship, "source and target node ids are mandatory")
	}
	relType = strings.ToUpper(strings.TrimSpace(relType))
	if relType == "" {
		relType = DefaultRelationshipType
	}
	if !ValidIdentifier(relType) {
		return nil, badRequest(OpCreateRelationship, "invalid relationship type %q", relType)
	}
	clean, err := sanitizeProperties(OpCreateRelationship, props)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	// 2. Create; the MATCH yields no row when an endpoint is missing.
	params := map[string]any{"source": source, "target": target, "props": clean}
	result, err := r.runner.Write(ctx, createRelationshipQuery(relType), params)
	if err != nil {
		return nil, r.fail(OpCreateRelationship, source+"->"+target, err)
	}
	if len(result.Records) > 0 {
		rel, err := recordRelationship(result.Records[0], "r")
		if err != nil {
			return nil, r.fail(OpCreateRelationship, source+"->"+target, err)
		}
		edge, err := SerializeRelationship(rel)
		if err != nil {
			return nil, r.fail(OpCreateRelationship, source+"->"+target, err)
		}
		slog.Info("relationship created", "id", edge.ID(), "type", relType, "source", source, "target", target)
		return edge, nil
	}

	// 3. Nothing was created: name the endpoint that is missing.
	for _, endpoint := range []struct{ role, id string }{{"source", source}, {"target", target}} {
		exists, err := r.nodeExists(ctx, endpoint.id)
		if err != nil {
			return nil, r.fail(OpCreateRelationship, source+"->"+target, err)
		}
		if !exists {
			return nil, notFound(OpCreateRelationship, "%s node %s not found", endpoint.role, endpoint.id)
		}
	}
	return nil, r.fail(OpCreateRelationship, source+"->"+target, fmt.Errorf("create returned no relationship"))
}

// DeleteRelationship removes the relationship with id. Its endpoints are kept.
func (r *Repository) DeleteRelationship(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return badRequest(OpDeleteRelationship, "relationship id is required")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.runner.Write(ctx, deleteRelationshipQuery, map[string]any{"id": id}); err != nil {
		return r.fail(OpDeleteRelationship, id, err)
	}
	slog.Info("relationship deleted", "id", id)
	return nil
}

// Labels lists the node labels known to the database, sorted. The slice is
// never nil.
func (r *Repository) Labels(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.runner.Read(ctx, labelsQuery, nil)
	if err != nil {
		return nil, r.fail(OpLabels, "", err)
	}
	labels := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		raw, ok := record.Get("label")
		if !ok {
			continue
		}
		if label, ok := raw.(string); ok && label != "" {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// NodeExists reports whether a node with id exists.
func (r *Repository) NodeExists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	exists, err := r.nodeExists(ctx, id)
	if err != nil {
		return false, r.fail(OpGetNode, id, err)
	}
	return exists, nil
}

func (r *Repository) nodeExists(ctx context.Context, id string) (bool, error) {
	result, err := r.runner.Read(ctx, nodeExistsQuery, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	if len(result.Records) == 0 {
		return false, nil
	}
	raw, _ := result.Records[0].Get("found")
	exists, _ := raw.(bool)
	return exists, nil
}

// fail classifies err, logs it once and counts it.
func (r *Repository) fail(op, target string, err error) error {
	classified := classifyStoreError(op, err)
	metrics.StoreErrors.WithLabelValues(op, classified.Kind.String()).Inc()
	slog.Error("graph mutation failed",
		"operation", op,
		"target", target,
		"kind", classified.Kind.String(),
		"error", err,
	)
	return classified
}

// singleNode serializes the `n` column of the first record, or returns nil
// when the result is empty.
func singleNode(result *neo4j.EagerResult) (*models.WireNode, error) {
	if result == nil || len(result.Records) == 0 {
		return nil, nil
	}
	node, err := recordNode(result.Records[0], "n")
	if err != nil {
		return nil, err
	}
	return SerializeNode(node), nil
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

// sanitizeProperties checks that props only holds values the store accepts
// as properties and converts decoded JSON numbers to int64 or float64.
// Property names must be valid identifiers: the CREATE builder writes them
// into the query text.
func sanitizeProperties(op string, props map[string]any) (map[string]any, error) {
	clean := make(map[string]any, len(props))
	for key, value := range props {
		if strings.TrimSpace(key) == "" {
			return nil, badRequest(op, "property names must not be empty")
		}
		if !ValidIdentifier(key) {
			return nil, badRequest(op, "invalid property name %q", key)
		}
		v, err := propertyValue(value)
		if err != nil {
			return nil, badRequest(op, "property %q: %v", key, err)
		}
		clean[key] = v
	}
	return clean, nil
}

func propertyValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return f, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			if item == nil {
				return nil, fmt.Errorf("lists must not contain null")
			}
			converted, err := propertyValue(item)
			if err != nil {
				return nil, err
			}
			if _, nested := converted.([]any); nested {
				return nil, fmt.Errorf("nested lists are not supported")
			}
			out[i] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", value)
	}
}
