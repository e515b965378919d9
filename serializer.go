package kglti

import (
	"fmt"
	"log/slog"

	"github.com/hardtochooseaname/kg-lti/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// SerializeNode converts a store node into its wire form.
//
// All properties are copied. When the node has neither a `name` nor a `title`
// property, a synthetic `name` is added: the first label, or "Node" for an
// unlabeled node. The synthetic name only exists on the wire.
//
// Parameters:
//   - node: The node returned by the driver. May be nil.
//
// Returns:
//
//	The wire node, or nil (with a warning logged) when node is nil.
func SerializeNode(node *neo4j.Node) *models.WireNode {
	if node == nil {
		slog.Warn("serializer: received nil node, skipping")
		return nil
	}

	labels := make([]string, len(node.Labels))
	copy(labels, node.Labels)

	props := models.NewProperties(node.Props)
	if !props.Has("name") && !props.Has("title") {
		props.Set("name", displayNameFor(labels))
	}

	return &models.WireNode{Data: models.NodeData{
		ID:         node.ElementId,
		Labels:     labels,
		Properties: props,
	}}
}

func displayNameFor(labels []string) string {
	if len(labels) > 0 && labels[0] != "" {
		return labels[0]
	}
	return fallbackDisplayName
}

// SerializeRelationship converts a store relationship into its wire form.
// A relationship without identity or without both endpoint identities is a
// data-integrity failure and is reported, never dropped.
func SerializeRelationship(rel *neo4j.Relationship) (*models.WireEdge, error) {
	if rel == nil {
		slog.Error("serializer: received nil relationship")
		return nil, integrityError("serialize relationship", "relationship is nil")
	}
	if rel.ElementId == "" || rel.StartElementId == "" || rel.EndElementId == "" {
		slog.Error("serializer: relationship with missing identity",
			"id", rel.ElementId,
			"type", rel.Type,
			"source", rel.StartElementId,
			"target", rel.EndElementId,
		)
		return nil, integrityError("serialize relationship",
			"relationship %q of type %q has a missing endpoint", rel.ElementId, rel.Type)
	}

	return &models.WireEdge{Data: models.EdgeData{
		ID:         rel.ElementId,
		Source:     rel.StartElementId,
		Target:     rel.EndElementId,
		Label:      rel.Type,
		Properties: models.NewProperties(rel.Props),
	}}, nil
}

// recordNode extracts the node stored under key. A missing key or a value of
// another type means the query and the reader disagree, which is internal.
func recordNode(record *neo4j.Record, key string) (*neo4j.Node, error) {
	raw, ok := record.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no column %q", key)
	}
	switch v := raw.(type) {
	case neo4j.Node:
		return &v, nil
	case *neo4j.Node:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("column %q holds %T, expected a node", key, raw)
	}
}

// recordRelationship extracts the relationship stored under key.
// A null column yields a nil relationship, which the serializer rejects.
func recordRelationship(record *neo4j.Record, key string) (*neo4j.Relationship, error) {
	raw, ok := record.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no column %q", key)
	}
	switch v := raw.(type) {
	case neo4j.Relationship:
		return &v, nil
	case *neo4j.Relationship:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("column %q holds %T, expected a relationship", key, raw)
	}
}
