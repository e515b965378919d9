// Package models contains the data transfer objects exchanged with graph
// front-ends. The structs in this package follow the element format used by
// Cytoscape.js: every node and edge is wrapped in a `data` object that holds
// its identity fields next to its flattened properties.
package models

import (
	"bytes"
	"encoding/json"
)

// Identity fields that a stored property can never override.
var (
	reservedNodeKeys = map[string]struct{}{"id": {}, "labels": {}}
	reservedEdgeKeys = map[string]struct{}{"id": {}, "source": {}, "target": {}, "label": {}}
)

// NodeData is the payload of a WireNode.
type NodeData struct {
	// ID is the database element id of the node.
	ID string

	// Labels holds every label attached to the node. It is never nil once serialized.
	Labels []string

	// Properties holds the node properties, including the synthetic display name
	// when the stored node had neither `name` nor `title`.
	Properties *Properties
}

// MarshalJSON flattens the node into `{"id", "labels", ...properties}`.
func (d NodeData) MarshalJSON() ([]byte, error) {
	labels := d.Labels
	if labels == nil {
		labels = []string{}
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeMember(&buf, "id", d.ID); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeMember(&buf, "labels", labels); err != nil {
		return nil, err
	}
	if err := writeProperties(&buf, d.Properties, reservedNodeKeys); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WireNode is a single node element as sent to the front-end.
type WireNode struct {
	Data NodeData `json:"data"`
}

// ID returns the element id of the node.
func (n *WireNode) ID() string { return n.Data.ID }

// DisplayName returns the `name` property, falling back to `title`.
func (n *WireNode) DisplayName() string {
	for _, key := range []string{"name", "title"} {
		if v, ok := n.Data.Properties.Get(key); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// EdgeData is the payload of a WireEdge.
type EdgeData struct {
	// ID is the database element id of the relationship.
	ID string

	// Source is the element id of the start node.
	Source string

	// Target is the element id of the end node.
	Target string

	// Label is the relationship type (e.g. "ACTED_IN").
	Label string

	// Properties holds the relationship properties.
	Properties *Properties
}

// MarshalJSON flattens the edge into `{"id", "source", "target", "label", ...properties}`.
func (d EdgeData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	fields := []struct {
		key   string
		value string
	}{
		{"id", d.ID},
		{"source", d.Source},
		{"target", d.Target},
		{"label", d.Label},
	}
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, f.key, f.value); err != nil {
			return nil, err
		}
	}
	if err := writeProperties(&buf, d.Properties, reservedEdgeKeys); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WireEdge is a single edge element as sent to the front-end.
type WireEdge struct {
	Data EdgeData `json:"data"`
}

// ID returns the element id of the relationship.
func (e *WireEdge) ID() string { return e.Data.ID }

// ProjectionResult is the subgraph materialized for one client view.
// Nodes and Edges are unique by id. CenterIDs marks the anchor nodes of a
// search so the client can highlight them; it is omitted from the JSON when nil.
type ProjectionResult struct {
	Nodes     []*WireNode
	Edges     []*WireEdge
	CenterIDs []string
}

// NewProjectionResult returns an empty result with non-nil slices.
func NewProjectionResult() *ProjectionResult {
	return &ProjectionResult{
		Nodes: make([]*WireNode, 0),
		Edges: make([]*WireEdge, 0),
	}
}

// NodeIDs returns the ids of all nodes in result order.
func (r *ProjectionResult) NodeIDs() []string {
	ids := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		ids = append(ids, n.Data.ID)
	}
	return ids
}

type projectionJSON struct {
	Nodes     []*WireNode `json:"nodes"`
	Edges     []*WireEdge `json:"edges"`
	CenterIDs []string    `json:"centerIds,omitempty"`
}

// MarshalJSON always emits `nodes` and `edges` as arrays. `centerIds` is
// emitted, possibly empty, whenever CenterIDs is non-nil.
func (r ProjectionResult) MarshalJSON() ([]byte, error) {
	out := projectionJSON{Nodes: r.Nodes, Edges: r.Edges}
	if out.Nodes == nil {
		out.Nodes = []*WireNode{}
	}
	if out.Edges == nil {
		out.Edges = []*WireEdge{}
	}
	if r.CenterIDs == nil {
		return json.Marshal(out)
	}
	return json.Marshal(struct {
		projectionJSON
		CenterIDs []string `json:"centerIds"`
	}{projectionJSON: out, CenterIDs: r.CenterIDs})
}

func writeProperties(buf *bytes.Buffer, props *Properties, reserved map[string]struct{}) error {
	var err error
	props.Each(func(key string, value any) bool {
		if _, skip := reserved[key]; skip {
			return true
		}
		buf.WriteByte(',')
		err = writeMember(buf, key, value)
		return err == nil
	})
	return err
}
