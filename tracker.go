package kglti

import "github.com/hardtochooseaname/kg-lti/models"

// Tracker accumulates the nodes and edges of one projection, keeping each
// identity at most once. A Tracker belongs to a single operation and is not
// safe for concurrent use.
type Tracker struct {
	nodes     []*models.WireNode
	edges     []*models.WireEdge
	seenNodes map[string]struct{}
	seenEdges map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		nodes:     make([]*models.WireNode, 0),
		edges:     make([]*models.WireEdge, 0),
		seenNodes: make(map[string]struct{}),
		seenEdges: make(map[string]struct{}),
	}
}

// AddNodeIfAbsent registers node unless its id is already known.
// It reports whether the node was added. A nil node is ignored.
func (t *Tracker) AddNodeIfAbsent(node *models.WireNode) bool {
	if node == nil {
		return false
	}
	id := node.ID()
	if _, ok := t.seenNodes[id]; ok {
		return false
	}
	t.seenNodes[id] = struct{}{}
	t.nodes = append(t.nodes, node)
	return true
}

// HasNode reports whether a node with id has been registered.
func (t *Tracker) HasNode(id string) bool {
	_, ok := t.seenNodes[id]
	return ok
}

// ShouldEmitEdge returns true exactly once per relationship id.
func (t *Tracker) ShouldEmitEdge(id string) bool {
	if _, ok := t.seenEdges[id]; ok {
		return false
	}
	t.seenEdges[id] = struct{}{}
	return true
}

// AddEdge appends edge to the result. Callers gate it with ShouldEmitEdge.
func (t *Tracker) AddEdge(edge *models.WireEdge) {
	t.edges = append(t.edges, edge)
}

// NodeIDs returns the registered node ids in insertion order.
func (t *Tracker) NodeIDs() []string {
	ids := make([]string, 0, len(t.nodes))
	for _, n := range t.nodes {
		ids = append(ids, n.ID())
	}
	return ids
}

// Result returns the accumulated projection. Nodes keep their registration
// order and edges their emission order.
func (t *Tracker) Result() *models.ProjectionResult {
	return &models.ProjectionResult{Nodes: t.nodes, Edges: t.edges}
}
