package kglti

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// memGraph is an in-memory DBRunner that understands the fixed statements of
// this package, plus the CREATE statement produced by the query builder.
type memGraph struct {
	mu sync.Mutex

	nodes     map[string]*neo4j.Node
	nodeOrder []string
	rels      map[string]*neo4j.Relationship
	relOrder  []string
	nextID    int

	queries  []recordedQuery
	failWith error
	block    bool
}

type recordedQuery struct {
	query  string
	params map[string]any
	write  bool
}

var (
	createRelPattern  = regexp.MustCompile("CREATE \\(a\\)-\\[r:`([^`]+)`\\]->\\(b\\)")
	createNodePattern = regexp.MustCompile("\\(n:`?([A-Za-z_][A-Za-z0-9_]*)")
)

func newMemGraph() *memGraph {
	return &memGraph{
		nodes: make(map[string]*neo4j.Node),
		rels:  make(map[string]*neo4j.Relationship),
	}
}

func (g *memGraph) newID(prefix string) string {
	g.nextID++
	return fmt.Sprintf("4:%s:%d", prefix, g.nextID)
}

func (g *memGraph) addNode(labels []string, props map[string]any) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(labels, props)
}

func (g *memGraph) addNodeLocked(labels []string, props map[string]any) string {
	id := g.newID("n")
	if props == nil {
		props = map[string]any{}
	}
	g.nodes[id] = &neo4j.Node{ElementId: id, Labels: labels, Props: props}
	g.nodeOrder = append(g.nodeOrder, id)
	return id
}

func (g *memGraph) addRel(start, end, relType string, props map[string]any) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addRelLocked(start, end, relType, props)
}

func (g *memGraph) addRelLocked(start, end, relType string, props map[string]any) string {
	id := g.newID("r")
	if props == nil {
		props = map[string]any{}
	}
	g.rels[id] = &neo4j.Relationship{
		ElementId:      id,
		StartElementId: start,
		EndElementId:   end,
		Type:           relType,
		Props:          props,
	}
	g.relOrder = append(g.relOrder, id)
	return id
}

func (g *memGraph) nodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

func (g *memGraph) relCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rels)
}

func (g *memGraph) node(id string) (*neo4j.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	return n, ok
}

func (g *memGraph) recorded() []recordedQuery {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]recordedQuery, len(g.queries))
	copy(out, g.queries)
	return out
}

func (g *memGraph) countQueries(query string) int {
	n := 0
	for _, q := range g.recorded() {
		if q.query == query {
			n++
		}
	}
	return n
}

func (g *memGraph) Read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return g.exec(ctx, query, params, false)
}

func (g *memGraph) Write(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return g.exec(ctx, query, params, true)
}

func (g *memGraph) exec(ctx context.Context, query string, params map[string]any, write bool) (*neo4j.EagerResult, error) {
	g.mu.Lock()
	g.queries = append(g.queries, recordedQuery{query: query, params: params, write: write})
	block, failWith := g.block, g.failWith
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failWith != nil {
		return nil, failWith
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case query == initSeedQuery:
		return g.nodesWhere(func(n *neo4j.Node) bool { return isInitMarker(n.Props["init"]) }), nil
	case query == fullSeedQuery:
		return g.nodesWhere(func(*neo4j.Node) bool { return true }), nil
	case query == nodeByIDQuery:
		id, _ := params["id"].(string)
		return g.nodesWhere(func(n *neo4j.Node) bool { return n.ElementId == id }), nil
	case query == searchSeedQuery:
		return g.search(params), nil
	case query == neighborQuery:
		return g.neighbors(params["ids"].([]string)), nil
	case query == nodeExistsQuery:
		_, ok := g.nodes[params["id"].(string)]
		return result([]string{"found"}, []any{ok}), nil
	case query == labelsQuery:
		return g.labels(), nil
	}

	if !write {
		return nil, fmt.Errorf("memgraph: unsupported read query %q", query)
	}

	switch {
	case query == updateNodeQuery:
		n, ok := g.nodes[params["id"].(string)]
		if !ok {
			return result([]string{"n"}), nil
		}
		for k, v := range params["props"].(map[string]any) {
			if v == nil {
				delete(n.Props, k)
				continue
			}
			n.Props[k] = v
		}
		return result([]string{"n"}, []any{*n}), nil
	case query == deleteNodeQuery:
		g.deleteNode(params["id"].(string))
		return result([]string{}), nil
	case query == deleteRelationshipQuery:
		g.deleteRel(params["id"].(string))
		return result([]string{}), nil
	}

	if m := createRelPattern.FindStringSubmatch(query); m != nil {
		source, _ := params["source"].(string)
		target, _ := params["target"].(string)
		_, okSource := g.nodes[source]
		_, okTarget := g.nodes[target]
		if !okSource || !okTarget {
			return result([]string{"r"}), nil
		}
		props, _ := params["props"].(map[string]any)
		id := g.addRelLocked(source, target, m[1], copyProps(props))
		return result([]string{"r"}, []any{*g.rels[id]}), nil
	}

	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "CREATE") {
		m := createNodePattern.FindStringSubmatch(query)
		if m == nil {
			return nil, fmt.Errorf("memgraph: cannot find label in %q", query)
		}
		id := g.addNodeLocked([]string{m[1]}, flattenParams(params))
		return result([]string{"n"}, []any{*g.nodes[id]}), nil
	}

	return nil, fmt.Errorf("memgraph: unsupported write query %q", query)
}

func (g *memGraph) nodesWhere(match func(*neo4j.Node) bool) *neo4j.EagerResult {
	rows := make([][]any, 0)
	for _, id := range g.nodeOrder {
		if n := g.nodes[id]; match(n) {
			rows = append(rows, []any{*n})
		}
	}
	return result([]string{"n"}, rows...)
}

func (g *memGraph) search(params map[string]any) *neo4j.EagerResult {
	label, _ := params["label"].(string)
	property, _ := params["property"].(string)
	keyword := strings.ToLower(params["keyword"].(string))
	return g.nodesWhere(func(n *neo4j.Node) bool {
		if !hasLabel(n, label) {
			return false
		}
		v, ok := n.Props[property]
		if !ok || v == nil {
			return false
		}
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), keyword)
	})
}

func (g *memGraph) neighbors(ids []string) *neo4j.EagerResult {
	seeds := make(map[string]bool, len(ids))
	for _, id := range ids {
		seeds[id] = true
	}
	rows := make([][]any, 0)
	for _, rid := range g.relOrder {
		r := g.rels[rid]
		start, end := g.nodes[r.StartElementId], g.nodes[r.EndElementId]
		if seeds[r.StartElementId] {
			rows = append(rows, []any{nodeValue(start), *r, nodeValue(end)})
		}
		if seeds[r.EndElementId] && r.EndElementId != r.StartElementId {
			rows = append(rows, []any{nodeValue(end), *r, nodeValue(start)})
		}
	}
	return result([]string{"a", "r", "b"}, rows...)
}

func (g *memGraph) labels() *neo4j.EagerResult {
	seen := map[string]bool{}
	for _, n := range g.nodes {
		for _, l := range n.Labels {
			seen[l] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(labels)))
	rows := make([][]any, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []any{l})
	}
	return result([]string{"label"}, rows...)
}

func (g *memGraph) deleteNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	for _, rid := range append([]string(nil), g.relOrder...) {
		r := g.rels[rid]
		if r.StartElementId == id || r.EndElementId == id {
			g.deleteRel(rid)
		}
	}
	delete(g.nodes, id)
	g.nodeOrder = without(g.nodeOrder, id)
}

func (g *memGraph) deleteRel(id string) {
	if _, ok := g.rels[id]; !ok {
		return
	}
	delete(g.rels, id)
	g.relOrder = without(g.relOrder, id)
}

func result(keys []string, rows ...[]any) *neo4j.EagerResult {
	records := make([]*neo4j.Record, 0, len(rows))
	for _, values := range rows {
		records = append(records, &neo4j.Record{Keys: keys, Values: values})
	}
	return &neo4j.EagerResult{Keys: keys, Records: records}
}

func nodeValue(n *neo4j.Node) any {
	if n == nil {
		return nil
	}
	return *n
}

func hasLabel(n *neo4j.Node, label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func isInitMarker(v any) bool {
	switch x := v.(type) {
	case int64:
		return x == 1
	case int:
		return x == 1
	case bool:
		return x
	case string:
		return x == "1" || strings.EqualFold(x, "true")
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// flattenParams turns builder parameters back into node properties. Map
// parameters are merged; scalar parameters keep their parameter name.
func flattenParams(params map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range params {
		if m, ok := v.(map[string]any); ok {
			for mk, mv := range m {
				out[mk] = mv
			}
			continue
		}
		out[k] = v
	}
	return out
}

// paramValues lists every scalar parameter value, descending into maps.
func paramValues(params map[string]any) []any {
	out := make([]any, 0, len(params))
	for _, v := range flattenParams(params) {
		out = append(out, v)
	}
	return out
}

// stubRunner returns canned results, in order, regardless of the query.
type stubRunner struct {
	results []*neo4j.EagerResult
	calls   int
}

func (s *stubRunner) Read(_ context.Context, _ string, _ map[string]any) (*neo4j.EagerResult, error) {
	return s.next()
}

func (s *stubRunner) Write(_ context.Context, _ string, _ map[string]any) (*neo4j.EagerResult, error) {
	return s.next()
}

func (s *stubRunner) next() (*neo4j.EagerResult, error) {
	if s.calls >= len(s.results) {
		return nil, fmt.Errorf("stubRunner: unexpected call %d", s.calls+1)
	}
	r := s.results[s.calls]
	s.calls++
	return r, nil
}
