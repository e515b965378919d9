package kglti

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultNodeLabel is applied to created nodes when the caller gives no label.
	DefaultNodeLabel = "Node"
	// DefaultRelationshipType is applied to created relationships when the caller gives no type.
	DefaultRelationshipType = "RELATED_TO"
	// DefaultSearchProperty is searched for labels without an explicit policy entry.
	DefaultSearchProperty = "name"

	// fallbackDisplayName is the display name of a node with no name, no title and no labels.
	fallbackDisplayName = "Node"
)

// identifierPattern is the allow-list for labels and relationship types that
// end up in query text. Everything else travels as a bound parameter.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s may be used as a label or relationship type.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// quoteIdentifier escapes s as a Cypher symbolic name.
func quoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Fixed statements. Values are always parameters; only validated identifiers
// are spliced in, through the builders below.
const (
	initSeedQuery = `MATCH (n) WHERE n.init IN [1, '1', true, 'true', 'True', 'TRUE'] RETURN n`

	fullSeedQuery = `MATCH (n) RETURN n`

	nodeByIDQuery = `MATCH (n) WHERE elementId(n) = $id RETURN n`

	// neighborQuery fetches the 1-hop neighborhood of every seed in one round
	// trip, with both endpoint nodes so no second lookup is needed.
	neighborQuery = `MATCH (a)-[r]-(b) WHERE elementId(a) IN $ids RETURN a, r, b`

	updateNodeQuery = `MATCH (n) WHERE elementId(n) = $id SET n += $props RETURN n`

	deleteNodeQuery = `MATCH (n) WHERE elementId(n) = $id DETACH DELETE n`

	nodeExistsQuery = `MATCH (n) WHERE elementId(n) = $id RETURN count(n) > 0 AS found`

	deleteRelationshipQuery = `MATCH ()-[r]->() WHERE elementId(r) = $id DELETE r`

	labelsQuery = `CALL db.labels() YIELD label RETURN label`

	// searchSeedQuery matches nodes carrying $label whose $property contains
	// $keyword, ignoring case. Nodes without the property never match.
	searchSeedQuery = `MATCH (n) WHERE $label IN labels(n) AND toLower(toStringOrNull(n[$property])) CONTAINS toLower($keyword) RETURN n`
)

// createRelationshipQuery creates a relationship of relType between the nodes
// identified by $source and $target. It returns no row when either is missing.
func createRelationshipQuery(relType string) string {
	return fmt.Sprintf(
		`MATCH (a), (b) WHERE elementId(a) = $source AND elementId(b) = $target CREATE (a)-[r:%s]->(b) SET r = $props RETURN r`,
		quoteIdentifier(relType),
	)
}

// SearchPolicy decides which property keyword search looks at for each label.
// Label lookups ignore case.
type SearchPolicy struct {
	properties map[string]string
	fallback   string
}

// NewSearchPolicy builds a policy from a label → property map. An empty
// fallback defaults to DefaultSearchProperty.
func NewSearchPolicy(properties map[string]string, fallback string) SearchPolicy {
	p := SearchPolicy{
		properties: make(map[string]string, len(properties)),
		fallback:   strings.TrimSpace(fallback),
	}
	for label, prop := range properties {
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		p.properties[strings.ToLower(strings.TrimSpace(label))] = prop
	}
	if p.fallback == "" {
		p.fallback = DefaultSearchProperty
	}
	return p
}

// DefaultSearchPolicy searches `title` on movies and `name` everywhere else.
func DefaultSearchPolicy() SearchPolicy {
	return NewSearchPolicy(map[string]string{
		"Movie":        "title",
		"Person":       "name",
		"Organization": "name",
	}, DefaultSearchProperty)
}

// PropertyFor returns the searchable property for label.
func (p SearchPolicy) PropertyFor(label string) string {
	if prop, ok := p.properties[strings.ToLower(strings.TrimSpace(label))]; ok {
		return prop
	}
	if p.fallback == "" {
		return DefaultSearchProperty
	}
	return p.fallback
}
