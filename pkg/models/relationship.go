package models

import (
	"regexp"
	"sort"
	"strings"
)

// Relationship type constants.
const (
	RelationshipOneToOne   = "one_to_one"
	RelationshipOneToMany  = "one_to_many"
	RelationshipManyToOne  = "many_to_one"
	RelationshipManyToMany = "many_to_many"
)

// Edge origin constants. Learned edges come from the Join Learner and are
// appended to an already-built graph; they never overwrite existing edges.
const (
	EdgeOriginMetadata = "metadata" // Declared dimension join-paths
	EdgeOriginLineage  = "lineage"  // Lineage edges from the snapshot
	EdgeOriginLearned  = "learned"  // Supplied by the Join Learner
)

// LearnedEdgeWeight is the fixed weight assigned to learner-supplied edges so
// they are always preferred over freshly inferred paths.
const LearnedEdgeWeight = 0.5

// RelationshipWeight returns the search weight for a relationship type.
// Many-to-many edges are penalized so path search avoids them.
func RelationshipWeight(relationshipType string) float64 {
	switch relationshipType {
	case RelationshipOneToMany:
		return 0.5
	case RelationshipManyToOne:
		return 1.0
	case RelationshipOneToOne:
		return 0.8
	case RelationshipManyToMany:
		return 2.0
	default:
		return 1.0
	}
}

// IsCardinalitySafe reports whether a join through this relationship type
// cannot multiply row counts.
func IsCardinalitySafe(relationshipType string) bool {
	return relationshipType == RelationshipOneToOne || relationshipType == RelationshipManyToOne
}

// ReverseRelationship returns the relationship type for the reverse direction.
// one_to_many becomes many_to_one and vice versa; symmetric types are unchanged.
func ReverseRelationship(relationshipType string) string {
	switch relationshipType {
	case RelationshipOneToMany:
		return RelationshipManyToOne
	case RelationshipManyToOne:
		return RelationshipOneToMany
	default:
		return relationshipType
	}
}

// RelationshipFromCardinality maps the cardinality notation used by learned
// joins ("1:1", "1:N", "N:1", "N:M") to a relationship type. Unknown notation
// maps to many_to_one, the conservative default for a learner-confirmed join.
func RelationshipFromCardinality(cardinality string) string {
	switch strings.ToUpper(strings.TrimSpace(cardinality)) {
	case "1:1":
		return RelationshipOneToOne
	case "1:N":
		return RelationshipOneToMany
	case "N:1":
		return RelationshipManyToOne
	case "N:M":
		return RelationshipManyToMany
	default:
		return RelationshipManyToOne
	}
}

// RelationshipEdge is one typed, weighted edge of the relationship graph.
type RelationshipEdge struct {
	FromTable        string  `json:"from_table"`
	ToTable          string  `json:"to_table"`
	On               string  `json:"on"`
	RelationshipType string  `json:"relationship_type"`
	CardinalitySafe  bool    `json:"cardinality_safe"`
	Weight           float64 `json:"weight"`
	Origin           string  `json:"origin"`
}

// columnRefPattern matches qualified column references like "orders.customer_id".
var columnRefPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)`)

// JoinSignature is the canonical, direction-independent identity of a join:
// the sorted normalized table-name pair plus the sorted normalized column-name
// pair. Two joins with the same signature are semantically identical regardless
// of direction, alias, or literal ON text.
type JoinSignature string

// NewJoinSignature builds the canonical signature for a table/column pair.
func NewJoinSignature(tableA, tableB, columnA, columnB string) JoinSignature {
	tables := []string{normalizeIdent(tableA), normalizeIdent(tableB)}
	sort.Strings(tables)
	columns := []string{normalizeIdent(columnA), normalizeIdent(columnB)}
	sort.Strings(columns)
	return JoinSignature(strings.Join(tables, "|") + "::" + strings.Join(columns, "|"))
}

// JoinSignatureFromOn derives a signature for the joined table pair, taking
// the column half from the first two qualified references in the free-text ON
// expression. The table pair is always part of the signature, so two joins to
// different tables never collide just because they carry the same ON text.
// An expression yielding fewer than two references leaves the column half
// empty; dedup then works on the table pair alone.
func JoinSignatureFromOn(tableA, tableB, on string) JoinSignature {
	refs := columnRefPattern.FindAllStringSubmatch(on, -1)
	if len(refs) >= 2 {
		return NewJoinSignature(tableA, tableB, refs[0][2], refs[1][2])
	}
	return NewJoinSignature(tableA, tableB, "", "")
}

// Signature returns the canonical signature of the edge.
func (e *RelationshipEdge) Signature() JoinSignature {
	return JoinSignatureFromOn(e.FromTable, e.ToTable, e.On)
}

func normalizeIdent(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "`\"[]"))
}
