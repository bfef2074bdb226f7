package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LearnedJoin is a join confirmed through the interactive learning side
// channel. The store keys learned joins by normalized table pair with
// last-write-wins semantics, so re-teaching a pair replaces the old answer.
type LearnedJoin struct {
	ID          uuid.UUID  `json:"id"`
	TableA      string     `json:"table_a"`
	TableB      string     `json:"table_b"`
	On          string     `json:"on"`
	Cardinality string     `json:"cardinality"` // "1:1", "1:N", "N:1", "N:M"
	CreatedBy   string     `json:"created_by"`  // Provenance: 'interactive', 'import'
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// PairKey returns the normalized pair key of the learned join.
func (l *LearnedJoin) PairKey() string {
	return NormalizedPairKey(l.TableA, l.TableB)
}

// RelationshipType returns the relationship type for traversal from the given
// table. The stored cardinality is oriented TableA→TableB and reversed when
// traversing the other way.
func (l *LearnedJoin) RelationshipType(fromTable string) string {
	rel := RelationshipFromCardinality(l.Cardinality)
	if strings.EqualFold(fromTable, l.TableB) {
		return ReverseRelationship(rel)
	}
	return rel
}

// NormalizedPairKey builds the canonical, direction-independent key for a
// table pair.
func NormalizedPairKey(a, b string) string {
	pair := []string{normalizeIdent(a), normalizeIdent(b)}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}
