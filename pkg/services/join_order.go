package services

import (
	"sort"

	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	sqlx "github.com/tablemesh/tablemesh-engine/pkg/sql"
)

// OptimizeJoinOrder reorders a fixed join list for cardinality safety. Joins
// sort by (cardinality_score, is_dimension, table_name): cardinality-safe,
// dimension-leaning joins first. The sort is stable so full ties preserve the
// original order, and the final placement respects ON-clause dependencies:
// a join is never emitted before the tables its ON-clause references are in
// scope, because that would be invalid SQL.
func OptimizeJoinOrder(joins []models.JoinSpec, snap *metadata.Snapshot, baseTable string) []models.JoinSpec {
	if len(joins) < 2 {
		return joins
	}

	sorted := append([]models.JoinSpec(nil), joins...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := cardinalityScore(sorted[i]), cardinalityScore(sorted[j])
		if ci != cj {
			return ci < cj
		}
		di, dj := dimensionScore(snap, sorted[i].Table), dimensionScore(snap, sorted[j].Table)
		if di != dj {
			return di < dj
		}
		return sorted[i].Table < sorted[j].Table
	})

	return placeByDependency(sorted, snap, baseTable)
}

// cardinalityScore is 0 for provably cardinality-safe joins, 1 otherwise.
func cardinalityScore(j models.JoinSpec) int {
	if j.CardinalitySafe != nil {
		if *j.CardinalitySafe {
			return 0
		}
		return 1
	}
	if j.RelationshipType != "" && models.IsCardinalitySafe(j.RelationshipType) {
		return 0
	}
	return 1
}

// dimensionScore is 0 for tables tagged dimension, 1 otherwise.
func dimensionScore(snap *metadata.Snapshot, table string) int {
	if t, ok := snap.Table(table); ok && t.IsDimension() {
		return 0
	}
	return 1
}

// placeByDependency greedily emits the first sorted join whose ON-clause
// references only tables already in scope. When no join is eligible (broken
// references or a reference cycle) the first remaining join is taken so the
// pass always terminates; emission later drops joins it cannot resolve.
func placeByDependency(sorted []models.JoinSpec, snap *metadata.Snapshot, baseTable string) []models.JoinSpec {
	inScope := map[string]bool{metadata.NormalizeName(snap.CanonicalName(baseTable)): true}
	remaining := append([]models.JoinSpec(nil), sorted...)
	placed := make([]models.JoinSpec, 0, len(sorted))

	for len(remaining) > 0 {
		picked := -1
		for i, j := range remaining {
			if dependenciesSatisfied(j, snap, inScope) {
				picked = i
				break
			}
		}
		if picked == -1 {
			picked = 0
		}

		j := remaining[picked]
		placed = append(placed, j)
		inScope[metadata.NormalizeName(snap.CanonicalName(j.Table))] = true
		remaining = append(remaining[:picked], remaining[picked+1:]...)
	}
	return placed
}

// dependenciesSatisfied reports whether every known table referenced by the
// join's ON-clause, other than the join's own table, is already in scope.
func dependenciesSatisfied(j models.JoinSpec, snap *metadata.Snapshot, inScope map[string]bool) bool {
	for _, ref := range sqlx.ReferencedColumns(j.On) {
		if !snap.HasTable(ref.Table) {
			continue
		}
		canonical := metadata.NormalizeName(snap.CanonicalName(ref.Table))
		if canonical == metadata.NormalizeName(snap.CanonicalName(j.Table)) {
			continue
		}
		if !inScope[canonical] {
			return false
		}
	}
	return true
}
