package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/apperrors"
	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	sqlx "github.com/tablemesh/tablemesh-engine/pkg/sql"
)

// IntentPass is a pluggable, intent-mutating business-rule post-processor.
// Passes run only on already-structurally-valid intents; any tables their
// additions reference are resolved by re-running reference resolution.
type IntentPass func(*models.QueryIntent) *models.QueryIntent

// IntentFixer auto-repairs an incomplete query intent into a structurally
// valid one, producing an explicit confidence verdict. The fixer is the only
// component that mutates an intent, and it mutates only its own clone.
type IntentFixer struct {
	snapshot *metadata.Snapshot
	graph    *RelationshipGraph
	finder   *PathFinder
	passes   []IntentPass
	logger   *zap.Logger
}

// NewIntentFixer creates a fixer over a snapshot and its relationship graph.
func NewIntentFixer(snapshot *metadata.Snapshot, graph *RelationshipGraph, finder *PathFinder, passes []IntentPass, logger *zap.Logger) *IntentFixer {
	return &IntentFixer{
		snapshot: snapshot,
		graph:    graph,
		finder:   finder,
		passes:   passes,
		logger:   logger.Named("intent-fixer"),
	}
}

// fixState carries the bookkeeping of one repair run.
type fixState struct {
	fixed     *models.QueryIntent
	reachable map[string]bool
	sigs      map[models.JoinSignature]bool
	result    *models.FixResult
}

type spliceStatus int

const (
	spliceOK spliceStatus = iota
	spliceNoPath
	spliceBlocked // path found but rejected (many-to-many inference)
)

// FixIntent repairs the intent. A missing base table is the one fatal
// condition; every other problem is folded into the returned FixResult as a
// confidence downgrade, reason, or inference note.
func (f *IntentFixer) FixIntent(ctx context.Context, intent *models.QueryIntent) (*models.FixResult, error) {
	if strings.TrimSpace(intent.BaseTable) == "" {
		return nil, apperrors.ErrMissingBaseTable
	}

	fixed := intent.Clone()
	fixed.BaseTable = f.snapshot.CanonicalName(fixed.BaseTable)
	if !f.snapshot.HasTable(fixed.BaseTable) {
		return nil, fmt.Errorf("base table %q: %w", fixed.BaseTable, apperrors.ErrUnknownTable)
	}
	if fixed.AnchorEntity == "" {
		fixed.AnchorEntity = fixed.BaseTable
	}

	result := &models.FixResult{FixedIntent: fixed, Confidence: models.ConfidenceSafe}
	st := &fixState{fixed: fixed, result: result}

	f.normalizeAliases(st)
	f.repairJoins(ctx, st)
	f.resolveReferences(ctx, st)
	f.finishJoins(st)

	// Business-rule post-processors run on the now-valid intent; their
	// additions are re-validated by re-running reference resolution.
	if len(f.passes) > 0 {
		for _, pass := range f.passes {
			if updated := pass(st.fixed); updated != nil {
				st.fixed = updated
			}
		}
		result.FixedIntent = st.fixed
		f.resolveReferences(ctx, st)
		f.finishJoins(st)
	}

	return result, nil
}

// finishJoins runs the final by-table dedup and the join order optimizer.
func (f *IntentFixer) finishJoins(st *fixState) {
	st.fixed.Joins = f.dedupeByTable(st.fixed.Joins, st.result)
	st.fixed.Joins = OptimizeJoinOrder(st.fixed.Joins, f.snapshot, st.fixed.BaseTable)
}

var aliasRefPattern = regexp.MustCompile(`\bt([0-9]+)\b`)

// normalizeAliases resolves positional aliases (t1 = base table, t2..tn =
// joins in declaration order) back to real table names everywhere the intent
// references tables. The alias map is built from the declared join list once;
// every rewrite resolves against it, so dropping one bad join never shifts
// the aliases later elements were written against. Any element carrying an
// alias that cannot be resolved and does not match a literally-named table is
// dropped with a recorded reason, never silently kept.
func (f *IntentFixer) normalizeAliases(st *fixState) {
	aliases := map[string]string{"t1": st.fixed.BaseTable}
	for i, j := range st.fixed.Joins {
		aliases[fmt.Sprintf("t%d", i+2)] = f.snapshot.CanonicalName(j.Table)
	}

	rewrite := func(expr string) (string, bool) {
		unresolved := false
		out := aliasRefPattern.ReplaceAllStringFunc(expr, func(alias string) string {
			if real, ok := aliases[alias]; ok {
				return real
			}
			if f.snapshot.HasTable(alias) {
				return f.snapshot.CanonicalName(alias)
			}
			unresolved = true
			return alias
		})
		return out, unresolved
	}

	keptJoins := st.fixed.Joins[:0]
	for _, join := range st.fixed.Joins {
		on, unresolved := rewrite(join.On)
		if unresolved {
			st.result.AddNote(models.NoteDroppedReference, join.Table,
				"ON-clause %q carries an unresolvable alias", join.On)
			st.result.AddReason("join to %q dropped: unresolvable alias in ON-clause", join.Table)
			continue
		}
		join.On = on
		join.Table = f.snapshot.CanonicalName(join.Table)
		keptJoins = append(keptJoins, join)
	}
	st.fixed.Joins = keptJoins

	kept := st.fixed.Filters[:0]
	for _, flt := range st.fixed.Filters {
		table, unresolved := rewrite(flt.Table)
		if unresolved {
			st.result.AddNote(models.NoteDroppedReference, flt.Table,
				"filter on %q dropped: unresolvable alias %q", flt.Column, flt.Table)
			continue
		}
		flt.Table = f.snapshot.CanonicalName(table)
		kept = append(kept, flt)
	}
	st.fixed.Filters = kept

	st.fixed.Columns = f.rewriteList(st.fixed.Columns, rewrite, "column", st.result)
	st.fixed.GroupBy = f.rewriteList(st.fixed.GroupBy, rewrite, "group_by entry", st.result)
	st.fixed.OrderBy = f.rewriteList(st.fixed.OrderBy, rewrite, "order_by entry", st.result)
}

func (f *IntentFixer) rewriteList(items []string, rewrite func(string) (string, bool), kind string, result *models.FixResult) []string {
	kept := items[:0]
	for _, item := range items {
		out, unresolved := rewrite(item)
		if unresolved {
			result.AddNote(models.NoteDroppedReference, "",
				"%s %q dropped: unresolvable alias", kind, item)
			continue
		}
		kept = append(kept, out)
	}
	return kept
}

// repairJoins walks the declared joins, splicing in whatever joins are needed
// to make each ON-clause's referenced tables reachable, then appending the
// declared join itself (signature-deduplicated).
func (f *IntentFixer) repairJoins(ctx context.Context, st *fixState) {
	st.reachable = map[string]bool{f.key(st.fixed.BaseTable): true}
	st.sigs = make(map[models.JoinSignature]bool)

	declared := st.fixed.Joins
	st.fixed.Joins = nil

	for _, join := range declared {
		join.Table = f.snapshot.CanonicalName(join.Table)
		if !f.snapshot.HasTable(join.Table) {
			// Unknown target table is the validator's finding; keep the join
			// so the error surfaces there instead of vanishing here.
			f.appendJoin(st, join)
			continue
		}

		missing := f.missingTables(join, st)
		switch {
		case len(missing) > 1:
			f.repairMiniPlan(ctx, st, missing)
		case len(missing) == 1:
			f.repairSingleMissing(ctx, st, join, missing[0])
		}

		if remaining := f.missingTables(join, st); len(remaining) > 0 {
			st.result.AddNote(models.NoteDroppedReference, join.Table,
				"join to %s dropped: ON-clause references unreachable table(s) %s",
				join.Table, strings.Join(remaining, ", "))
			st.result.AddReason("join to %q dropped: unreachable table(s) %s",
				join.Table, strings.Join(remaining, ", "))
			st.result.Confidence = st.result.Confidence.Downgrade(models.ConfidenceUnsafe)
			continue
		}

		f.appendJoin(st, join)
	}
}

// repairMiniPlan handles an ON-clause missing more than one table: pick an
// anchor (prefer a dimension-tagged table, else the base table) and resolve
// every other missing table from that anchor.
func (f *IntentFixer) repairMiniPlan(ctx context.Context, st *fixState, missing []string) {
	anchor := st.fixed.BaseTable
	for _, m := range missing {
		if t, ok := f.snapshot.Table(m); ok && t.IsDimension() {
			anchor = t.Name
			break
		}
	}

	if !st.reachable[f.key(anchor)] {
		f.splice(ctx, st, st.fixed.BaseTable, anchor)
	}
	for _, m := range missing {
		if f.key(m) == f.key(anchor) || st.reachable[f.key(m)] {
			continue
		}
		f.splice(ctx, st, anchor, m)
	}
}

// repairSingleMissing handles an ON-clause missing exactly one table: search
// from the base table; when no path exists, fall back to the expression
// confidence parser against the ON-clause text. SAFE and PROBABLE extractions
// synthesize a direct join (PROBABLE recorded as needing review); UNKNOWN
// rejects the synthesis and makes the result UNSAFE.
func (f *IntentFixer) repairSingleMissing(ctx context.Context, st *fixState, join models.JoinSpec, missing string) {
	status := f.splice(ctx, st, st.fixed.BaseTable, missing)
	if status != spliceNoPath {
		return
	}

	column, tier, reason := sqlx.ExtractColumn(join.On, missing)
	switch tier {
	case sqlx.TierSafe:
		f.appendJoin(st, models.JoinSpec{
			Table:           missing,
			On:              join.On,
			Inferred:        true,
			InferenceReason: fmt.Sprintf("synthesized from ON-clause: %s (column %s)", reason, column),
		})
		st.result.AddNote(models.NoteInferredJoin, missing,
			"synthesized direct join to %s from ON-clause (%s)", missing, reason)
	case sqlx.TierProbable:
		f.appendJoin(st, models.JoinSpec{
			Table:           missing,
			On:              join.On,
			Inferred:        true,
			InferenceReason: fmt.Sprintf("synthesized from ON-clause with PROBABLE confidence: %s", reason),
		})
		st.result.AddNote(models.NoteNeedsReview, missing,
			"join to %s inferred with PROBABLE confidence (%s); needs review", missing, reason)
		st.result.AddReason("join to %q inferred from ON-clause text with PROBABLE confidence", missing)
		st.result.Confidence = st.result.Confidence.Downgrade(models.ConfidenceAmbiguous)
	default:
		st.result.AddNote(models.NoteUnsafe, missing,
			"refused to synthesize join to %s: %s", missing, reason)
		st.result.AddReason("cannot safely infer a join to %q (%s)", missing, reason)
		st.result.Confidence = st.result.Confidence.Downgrade(models.ConfidenceUnsafe)
	}
}

// resolveReferences re-scans every table referenced by filters, columns,
// group-by, order-by, the metric expression, and computed dimensions, and
// splices in join paths for any that are not yet reachable. Competing
// candidate paths of different length (or equal cost) are recorded as an
// ambiguity and downgrade confidence.
func (f *IntentFixer) resolveReferences(ctx context.Context, st *fixState) {
	st.reachable = map[string]bool{f.key(st.fixed.BaseTable): true}
	st.sigs = make(map[models.JoinSignature]bool)
	for _, j := range st.fixed.Joins {
		st.reachable[f.key(j.Table)] = true
		st.sigs[models.JoinSignatureFromOn(st.fixed.BaseTable, j.Table, j.On)] = true
	}

	for _, table := range f.referencedTables(st.fixed) {
		if st.reachable[f.key(table)] {
			continue
		}

		// Learned joins are always preferred over freshly inferred paths.
		if path, err := f.finder.LearnedPath(ctx, st.fixed.BaseTable, table); err == nil && path != nil {
			f.spliceEdges(st, path)
			continue
		}

		candidates := f.finder.FindPaths(st.fixed.BaseTable, table, true)
		if len(candidates) == 0 {
			path, err := f.finder.AskPath(ctx, st.fixed.BaseTable, table,
				fmt.Sprintf("table %s is referenced by the query but no relationship path reaches it from %s", table, st.fixed.BaseTable))
			if err != nil {
				f.logger.Warn("Interactive join resolution failed", zap.String("table", table), zap.Error(err))
			}
			if path == nil {
				st.result.AddNote(models.NoteUnsafe, table,
					"no join path from %s to %s", st.fixed.BaseTable, table)
				st.result.AddReason("referenced table %q is unreachable from %q", table, st.fixed.BaseTable)
				st.result.Confidence = st.result.Confidence.Downgrade(models.ConfidenceUnsafe)
				continue
			}
			f.spliceEdges(st, path)
			continue
		}

		if len(candidates) >= 2 && pathsAmbiguous(candidates[0], candidates[1]) {
			st.result.AddNote(models.NoteAmbiguous, table,
				"multiple candidate paths resolve %s", table)
			st.result.AddReason("ambiguous join path to %q: %s vs %s",
				table, candidates[0].Describe(), candidates[1].Describe())
			st.result.Confidence = st.result.Confidence.Downgrade(models.ConfidenceAmbiguous)
		}

		f.spliceEdges(st, candidates[0].Edges)
	}
}

// pathCostEpsilon absorbs float accumulation error when comparing path costs.
// Edge weights differ by at least 0.1, so anything closer than this is a tie.
const pathCostEpsilon = 1e-9

// pathsAmbiguous reports whether the two top-ranked candidate paths tie on
// cost. A tie means the choice between them is arbitrary, whether the paths
// are the same length or not, so it needs review. A strictly cheaper winner
// is not ambiguous no matter how many longer alternatives exist.
func pathsAmbiguous(a, b JoinPath) bool {
	return math.Abs(a.Weight-b.Weight) < pathCostEpsilon
}

// splice finds a path and folds its edges into the join list.
func (f *IntentFixer) splice(ctx context.Context, st *fixState, from, to string) spliceStatus {
	path, err := f.finder.FindPath(ctx, from, to, true)
	if err != nil {
		f.logger.Warn("Path search failed", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return spliceNoPath
	}
	if path == nil {
		return spliceNoPath
	}
	return f.spliceEdges(st, path)
}

// spliceEdges appends each path edge whose target is not yet reachable.
// An inferred edge over a many_to_many relationship is rejected outright:
// it never enters the join list and the overall confidence becomes UNSAFE.
// Learner-supplied edges are exempt because the learner explicitly confirmed them.
func (f *IntentFixer) spliceEdges(st *fixState, path []models.RelationshipEdge) spliceStatus {
	for _, edge := range path {
		if st.reachable[f.key(edge.ToTable)] {
			continue
		}

		if edge.RelationshipType == models.RelationshipManyToMany && edge.Origin != models.EdgeOriginLearned {
			st.result.AddNote(models.NoteUnsafe, edge.ToTable,
				"blocked inferred many-to-many join to %s", edge.ToTable)
			st.result.AddReason("join to %q blocked: relationship is many_to_many", edge.ToTable)
			st.result.Confidence = st.result.Confidence.Downgrade(models.ConfidenceUnsafe)
			return spliceBlocked
		}

		safe := edge.CardinalitySafe
		f.appendJoin(st, models.JoinSpec{
			Table:            edge.ToTable,
			On:               edge.On,
			RelationshipType: edge.RelationshipType,
			CardinalitySafe:  &safe,
			Inferred:         true,
			InferenceReason:  fmt.Sprintf("inferred %s join %s -> %s (%s)", edge.RelationshipType, edge.FromTable, edge.ToTable, edge.Origin),
		})
	}
	return spliceOK
}

// appendJoin appends a join unless its signature duplicates one already
// present; duplicates are skipped silently apart from an inference note.
func (f *IntentFixer) appendJoin(st *fixState, join models.JoinSpec) {
	sig := models.JoinSignatureFromOn(st.fixed.BaseTable, join.Table, join.On)
	if st.sigs[sig] {
		st.result.AddNote(models.NoteDuplicateSkipped, join.Table,
			"duplicate join to %s skipped (same join signature)", join.Table)
		st.reachable[f.key(join.Table)] = true
		return
	}
	st.sigs[sig] = true
	st.reachable[f.key(join.Table)] = true
	st.fixed.Joins = append(st.fixed.Joins, join)
}

// dedupeByTable keeps the first join per table name.
func (f *IntentFixer) dedupeByTable(joins []models.JoinSpec, result *models.FixResult) []models.JoinSpec {
	seen := make(map[string]bool, len(joins))
	kept := joins[:0]
	for _, j := range joins {
		k := f.key(j.Table)
		if seen[k] {
			result.AddNote(models.NoteDuplicateSkipped, j.Table,
				"duplicate join to %s removed in final dedup", j.Table)
			continue
		}
		seen[k] = true
		kept = append(kept, j)
	}
	return kept
}

// missingTables returns the known tables referenced by the join's ON-clause
// that are neither the join's own table nor already reachable.
func (f *IntentFixer) missingTables(join models.JoinSpec, st *fixState) []string {
	var missing []string
	seen := map[string]bool{}
	for _, ref := range sqlx.ReferencedColumns(join.On) {
		if !f.snapshot.HasTable(ref.Table) {
			continue
		}
		canonical := f.snapshot.CanonicalName(ref.Table)
		k := f.key(canonical)
		if k == f.key(join.Table) || st.reachable[k] || seen[k] {
			continue
		}
		seen[k] = true
		missing = append(missing, canonical)
	}
	return missing
}

// referencedTables collects, in order of first appearance, every known table
// referenced anywhere in the intent outside the join list itself.
func (f *IntentFixer) referencedTables(intent *models.QueryIntent) []string {
	var tables []string
	seen := map[string]bool{}

	add := func(name string) {
		if name == "" || !f.snapshot.HasTable(name) {
			return
		}
		canonical := f.snapshot.CanonicalName(name)
		if k := f.key(canonical); !seen[k] {
			seen[k] = true
			tables = append(tables, canonical)
		}
	}
	addExprRefs := func(expr string) {
		for _, ref := range sqlx.ReferencedColumns(expr) {
			add(ref.Table)
		}
	}

	var walkFilters func([]models.FilterSpec)
	walkFilters = func(filters []models.FilterSpec) {
		for _, flt := range filters {
			add(flt.Table)
			walkFilters(flt.Or)
		}
	}
	walkFilters(intent.Filters)

	for _, col := range intent.Columns {
		addExprRefs(col)
	}
	for _, expr := range intent.GroupBy {
		addExprRefs(expr)
	}
	for _, expr := range intent.OrderBy {
		addExprRefs(expr)
	}
	if intent.Metric != nil {
		addExprRefs(intent.Metric.SQLExpression)
	}
	for _, dim := range intent.ComputedDimensions {
		addExprRefs(dim.SQLExpression)
	}
	return tables
}

func (f *IntentFixer) key(table string) string {
	return metadata.NormalizeName(f.snapshot.CanonicalName(table))
}
