package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

// DefaultAskTimeout bounds the interactive join question when the caller does
// not configure one.
const DefaultAskTimeout = 30 * time.Second

// JoinPath is one candidate path between two tables.
type JoinPath struct {
	Edges  []models.RelationshipEdge
	Weight float64
}

// AllCardinalitySafe reports whether every edge of the path is cardinality-safe.
func (p JoinPath) AllCardinalitySafe() bool {
	for _, e := range p.Edges {
		if !e.CardinalitySafe {
			return false
		}
	}
	return true
}

// Describe renders the path as "a -> b -> c (weight 1.50)".
func (p JoinPath) Describe() string {
	if len(p.Edges) == 0 {
		return "(empty path)"
	}
	parts := []string{p.Edges[0].FromTable}
	for _, e := range p.Edges {
		parts = append(parts, e.ToTable)
	}
	return fmt.Sprintf("%s (weight %.2f)", strings.Join(parts, " -> "), p.Weight)
}

// PathFinder searches the relationship graph for join paths. Before any graph
// search it consults the Join Learner for a previously learned join, and when
// no path exists it may escalate to the learner's interactive ask, the one
// operation in the whole resolver that can suspend.
type PathFinder struct {
	graph      *RelationshipGraph
	learner    JoinLearner // may be nil
	askTimeout time.Duration
	logger     *zap.Logger
}

// NewPathFinder creates a path finder. A nil learner disables both the learned
// shortcut and the interactive fallback.
func NewPathFinder(graph *RelationshipGraph, learner JoinLearner, askTimeout time.Duration, logger *zap.Logger) *PathFinder {
	if askTimeout <= 0 {
		askTimeout = DefaultAskTimeout
	}
	return &PathFinder{
		graph:      graph,
		learner:    learner,
		askTimeout: askTimeout,
		logger:     logger.Named("path-finder"),
	}
}

// FindPath returns the best path from one table to another, or nil when none
// can be found or learned. The resolution order is fixed: learned join first,
// then graph search, then the interactive ask.
func (f *PathFinder) FindPath(ctx context.Context, from, to string, preferCardinalitySafe bool) ([]models.RelationshipEdge, error) {
	if edge, err := f.LearnedPath(ctx, from, to); err != nil || edge != nil {
		return edge, err
	}

	if candidates := f.FindPaths(from, to, preferCardinalitySafe); len(candidates) > 0 {
		return candidates[0].Edges, nil
	}

	return f.AskPath(ctx, from, to, fmt.Sprintf("no relationship path from %s to %s", from, to))
}

// LearnedPath consults the learner for a direct learned join between the
// tables. A learned join is returned as a single-edge path with the fixed
// learned weight, so it always beats freshly inferred paths.
func (f *PathFinder) LearnedPath(ctx context.Context, from, to string) ([]models.RelationshipEdge, error) {
	if f.learner == nil {
		return nil, nil
	}

	lj, err := f.learner.GetLearnedJoin(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned joins: %w", err)
	}
	if lj == nil {
		return nil, nil
	}

	relationshipType := lj.RelationshipType(from)
	f.logger.Debug("Using learned join",
		zap.String("from", from), zap.String("to", to), zap.String("on", lj.On))
	return []models.RelationshipEdge{{
		FromTable:        from,
		ToTable:          to,
		On:               lj.On,
		RelationshipType: relationshipType,
		CardinalitySafe:  models.IsCardinalitySafe(relationshipType),
		Weight:           models.LearnedEdgeWeight,
		Origin:           models.EdgeOriginLearned,
	}}, nil
}

// FindPaths collects every acyclic path between the tables and ranks them.
// When preferCardinalitySafe is set, fully cardinality-safe paths sort before
// unsafe ones; within each group lower total weight wins. Ties keep discovery
// order, which follows graph-construction order, so ranking is deterministic.
func (f *PathFinder) FindPaths(from, to string, preferCardinalitySafe bool) []JoinPath {
	if !f.graph.HasTable(from) || !f.graph.HasTable(to) {
		return nil
	}
	if metadata.NamesMatch(from, to) {
		return nil
	}

	visited := map[string]bool{metadata.NormalizeName(from): true}
	var candidates []JoinPath
	f.collect(from, to, visited, nil, 0, &candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		if preferCardinalitySafe {
			si, sj := candidates[i].AllCardinalitySafe(), candidates[j].AllCardinalitySafe()
			if si != sj {
				return si
			}
		}
		return candidates[i].Weight < candidates[j].Weight
	})
	return candidates
}

// collect performs the recursive weighted search. The visited set guards
// cycles and bounds recursion depth by the table count.
func (f *PathFinder) collect(current, target string, visited map[string]bool, prefix []models.RelationshipEdge, weight float64, out *[]JoinPath) {
	for _, edge := range f.graph.EdgesFrom(current) {
		key := metadata.NormalizeName(edge.ToTable)
		if visited[key] {
			continue
		}

		path := append(append([]models.RelationshipEdge(nil), prefix...), edge)
		if metadata.NamesMatch(edge.ToTable, target) {
			*out = append(*out, JoinPath{Edges: path, Weight: weight + edge.Weight})
			continue
		}

		visited[key] = true
		f.collect(edge.ToTable, target, visited, path, weight+edge.Weight, out)
		delete(visited, key)
	}
}

// AskPath escalates to the interactive learner. The question is bounded by
// the configured timeout; a timeout, cancellation, or explicit skip all yield
// a nil path. A real answer is folded into the graph as a learned edge and
// returned as the path.
func (f *PathFinder) AskPath(ctx context.Context, from, to, contextText string) ([]models.RelationshipEdge, error) {
	if f.learner == nil {
		return nil, nil
	}

	askCtx, cancel := context.WithTimeout(ctx, f.askTimeout)
	defer cancel()

	lj, err := f.learner.AskUserForJoin(askCtx, from, to, contextText)
	if err != nil {
		return nil, fmt.Errorf("interactive join question failed: %w", err)
	}
	if lj == nil {
		return nil, nil
	}

	f.graph.AppendLearnedEdge(lj)
	relationshipType := lj.RelationshipType(from)
	return []models.RelationshipEdge{{
		FromTable:        from,
		ToTable:          to,
		On:               lj.On,
		RelationshipType: relationshipType,
		CardinalitySafe:  models.IsCardinalitySafe(relationshipType),
		Weight:           models.LearnedEdgeWeight,
		Origin:           models.EdgeOriginLearned,
	}}, nil
}
