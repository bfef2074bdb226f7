package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/logging"
	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

// ResolverOptions configures a QueryResolver.
type ResolverOptions struct {
	Learner      JoinLearner          // nil disables learned joins and the interactive ask
	LearnedJoins []*models.LearnedJoin // folded into the graph at construction
	AskTimeout   time.Duration        // zero means DefaultAskTimeout
	Dimensions   DimensionResolver    // nil means the snapshot-backed default
	JoinTypes    JoinTypeResolver     // nil means the filter-driven default
	Passes       []IntentPass
}

// ResolveResult is the full outcome of resolving one intent.
type ResolveResult struct {
	SQL        string              `json:"sql"`
	Fix        *models.FixResult   `json:"fix"`
	Validation *ValidationResult   `json:"validation"`
	Plan       *models.ExplainPlan `json:"plan"`
}

// QueryResolver is the top-level facade: fix the intent, validate the fixed
// intent, emit SQL, and assemble the explain plan. The relationship graph is
// built once at construction and shared by every resolve call; learned joins
// appended mid-flight are visible to later calls.
type QueryResolver struct {
	snapshot  *metadata.Snapshot
	graph     *RelationshipGraph
	fixer     *IntentFixer
	validator *IntentValidator
	builder   *SQLBuilder
	logger    *zap.Logger
}

// NewQueryResolver builds the resolver stack over a metadata snapshot.
func NewQueryResolver(snapshot *metadata.Snapshot, opts ResolverOptions, logger *zap.Logger) *QueryResolver {
	graph := BuildRelationshipGraph(snapshot, opts.LearnedJoins, logger)
	finder := NewPathFinder(graph, opts.Learner, opts.AskTimeout, logger)
	return &QueryResolver{
		snapshot:  snapshot,
		graph:     graph,
		fixer:     NewIntentFixer(snapshot, graph, finder, opts.Passes, logger),
		validator: NewIntentValidator(snapshot, logger),
		builder:   NewSQLBuilder(snapshot, opts.Dimensions, opts.JoinTypes, logger),
		logger:    logger.Named("query-resolver"),
	}
}

// Graph exposes the shared relationship graph (read-side: connectivity
// summaries, edge listings).
func (r *QueryResolver) Graph() *RelationshipGraph {
	return r.graph
}

// Validate runs structural validation only, without repairing anything.
func (r *QueryResolver) Validate(intent *models.QueryIntent) *ValidationResult {
	return r.validator.Validate(intent)
}

// Resolve repairs the intent, validates the repaired form, emits SQL, and
// builds the explain plan. Fix-level failures (missing or unknown base table)
// and unsafe filter values surface as errors; everything else lands in the
// result's confidence, reasons, and validation findings.
func (r *QueryResolver) Resolve(ctx context.Context, intent *models.QueryIntent) (*ResolveResult, error) {
	fix, err := r.fixer.FixIntent(ctx, intent)
	if err != nil {
		return nil, err
	}

	validation := r.validator.Validate(fix.FixedIntent)
	if !validation.Valid() {
		r.logger.Warn("Fixed intent failed validation",
			zap.Int("errors", len(validation.Errors)),
			zap.String("base_table", fix.FixedIntent.BaseTable))
	}

	build, err := r.builder.Build(fix.FixedIntent)
	if err != nil {
		return nil, err
	}

	// Filter values can carry user data, so only the sanitized query shape
	// is logged.
	r.logger.Info("Resolved intent",
		zap.String("base_table", fix.FixedIntent.BaseTable),
		zap.Int("joins", len(fix.FixedIntent.Joins)),
		zap.String("confidence", fix.Confidence.String()),
		zap.String("sql", logging.SanitizeQuery(build.SQL)))

	return &ResolveResult{
		SQL:        build.SQL,
		Fix:        fix,
		Validation: validation,
		Plan:       BuildExplainPlan(fix, build),
	}, nil
}
