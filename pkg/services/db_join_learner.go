package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/logging"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	"github.com/tablemesh/tablemesh-engine/pkg/repositories"
)

// DBJoinLearner is a JoinLearner backed by the learned-join repository.
// Answers to interactive questions are persisted, so a join learned once is
// known to every later process against the same database.
type DBJoinLearner struct {
	repo   repositories.LearnedJoinRepository
	ask    AskFunc // nil disables interactive learning
	logger *zap.Logger
}

// NewDBJoinLearner creates a persistent learner.
func NewDBJoinLearner(repo repositories.LearnedJoinRepository, ask AskFunc, logger *zap.Logger) *DBJoinLearner {
	return &DBJoinLearner{
		repo:   repo,
		ask:    ask,
		logger: logger.Named("db-join-learner"),
	}
}

var _ JoinLearner = (*DBJoinLearner)(nil)

// GetLearnedJoin returns the persisted join for the pair, or nil when unknown.
func (l *DBJoinLearner) GetLearnedJoin(ctx context.Context, tableA, tableB string) (*models.LearnedJoin, error) {
	return l.repo.GetByPair(ctx, tableA, tableB)
}

// AskUserForJoin escalates to the ask function and persists a non-skip
// answer. Context cancellation and timeouts are treated as skips; a failed
// persist is logged but does not invalidate the answer for this resolution.
func (l *DBJoinLearner) AskUserForJoin(ctx context.Context, tableA, tableB, contextText string) (*models.LearnedJoin, error) {
	if l.ask == nil {
		return nil, nil
	}

	lj, err := l.ask(ctx, tableA, tableB, contextText)
	if err != nil {
		if ctx.Err() != nil {
			l.logger.Info("Join question timed out or was cancelled; treating as skip",
				zap.String("table_a", tableA), zap.String("table_b", tableB))
			return nil, nil
		}
		return nil, err
	}
	if lj == nil {
		return nil, nil
	}

	if err := l.repo.Upsert(ctx, lj); err != nil {
		// Repository errors can echo connection details; sanitize first.
		l.logger.Warn("Failed to persist learned join",
			zap.String("error", logging.SanitizeError(err)),
			zap.String("table_a", lj.TableA), zap.String("table_b", lj.TableB))
	}
	return lj, nil
}
