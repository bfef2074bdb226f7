package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

// JoinLearner is the interactive-learning collaborator consulted by the path
// finder. GetLearnedJoin returns a previously learned join for the table pair,
// or nil when none is known. AskUserForJoin escalates to a human; it must
// honor the context, and a timeout or cancellation is equivalent to a "skip"
// answer (nil join, nil error), never a crash.
type JoinLearner interface {
	GetLearnedJoin(ctx context.Context, tableA, tableB string) (*models.LearnedJoin, error)
	AskUserForJoin(ctx context.Context, tableA, tableB, contextText string) (*models.LearnedJoin, error)
}

// AskFunc answers an interactive join question. Implementations must respect
// the context deadline; returning (nil, nil) means the question was skipped.
type AskFunc func(ctx context.Context, tableA, tableB, contextText string) (*models.LearnedJoin, error)

// MemoryJoinLearner is an in-process learned-join store. It supports
// concurrent readers with single-writer, last-write-wins append semantics
// keyed by normalized table pair. Reads never block on writes they did not
// initiate beyond the brief critical section.
type MemoryJoinLearner struct {
	mu    sync.RWMutex
	joins map[string]*models.LearnedJoin

	ask    AskFunc // nil disables interactive learning
	logger *zap.Logger
}

// NewMemoryJoinLearner creates an in-memory learner. A nil ask function
// disables the interactive side channel: AskUserForJoin then always skips.
func NewMemoryJoinLearner(ask AskFunc, logger *zap.Logger) *MemoryJoinLearner {
	return &MemoryJoinLearner{
		joins:  make(map[string]*models.LearnedJoin),
		ask:    ask,
		logger: logger.Named("join-learner"),
	}
}

var _ JoinLearner = (*MemoryJoinLearner)(nil)

// GetLearnedJoin returns the learned join for the pair, or nil when unknown.
func (l *MemoryJoinLearner) GetLearnedJoin(_ context.Context, tableA, tableB string) (*models.LearnedJoin, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lj, ok := l.joins[models.NormalizedPairKey(tableA, tableB)]
	if !ok {
		return nil, nil
	}
	copied := *lj
	return &copied, nil
}

// AskUserForJoin escalates to the configured ask function and records a
// non-skip answer. Context cancellation and timeouts are treated as skips.
func (l *MemoryJoinLearner) AskUserForJoin(ctx context.Context, tableA, tableB, contextText string) (*models.LearnedJoin, error) {
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

	l.Record(lj)
	return lj, nil
}

// Record stores a learned join, replacing any previous answer for the same
// normalized pair (last-write-wins).
func (l *MemoryJoinLearner) Record(lj *models.LearnedJoin) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lj.ID == uuid.Nil {
		lj.ID = uuid.New()
	}
	if lj.CreatedAt.IsZero() {
		lj.CreatedAt = time.Now()
	}
	key := lj.PairKey()
	if _, exists := l.joins[key]; exists {
		now := time.Now()
		lj.UpdatedAt = &now
	}
	l.joins[key] = lj
}

// Len returns the number of learned pairs.
func (l *MemoryJoinLearner) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.joins)
}
