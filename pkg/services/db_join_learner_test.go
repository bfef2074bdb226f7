package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/models"
	"github.com/tablemesh/tablemesh-engine/pkg/repositories"
)

// fakeJoinRepo is an in-memory stand-in for the pgx-backed repository.
type fakeJoinRepo struct {
	joins     map[string]*models.LearnedJoin
	upsertErr error
}

var _ repositories.LearnedJoinRepository = (*fakeJoinRepo)(nil)

func newFakeJoinRepo() *fakeJoinRepo {
	return &fakeJoinRepo{joins: make(map[string]*models.LearnedJoin)}
}

func (r *fakeJoinRepo) Upsert(_ context.Context, lj *models.LearnedJoin) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.joins[models.NormalizedPairKey(lj.TableA, lj.TableB)] = lj
	return nil
}

func (r *fakeJoinRepo) GetByPair(_ context.Context, tableA, tableB string) (*models.LearnedJoin, error) {
	return r.joins[models.NormalizedPairKey(tableA, tableB)], nil
}

func (r *fakeJoinRepo) GetAll(_ context.Context) ([]*models.LearnedJoin, error) {
	var all []*models.LearnedJoin
	for _, lj := range r.joins {
		all = append(all, lj)
	}
	return all, nil
}

func (r *fakeJoinRepo) Delete(_ context.Context, id uuid.UUID) error {
	for k, lj := range r.joins {
		if lj.ID == id {
			delete(r.joins, k)
		}
	}
	return nil
}

func TestDBJoinLearner_GetLearnedJoin(t *testing.T) {
	repo := newFakeJoinRepo()
	require.NoError(t, repo.Upsert(context.Background(), &models.LearnedJoin{
		TableA: "orders", TableB: "warehouses", On: "orders.warehouse_id = warehouses.id",
	}))
	learner := NewDBJoinLearner(repo, nil, zap.NewNop())

	lj, err := learner.GetLearnedJoin(context.Background(), "warehouses", "orders")
	require.NoError(t, err)
	require.NotNil(t, lj)
	assert.Equal(t, "orders.warehouse_id = warehouses.id", lj.On)

	missing, err := learner.GetLearnedJoin(context.Background(), "orders", "carriers")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDBJoinLearner_AskUserForJoin(t *testing.T) {
	t.Run("answer is persisted", func(t *testing.T) {
		repo := newFakeJoinRepo()
		ask := func(_ context.Context, tableA, tableB, _ string) (*models.LearnedJoin, error) {
			return &models.LearnedJoin{TableA: tableA, TableB: tableB, On: "a.id = b.a_id"}, nil
		}
		learner := NewDBJoinLearner(repo, ask, zap.NewNop())

		lj, err := learner.AskUserForJoin(context.Background(), "orders", "warehouses", "why")
		require.NoError(t, err)
		require.NotNil(t, lj)

		stored, err := repo.GetByPair(context.Background(), "orders", "warehouses")
		require.NoError(t, err)
		assert.NotNil(t, stored)
	})

	t.Run("nil ask function skips", func(t *testing.T) {
		learner := NewDBJoinLearner(newFakeJoinRepo(), nil, zap.NewNop())
		lj, err := learner.AskUserForJoin(context.Background(), "orders", "warehouses", "why")
		require.NoError(t, err)
		assert.Nil(t, lj)
	})

	t.Run("cancellation is a skip", func(t *testing.T) {
		ask := func(ctx context.Context, _, _, _ string) (*models.LearnedJoin, error) {
			return nil, ctx.Err()
		}
		learner := NewDBJoinLearner(newFakeJoinRepo(), ask, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		lj, err := learner.AskUserForJoin(ctx, "orders", "warehouses", "why")
		require.NoError(t, err)
		assert.Nil(t, lj)
	})

	t.Run("failed persist does not invalidate the answer", func(t *testing.T) {
		repo := newFakeJoinRepo()
		repo.upsertErr = errors.New("connection lost")
		ask := func(_ context.Context, tableA, tableB, _ string) (*models.LearnedJoin, error) {
			return &models.LearnedJoin{TableA: tableA, TableB: tableB, On: "a.id = b.a_id"}, nil
		}
		learner := NewDBJoinLearner(repo, ask, zap.NewNop())

		lj, err := learner.AskUserForJoin(context.Background(), "orders", "warehouses", "why")
		require.NoError(t, err)
		assert.NotNil(t, lj)
	})

	t.Run("ask errors without cancellation propagate", func(t *testing.T) {
		ask := func(_ context.Context, _, _, _ string) (*models.LearnedJoin, error) {
			return nil, errors.New("channel broken")
		}
		learner := NewDBJoinLearner(newFakeJoinRepo(), ask, zap.NewNop())

		_, err := learner.AskUserForJoin(context.Background(), "orders", "warehouses", "why")
		assert.Error(t, err)
	})
}
