package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

func TestMemoryJoinLearner_RecordAndGet(t *testing.T) {
	learner := NewMemoryJoinLearner(nil, zap.NewNop())

	learner.Record(&models.LearnedJoin{
		TableA:      "orders",
		TableB:      "customers",
		On:          "orders.customer_id = customers.id",
		Cardinality: "N:1",
	})

	lj, err := learner.GetLearnedJoin(context.Background(), "orders", "customers")
	require.NoError(t, err)
	require.NotNil(t, lj)
	assert.NotEqual(t, lj.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, lj.CreatedAt.IsZero())

	// Lookup is direction-independent.
	reversed, err := learner.GetLearnedJoin(context.Background(), "customers", "orders")
	require.NoError(t, err)
	require.NotNil(t, reversed)
	assert.Equal(t, lj.On, reversed.On)

	unknown, err := learner.GetLearnedJoin(context.Background(), "orders", "products")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestMemoryJoinLearner_LastWriteWins(t *testing.T) {
	learner := NewMemoryJoinLearner(nil, zap.NewNop())

	learner.Record(&models.LearnedJoin{TableA: "orders", TableB: "customers", On: "first answer"})
	learner.Record(&models.LearnedJoin{TableA: "customers", TableB: "orders", On: "second answer"})

	lj, err := learner.GetLearnedJoin(context.Background(), "orders", "customers")
	require.NoError(t, err)
	require.NotNil(t, lj)
	assert.Equal(t, "second answer", lj.On)
	assert.NotNil(t, lj.UpdatedAt)
	assert.Equal(t, 1, learner.Len())
}

func TestMemoryJoinLearner_GetReturnsCopy(t *testing.T) {
	learner := NewMemoryJoinLearner(nil, zap.NewNop())
	learner.Record(&models.LearnedJoin{TableA: "orders", TableB: "customers", On: "orders.customer_id = customers.id"})

	lj, err := learner.GetLearnedJoin(context.Background(), "orders", "customers")
	require.NoError(t, err)
	lj.On = "mutated"

	again, err := learner.GetLearnedJoin(context.Background(), "orders", "customers")
	require.NoError(t, err)
	assert.Equal(t, "orders.customer_id = customers.id", again.On)
}

func TestMemoryJoinLearner_AskUserForJoin(t *testing.T) {
	t.Run("answer is recorded", func(t *testing.T) {
		ask := func(_ context.Context, tableA, tableB, _ string) (*models.LearnedJoin, error) {
			return &models.LearnedJoin{TableA: tableA, TableB: tableB, On: "a.id = b.a_id"}, nil
		}
		learner := NewMemoryJoinLearner(ask, zap.NewNop())

		lj, err := learner.AskUserForJoin(context.Background(), "orders", "customers", "why")
		require.NoError(t, err)
		require.NotNil(t, lj)
		assert.Equal(t, 1, learner.Len())
	})

	t.Run("nil ask function always skips", func(t *testing.T) {
		learner := NewMemoryJoinLearner(nil, zap.NewNop())
		lj, err := learner.AskUserForJoin(context.Background(), "orders", "customers", "why")
		require.NoError(t, err)
		assert.Nil(t, lj)
		assert.Equal(t, 0, learner.Len())
	})

	t.Run("cancellation is a skip not an error", func(t *testing.T) {
		ask := func(ctx context.Context, _, _, _ string) (*models.LearnedJoin, error) {
			return nil, ctx.Err()
		}
		learner := NewMemoryJoinLearner(ask, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		lj, err := learner.AskUserForJoin(ctx, "orders", "customers", "why")
		require.NoError(t, err)
		assert.Nil(t, lj)
	})
}

func TestMemoryJoinLearner_ConcurrentAccess(t *testing.T) {
	learner := NewMemoryJoinLearner(nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			learner.Record(&models.LearnedJoin{TableA: "orders", TableB: "customers", On: "x = y"})
		}()
		go func() {
			defer wg.Done()
			_, _ = learner.GetLearnedJoin(context.Background(), "orders", "customers")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, learner.Len())
}
