package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tablemesh/tablemesh-engine/pkg/apperrors"
	"github.com/tablemesh/tablemesh-engine/pkg/logging"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	"github.com/tablemesh/tablemesh-engine/pkg/testhelpers"
)

func TestQueryResolver_Resolve(t *testing.T) {
	resolver := NewQueryResolver(testhelpers.TestSnapshot(), ResolverOptions{}, zap.NewNop())

	t.Run("metric intent end to end", func(t *testing.T) {
		result, err := resolver.Resolve(context.Background(), &models.QueryIntent{
			BaseTable: "orders",
			QueryType: models.QueryTypeMetric,
			Metric:    &models.Metric{Name: "revenue", SQLExpression: "SUM(lineitems.price)"},
			GroupBy:   []string{"products.category"},
		})
		require.NoError(t, err)

		assert.Equal(t, models.ConfidenceSafe, result.Fix.Confidence)
		assert.True(t, result.Validation.Valid())
		assert.Contains(t, result.SQL, "GROUP BY")
		assert.Contains(t, result.SQL, "AS revenue")
		assert.Contains(t, result.SQL, "FROM orders t1")
		require.NotNil(t, result.Plan)
		assert.Equal(t, "orders", result.Plan.AnchorTable)
		assert.Len(t, result.Plan.Steps, len(result.Fix.FixedIntent.Joins))
	})

	t.Run("relational intent with declared join", func(t *testing.T) {
		result, err := resolver.Resolve(context.Background(), &models.QueryIntent{
			BaseTable: "orders",
			QueryType: models.QueryTypeRelational,
			Joins:     []models.JoinSpec{{Table: "customers", On: "orders.customer_id = customers.id"}},
			Columns:   []string{"orders.id", "customers.name"},
			Filters:   []models.FilterSpec{{Table: "customers", Column: "name", Value: "Ada"}},
		})
		require.NoError(t, err)

		assert.Contains(t, result.SQL, "SELECT t1.id, t2.name")
		assert.Contains(t, result.SQL, "INNER JOIN customers t2")
		assert.Contains(t, result.SQL, "WHERE t2.name = 'Ada'")
	})

	t.Run("missing base table is fatal", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), &models.QueryIntent{})
		assert.ErrorIs(t, err, apperrors.ErrMissingBaseTable)
	})

	t.Run("unsafe filter value is fatal", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), &models.QueryIntent{
			BaseTable: "orders",
			Filters:   []models.FilterSpec{{Column: "status", Value: "' OR 1=1 --"}},
		})
		assert.ErrorIs(t, err, apperrors.ErrUnsafeFilterValue)
	})
}

func TestQueryResolver_LearnedJoinsSeedTheGraph(t *testing.T) {
	resolver := NewQueryResolver(disconnectedSnapshot(), ResolverOptions{
		LearnedJoins: []*models.LearnedJoin{{
			TableA:      "orders",
			TableB:      "warehouses",
			On:          "orders.warehouse_id = warehouses.id",
			Cardinality: "N:1",
		}},
	}, zap.NewNop())

	result, err := resolver.Resolve(context.Background(), &models.QueryIntent{
		BaseTable: "orders",
		QueryType: models.QueryTypeRelational,
		Filters:   []models.FilterSpec{{Table: "warehouses", Column: "name", Value: "east"}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ConfidenceSafe, result.Fix.Confidence)
	assert.Contains(t, result.SQL, "JOIN warehouses t2")
}

func TestQueryResolver_LogsSanitizedSQL(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	resolver := NewQueryResolver(testhelpers.TestSnapshot(), ResolverOptions{}, zap.New(core))

	_, err := resolver.Resolve(context.Background(), &models.QueryIntent{
		BaseTable: "orders",
		QueryType: models.QueryTypeRelational,
		Filters:   []models.FilterSpec{{Column: "status", Value: "confidential"}},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("Resolved intent").All()
	require.Len(t, entries, 1)
	logged, ok := entries[0].ContextMap()["sql"].(string)
	require.True(t, ok, "resolved intent log entry carries no sql field")
	assert.Contains(t, logged, "FROM orders")
	assert.Contains(t, logged, logging.RedactedText)
	assert.NotContains(t, logged, "confidential")
}

func TestQueryResolver_ValidateOnly(t *testing.T) {
	resolver := NewQueryResolver(testhelpers.TestSnapshot(), ResolverOptions{}, zap.NewNop())

	valid := resolver.Validate(&models.QueryIntent{BaseTable: "orders", AnchorEntity: "orders"})
	assert.True(t, valid.Valid())

	invalid := resolver.Validate(&models.QueryIntent{BaseTable: "mystery"})
	assert.False(t, invalid.Valid())
}

func TestQueryResolver_Graph(t *testing.T) {
	resolver := NewQueryResolver(testhelpers.TestSnapshot(), ResolverOptions{}, zap.NewNop())
	require.NotNil(t, resolver.Graph())
	assert.True(t, resolver.Graph().HasTable("orders"))
}
