package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemesh/tablemesh-engine/pkg/models"
	"github.com/tablemesh/tablemesh-engine/pkg/testhelpers"
)

func joinTables(joins []models.JoinSpec) []string {
	tables := make([]string, len(joins))
	for i, j := range joins {
		tables[i] = j.Table
	}
	return tables
}

func TestOptimizeJoinOrder(t *testing.T) {
	snap := testhelpers.TestSnapshot()
	safe := true
	unsafe := false

	t.Run("cardinality safe joins sort first", func(t *testing.T) {
		joins := []models.JoinSpec{
			{Table: "lineitems", On: "lineitems.order_id = orders.id", CardinalitySafe: &unsafe},
			{Table: "customers", On: "orders.customer_id = customers.id", CardinalitySafe: &safe},
		}
		ordered := OptimizeJoinOrder(joins, snap, "orders")
		assert.Equal(t, []string{"customers", "lineitems"}, joinTables(ordered))
	})

	t.Run("relationship type stands in for explicit flag", func(t *testing.T) {
		joins := []models.JoinSpec{
			{Table: "lineitems", On: "lineitems.order_id = orders.id", RelationshipType: models.RelationshipOneToMany},
			{Table: "stores", On: "orders.store_id = stores.id", RelationshipType: models.RelationshipManyToOne},
		}
		ordered := OptimizeJoinOrder(joins, snap, "orders")
		assert.Equal(t, []string{"stores", "lineitems"}, joinTables(ordered))
	})

	t.Run("dimension tables break cardinality ties", func(t *testing.T) {
		joins := []models.JoinSpec{
			{Table: "payments", On: "payments.order_id = orders.id", CardinalitySafe: &safe},
			{Table: "customers", On: "orders.customer_id = customers.id", CardinalitySafe: &safe},
		}
		ordered := OptimizeJoinOrder(joins, snap, "orders")
		assert.Equal(t, []string{"customers", "payments"}, joinTables(ordered))
	})

	t.Run("table name breaks full ties", func(t *testing.T) {
		joins := []models.JoinSpec{
			{Table: "stores", On: "orders.store_id = stores.id", CardinalitySafe: &safe},
			{Table: "customers", On: "orders.customer_id = customers.id", CardinalitySafe: &safe},
		}
		ordered := OptimizeJoinOrder(joins, snap, "orders")
		assert.Equal(t, []string{"customers", "stores"}, joinTables(ordered))
	})

	t.Run("dependencies override the sort", func(t *testing.T) {
		// products is cardinality-safe and a dimension, but its ON-clause
		// depends on lineitems, so it cannot be emitted first.
		joins := []models.JoinSpec{
			{Table: "products", On: "lineitems.product_id = products.id", CardinalitySafe: &safe},
			{Table: "lineitems", On: "lineitems.order_id = orders.id", CardinalitySafe: &unsafe},
		}
		ordered := OptimizeJoinOrder(joins, snap, "orders")
		assert.Equal(t, []string{"lineitems", "products"}, joinTables(ordered))
	})

	t.Run("single join passes through", func(t *testing.T) {
		joins := []models.JoinSpec{{Table: "customers", On: "orders.customer_id = customers.id"}}
		ordered := OptimizeJoinOrder(joins, snap, "orders")
		require.Len(t, ordered, 1)
		assert.Equal(t, "customers", ordered[0].Table)
	})

	t.Run("broken dependency still terminates", func(t *testing.T) {
		joins := []models.JoinSpec{
			{Table: "products", On: "lineitems.product_id = products.id"},
			{Table: "customers", On: "orders.customer_id = customers.id"},
		}
		ordered := OptimizeJoinOrder(joins, snap, "orders")
		assert.Len(t, ordered, 2)
	})
}
