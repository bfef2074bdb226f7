package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	"github.com/tablemesh/tablemesh-engine/pkg/testhelpers"
)

func TestBuildRelationshipGraph(t *testing.T) {
	snap := testhelpers.TestSnapshot()
	graph := BuildRelationshipGraph(snap, nil, zap.NewNop())

	assert.Equal(t, len(snap.Tables), graph.TableCount())
	assert.True(t, graph.HasTable("orders"))
	assert.True(t, graph.HasTable("customers"))
	assert.False(t, graph.HasTable("mystery"))

	// Every declared segment and lineage edge contributes a forward and a
	// reverse directed edge.
	assert.Greater(t, graph.EdgeCount(), 0)
	assert.Equal(t, 0, graph.EdgeCount()%2)
}

func TestRelationshipGraph_EdgesFrom(t *testing.T) {
	graph := BuildRelationshipGraph(testhelpers.TestSnapshot(), nil, zap.NewNop())

	edges := graph.EdgesFrom("orders")
	require.NotEmpty(t, edges)

	byTarget := map[string]models.RelationshipEdge{}
	for _, e := range edges {
		byTarget[e.ToTable] = e
	}

	customers, ok := byTarget["customers"]
	require.True(t, ok)
	assert.Equal(t, models.RelationshipManyToOne, customers.RelationshipType)
	assert.True(t, customers.CardinalitySafe)
	assert.Equal(t, models.EdgeOriginMetadata, customers.Origin)
	assert.Equal(t, 1.0, customers.Weight)

	// The declared one_to_many path to lineitems is not cardinality-safe.
	lineitems, ok := byTarget["lineitems"]
	require.True(t, ok)
	assert.Equal(t, models.RelationshipOneToMany, lineitems.RelationshipType)
	assert.False(t, lineitems.CardinalitySafe)

	// The lineage edge payments -> orders yields a reverse edge from orders.
	payments, ok := byTarget["payments"]
	require.True(t, ok)
	assert.Equal(t, models.EdgeOriginLineage, payments.Origin)
}

func TestRelationshipGraph_InfersManyToManyOverCompositeKey(t *testing.T) {
	graph := BuildRelationshipGraph(testhelpers.TestSnapshot(), nil, zap.NewNop())

	// product_tags has a composite primary key; its lineage edges carry no
	// declared type, so inference must classify them many_to_many.
	for _, e := range graph.EdgesFrom("product_tags") {
		assert.Equal(t, models.RelationshipManyToMany, e.RelationshipType, "edge to %s", e.ToTable)
		assert.False(t, e.CardinalitySafe)
	}
}

func TestRelationshipGraph_AppendLearnedEdge(t *testing.T) {
	graph := BuildRelationshipGraph(testhelpers.TestSnapshot(), nil, zap.NewNop())
	before := graph.EdgeCount()

	graph.AppendLearnedEdge(&models.LearnedJoin{
		TableA:      "orders",
		TableB:      "products",
		On:          "orders.id = products.id",
		Cardinality: "N:1",
	})

	assert.Equal(t, before+2, graph.EdgeCount())

	var found *models.RelationshipEdge
	for _, e := range graph.EdgesFrom("orders") {
		if e.ToTable == "products" {
			e := e
			found = &e
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, models.EdgeOriginLearned, found.Origin)
	assert.Equal(t, models.LearnedEdgeWeight, found.Weight)
	assert.Equal(t, models.RelationshipManyToOne, found.RelationshipType)
}

func TestRelationshipGraph_AppendLearnedEdgeUnknownTable(t *testing.T) {
	graph := BuildRelationshipGraph(testhelpers.TestSnapshot(), nil, zap.NewNop())
	before := graph.EdgeCount()

	graph.AppendLearnedEdge(&models.LearnedJoin{
		TableA: "orders",
		TableB: "mystery",
		On:     "orders.id = mystery.order_id",
	})

	assert.Equal(t, before, graph.EdgeCount())
}

func TestRelationshipGraph_Connectivity(t *testing.T) {
	snap := metadata.NewSnapshot(
		[]models.TableDescriptor{
			{Name: "orders", Columns: []models.ColumnDescriptor{{Name: "id"}, {Name: "customer_id"}}, PrimaryKey: []string{"id"}},
			{Name: "customers", Columns: []models.ColumnDescriptor{{Name: "id"}}, PrimaryKey: []string{"id"}},
			{Name: "audit_log", Columns: []models.ColumnDescriptor{{Name: "id"}}, PrimaryKey: []string{"id"}},
		},
		[]metadata.DimensionPath{
			{Name: "order_customer", Segments: []metadata.JoinPathSegment{
				{From: "orders", To: "customers", On: "orders.customer_id = customers.id", RelationshipType: models.RelationshipManyToOne},
			}},
		},
		nil,
	)
	graph := BuildRelationshipGraph(snap, nil, zap.NewNop())

	components, islands := graph.Connectivity()
	require.Len(t, components, 1)
	assert.Equal(t, 2, components[0].Size)
	assert.ElementsMatch(t, []string{"orders", "customers"}, components[0].Tables)
	assert.Equal(t, []string{"audit_log"}, islands)
}

func TestRelationshipGraph_SkipsEdgesNamingUnknownTables(t *testing.T) {
	snap := metadata.NewSnapshot(
		[]models.TableDescriptor{
			{Name: "orders", Columns: []models.ColumnDescriptor{{Name: "id"}}, PrimaryKey: []string{"id"}},
		},
		[]metadata.DimensionPath{
			{Name: "broken", Segments: []metadata.JoinPathSegment{
				{From: "orders", To: "ghosts", On: "orders.ghost_id = ghosts.id"},
			}},
		},
		nil,
	)
	graph := BuildRelationshipGraph(snap, nil, zap.NewNop())

	assert.Equal(t, 0, graph.EdgeCount())
	assert.Empty(t, graph.EdgesFrom("orders"))
}

func TestInferOnExpression_UsesPriorityKeys(t *testing.T) {
	snap := metadata.NewSnapshot(
		[]models.TableDescriptor{
			{Name: "payments", Columns: []models.ColumnDescriptor{{Name: "id"}, {Name: "order_id"}}, PrimaryKey: []string{"id"}},
			{Name: "refunds", Columns: []models.ColumnDescriptor{{Name: "id"}, {Name: "order_id"}}, PrimaryKey: []string{"id"}},
		},
		nil,
		[]metadata.LineageEdge{
			{FromTable: "payments", ToTable: "refunds"}, // no ON declared
		},
	)
	graph := BuildRelationshipGraph(snap, nil, zap.NewNop())

	edges := graph.EdgesFrom("payments")
	require.Len(t, edges, 1)
	assert.Equal(t, "payments.order_id = refunds.order_id", edges[0].On)
}
