package testhelpers

import (
	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

// TestSnapshot builds the retail schema shared by the resolver tests: order
// and lineitem facts, customer/store/product dimensions, and a tag link table
// with a composite key so many-to-many handling is exercised.
func TestSnapshot() *metadata.Snapshot {
	tables := []models.TableDescriptor{
		{
			Name: "orders",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "customer_id", DataType: "bigint"},
				{Name: "store_id", DataType: "bigint"},
				{Name: "amount", DataType: "numeric"},
				{Name: "status", DataType: "text"},
				{Name: "created_at", DataType: "timestamptz"},
			},
			PrimaryKey: []string{"id"},
			TimeColumn: "created_at",
			EntityType: models.EntityTypeFact,
		},
		{
			Name: "customers",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "name", DataType: "text"},
				{Name: "email", DataType: "text"},
				{Name: "region_id", DataType: "bigint"},
			},
			PrimaryKey: []string{"id"},
			EntityType: models.EntityTypeDimension,
		},
		{
			Name: "regions",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "name", DataType: "text"},
			},
			PrimaryKey: []string{"id"},
			EntityType: models.EntityTypeDimension,
		},
		{
			Name: "stores",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "name", DataType: "text"},
				{Name: "region_id", DataType: "bigint"},
			},
			PrimaryKey: []string{"id"},
			EntityType: models.EntityTypeDimension,
		},
		{
			Name: "lineitems",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "order_id", DataType: "bigint"},
				{Name: "product_id", DataType: "bigint"},
				{Name: "quantity", DataType: "integer"},
				{Name: "price", DataType: "numeric"},
			},
			PrimaryKey: []string{"id"},
			EntityType: models.EntityTypeFact,
		},
		{
			Name: "products",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "name", DataType: "text"},
				{Name: "category", DataType: "text"},
			},
			PrimaryKey: []string{"id"},
			EntityType: models.EntityTypeDimension,
		},
		{
			Name: "payments",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "order_id", DataType: "bigint"},
				{Name: "amount", DataType: "numeric"},
				{Name: "method", DataType: "text"},
			},
			PrimaryKey: []string{"id"},
			EntityType: models.EntityTypeFact,
		},
		{
			// Composite key: any inferred join over it is many_to_many.
			Name: "product_tags",
			Columns: []models.ColumnDescriptor{
				{Name: "product_id", DataType: "bigint"},
				{Name: "tag_id", DataType: "bigint"},
			},
			PrimaryKey: []string{"product_id", "tag_id"},
		},
		{
			Name: "tags",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "name", DataType: "text"},
			},
			PrimaryKey: []string{"id"},
			EntityType: models.EntityTypeDimension,
		},
	}

	paths := []metadata.DimensionPath{
		{
			Name: "order_customer",
			Segments: []metadata.JoinPathSegment{
				{From: "orders", To: "customers", On: "orders.customer_id = customers.id", RelationshipType: models.RelationshipManyToOne},
			},
		},
		{
			Name: "customer_region",
			Segments: []metadata.JoinPathSegment{
				{From: "customers", To: "regions", On: "customers.region_id = regions.id", RelationshipType: models.RelationshipManyToOne},
			},
		},
		{
			Name: "store_region",
			Segments: []metadata.JoinPathSegment{
				{From: "stores", To: "regions", On: "stores.region_id = regions.id", RelationshipType: models.RelationshipManyToOne},
			},
		},
		{
			Name: "order_store",
			Segments: []metadata.JoinPathSegment{
				{From: "orders", To: "stores", On: "orders.store_id = stores.id", RelationshipType: models.RelationshipManyToOne},
			},
		},
		{
			Name: "order_lineitems",
			Segments: []metadata.JoinPathSegment{
				{From: "orders", To: "lineitems", On: "lineitems.order_id = orders.id", RelationshipType: models.RelationshipOneToMany},
			},
		},
		{
			Name: "lineitem_product",
			Segments: []metadata.JoinPathSegment{
				{From: "lineitems", To: "products", On: "lineitems.product_id = products.id", RelationshipType: models.RelationshipManyToOne},
			},
		},
	}

	lineage := []metadata.LineageEdge{
		{FromTable: "payments", ToTable: "orders", On: "payments.order_id = orders.id"},
		{FromTable: "product_tags", ToTable: "products", On: "product_tags.product_id = products.id"},
		{FromTable: "product_tags", ToTable: "tags", On: "product_tags.tag_id = tags.id"},
	}

	return metadata.NewSnapshot(tables, paths, lineage)
}
