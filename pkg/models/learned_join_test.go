package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLearnedJoin_RelationshipType(t *testing.T) {
	lj := &LearnedJoin{
		TableA:      "orders",
		TableB:      "customers",
		On:          "orders.customer_id = customers.id",
		Cardinality: "N:1",
	}

	assert.Equal(t, RelationshipManyToOne, lj.RelationshipType("orders"))
	// Traversing from the B side reverses the stored orientation.
	assert.Equal(t, RelationshipOneToMany, lj.RelationshipType("customers"))
}

func TestNormalizedPairKey(t *testing.T) {
	assert.Equal(t, NormalizedPairKey("orders", "customers"), NormalizedPairKey("customers", "orders"))
	assert.Equal(t, NormalizedPairKey("Orders", "CUSTOMERS"), NormalizedPairKey("customers", "orders"))
	assert.Equal(t, "customers|orders", NormalizedPairKey("orders", "customers"))
}
