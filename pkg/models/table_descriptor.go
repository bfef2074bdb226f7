package models

import "strings"

// EntityType constants for table classification.
const (
	EntityTypeDimension = "dimension" // Low-cardinality descriptive table
	EntityTypeFact      = "fact"      // High-cardinality event/transaction table
	EntityTypeUnknown   = ""          // No classification available
)

// ColumnDescriptor describes a single column of a table in the metadata snapshot.
type ColumnDescriptor struct {
	Name        string `json:"name" yaml:"name"`
	DataType    string `json:"data_type" yaml:"data_type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TableDescriptor describes one table of the metadata snapshot the resolver
// operates over. Column order is preserved as declared.
type TableDescriptor struct {
	Name       string             `json:"name" yaml:"name"`
	Columns    []ColumnDescriptor `json:"columns" yaml:"columns"`
	PrimaryKey []string           `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	TimeColumn string             `json:"time_column,omitempty" yaml:"time_column,omitempty"`
	EntityType string             `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
}

// HasColumn reports whether the table declares a column with the given name
// (case-insensitive).
func (t *TableDescriptor) HasColumn(name string) bool {
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return true
		}
	}
	return false
}

// ColumnNames returns the declared column names in order.
func (t *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// HasSingleColumnPK reports whether the table has exactly one primary key column.
func (t *TableDescriptor) HasSingleColumnPK() bool {
	return len(t.PrimaryKey) == 1
}

// HasCompositePK reports whether the table has a multi-column primary key.
func (t *TableDescriptor) HasCompositePK() bool {
	return len(t.PrimaryKey) > 1
}

// IsDimension reports whether the table is explicitly tagged as a dimension.
func (t *TableDescriptor) IsDimension() bool {
	return t.EntityType == EntityTypeDimension
}
