package models

import (
	"encoding/json"

	"github.com/tablemesh/tablemesh-engine/pkg/jsonutil"
)

// Query type constants.
const (
	QueryTypeRelational = "relational" // Row-level selection
	QueryTypeMetric     = "metric"     // Aggregated measure over dimensions
)

// JoinSpec is one join of a query intent. Inference metadata is populated by
// the fixer for joins it synthesizes; caller-supplied joins leave it zeroed.
type JoinSpec struct {
	Table            string `json:"table"`
	On               string `json:"on"`
	RelationshipType string `json:"relationship_type,omitempty"`
	CardinalitySafe  *bool  `json:"cardinality_safe,omitempty"`
	Inferred         bool   `json:"inferred,omitempty"`
	InferenceReason  string `json:"inference_reason,omitempty"`
}

// FilterSpec is one predicate of a query intent. Exactly one of Column or
// Columns is set; Columns requests a COALESCE over the listed columns. Or
// holds a nested OR-group rendered as a single parenthesized condition.
type FilterSpec struct {
	Column   string       `json:"column,omitempty"`
	Columns  []string     `json:"columns,omitempty"`
	Table    string       `json:"table,omitempty"`
	Operator string       `json:"operator,omitempty"`
	Value    any          `json:"value,omitempty"`
	Values   []any        `json:"values,omitempty"`
	Function string       `json:"function,omitempty"`
	Or       []FilterSpec `json:"or,omitempty"`
}

// Metric is an aggregatable measure expression.
type Metric struct {
	Name          string `json:"name"`
	SQLExpression string `json:"sql_expression"`
}

// ComputedDimension is a dimension backed by a SQL expression rather than a
// physical column.
type ComputedDimension struct {
	Name          string `json:"name"`
	SQLExpression string `json:"sql_expression"`
}

// QueryIntent is the structured, possibly incomplete description of a desired
// query. It arrives from an external planner, is repaired by the fixer, and is
// treated as immutable afterwards.
type QueryIntent struct {
	BaseTable          string              `json:"base_table"`
	AnchorEntity       string              `json:"anchor_entity,omitempty"`
	QueryType          string              `json:"query_type"`
	Columns            []string            `json:"columns,omitempty"`
	Joins              []JoinSpec          `json:"joins,omitempty"`
	Filters            []FilterSpec        `json:"filters,omitempty"`
	GroupBy            []string            `json:"group_by,omitempty"`
	OrderBy            []string            `json:"order_by,omitempty"`
	Metric             *Metric             `json:"metric,omitempty"`
	ComputedDimensions []ComputedDimension `json:"computed_dimensions,omitempty"`
}

// intentAlias mirrors QueryIntent with loosely-typed fields for boundary
// normalization. Planners sometimes send the metric as a one-element list and
// scalar fields where lists are expected; all of that is normalized here, once,
// so downstream code never branches on payload shape.
type intentAlias struct {
	BaseTable          string              `json:"base_table"`
	AnchorEntity       string              `json:"anchor_entity"`
	QueryType          string              `json:"query_type"`
	Columns            json.RawMessage     `json:"columns"`
	Joins              []JoinSpec          `json:"joins"`
	Filters            []FilterSpec        `json:"filters"`
	GroupBy            json.RawMessage     `json:"group_by"`
	OrderBy            json.RawMessage     `json:"order_by"`
	Metric             json.RawMessage     `json:"metric"`
	ComputedDimensions []ComputedDimension `json:"computed_dimensions"`
}

// UnmarshalJSON normalizes the loosely-shaped intent payload at the boundary.
func (q *QueryIntent) UnmarshalJSON(data []byte) error {
	var alias intentAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	q.BaseTable = alias.BaseTable
	q.AnchorEntity = alias.AnchorEntity
	q.QueryType = alias.QueryType
	q.Columns = jsonutil.FlexibleStringSlice(alias.Columns)
	q.Joins = alias.Joins
	q.Filters = alias.Filters
	q.GroupBy = jsonutil.FlexibleStringSlice(alias.GroupBy)
	q.OrderBy = jsonutil.FlexibleStringSlice(alias.OrderBy)
	q.ComputedDimensions = alias.ComputedDimensions

	if raw := jsonutil.FirstObject(alias.Metric); raw != nil {
		var metric Metric
		if err := json.Unmarshal(raw, &metric); err != nil {
			return err
		}
		q.Metric = &metric
	}

	if q.QueryType == "" {
		if q.Metric != nil {
			q.QueryType = QueryTypeMetric
		} else {
			q.QueryType = QueryTypeRelational
		}
	}
	return nil
}

// Clone returns a deep copy of the intent. The fixer mutates only its clone;
// the caller's intent is never touched.
func (q *QueryIntent) Clone() *QueryIntent {
	clone := *q

	clone.Columns = append([]string(nil), q.Columns...)
	clone.GroupBy = append([]string(nil), q.GroupBy...)
	clone.OrderBy = append([]string(nil), q.OrderBy...)
	clone.Joins = append([]JoinSpec(nil), q.Joins...)
	clone.ComputedDimensions = append([]ComputedDimension(nil), q.ComputedDimensions...)

	clone.Filters = cloneFilters(q.Filters)

	if q.Metric != nil {
		metric := *q.Metric
		clone.Metric = &metric
	}
	return &clone
}

func cloneFilters(filters []FilterSpec) []FilterSpec {
	if filters == nil {
		return nil
	}
	cloned := make([]FilterSpec, len(filters))
	for i, f := range filters {
		cloned[i] = f
		cloned[i].Columns = append([]string(nil), f.Columns...)
		cloned[i].Values = append([]any(nil), f.Values...)
		cloned[i].Or = cloneFilters(f.Or)
	}
	return cloned
}

// JoinTables returns the tables joined by the intent, in declaration order.
func (q *QueryIntent) JoinTables() []string {
	tables := make([]string, len(q.Joins))
	for i, j := range q.Joins {
		tables[i] = j.Table
	}
	return tables
}

// HasJoin reports whether the intent already joins the given table.
func (q *QueryIntent) HasJoin(table string) bool {
	for _, j := range q.Joins {
		if j.Table == table {
			return true
		}
	}
	return false
}
