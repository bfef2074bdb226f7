package services

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

func TestBuildExplainPlan(t *testing.T) {
	fix := &models.FixResult{
		FixedIntent: &models.QueryIntent{
			BaseTable: "orders",
			Joins: []models.JoinSpec{
				{Table: "customers", On: "orders.customer_id = customers.id"},
				{Table: "lineitems", On: "lineitems.order_id = orders.id", Inferred: true, InferenceReason: "inferred many_to_one join"},
				{Table: "stores", On: ""},
			},
			Filters: []models.FilterSpec{{Table: "customers", Column: "name", Value: "x"}},
			GroupBy: []string{"customers.name"},
		},
		Confidence: models.ConfidenceSafe,
	}
	fix.AddNote(models.NoteInferredJoin, "lineitems", "synthesized join")

	build := &BuildResult{
		JoinTypes:    map[string]string{"customers": "INNER JOIN", "lineitems": "LEFT JOIN"},
		DroppedJoins: []string{"stores"},
	}

	plan := BuildExplainPlan(fix, build)

	assert.Equal(t, "orders", plan.AnchorTable)
	require.Len(t, plan.Steps, 2, "dropped joins never appear as steps")

	assert.Equal(t, "orders", plan.Steps[0].FromTable)
	assert.Equal(t, "customers", plan.Steps[0].ToTable)
	assert.Equal(t, "INNER JOIN", plan.Steps[0].JoinType)
	assert.Equal(t, "declared", plan.Steps[0].Reason)
	assert.Equal(t, "SAFE", plan.Steps[0].Confidence)

	// The second join's ON-clause leads with its own table; the source is the
	// other referenced table.
	assert.Equal(t, "orders", plan.Steps[1].FromTable)
	assert.Equal(t, "inferred", plan.Steps[1].Reason)
	assert.Equal(t, "inferred many_to_one join", plan.Steps[1].InferenceReason)

	require.Len(t, plan.Filters, 1)
	assert.Equal(t, "customers.name = x", plan.Filters[0])
	assert.Equal(t, []string{"customers.name"}, plan.GroupBy)
	require.Len(t, plan.Notes, 1)
}

func TestBuildExplainPlan_NilBuild(t *testing.T) {
	fix := &models.FixResult{
		FixedIntent: &models.QueryIntent{
			BaseTable: "orders",
			Joins:     []models.JoinSpec{{Table: "customers", On: "orders.customer_id = customers.id"}},
		},
		Confidence: models.ConfidenceAmbiguous,
	}

	plan := BuildExplainPlan(fix, nil)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "LEFT JOIN", plan.Steps[0].JoinType)
	assert.Equal(t, "AMBIGUOUS", plan.Steps[0].Confidence)
}

func TestDescribeFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter models.FilterSpec
		want   string
	}{
		{
			name:   "plain equality",
			filter: models.FilterSpec{Table: "orders", Column: "status", Value: "open"},
			want:   "orders.status = open",
		},
		{
			name:   "null check",
			filter: models.FilterSpec{Column: "status", Operator: "is null"},
			want:   "status IS NULL",
		},
		{
			name:   "value list",
			filter: models.FilterSpec{Column: "status", Operator: "IN", Values: []any{"a", "b"}},
			want:   "status IN [a b]",
		},
		{
			name:   "coalesce columns",
			filter: models.FilterSpec{Columns: []string{"email", "phone"}, Value: "x"},
			want:   "COALESCE(email, phone) = x",
		},
		{
			name: "or group",
			filter: models.FilterSpec{Or: []models.FilterSpec{
				{Column: "status", Value: "open"},
				{Column: "status", Value: "shipped"},
			}},
			want: "(status = open OR status = shipped)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeFilter(tt.filter))
		})
	}
}

func TestRenderExplainPlan(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	fix := &models.FixResult{
		FixedIntent: &models.QueryIntent{
			BaseTable: "orders",
			Joins: []models.JoinSpec{
				{Table: "customers", On: "orders.customer_id = customers.id"},
			},
			GroupBy: []string{"customers.name"},
		},
		Confidence: models.ConfidenceAmbiguous,
	}
	fix.AddNote(models.NoteAmbiguous, "regions", "multiple candidate paths")

	plan := BuildExplainPlan(fix, nil)

	var buf strings.Builder
	RenderExplainPlan(&buf, plan, fix.Confidence)
	out := buf.String()

	assert.Contains(t, out, "Anchor table: orders")
	assert.Contains(t, out, "AMBIGUOUS")
	assert.Contains(t, out, "customers")
	assert.Contains(t, out, "orders.customer_id = customers.id")
	assert.Contains(t, out, "Group by: customers.name")
	assert.Contains(t, out, "[ambiguous] multiple candidate paths")
}
