package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/tablemesh/tablemesh-engine/pkg/models"
	sqlx "github.com/tablemesh/tablemesh-engine/pkg/sql"
)

// BuildExplainPlan assembles the explain plan from a fix result and the build
// outcome. It only reshapes decisions already made; nothing here decides
// anything new.
func BuildExplainPlan(fix *models.FixResult, build *BuildResult) *models.ExplainPlan {
	intent := fix.FixedIntent

	plan := &models.ExplainPlan{
		AnchorTable: intent.BaseTable,
		Notes:       fix.InferenceNotes,
		Columns:     intent.Columns,
		GroupBy:     intent.GroupBy,
	}

	dropped := map[string]bool{}
	if build != nil {
		for _, t := range build.DroppedJoins {
			dropped[t] = true
		}
	}

	for _, join := range intent.Joins {
		if dropped[join.Table] {
			continue
		}

		step := models.JoinStep{
			FromTable:       joinSourceTable(intent, join),
			ToTable:         join.Table,
			JoinType:        "LEFT JOIN",
			On:              join.On,
			Confidence:      fix.Confidence.String(),
			InferenceReason: join.InferenceReason,
		}
		if build != nil {
			if jt, ok := build.JoinTypes[join.Table]; ok {
				step.JoinType = jt
			}
		}
		if join.Inferred {
			step.Reason = "inferred"
		} else {
			step.Reason = "declared"
		}
		plan.Steps = append(plan.Steps, step)
	}

	for _, f := range intent.Filters {
		plan.Filters = append(plan.Filters, describeFilter(f))
	}
	return plan
}

// joinSourceTable reads the join's source from its ON-clause: the first
// referenced table that is not the joined table itself. Falls back to the
// base table for unparsable ON text.
func joinSourceTable(intent *models.QueryIntent, join models.JoinSpec) string {
	for _, ref := range sqlx.ReferencedColumns(join.On) {
		if !strings.EqualFold(ref.Table, join.Table) {
			return ref.Table
		}
	}
	return intent.BaseTable
}

func describeFilter(f models.FilterSpec) string {
	if len(f.Or) > 0 {
		parts := make([]string, len(f.Or))
		for i, sub := range f.Or {
			parts[i] = describeFilter(sub)
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}

	column := f.Column
	if len(f.Columns) > 0 {
		column = "COALESCE(" + strings.Join(f.Columns, ", ") + ")"
	}
	if f.Table != "" && !strings.Contains(column, ".") {
		column = f.Table + "." + column
	}
	operator := f.Operator
	if operator == "" {
		operator = "="
	}
	switch strings.ToUpper(operator) {
	case "IS NULL", "IS NOT NULL":
		return fmt.Sprintf("%s %s", column, strings.ToUpper(operator))
	}
	if len(f.Values) > 0 {
		return fmt.Sprintf("%s %s %v", column, operator, f.Values)
	}
	return fmt.Sprintf("%s %s %v", column, operator, f.Value)
}

// RenderExplainPlan writes the plan as a markdown table plus tagged notes.
// The confidence column is colorized: green SAFE, yellow AMBIGUOUS, red
// UNSAFE.
func RenderExplainPlan(w io.Writer, plan *models.ExplainPlan, confidence models.FixConfidence) {
	fmt.Fprintf(w, "Anchor table: %s\n", plan.AnchorTable)
	fmt.Fprintf(w, "Confidence:   %s\n\n", colorConfidence(confidence.String()))

	if len(plan.Steps) > 0 {
		headers := []string{"step", "join", "table", "on", "reason", "confidence"}
		alignment := make([]tw.Align, len(headers))
		for i := range alignment {
			alignment[i] = tw.AlignNone
		}

		table := tablewriter.NewTable(w,
			tablewriter.WithRenderer(renderer.NewMarkdown()),
			tablewriter.WithAlignment(alignment),
			tablewriter.WithHeaderAutoFormat(tw.Off),
		)
		table.Header(headers)
		for i, step := range plan.Steps {
			reason := step.Reason
			if step.InferenceReason != "" {
				reason = step.InferenceReason
			}
			table.Append([]string{
				fmt.Sprintf("%d", i+1),
				step.JoinType,
				step.ToTable,
				step.On,
				reason,
				colorConfidence(step.Confidence),
			})
		}
		table.Render()
	}

	if len(plan.Filters) > 0 {
		fmt.Fprintf(w, "\nFilters:\n")
		for _, f := range plan.Filters {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	if len(plan.GroupBy) > 0 {
		fmt.Fprintf(w, "\nGroup by: %s\n", strings.Join(plan.GroupBy, ", "))
	}

	if len(plan.Notes) > 0 {
		fmt.Fprintf(w, "\nNotes:\n")
		for _, note := range plan.Notes {
			fmt.Fprintf(w, "  [%s] %s\n", colorNoteKind(note.Kind), note.Message)
		}
	}
}

func colorConfidence(confidence string) string {
	switch confidence {
	case "SAFE":
		return color.GreenString(confidence)
	case "AMBIGUOUS":
		return color.YellowString(confidence)
	case "UNSAFE":
		return color.RedString(confidence)
	default:
		return confidence
	}
}

func colorNoteKind(kind string) string {
	switch kind {
	case models.NoteUnsafe, models.NoteDroppedReference:
		return color.RedString(kind)
	case models.NoteAmbiguous, models.NoteNeedsReview:
		return color.YellowString(kind)
	default:
		return color.CyanString(kind)
	}
}
