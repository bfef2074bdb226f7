package services

import (
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	sqlx "github.com/tablemesh/tablemesh-engine/pkg/sql"
)

// Validation error codes.
const (
	CodeMissingBaseTable  = "missing_base_table"
	CodeUnknownTable      = "unknown_table"
	CodeUnjoinedReference = "unjoined_table_reference"
)

// ValidationError is one structural problem found in an intent. Validation
// never panics or returns a Go error for expected conditions; everything is
// surfaced as a list entry so a repair loop can react.
type ValidationError struct {
	Code    string `json:"code"`
	Table   string `json:"table,omitempty"`
	Message string `json:"message"`
}

// ValidationResult aggregates the findings of one validation pass.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Valid reports whether the intent passed without errors.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) addError(code, table, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{
		Code:    code,
		Table:   table,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// positionalAliasPattern matches positional aliases t1..tn.
var positionalAliasPattern = regexp.MustCompile(`^t([0-9]+)$`)

// IntentValidator performs structural and semantic validation of a query
// intent against a metadata snapshot.
type IntentValidator struct {
	snapshot *metadata.Snapshot
	logger   *zap.Logger
}

// NewIntentValidator creates a validator for the snapshot.
func NewIntentValidator(snapshot *metadata.Snapshot, logger *zap.Logger) *IntentValidator {
	return &IntentValidator{
		snapshot: snapshot,
		logger:   logger.Named("intent-validator"),
	}
}

// Validate checks the intent's structure: the base table exists, every join
// target exists, every ON-clause / filter / column references only tables
// already in scope. A referenced table that exists in metadata but is not
// joined is an error, not a silent pass; it signals the fixer should have
// run first. A missing anchor entity is only a warning; it defaults to the
// base table.
func (v *IntentValidator) Validate(intent *models.QueryIntent) *ValidationResult {
	result := &ValidationResult{}

	if intent.BaseTable == "" {
		result.addError(CodeMissingBaseTable, "", "intent has no base table")
		return result
	}
	if !v.snapshot.HasTable(intent.BaseTable) {
		result.addError(CodeUnknownTable, intent.BaseTable,
			"base table %q is not present in metadata", intent.BaseTable)
		return result
	}

	if intent.AnchorEntity == "" {
		result.addWarning("anchor entity absent; defaulting to base table %q", intent.BaseTable)
	}

	scope := map[string]bool{v.scopeKey(intent.BaseTable): true}

	for i, join := range intent.Joins {
		if !v.snapshot.HasTable(join.Table) {
			result.addError(CodeUnknownTable, join.Table,
				"join %d targets table %q which is not present in metadata", i+1, join.Table)
			continue
		}

		joinScope := v.scopeKey(join.Table)
		for _, ref := range sqlx.ReferencedColumns(join.On) {
			refTable, ok := v.resolveRef(ref.Table, intent)
			if !ok {
				result.addError(CodeUnknownTable, ref.Table,
					"join %d ON-clause references unknown table %q", i+1, ref.Table)
				continue
			}
			key := v.scopeKey(refTable)
			if key != joinScope && !scope[key] {
				result.addError(CodeUnjoinedReference, refTable,
					"join %d ON-clause references table %q before it is joined", i+1, refTable)
			}
		}
		scope[joinScope] = true
	}

	v.checkFilters(intent.Filters, intent, scope, result)

	for _, col := range intent.Columns {
		for _, ref := range sqlx.ReferencedColumns(col) {
			v.checkScopedRef(ref.Table, intent, scope, result, "column %q", col)
		}
	}
	for _, expr := range intent.GroupBy {
		for _, ref := range sqlx.ReferencedColumns(expr) {
			v.checkScopedRef(ref.Table, intent, scope, result, "group_by %q", expr)
		}
	}

	return result
}

func (v *IntentValidator) checkFilters(filters []models.FilterSpec, intent *models.QueryIntent, scope map[string]bool, result *ValidationResult) {
	for _, f := range filters {
		if f.Table != "" {
			v.checkScopedRef(f.Table, intent, scope, result, "filter on %q", f.Column)
		}
		v.checkFilters(f.Or, intent, scope, result)
	}
}

func (v *IntentValidator) checkScopedRef(table string, intent *models.QueryIntent, scope map[string]bool, result *ValidationResult, context string, args ...any) {
	refTable, ok := v.resolveRef(table, intent)
	if !ok {
		result.addError(CodeUnknownTable, table,
			context+" references unknown table %q", append(args, table)...)
		return
	}
	if !scope[v.scopeKey(refTable)] {
		result.addError(CodeUnjoinedReference, refTable,
			context+" references table %q which is not joined", append(args, refTable)...)
	}
}

// resolveRef resolves a table reference that may be a positional alias
// (t1 = base table, t2..tn = joins in declaration order) or a table name.
func (v *IntentValidator) resolveRef(ref string, intent *models.QueryIntent) (string, bool) {
	if m := positionalAliasPattern.FindStringSubmatch(ref); m != nil {
		pos, _ := strconv.Atoi(m[1])
		if pos == 1 {
			return intent.BaseTable, true
		}
		if pos >= 2 && pos-2 < len(intent.Joins) {
			return intent.Joins[pos-2].Table, true
		}
		// Positional alias out of range and no table literally named like it
		if !v.snapshot.HasTable(ref) {
			return "", false
		}
	}
	if v.snapshot.HasTable(ref) {
		return v.snapshot.CanonicalName(ref), true
	}
	return "", false
}

func (v *IntentValidator) scopeKey(table string) string {
	return metadata.NormalizeName(v.snapshot.CanonicalName(table))
}
